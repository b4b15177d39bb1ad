package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     JobStatus
		to       JobStatus
		expected bool
	}{
		{"pending to planning", JobStatusPending, JobStatusPlanning, true},
		{"planning to generating", JobStatusPlanning, JobStatusGenerating, true},
		{"generating to validating", JobStatusGenerating, JobStatusValidating, true},
		{"validating to completed", JobStatusValidating, JobStatusCompleted, true},
		{"skipping ahead", JobStatusPending, JobStatusValidating, true},
		{"same status is idempotent", JobStatusGenerating, JobStatusGenerating, true},
		{"terminal repeat is idempotent", JobStatusCompleted, JobStatusCompleted, true},
		{"failed from pending", JobStatusPending, JobStatusFailed, true},
		{"failed from validating", JobStatusValidating, JobStatusFailed, true},
		{"backwards", JobStatusValidating, JobStatusPlanning, false},
		{"back to pending", JobStatusPlanning, JobStatusPending, false},
		{"completed before validating", JobStatusGenerating, JobStatusCompleted, false},
		{"completed from pending", JobStatusPending, JobStatusCompleted, false},
		{"out of completed", JobStatusCompleted, JobStatusFailed, false},
		{"out of failed", JobStatusFailed, JobStatusPlanning, false},
		{"unknown target", JobStatusPending, JobStatus("queued"), false},
		{"unknown source", JobStatus("queued"), JobStatusPlanning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.from.CanTransition(tt.to))
		})
	}
}

func TestJobStatus_RankAndTerminal(t *testing.T) {
	assert.Equal(t, 0, JobStatusPending.Rank())
	assert.Equal(t, 3, JobStatusValidating.Rank())
	assert.Equal(t, JobStatusCompleted.Rank(), JobStatusFailed.Rank())
	assert.Equal(t, -1, JobStatus("").Rank())

	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.False(t, JobStatusValidating.IsTerminal())
}

func TestJobSubmission_ResolvePlan(t *testing.T) {
	explicit := &OrchestrationPlan{Name: "Explicit"}
	submission := JobSubmission{Plan: explicit, AutomationOpportunities: []AutomationOpportunity{{Title: "Ignored"}}}
	assert.Same(t, explicit, submission.ResolvePlan())

	submission = JobSubmission{
		ProcessDescription:      "Route invoices",
		AutomationOpportunities: []AutomationOpportunity{{Title: "Route Invoice"}},
	}
	plan := submission.ResolvePlan()
	assert.Equal(t, "Route Invoice", plan.Name)
	assert.Equal(t, "Route invoices", plan.Description)

	assert.Equal(t, "Automation", (&JobSubmission{}).ResolvePlan().Name)
}

func TestJob_View(t *testing.T) {
	job := Job{
		ID:       "job-1",
		Status:   JobStatusFailed,
		Progress: 40,
		Error:    &JobError{Kind: ErrorKindConstruction, Message: "unknown kind"},
	}

	view := job.View()
	assert.Equal(t, JobStatusFailed, view.Status)
	assert.Equal(t, 40, view.Progress)
	assert.Nil(t, view.Result)
	assert.Equal(t, ErrorKindConstruction, view.Error.Kind)
}
