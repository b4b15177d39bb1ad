package models

import "time"

// JobStatus represents the lifecycle state of a generation job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusPlanning   JobStatus = "planning"
	JobStatusGenerating JobStatus = "generating"
	JobStatusValidating JobStatus = "validating"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

var jobStatusRank = map[JobStatus]int{
	JobStatusPending:    0,
	JobStatusPlanning:   1,
	JobStatusGenerating: 2,
	JobStatusValidating: 3,
	JobStatusCompleted:  4,
	JobStatusFailed:     4,
}

// Rank returns the position of the status in the forward-only lifecycle, or -1 when unknown.
func (s JobStatus) Rank() int {
	rank, ok := jobStatusRank[s]
	if !ok {
		return -1
	}

	return rank
}

// IsTerminal reports whether no further transition is possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether a job may move from s to next.
// Re-applying the current status is allowed so status updates stay idempotent.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.Rank() < 0 || next.Rank() < 0 {
		return false
	}

	if s == next {
		return true
	}

	if s.IsTerminal() {
		return false
	}

	switch next {
	case JobStatusFailed:
		return true
	case JobStatusCompleted:
		return s == JobStatusValidating
	default:
		return next.Rank() > s.Rank()
	}
}

// ErrorKind distinguishes "plan cannot be represented" from "plan violates a structural policy".
type ErrorKind string

const (
	ErrorKindConstruction ErrorKind = "construction"
	ErrorKindValidation   ErrorKind = "validation"
	ErrorKindInternal     ErrorKind = "internal"
)

// JobError is the error detail exposed by a failed job.
type JobError struct {
	Kind             ErrorKind `json:"kind"`
	Message          string    `json:"message"`
	ValidationErrors []string  `json:"validationErrors,omitempty"`
}

// JobSubmission is the payload accepted from the API layer.
type JobSubmission struct {
	ID                      string                  `json:"id"`
	AutomationOpportunities []AutomationOpportunity `json:"automationOpportunities" validate:"required_without=Plan,dive"`
	ProcessDescription      string                  `json:"processDescription"      validate:"required"`
	BusinessContext         BusinessContext         `json:"businessContext"`
	Plan                    *OrchestrationPlan      `json:"plan,omitempty"`
}

// ResolvePlan returns the explicit plan or derives one from the automation opportunities.
func (s *JobSubmission) ResolvePlan() *OrchestrationPlan {
	if s.Plan != nil {
		return s.Plan
	}

	name := "Automation"
	if len(s.AutomationOpportunities) > 0 {
		name = s.AutomationOpportunities[0].Title
	}

	return PlanFromOpportunities(name, s.ProcessDescription, s.AutomationOpportunities)
}

// Job is one plan-to-workflow transformation tracked by the processor.
type Job struct {
	ID         string        `json:"id"`
	Status     JobStatus     `json:"status"`
	Progress   int           `json:"progress"`
	Submission JobSubmission `json:"submission"`
	Result     *Artifact     `json:"result,omitempty"`
	Error      *JobError     `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// JobStatusView is the status query response exposed to the API layer.
type JobStatusView struct {
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	Result   *Artifact `json:"result,omitempty"`
	Error    *JobError `json:"error,omitempty"`
}

// View returns the public status view of the job.
func (j *Job) View() JobStatusView {
	return JobStatusView{
		Status:   j.Status,
		Progress: j.Progress,
		Result:   j.Result,
		Error:    j.Error,
	}
}
