// Package web provides HTTP request and response types for the job API.
package web

import (
	"time"

	"github.com/flowforge/flowforge/pkg/models"
)

// SubmitJobRequest represents the request body for submitting a generation job.
type SubmitJobRequest struct {
	ID                      string                         `json:"id,omitempty"`
	AutomationOpportunities []models.AutomationOpportunity `json:"automationOpportunities"`
	ProcessDescription      string                         `json:"processDescription"`
	BusinessContext         models.BusinessContext         `json:"businessContext"`
	Plan                    *models.OrchestrationPlan      `json:"plan,omitempty"`
}

// ToSubmission converts the request into the submission accepted by the job service.
func (r SubmitJobRequest) ToSubmission() *models.JobSubmission {
	return &models.JobSubmission{
		ID:                      r.ID,
		AutomationOpportunities: r.AutomationOpportunities,
		ProcessDescription:      r.ProcessDescription,
		BusinessContext:         r.BusinessContext,
		Plan:                    r.Plan,
	}
}

// SubmitJobResponse is returned when a job has been accepted.
type SubmitJobResponse struct {
	ID     string           `json:"id"`
	Status models.JobStatus `json:"status"`
}

// HealthResponse reports the state of every dependency checked by /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Checkers  map[string]string `json:"checkers"`
	Timestamp time.Time         `json:"timestamp"`
}
