// Package server exposes the worker over HTTP: job submission and
// status, health and Prometheus metrics. DTOs are kept apart from the
// job domain types.
package server

import "time"

// CreateJobRequest is the HTTP request body for submitting a run.
type CreateJobRequest struct {
	// Input is a local path, an http(s) URL or an s3:// URI.
	Input string `json:"input" validate:"required"`
}

// CreateJobResponse is the HTTP response after submitting a run.
type CreateJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// JobResponse describes a job. State and Message are set once the run finished.
type JobResponse struct {
	ID          string     `json:"id"`
	Input       string     `json:"input"`
	SourceID    string     `json:"source_id"`
	Status      string     `json:"status"`
	State       int        `json:"state,omitempty"`
	Message     string     `json:"message,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListJobsResponse is the HTTP response for listing jobs.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}
