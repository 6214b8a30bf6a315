package api

import (
	"time"

	"github.com/codeready-toolchain/nl2schema/pkg/config"
	"github.com/codeready-toolchain/nl2schema/pkg/persist"
)

// RunResponse is the JSON shape returned for a PipelineRun.
type RunResponse struct {
	ID            string         `json:"id"`
	NLDescription string         `json:"nl_description"`
	Status        string         `json:"status"`
	CurrentPhase  int            `json:"current_phase"`
	CreatedAt     time.Time      `json:"created_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func runResponseFrom(run persist.PipelineRun) RunResponse {
	return RunResponse{
		ID:            run.ID,
		NLDescription: run.NLDescription,
		Status:        run.Status,
		CurrentPhase:  run.CurrentPhase,
		CreatedAt:     run.CreatedAt,
		StartedAt:     run.StartedAt,
		CompletedAt:   run.CompletedAt,
		ErrorMessage:  run.ErrorMessage,
		Metadata:      run.Metadata,
	}
}

// RunListResponse is the JSON shape returned for a page of ListRuns results.
type RunListResponse struct {
	Runs       []RunResponse `json:"runs"`
	TotalCount int           `json:"total_count"`
	Limit      int           `json:"limit"`
	Offset     int           `json:"offset"`
}

// EventResponse is the JSON shape returned for one PipelineEvent.
type EventResponse struct {
	SequenceNumber int       `json:"sequence_number"`
	PhaseNumber    int       `json:"phase_number"`
	StepID         string    `json:"step_id"`
	Kind           string    `json:"kind"`
	Payload        any       `json:"payload,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func eventResponseFrom(e persist.PipelineEvent) EventResponse {
	return EventResponse{
		SequenceNumber: e.SequenceNumber,
		PhaseNumber:    e.PhaseNumber,
		StepID:         e.StepID,
		Kind:           e.Kind,
		Payload:        e.Payload,
		CreatedAt:      e.CreatedAt,
	}
}

// HealthResponse is the JSON shape returned by GET /health.
type HealthResponse struct {
	Status        string              `json:"status"`
	Version       string              `json:"version"`
	Database      persist.HealthStatus `json:"database"`
	Configuration config.ConfigStats  `json:"configuration"`
	WorkerPool    any                 `json:"worker_pool,omitempty"`
}
