package persist

import "time"

// PipelineRun is the durable record of one compilation run (the
// session-equivalent of this domain — adapted from the teacher's
// AlertSession).
type PipelineRun struct {
	ID              string
	NLDescription   string
	Status          string // pending | in_progress | completed | failed | cancelled
	CurrentPhase    int
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	ErrorMessage    string
	PodID           string // owning worker, for multi-replica coordination
	LastInteraction *time.Time
	Metadata        map[string]any
}

// PhaseExecution is one phase's run record (adapted from the teacher's
// Stage — a pipeline has exactly nine, numbered 1..9).
type PhaseExecution struct {
	ID           string
	RunID        string
	PhaseNumber  int
	PhaseName    string
	Status       string // pending | active | completed | failed | cancelled
	StartedAt    *time.Time
	CompletedAt  *time.Time
	DurationMs   *int
	ErrorMessage string
}

// SubstepExecution is one substep's run record within a phase (adapted
// from the teacher's AgentExecution).
type SubstepExecution struct {
	ID           string
	PhaseExecID  string
	RunID        string
	StepID       string // e.g. "3.2", "7.2"
	Status       string // pending | active | completed | failed
	StartedAt    *time.Time
	CompletedAt  *time.Time
	DurationMs   *int
	RetryCount   int
	ErrorMessage string
}

// PipelineEvent is one append-only log record (adapted from the teacher's
// TimelineEvent). It is the persistence-layer shape of pipelinelog.Event.
type PipelineEvent struct {
	ID               string
	RunID            string
	PhaseNumber      int
	StepID           string
	SequenceNumber   int
	CreatedAt        time.Time
	Kind             string // progress | transition | warning | error | result | phase_failed
	Payload          any
	LLMInteractionID string
}

// LLMInteraction records one full LLM request/response pair for a substep,
// kept from the teacher under the same name (full technical detail for
// debugging, mirroring the teacher's Debug Tab data).
type LLMInteraction struct {
	ID           string
	RunID        string
	PhaseNumber  int
	StepID       string
	CreatedAt    time.Time
	ModelName    string
	Request      map[string]any
	Response     map[string]any
	InputTokens  *int
	OutputTokens *int
	TotalTokens  *int
	DurationMs   *int
	ErrorMessage string
}

// RunFilters narrows ListRuns queries (adapted from the teacher's
// models.SessionFilters).
type RunFilters struct {
	Status         string
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// RunListResult is one page of ListRuns results.
type RunListResult struct {
	Runs       []PipelineRun
	TotalCount int
	Limit      int
	Offset     int
}
