package config

import "fmt"

// Validator validates configuration comprehensively with clear error
// messages. Adapted from the teacher's Validator — same fail-fast,
// dependency-ordered shape (queue before retention before LLM providers
// before pipelines before defaults), trimmed to this domain's registries.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast — stops at the
// first error).
func (v *Validator) ValidateAll() error {
	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}
	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}
	if err := v.validateLLMProviders(); err != nil {
		return fmt.Errorf("LLM provider validation failed: %w", err)
	}
	if err := v.validatePipelines(); err != nil {
		return fmt.Errorf("pipeline validation failed: %w", err)
	}
	if err := v.validateDefaults(); err != nil {
		return fmt.Errorf("defaults validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateQueue() error {
	q := v.cfg.Queue
	if q == nil {
		return fmt.Errorf("queue configuration is nil")
	}
	if q.WorkerCount < 1 || q.WorkerCount > 50 {
		return fmt.Errorf("worker_count must be between 1 and 50, got %d", q.WorkerCount)
	}
	if q.MaxConcurrentRuns < 1 {
		return fmt.Errorf("max_concurrent_runs must be at least 1, got %d", q.MaxConcurrentRuns)
	}
	if q.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", q.PollInterval)
	}
	if q.PollIntervalJitter < 0 {
		return fmt.Errorf("poll_interval_jitter must be non-negative, got %v", q.PollIntervalJitter)
	}
	if q.PollIntervalJitter >= q.PollInterval {
		return fmt.Errorf("poll_interval_jitter must be less than poll_interval, got jitter=%v interval=%v", q.PollIntervalJitter, q.PollInterval)
	}
	if q.RunTimeout <= 0 {
		return fmt.Errorf("run_timeout must be positive, got %v", q.RunTimeout)
	}
	if q.GracefulShutdownTimeout <= 0 {
		return fmt.Errorf("graceful_shutdown_timeout must be positive, got %v", q.GracefulShutdownTimeout)
	}
	if q.OrphanDetectionInterval <= 0 {
		return fmt.Errorf("orphan_detection_interval must be positive, got %v", q.OrphanDetectionInterval)
	}
	if q.OrphanThreshold <= 0 {
		return fmt.Errorf("orphan_threshold must be positive, got %v", q.OrphanThreshold)
	}
	return nil
}

func (v *Validator) validateRetention() error {
	r := v.cfg.Retention
	if r == nil {
		return fmt.Errorf("retention configuration is nil")
	}
	if r.RunRetentionDays < 1 {
		return fmt.Errorf("run_retention_days must be at least 1, got %d", r.RunRetentionDays)
	}
	if r.EventTTL <= 0 {
		return fmt.Errorf("event_ttl must be positive, got %v", r.EventTTL)
	}
	if r.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup_interval must be positive, got %v", r.CleanupInterval)
	}
	return nil
}

func (v *Validator) validateLLMProviders() error {
	providers := v.cfg.LLMProviderRegistry.GetAll()
	if len(providers) == 0 {
		return fmt.Errorf("at least one LLM provider must be configured")
	}
	for name, p := range providers {
		if !p.Type.IsValid() {
			return NewValidationError("llm_provider", name, "type", fmt.Errorf("invalid provider type %q", p.Type))
		}
		if p.Model == "" {
			return NewValidationError("llm_provider", name, "model", ErrMissingRequiredField)
		}
		if p.Address == "" {
			return NewValidationError("llm_provider", name, "address", ErrMissingRequiredField)
		}
		if p.MaxOutputTokens < 1000 {
			return NewValidationError("llm_provider", name, "max_output_tokens",
				fmt.Errorf("must be at least 1000, got %d", p.MaxOutputTokens))
		}
	}
	return nil
}

func (v *Validator) validatePipelines() error {
	pipelines := v.cfg.PipelineRegistry.GetAll()
	if len(pipelines) == 0 {
		return fmt.Errorf("at least one pipeline must be configured")
	}

	for id, pipeline := range pipelines {
		if len(pipeline.Phases) == 0 {
			return NewValidationError("pipeline", id, "phases", fmt.Errorf("must define at least one phase"))
		}

		seen := make(map[int]bool, len(pipeline.Phases))
		for _, phase := range pipeline.Phases {
			if phase.Number < 1 || phase.Number > 9 {
				return NewValidationError("pipeline", id, "phases.number",
					fmt.Errorf("phase number must be 1-9, got %d", phase.Number))
			}
			if seen[phase.Number] {
				return NewValidationError("pipeline", id, "phases.number",
					fmt.Errorf("%w: duplicate phase number %d", ErrInvalidValue, phase.Number))
			}
			seen[phase.Number] = true

			if phase.Name == "" {
				return NewValidationError("pipeline", id, "phases.name", ErrMissingRequiredField)
			}
			if phase.SuccessPolicy != "" && !phase.SuccessPolicy.IsValid() {
				return NewValidationError("pipeline", id, "phases.success_policy",
					fmt.Errorf("invalid success policy %q", phase.SuccessPolicy))
			}
			if phase.LLMProvider != "" && !v.cfg.LLMProviderRegistry.Has(phase.LLMProvider) {
				return NewValidationError("pipeline", id, "phases.llm_provider",
					fmt.Errorf("%w: %s", ErrInvalidReference, phase.LLMProvider))
			}

			stepIDs := make(map[string]bool, len(phase.Substeps))
			for _, s := range phase.Substeps {
				if s.StepID == "" {
					return NewValidationError("pipeline", id, "phases.substeps.step_id", ErrMissingRequiredField)
				}
				if stepIDs[s.StepID] {
					return NewValidationError("pipeline", id, "phases.substeps.step_id",
						fmt.Errorf("%w: duplicate step ID %s", ErrInvalidValue, s.StepID))
				}
				stepIDs[s.StepID] = true
				if s.LLMProvider != "" && !v.cfg.LLMProviderRegistry.Has(s.LLMProvider) {
					return NewValidationError("pipeline", id, "phases.substeps.llm_provider",
						fmt.Errorf("%w: %s", ErrInvalidReference, s.LLMProvider))
				}
			}
		}

		if pipeline.LLMProvider != "" && !v.cfg.LLMProviderRegistry.Has(pipeline.LLMProvider) {
			return NewValidationError("pipeline", id, "llm_provider",
				fmt.Errorf("%w: %s", ErrInvalidReference, pipeline.LLMProvider))
		}
		if pipeline.Similarity != nil {
			if pipeline.Similarity.Threshold < 0 || pipeline.Similarity.Threshold > 1 {
				return NewValidationError("pipeline", id, "similarity.threshold",
					fmt.Errorf("must be between 0 and 1, got %v", pipeline.Similarity.Threshold))
			}
		}
	}

	if _, err := v.cfg.PipelineRegistry.GetDefault(); err != nil {
		return fmt.Errorf("default pipeline: %w", err)
	}

	return nil
}

func (v *Validator) validateDefaults() error {
	d := v.cfg.Defaults
	if d == nil {
		return fmt.Errorf("defaults configuration is nil")
	}
	if d.LLMProvider != "" && !v.cfg.LLMProviderRegistry.Has(d.LLMProvider) {
		return NewValidationError("defaults", "", "llm_provider",
			fmt.Errorf("%w: %s", ErrInvalidReference, d.LLMProvider))
	}
	if d.Pipeline != "" && !v.cfg.PipelineRegistry.Has(d.Pipeline) {
		return NewValidationError("defaults", "", "pipeline",
			fmt.Errorf("%w: %s", ErrInvalidReference, d.Pipeline))
	}
	if d.Similarity.Threshold < 0 || d.Similarity.Threshold > 1 {
		return NewValidationError("defaults", "", "similarity.threshold",
			fmt.Errorf("must be between 0 and 1, got %v", d.Similarity.Threshold))
	}
	return nil
}
