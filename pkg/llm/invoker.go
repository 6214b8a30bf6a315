// Package llm is the consumed LLM-invoker collaborator (§6.1): substeps
// that need model reasoning call Invoker.Invoke with a declared output
// schema; the engine never constructs prompts or interprets model
// behavior itself (§1 "out of scope").
package llm

import "context"

// Config carries per-call provider overrides (model, temperature, ...).
// Left as a generic bag — substeps set only what they need; the invoker
// implementation resolves defaults.
type Config map[string]any

// Invoke is the consumed-interface contract of §6.1: invoke(output_schema,
// system_prompt, human_prompt_template, input_data, tools?, config?) ->
// output_schema_instance. Output is delivered as raw JSON; the caller
// unmarshals into its declared Out type — this is the "adapter normalizes
// dynamic-shape outputs at the state boundary" design note of §9.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// Request is one substep's LLM call.
type Request struct {
	StepID        string
	SystemPrompt  string
	PromptTemplate string
	Input         map[string]any
	OutputSchema  string // JSON-schema text the backend is asked to conform to
	Config        Config
}

// Response is the raw model output; substeps unmarshal RawJSON into their
// declared output struct.
type Response struct {
	RawJSON []byte
	Usage   TokenUsage
}

// TokenUsage mirrors the teacher's agent.TokenUsage shape
// (pkg/agent/agent.go) — kept for parity even though this engine does not
// itself bound LLM throughput (§1 non-goal).
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
