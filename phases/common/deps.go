// Package common bundles the external collaborators every phase package
// needs to build its substeps, and the small helpers shared across all
// nine phase builders (LLM-invoke-and-decode, SQL-engine scoping).
package common

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/nl2schema/pkg/llm"
	"github.com/codeready-toolchain/nl2schema/pkg/phasegraph"
	"github.com/codeready-toolchain/nl2schema/pkg/sqlengine"
	"github.com/codeready-toolchain/nl2schema/pkg/substep"
)

// Deps is threaded into every phases/phaseN.Build call by pkg/engine.
type Deps struct {
	Invoker  llm.Invoker
	RunDir   string // §6.4 RUN_DIR; NewSQLEngine does not use it, every engine is in-memory
	MaxFanOutConcurrency int
}

// NewSQLEngine opens a phase-scoped in-memory engine (§5: "scoped per phase
// invocation and disposed after use").
func (d Deps) NewSQLEngine() (*sqlengine.Engine, error) {
	return sqlengine.New("")
}

// InvokeJSON calls the LLM invoker for stepID and decodes the raw JSON
// response into Out, implementing the adapter-boundary normalization of
// §4.2 item 2 ("adapter converts to the canonical map form").
func InvokeJSON[Out any](ctx context.Context, inv llm.Invoker, stepID, systemPrompt, template string, input map[string]any) (Out, error) {
	var out Out
	resp, err := inv.Invoke(ctx, llm.Request{
		StepID:         stepID,
		SystemPrompt:   systemPrompt,
		PromptTemplate: template,
		Input:          input,
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(resp.RawJSON, &out); err != nil {
		return out, fmt.Errorf("phase step %s: decoding LLM output: %w", stepID, err)
	}
	return out, nil
}

// Node wraps a substep.Adapter as a phasegraph.FuncNode — the glue between
// C2 (adapters) and C3 (phase subgraphs).
func Node[In, Out any](a substep.Adapter[In, Out]) phasegraph.FuncNode {
	return phasegraph.FuncNode{ID: a.StepID, Fn: a.Run}
}
