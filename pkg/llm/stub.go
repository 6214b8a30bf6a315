package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// StubInvoker is a deterministic test double: each StepID maps to a
// canned JSON response, or a function producing one from the request.
// Used by phase package tests and by the worked end-to-end scenarios of
// §8 in place of a live LLM backend.
type StubInvoker struct {
	Responses map[string]func(Request) (json.RawMessage, error)
}

// NewStubInvoker builds a StubInvoker with an empty response table.
func NewStubInvoker() *StubInvoker {
	return &StubInvoker{Responses: map[string]func(Request) (json.RawMessage, error){}}
}

// On registers a fixed JSON response for stepID.
func (s *StubInvoker) On(stepID string, raw json.RawMessage) *StubInvoker {
	s.Responses[stepID] = func(Request) (json.RawMessage, error) { return raw, nil }
	return s
}

// OnFunc registers a computed response for stepID.
func (s *StubInvoker) OnFunc(stepID string, fn func(Request) (json.RawMessage, error)) *StubInvoker {
	s.Responses[stepID] = fn
	return s
}

func (s *StubInvoker) Invoke(_ context.Context, req Request) (Response, error) {
	fn, ok := s.Responses[req.StepID]
	if !ok {
		return Response{}, fmt.Errorf("llm: stub has no response registered for step %s", req.StepID)
	}
	raw, err := fn(req)
	if err != nil {
		return Response{}, err
	}
	return Response{RawJSON: raw}, nil
}
