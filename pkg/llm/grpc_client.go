package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// jsonCodecName registers a grpc "encoding.Codec" under this name so
// grpc.ClientConn.Invoke can be called against a plain method path without
// generated protobuf message types — the method's request/response are
// just whatever Go value is passed in, marshaled as JSON on the wire. This
// is the standard technique for schema-free/dynamic gRPC clients and is
// how this client avoids depending on a generated *.pb.go package whose
// source .proto was never part of the retrieved pack (see DESIGN.md).
const jsonCodecName = "nl2schema-json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error  { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                        { return jsonCodecName }

// GRPCInvoker implements Invoker by calling a single unary RPC method
// (configurable, default "/llm.Backend/Invoke") on a gRPC backend, using
// the JSON codec above in place of generated protobuf stubs. Grounded on
// the teacher's NewGRPCLLMClient (pkg/agent/llm_grpc.go): insecure local
// transport, context-scoped unary call.
type GRPCInvoker struct {
	conn   *grpc.ClientConn
	method string
}

// NewGRPCInvoker dials addr with insecure (plaintext) transport — the LLM
// backend is expected to run as a local sidecar, matching the teacher's own
// deployment assumption and its comment about upgrading to TLS if that
// assumption ever changes.
func NewGRPCInvoker(addr string, method string) (*GRPCInvoker, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("llm: failed to create client for %s: %w", addr, err)
	}
	if method == "" {
		method = "/llm.Backend/Invoke"
	}
	return &GRPCInvoker{conn: conn, method: method}, nil
}

type wireRequest struct {
	StepID         string         `json:"step_id"`
	SystemPrompt   string         `json:"system_prompt"`
	PromptTemplate string         `json:"prompt_template"`
	Input          map[string]any `json:"input"`
	OutputSchema   string         `json:"output_schema"`
	Config         Config         `json:"config,omitempty"`
}

type wireResponse struct {
	Output json.RawMessage `json:"output"`
	Usage  TokenUsage      `json:"usage"`
}

func (c *GRPCInvoker) Invoke(ctx context.Context, req Request) (Response, error) {
	wreq := wireRequest{
		StepID:         req.StepID,
		SystemPrompt:   req.SystemPrompt,
		PromptTemplate: req.PromptTemplate,
		Input:          req.Input,
		OutputSchema:   req.OutputSchema,
		Config:         req.Config,
	}
	var wresp wireResponse
	if err := c.conn.Invoke(ctx, c.method, &wreq, &wresp, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return Response{}, fmt.Errorf("llm: gRPC invoke %s failed: %w", req.StepID, err)
	}
	return Response{RawJSON: wresp.Output, Usage: wresp.Usage}, nil
}

// Close releases the gRPC connection.
func (c *GRPCInvoker) Close() error {
	return c.conn.Close()
}
