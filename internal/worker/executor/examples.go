package executor

import (
	"bytes"
	"context"
	"strings"
)

// EchoHandler returns its input unchanged. Used to exercise the worker
// protocol end to end without a real side-effecting activity.
type EchoHandler struct{}

func NewEchoHandler() *EchoHandler { return &EchoHandler{} }

func (h *EchoHandler) ActivityType() string { return "echo" }

func (h *EchoHandler) Execute(ctx context.Context, req *Request) (*Response, error) {
	return &Response{Output: req.Input}, nil
}

// UppercaseHandler upper-cases a JSON string payload.
type UppercaseHandler struct{}

func NewUppercaseHandler() *UppercaseHandler { return &UppercaseHandler{} }

func (h *UppercaseHandler) ActivityType() string { return "uppercase" }

func (h *UppercaseHandler) Execute(ctx context.Context, req *Request) (*Response, error) {
	trimmed := bytes.Trim(req.Input, `"`)
	return &Response{Output: []byte(`"` + strings.ToUpper(string(trimmed)) + `"`)}, nil
}
