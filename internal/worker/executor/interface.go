// Package executor defines the pluggable contract workers use to run
// activity code. The engine never ships activity implementations of its
// own; callers register handlers by activity type name.
package executor

import (
	"context"
	"encoding/json"
	"time"
)

// Handler executes one activity task.
type Handler interface {
	ActivityType() string
	Execute(ctx context.Context, req *Request) (*Response, error)
}

type Request struct {
	ActivityType string
	ActivityID   string
	WorkflowID   string
	RunID        string
	Namespace    string
	Input        json.RawMessage
	Attempt      int32
	Timeout      time.Duration
}

type Response struct {
	Output json.RawMessage
	Error  *Error
}

type Error struct {
	Message      string
	Type         string
	NonRetryable bool
}
