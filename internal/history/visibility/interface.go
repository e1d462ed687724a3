package visibility

import (
	"context"
	"time"

	"github.com/linkflow/engine/internal/history/types"
	"github.com/linkflow/engine/internal/rpc"
)

// ListRequest specifies the criteria for listing executions.
type ListRequest struct {
	NamespaceID   string
	PageSize      int
	NextPageToken []byte
	Query         string // Simple query support (e.g. "WorkflowType = 'foo'")
}

// ListResponse contains the list of executions.
type ListResponse struct {
	Executions    []*WorkflowExecutionInfo
	NextPageToken []byte
}

// WorkflowExecutionInfo contains summary information about a workflow execution.
type WorkflowExecutionInfo struct {
	Execution     *rpc.WorkflowExecution
	WorkflowType  string
	StartTime     time.Time
	CloseTime     time.Time
	Status        types.ExecutionStatus
	HistoryLength int64
	Memo          map[string][]byte
}

// Store defines the interface for visibility storage.
type Store interface {
	RecordWorkflowExecutionStarted(ctx context.Context, req *RecordWorkflowExecutionStartedRequest) error
	RecordWorkflowExecutionClosed(ctx context.Context, req *RecordWorkflowExecutionClosedRequest) error
	ListOpenWorkflowExecutions(ctx context.Context, req *ListRequest) (*ListResponse, error)
	ListClosedWorkflowExecutions(ctx context.Context, req *ListRequest) (*ListResponse, error)
}

type RecordWorkflowExecutionStartedRequest struct {
	NamespaceID  string
	Execution    *rpc.WorkflowExecution
	WorkflowType string
	StartTime    time.Time
	Status       types.ExecutionStatus
	Memo         map[string][]byte
}

type RecordWorkflowExecutionClosedRequest struct {
	NamespaceID   string
	Execution     *rpc.WorkflowExecution
	WorkflowType  string
	StartTime     time.Time
	CloseTime     time.Time
	Status        types.ExecutionStatus
	HistoryLength int64
	Memo          map[string][]byte
}
