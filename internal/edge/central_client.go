package edge

import (
	"context"
	"encoding/json"

	"github.com/linkflow/engine/pkg/client"
)

// HTTPCentralClient syncs buffered edge executions to the central cluster by
// driving its Interaction API: a pending execution is replayed as a
// StartWorkflow call (RunID carried as the idempotency key so retried syncs
// don't double-start), and terminal state is pushed as a signal the workflow
// can observe.
type HTTPCentralClient struct {
	api *client.Client
}

// NewHTTPCentralClient wraps an Interaction API client for edge sync.
func NewHTTPCentralClient(api *client.Client) *HTTPCentralClient {
	return &HTTPCentralClient{api: api}
}

func (c *HTTPCentralClient) SyncExecution(ctx context.Context, exec *EdgeExecution) error {
	var input map[string]interface{}
	if len(exec.Input) > 0 {
		if err := json.Unmarshal(exec.Input, &input); err != nil {
			input = map[string]interface{}{"raw": string(exec.Input)}
		}
	}

	if _, err := c.api.StartWorkflow(ctx, &client.StartWorkflowRequest{
		WorkspaceID:    exec.NamespaceID,
		WorkflowID:     exec.WorkflowID,
		ExecutionID:    exec.ID,
		IdempotencyKey: exec.RunID,
		Input:          input,
	}); err != nil {
		return err
	}

	switch exec.Status {
	case ExecutionStatusCompleted:
		return c.api.SendSignal(ctx, exec.NamespaceID, exec.ID, "edge_execution_completed", exec.Output)
	case ExecutionStatusFailed:
		return c.api.SendSignal(ctx, exec.NamespaceID, exec.ID, "edge_execution_failed", exec.Events)
	default:
		return nil
	}
}
