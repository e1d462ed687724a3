package adapter

import (
	"context"

	"github.com/linkflow/engine/internal/rpc"
	"google.golang.org/grpc"
)

type HistoryClient struct {
	client *rpc.HistoryServiceClient
}

func NewHistoryClient(conn *grpc.ClientConn) *HistoryClient {
	return &HistoryClient{
		client: rpc.NewHistoryServiceClient(conn),
	}
}

func (c *HistoryClient) RecordEvent(ctx context.Context, namespaceID, workflowID, runID string, event *rpc.HistoryEvent) error {
	req := &rpc.RecordEventRequest{
		Namespace: namespaceID,
		WorkflowExecution: &rpc.WorkflowExecution{
			WorkflowID: workflowID,
			RunID:      runID,
		},
		Event: event,
	}

	_, err := c.client.RecordEvent(ctx, req)
	return err
}

func (c *HistoryClient) GetMutableState(ctx context.Context, namespaceID, workflowID, runID string) (*rpc.GetMutableStateResponse, error) {
	req := &rpc.GetMutableStateRequest{
		Namespace: namespaceID,
		WorkflowExecution: &rpc.WorkflowExecution{
			WorkflowID: workflowID,
			RunID:      runID,
		},
	}
	return c.client.GetMutableState(ctx, req)
}

func (c *HistoryClient) GetHistory(ctx context.Context, namespaceID, workflowID, runID string) (*rpc.GetHistoryResponse, error) {
	req := &rpc.GetHistoryRequest{
		Namespace: namespaceID,
		WorkflowExecution: &rpc.WorkflowExecution{
			WorkflowID: workflowID,
			RunID:      runID,
		},
		PageSize: 1000, // Fetch ample history
	}
	return c.client.GetHistory(ctx, req)
}

func (c *HistoryClient) RespondWorkflowTaskCompleted(ctx context.Context, req *rpc.RespondWorkflowTaskCompletedRequest) (*rpc.RespondWorkflowTaskCompletedResponse, error) {
	return c.client.RespondWorkflowTaskCompleted(ctx, req)
}

func (c *HistoryClient) RespondWorkflowTaskFailed(ctx context.Context, req *rpc.RespondWorkflowTaskFailedRequest) (*rpc.RespondWorkflowTaskFailedResponse, error) {
	return c.client.RespondWorkflowTaskFailed(ctx, req)
}

func (c *HistoryClient) RespondActivityTaskCompleted(ctx context.Context, req *rpc.RespondActivityTaskCompletedRequest) (*rpc.RespondActivityTaskCompletedResponse, error) {
	return c.client.RespondActivityTaskCompleted(ctx, req)
}

func (c *HistoryClient) RespondActivityTaskFailed(ctx context.Context, req *rpc.RespondActivityTaskFailedRequest) (*rpc.RespondActivityTaskFailedResponse, error) {
	return c.client.RespondActivityTaskFailed(ctx, req)
}
