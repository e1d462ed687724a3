package adapter

import (
	"context"

	"github.com/linkflow/engine/internal/frontend"
	"github.com/linkflow/engine/internal/rpc"
	"google.golang.org/grpc"
)

type MatchingClient struct {
	client *rpc.MatchingServiceClient
}

func NewMatchingClient(conn *grpc.ClientConn) *MatchingClient {
	return &MatchingClient{
		client: rpc.NewMatchingServiceClient(conn),
	}
}

func (c *MatchingClient) AddTask(ctx context.Context, req *frontend.AddTaskRequest) error {
	wireReq := &rpc.AddTaskRequest{
		Namespace: req.NamespaceID,
		TaskQueue: &rpc.TaskQueue{
			Name: req.TaskQueue,
			Kind: rpc.TaskQueueKindNormal,
		},
		TaskType:         rpc.TaskType(req.TaskType),
		ScheduledEventID: req.ScheduledEventID,
		WorkflowExecution: &rpc.WorkflowExecution{
			WorkflowID: req.WorkflowID,
			RunID:      req.RunID,
		},
	}

	_, err := c.client.AddTask(ctx, wireReq)
	return err
}

func (c *MatchingClient) PollTask(ctx context.Context, req *frontend.PollTaskRequest) (*frontend.Task, error) {
	wireReq := &rpc.PollTaskRequest{
		Namespace: req.NamespaceID,
		TaskQueue: &rpc.TaskQueue{
			Name: req.TaskQueue,
			Kind: rpc.TaskQueueKindNormal,
		},
		TaskType: rpc.TaskType(req.TaskType),
		Identity: req.Identity,
	}

	resp, err := c.client.PollTask(ctx, wireReq)
	if err != nil {
		return nil, err
	}

	task := &frontend.Task{TaskToken: resp.TaskToken}
	if resp.WorkflowTaskInfo != nil {
		task.TaskType = frontend.TaskTypeWorkflow
	} else if resp.ActivityTaskInfo != nil {
		task.TaskType = frontend.TaskTypeActivity
	}
	return task, nil
}

func (c *MatchingClient) QueryWorkflow(ctx context.Context, req *frontend.MatchingQueryWorkflowRequest) (*frontend.MatchingQueryWorkflowResponse, error) {
	wireReq := &rpc.QueryWorkflowRequest{
		Namespace: req.NamespaceID,
		WorkflowExecution: &rpc.WorkflowExecution{
			WorkflowID: req.WorkflowID,
			RunID:      req.RunID,
		},
		TaskQueue: &rpc.TaskQueue{
			Name: req.TaskQueue,
			Kind: rpc.TaskQueueKindNormal,
		},
		Query: &rpc.WorkflowQuery{
			QueryType: req.QueryType,
		},
	}
	if len(req.QueryArgs) > 0 {
		wireReq.Query.Args = &rpc.Payloads{Payloads: []*rpc.Payload{{Data: req.QueryArgs}}}
	}

	resp, err := c.client.QueryWorkflow(ctx, wireReq)
	if err != nil {
		return nil, err
	}

	out := &frontend.MatchingQueryWorkflowResponse{}
	if resp.Result != nil {
		out.Succeeded = resp.Result.Succeeded
		if resp.Result.Result != nil && len(resp.Result.Result.Payloads) > 0 {
			out.Result = resp.Result.Result.Payloads[0].Data
		}
		if resp.Result.Failure != nil {
			out.FailureMessage = resp.Result.Failure.Message
		}
	}
	return out, nil
}
