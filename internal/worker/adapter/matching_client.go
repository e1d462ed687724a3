package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/linkflow/engine/internal/rpc"
	"github.com/linkflow/engine/internal/worker/poller"
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

func (c *MatchingClient) PollTask(ctx context.Context, taskQueue string, taskType int32, identity string) (*poller.Task, error) {
	req := &rpc.PollTaskRequest{
		Namespace: "default",
		TaskQueue: &rpc.TaskQueue{
			Name: taskQueue,
			Kind: rpc.TaskQueueKindNormal,
		},
		TaskType: rpc.TaskType(taskType),
		Identity: identity,
	}

	resp, err := c.client.PollTask(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.TaskToken == nil {
		return nil, nil
	}

	var task *poller.Task

	// Extract namespace from TaskToken (format: namespace|queue|taskID|random).
	token := string(resp.TaskToken)
	parts := strings.Split(token, "|")
	namespace := "default"
	if len(parts) >= 1 {
		namespace = parts[0]
	}

	if resp.ActivityTaskInfo != nil {
		task = &poller.Task{
			TaskToken:        resp.TaskToken,
			TaskID:           resp.ActivityTaskInfo.ActivityID,
			WorkflowID:       resp.WorkflowExecution.WorkflowID,
			RunID:            resp.WorkflowExecution.RunID,
			Namespace:        namespace,
			ActivityType:     resp.ActivityTaskInfo.ActivityType,
			Attempt:          resp.Attempt,
			TimeoutSec:       60, // Default timeout
			ScheduledEventID: resp.ActivityTaskInfo.ScheduledEventID,
		}

		if resp.ActivityTaskInfo.Input != nil && len(resp.ActivityTaskInfo.Input.Payloads) > 0 {
			task.Input = resp.ActivityTaskInfo.Input.Payloads[0].Data
		}
	} else if resp.WorkflowTaskInfo != nil {
		task = &poller.Task{
			TaskToken:        resp.TaskToken,
			TaskID:           fmt.Sprintf("%d", resp.WorkflowTaskInfo.ScheduledEventID),
			WorkflowID:       resp.WorkflowExecution.WorkflowID,
			RunID:            resp.WorkflowExecution.RunID,
			Namespace:        namespace,
			ActivityType:     "workflow",
			Attempt:          resp.Attempt,
			TimeoutSec:       60,
			ScheduledEventID: resp.WorkflowTaskInfo.ScheduledEventID,
		}
	} else {
		return nil, nil
	}

	return task, nil
}

func (c *MatchingClient) CompleteTask(ctx context.Context, task *poller.Task, identity string) error {
	if task == nil || len(task.TaskToken) == 0 {
		return fmt.Errorf("task token is required")
	}

	req := &rpc.CompleteTaskRequest{
		TaskToken: task.TaskToken,
		Namespace: task.Namespace,
		Identity:  identity,
	}

	_, err := c.client.CompleteTask(ctx, req)
	return err
}
