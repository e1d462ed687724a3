package adapter

import (
	"context"
	"encoding/json"

	"github.com/linkflow/engine/internal/frontend"
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

func (c *HistoryClient) RecordEvent(ctx context.Context, req *frontend.RecordEventRequest) error {
	event := &rpc.HistoryEvent{
		EventType: req.EventType,
	}

	switch attrs := req.Attributes.(type) {
	case *frontend.ExecutionStartedAttributes:
		event.Attrs = map[string]any{
			"WorkflowType": attrs.WorkflowType,
			"TaskQueue":    attrs.TaskQueue,
			"Input":        attrs.Input,
		}
	}

	wireReq := &rpc.RecordEventRequest{
		Namespace: req.NamespaceID,
		WorkflowExecution: &rpc.WorkflowExecution{
			WorkflowID: req.WorkflowID,
			RunID:      req.RunID,
		},
		Event: event,
	}

	_, err := c.client.RecordEvent(ctx, wireReq)
	return err
}

func (c *HistoryClient) GetHistory(ctx context.Context, req *frontend.GetHistoryRequest) (*frontend.GetHistoryResponse, error) {
	wireReq := &rpc.GetHistoryRequest{
		Namespace: req.NamespaceID,
		WorkflowExecution: &rpc.WorkflowExecution{
			WorkflowID: req.WorkflowID,
			RunID:      req.RunID,
		},
		PageSize:      req.PageSize,
		NextPageToken: req.NextPageToken,
	}

	resp, err := c.client.GetHistory(ctx, wireReq)
	if err != nil {
		return nil, err
	}

	events := make([]*frontend.HistoryEvent, 0, len(resp.Events))
	for _, e := range resp.Events {
		data, _ := json.Marshal(e.Attrs)
		events = append(events, &frontend.HistoryEvent{
			EventID:   e.EventID,
			EventType: e.EventType,
			Timestamp: e.Timestamp,
			Data:      data,
		})
	}

	return &frontend.GetHistoryResponse{
		Events:        events,
		NextPageToken: resp.NextPageToken,
	}, nil
}

func (c *HistoryClient) GetMutableState(ctx context.Context, key frontend.ExecutionKey) (*frontend.MutableState, error) {
	wireReq := &rpc.GetMutableStateRequest{
		Namespace: key.NamespaceID,
		WorkflowExecution: &rpc.WorkflowExecution{
			WorkflowID: key.WorkflowID,
			RunID:      key.RunID,
		},
	}

	resp, err := c.client.GetMutableState(ctx, wireReq)
	if err != nil {
		return nil, err
	}

	var snapshot struct {
		ExecutionInfo struct {
			WorkflowType string `json:"WorkflowType"`
			TaskQueue    string `json:"TaskQueue"`
		} `json:"ExecutionInfo"`
	}
	_ = json.Unmarshal(resp.State, &snapshot)

	return &frontend.MutableState{
		ExecutionInfo: &frontend.WorkflowExecution{
			WorkflowID:   key.WorkflowID,
			RunID:        key.RunID,
			Status:       mapExecutionStatus(resp.Status),
			WorkflowType: snapshot.ExecutionInfo.WorkflowType,
			TaskQueue:    snapshot.ExecutionInfo.TaskQueue,
		},
		NextEventID:     resp.NextEventID,
		ActivityInfos:   make(map[int64]*frontend.ActivityInfo),
		ChildExecutions: make(map[int64]*frontend.ChildExecutionInfo),
	}, nil
}

func (c *HistoryClient) UpdateWorkflow(ctx context.Context, req *frontend.UpdateWorkflowExecutionRequest) (*frontend.UpdateWorkflowExecutionResponse, error) {
	wireReq := &rpc.UpdateWorkflowRequest{
		Namespace: req.Namespace,
		WorkflowExecution: &rpc.WorkflowExecution{
			WorkflowID: req.WorkflowID,
			RunID:      req.RunID,
		},
		UpdateID:  req.UpdateID,
		Name:      req.Name,
		Identity:  req.Identity,
		WaitStage: rpc.UpdateWaitStage(req.WaitStage),
	}
	if len(req.Input) > 0 {
		wireReq.Input = &rpc.Payloads{Payloads: []*rpc.Payload{{Data: req.Input}}}
	}

	resp, err := c.client.UpdateWorkflow(ctx, wireReq)
	if err != nil {
		return nil, err
	}

	out := &frontend.UpdateWorkflowExecutionResponse{
		UpdateID:        resp.UpdateID,
		Stage:           frontend.UpdateWaitStage(resp.Stage),
		Rejected:        resp.Rejected,
		RejectionReason: resp.RejectionReason,
	}
	if resp.Result != nil && len(resp.Result.Payloads) > 0 {
		out.Result = resp.Result.Payloads[0].Data
	}
	return out, nil
}

func mapExecutionStatus(status string) frontend.ExecutionStatus {
	switch status {
	case "Running":
		return frontend.ExecutionStatusRunning
	case "Completed":
		return frontend.ExecutionStatusCompleted
	case "Failed":
		return frontend.ExecutionStatusFailed
	case "Canceled":
		return frontend.ExecutionStatusCanceled
	case "Terminated":
		return frontend.ExecutionStatusTerminated
	case "ContinuedAsNew":
		return frontend.ExecutionStatusContinuedAsNew
	case "TimedOut":
		return frontend.ExecutionStatusTimedOut
	case "Stuck":
		return frontend.ExecutionStatusStuck
	default:
		return frontend.ExecutionStatusRunning
	}
}
