package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// RecordEventRequest asks the history service to append a single event to
// an execution's history and fold it into mutable state.
type RecordEventRequest struct {
	Namespace         string             `json:"namespace"`
	WorkflowExecution *WorkflowExecution `json:"workflow_execution"`
	Event             *HistoryEvent      `json:"event"`
}

type RecordEventResponse struct {
	EventID int64 `json:"event_id"`
}

type GetMutableStateRequest struct {
	Namespace         string             `json:"namespace"`
	WorkflowExecution *WorkflowExecution `json:"workflow_execution"`
}

type GetMutableStateResponse struct {
	NextEventID int64  `json:"next_event_id"`
	DBVersion   int64  `json:"db_version"`
	Status      string `json:"status"`
	State       []byte `json:"state"` // JSON-encoded engine.MutableState
}

type GetHistoryRequest struct {
	Namespace         string             `json:"namespace"`
	WorkflowExecution *WorkflowExecution `json:"workflow_execution"`
	PageSize          int32              `json:"page_size"`
	NextPageToken     []byte             `json:"next_page_token,omitempty"`
}

type GetHistoryResponse struct {
	Events        []*HistoryEvent `json:"events"`
	NextPageToken []byte          `json:"next_page_token,omitempty"`
}

type RespondWorkflowTaskCompletedRequest struct {
	Namespace         string             `json:"namespace"`
	WorkflowExecution *WorkflowExecution `json:"workflow_execution"`
	TaskToken         []byte             `json:"task_token"`
	Identity          string             `json:"identity"`
	Commands          []*Command         `json:"commands,omitempty"`
	QueryResults      map[string]*WorkflowQueryResult `json:"query_results,omitempty"`
}

type RespondWorkflowTaskCompletedResponse struct {
	NewWorkflowTask *WorkflowTaskInfo `json:"new_workflow_task,omitempty"`
}

type RespondWorkflowTaskFailedRequest struct {
	Namespace         string             `json:"namespace"`
	WorkflowExecution *WorkflowExecution `json:"workflow_execution"`
	TaskToken         []byte             `json:"task_token"`
	Identity          string             `json:"identity"`
	Cause             string             `json:"cause"`
	Failure           *Failure           `json:"failure,omitempty"`
}

type RespondWorkflowTaskFailedResponse struct{}

type RespondActivityTaskCompletedRequest struct {
	Namespace string    `json:"namespace"`
	TaskToken []byte    `json:"task_token"`
	Identity  string    `json:"identity"`
	Result    *Payloads `json:"result,omitempty"`
}

type RespondActivityTaskCompletedResponse struct{}

type RespondActivityTaskFailedRequest struct {
	Namespace string   `json:"namespace"`
	TaskToken []byte   `json:"task_token"`
	Identity  string   `json:"identity"`
	Failure   *Failure `json:"failure,omitempty"`
}

type RespondActivityTaskFailedResponse struct{}

type RecordActivityTaskHeartbeatRequest struct {
	Namespace string    `json:"namespace"`
	TaskToken []byte    `json:"task_token"`
	Details   *Payloads `json:"details,omitempty"`
}

type RecordActivityTaskHeartbeatResponse struct {
	CancelRequested bool `json:"cancel_requested"`
}

type RecordTimerFiredRequest struct {
	Namespace         string             `json:"namespace"`
	WorkflowExecution *WorkflowExecution `json:"workflow_execution"`
	TimerID           string             `json:"timer_id"`
}

type RecordTimerFiredResponse struct{}

// UpdateWaitStage selects how long UpdateWorkflow blocks before returning:
// once the update has been validated and admitted into history (Accepted),
// or once a workflow task has resolved it with a result (Completed).
type UpdateWaitStage int32

const (
	UpdateWaitStageUnspecified UpdateWaitStage = iota
	UpdateWaitStageAccepted
	UpdateWaitStageCompleted
)

type UpdateWorkflowRequest struct {
	Namespace         string             `json:"namespace"`
	WorkflowExecution *WorkflowExecution `json:"workflow_execution"`
	UpdateID          string             `json:"update_id"`
	Name              string             `json:"name"`
	Input             *Payloads          `json:"input,omitempty"`
	Identity          string             `json:"identity"`
	WaitStage         UpdateWaitStage    `json:"wait_stage"`
}

type UpdateWorkflowResponse struct {
	UpdateID        string          `json:"update_id"`
	Stage           UpdateWaitStage `json:"stage"`
	Rejected        bool            `json:"rejected"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	Result          *Payloads       `json:"result,omitempty"`
}

// HistoryServiceServer is implemented by the history process.
type HistoryServiceServer interface {
	RecordEvent(context.Context, *RecordEventRequest) (*RecordEventResponse, error)
	GetMutableState(context.Context, *GetMutableStateRequest) (*GetMutableStateResponse, error)
	GetHistory(context.Context, *GetHistoryRequest) (*GetHistoryResponse, error)
	RespondWorkflowTaskCompleted(context.Context, *RespondWorkflowTaskCompletedRequest) (*RespondWorkflowTaskCompletedResponse, error)
	RespondWorkflowTaskFailed(context.Context, *RespondWorkflowTaskFailedRequest) (*RespondWorkflowTaskFailedResponse, error)
	RespondActivityTaskCompleted(context.Context, *RespondActivityTaskCompletedRequest) (*RespondActivityTaskCompletedResponse, error)
	RespondActivityTaskFailed(context.Context, *RespondActivityTaskFailedRequest) (*RespondActivityTaskFailedResponse, error)
	RecordActivityTaskHeartbeat(context.Context, *RecordActivityTaskHeartbeatRequest) (*RecordActivityTaskHeartbeatResponse, error)
	RecordTimerFired(context.Context, *RecordTimerFiredRequest) (*RecordTimerFiredResponse, error)
	UpdateWorkflow(context.Context, *UpdateWorkflowRequest) (*UpdateWorkflowResponse, error)
}

const historyServiceName = "linkflow.history.v1.HistoryService"

// HistoryServiceDesc is registered against a *grpc.Server with the JSON
// codec active, in place of a protoc-generated _ServiceDesc.
var HistoryServiceDesc = grpc.ServiceDesc{
	ServiceName: historyServiceName,
	HandlerType: (*HistoryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RecordEvent", Handler: historyRecordEventHandler},
		{MethodName: "GetMutableState", Handler: historyGetMutableStateHandler},
		{MethodName: "GetHistory", Handler: historyGetHistoryHandler},
		{MethodName: "RespondWorkflowTaskCompleted", Handler: historyRespondWorkflowTaskCompletedHandler},
		{MethodName: "RespondWorkflowTaskFailed", Handler: historyRespondWorkflowTaskFailedHandler},
		{MethodName: "RespondActivityTaskCompleted", Handler: historyRespondActivityTaskCompletedHandler},
		{MethodName: "RespondActivityTaskFailed", Handler: historyRespondActivityTaskFailedHandler},
		{MethodName: "RecordActivityTaskHeartbeat", Handler: historyRecordActivityTaskHeartbeatHandler},
		{MethodName: "RecordTimerFired", Handler: historyRecordTimerFiredHandler},
		{MethodName: "UpdateWorkflow", Handler: historyUpdateWorkflowHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "linkflow/history/v1/history.proto",
}

var historyRecordEventHandler = unaryHandler(func(srv any, ctx context.Context, req *RecordEventRequest) (*RecordEventResponse, error) {
	return srv.(HistoryServiceServer).RecordEvent(ctx, req)
})

var historyGetMutableStateHandler = unaryHandler(func(srv any, ctx context.Context, req *GetMutableStateRequest) (*GetMutableStateResponse, error) {
	return srv.(HistoryServiceServer).GetMutableState(ctx, req)
})

var historyGetHistoryHandler = unaryHandler(func(srv any, ctx context.Context, req *GetHistoryRequest) (*GetHistoryResponse, error) {
	return srv.(HistoryServiceServer).GetHistory(ctx, req)
})

var historyRespondWorkflowTaskCompletedHandler = unaryHandler(func(srv any, ctx context.Context, req *RespondWorkflowTaskCompletedRequest) (*RespondWorkflowTaskCompletedResponse, error) {
	return srv.(HistoryServiceServer).RespondWorkflowTaskCompleted(ctx, req)
})

var historyRespondWorkflowTaskFailedHandler = unaryHandler(func(srv any, ctx context.Context, req *RespondWorkflowTaskFailedRequest) (*RespondWorkflowTaskFailedResponse, error) {
	return srv.(HistoryServiceServer).RespondWorkflowTaskFailed(ctx, req)
})

var historyRespondActivityTaskCompletedHandler = unaryHandler(func(srv any, ctx context.Context, req *RespondActivityTaskCompletedRequest) (*RespondActivityTaskCompletedResponse, error) {
	return srv.(HistoryServiceServer).RespondActivityTaskCompleted(ctx, req)
})

var historyRespondActivityTaskFailedHandler = unaryHandler(func(srv any, ctx context.Context, req *RespondActivityTaskFailedRequest) (*RespondActivityTaskFailedResponse, error) {
	return srv.(HistoryServiceServer).RespondActivityTaskFailed(ctx, req)
})

var historyRecordActivityTaskHeartbeatHandler = unaryHandler(func(srv any, ctx context.Context, req *RecordActivityTaskHeartbeatRequest) (*RecordActivityTaskHeartbeatResponse, error) {
	return srv.(HistoryServiceServer).RecordActivityTaskHeartbeat(ctx, req)
})

var historyRecordTimerFiredHandler = unaryHandler(func(srv any, ctx context.Context, req *RecordTimerFiredRequest) (*RecordTimerFiredResponse, error) {
	return srv.(HistoryServiceServer).RecordTimerFired(ctx, req)
})

var historyUpdateWorkflowHandler = unaryHandler(func(srv any, ctx context.Context, req *UpdateWorkflowRequest) (*UpdateWorkflowResponse, error) {
	return srv.(HistoryServiceServer).UpdateWorkflow(ctx, req)
})

// RegisterHistoryServiceServer registers impl against s using the JSON wire
// codec for this service's methods.
func RegisterHistoryServiceServer(s *grpc.Server, impl HistoryServiceServer) {
	s.RegisterService(&HistoryServiceDesc, impl)
}

// HistoryServiceClient is a thin hand-written stub over a *grpc.ClientConn,
// playing the role protoc-gen-go-grpc would normally fill.
type HistoryServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewHistoryServiceClient(cc grpc.ClientConnInterface) *HistoryServiceClient {
	return &HistoryServiceClient{cc: cc}
}

func (c *HistoryServiceClient) call(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append(opts, grpc.CallContentSubtype(CodecName))
	return c.cc.Invoke(ctx, "/"+historyServiceName+"/"+method, in, out, opts...)
}

func (c *HistoryServiceClient) RecordEvent(ctx context.Context, in *RecordEventRequest, opts ...grpc.CallOption) (*RecordEventResponse, error) {
	out := new(RecordEventResponse)
	return out, c.call(ctx, "RecordEvent", in, out, opts...)
}

func (c *HistoryServiceClient) GetMutableState(ctx context.Context, in *GetMutableStateRequest, opts ...grpc.CallOption) (*GetMutableStateResponse, error) {
	out := new(GetMutableStateResponse)
	return out, c.call(ctx, "GetMutableState", in, out, opts...)
}

func (c *HistoryServiceClient) GetHistory(ctx context.Context, in *GetHistoryRequest, opts ...grpc.CallOption) (*GetHistoryResponse, error) {
	out := new(GetHistoryResponse)
	return out, c.call(ctx, "GetHistory", in, out, opts...)
}

func (c *HistoryServiceClient) RespondWorkflowTaskCompleted(ctx context.Context, in *RespondWorkflowTaskCompletedRequest, opts ...grpc.CallOption) (*RespondWorkflowTaskCompletedResponse, error) {
	out := new(RespondWorkflowTaskCompletedResponse)
	return out, c.call(ctx, "RespondWorkflowTaskCompleted", in, out, opts...)
}

func (c *HistoryServiceClient) RespondWorkflowTaskFailed(ctx context.Context, in *RespondWorkflowTaskFailedRequest, opts ...grpc.CallOption) (*RespondWorkflowTaskFailedResponse, error) {
	out := new(RespondWorkflowTaskFailedResponse)
	return out, c.call(ctx, "RespondWorkflowTaskFailed", in, out, opts...)
}

func (c *HistoryServiceClient) RespondActivityTaskCompleted(ctx context.Context, in *RespondActivityTaskCompletedRequest, opts ...grpc.CallOption) (*RespondActivityTaskCompletedResponse, error) {
	out := new(RespondActivityTaskCompletedResponse)
	return out, c.call(ctx, "RespondActivityTaskCompleted", in, out, opts...)
}

func (c *HistoryServiceClient) RespondActivityTaskFailed(ctx context.Context, in *RespondActivityTaskFailedRequest, opts ...grpc.CallOption) (*RespondActivityTaskFailedResponse, error) {
	out := new(RespondActivityTaskFailedResponse)
	return out, c.call(ctx, "RespondActivityTaskFailed", in, out, opts...)
}

func (c *HistoryServiceClient) RecordActivityTaskHeartbeat(ctx context.Context, in *RecordActivityTaskHeartbeatRequest, opts ...grpc.CallOption) (*RecordActivityTaskHeartbeatResponse, error) {
	out := new(RecordActivityTaskHeartbeatResponse)
	return out, c.call(ctx, "RecordActivityTaskHeartbeat", in, out, opts...)
}

func (c *HistoryServiceClient) RecordTimerFired(ctx context.Context, in *RecordTimerFiredRequest, opts ...grpc.CallOption) (*RecordTimerFiredResponse, error) {
	out := new(RecordTimerFiredResponse)
	return out, c.call(ctx, "RecordTimerFired", in, out, opts...)
}

func (c *HistoryServiceClient) UpdateWorkflow(ctx context.Context, in *UpdateWorkflowRequest, opts ...grpc.CallOption) (*UpdateWorkflowResponse, error) {
	out := new(UpdateWorkflowResponse)
	return out, c.call(ctx, "UpdateWorkflow", in, out, opts...)
}
