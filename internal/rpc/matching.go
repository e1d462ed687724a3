package rpc

import (
	"context"

	"google.golang.org/grpc"
)

type AddTaskRequest struct {
	Namespace         string             `json:"namespace"`
	TaskQueue         *TaskQueue         `json:"task_queue"`
	TaskType          TaskType           `json:"task_type"`
	WorkflowExecution *WorkflowExecution `json:"workflow_execution"`
	ScheduledEventID  int64              `json:"scheduled_event_id"`
	ActivityTaskInfo  *ActivityTaskInfo  `json:"activity_task_info,omitempty"`
	WorkflowTaskInfo  *WorkflowTaskInfo  `json:"workflow_task_info,omitempty"`
	StickyIdentity    string             `json:"sticky_identity,omitempty"`
}

type AddTaskResponse struct {
	TaskID string `json:"task_id"`
}

type PollTaskRequest struct {
	Namespace string     `json:"namespace"`
	TaskQueue *TaskQueue `json:"task_queue"`
	TaskType  TaskType   `json:"task_type"`
	Identity  string     `json:"identity"`
}

type PollTaskResponse struct {
	TaskToken         []byte             `json:"task_token,omitempty"`
	WorkflowExecution *WorkflowExecution `json:"workflow_execution,omitempty"`
	Attempt           int32              `json:"attempt"`
	ActivityTaskInfo  *ActivityTaskInfo  `json:"activity_task_info,omitempty"`
	WorkflowTaskInfo  *WorkflowTaskInfo  `json:"workflow_task_info,omitempty"`
}

type CompleteTaskRequest struct {
	Namespace string `json:"namespace"`
	TaskToken []byte `json:"task_token"`
	Identity  string `json:"identity"`
}

type CompleteTaskResponse struct{}

type QueryWorkflowRequest struct {
	Namespace         string             `json:"namespace"`
	WorkflowExecution *WorkflowExecution `json:"workflow_execution"`
	TaskQueue         *TaskQueue         `json:"task_queue"`
	Query             *WorkflowQuery     `json:"query"`
}

type QueryWorkflowResponse struct {
	Result *WorkflowQueryResult `json:"result,omitempty"`
}

// RespondQueryTaskCompletedRequest carries a worker's synchronous answer to a
// query task, addressed by the same opaque token PollTask handed it.
type RespondQueryTaskCompletedRequest struct {
	Namespace string    `json:"namespace"`
	TaskToken []byte    `json:"task_token"`
	Succeeded bool      `json:"succeeded"`
	Result    *Payloads `json:"result,omitempty"`
	Failure   *Failure  `json:"failure,omitempty"`
}

type RespondQueryTaskCompletedResponse struct{}

type HeartbeatTaskRequest struct {
	Namespace string `json:"namespace"`
	TaskToken []byte `json:"task_token"`
}

type HeartbeatTaskResponse struct {
	CancelRequested bool `json:"cancel_requested"`
}

// MatchingServiceServer is implemented by the matching process.
type MatchingServiceServer interface {
	AddTask(context.Context, *AddTaskRequest) (*AddTaskResponse, error)
	PollTask(context.Context, *PollTaskRequest) (*PollTaskResponse, error)
	CompleteTask(context.Context, *CompleteTaskRequest) (*CompleteTaskResponse, error)
	QueryWorkflow(context.Context, *QueryWorkflowRequest) (*QueryWorkflowResponse, error)
	RespondQueryTaskCompleted(context.Context, *RespondQueryTaskCompletedRequest) (*RespondQueryTaskCompletedResponse, error)
	HeartbeatTask(context.Context, *HeartbeatTaskRequest) (*HeartbeatTaskResponse, error)
}

const matchingServiceName = "linkflow.matching.v1.MatchingService"

var MatchingServiceDesc = grpc.ServiceDesc{
	ServiceName: matchingServiceName,
	HandlerType: (*MatchingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AddTask", Handler: matchingAddTaskHandler},
		{MethodName: "PollTask", Handler: matchingPollTaskHandler},
		{MethodName: "CompleteTask", Handler: matchingCompleteTaskHandler},
		{MethodName: "QueryWorkflow", Handler: matchingQueryWorkflowHandler},
		{MethodName: "RespondQueryTaskCompleted", Handler: matchingRespondQueryTaskCompletedHandler},
		{MethodName: "HeartbeatTask", Handler: matchingHeartbeatTaskHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "linkflow/matching/v1/matching.proto",
}

var matchingAddTaskHandler = unaryHandler(func(srv any, ctx context.Context, req *AddTaskRequest) (*AddTaskResponse, error) {
	return srv.(MatchingServiceServer).AddTask(ctx, req)
})

var matchingPollTaskHandler = unaryHandler(func(srv any, ctx context.Context, req *PollTaskRequest) (*PollTaskResponse, error) {
	return srv.(MatchingServiceServer).PollTask(ctx, req)
})

var matchingCompleteTaskHandler = unaryHandler(func(srv any, ctx context.Context, req *CompleteTaskRequest) (*CompleteTaskResponse, error) {
	return srv.(MatchingServiceServer).CompleteTask(ctx, req)
})

var matchingQueryWorkflowHandler = unaryHandler(func(srv any, ctx context.Context, req *QueryWorkflowRequest) (*QueryWorkflowResponse, error) {
	return srv.(MatchingServiceServer).QueryWorkflow(ctx, req)
})

var matchingRespondQueryTaskCompletedHandler = unaryHandler(func(srv any, ctx context.Context, req *RespondQueryTaskCompletedRequest) (*RespondQueryTaskCompletedResponse, error) {
	return srv.(MatchingServiceServer).RespondQueryTaskCompleted(ctx, req)
})

var matchingHeartbeatTaskHandler = unaryHandler(func(srv any, ctx context.Context, req *HeartbeatTaskRequest) (*HeartbeatTaskResponse, error) {
	return srv.(MatchingServiceServer).HeartbeatTask(ctx, req)
})

func RegisterMatchingServiceServer(s *grpc.Server, impl MatchingServiceServer) {
	s.RegisterService(&MatchingServiceDesc, impl)
}

type MatchingServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewMatchingServiceClient(cc grpc.ClientConnInterface) *MatchingServiceClient {
	return &MatchingServiceClient{cc: cc}
}

func (c *MatchingServiceClient) call(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append(opts, grpc.CallContentSubtype(CodecName))
	return c.cc.Invoke(ctx, "/"+matchingServiceName+"/"+method, in, out, opts...)
}

func (c *MatchingServiceClient) AddTask(ctx context.Context, in *AddTaskRequest, opts ...grpc.CallOption) (*AddTaskResponse, error) {
	out := new(AddTaskResponse)
	return out, c.call(ctx, "AddTask", in, out, opts...)
}

func (c *MatchingServiceClient) PollTask(ctx context.Context, in *PollTaskRequest, opts ...grpc.CallOption) (*PollTaskResponse, error) {
	out := new(PollTaskResponse)
	return out, c.call(ctx, "PollTask", in, out, opts...)
}

func (c *MatchingServiceClient) CompleteTask(ctx context.Context, in *CompleteTaskRequest, opts ...grpc.CallOption) (*CompleteTaskResponse, error) {
	out := new(CompleteTaskResponse)
	return out, c.call(ctx, "CompleteTask", in, out, opts...)
}

func (c *MatchingServiceClient) QueryWorkflow(ctx context.Context, in *QueryWorkflowRequest, opts ...grpc.CallOption) (*QueryWorkflowResponse, error) {
	out := new(QueryWorkflowResponse)
	return out, c.call(ctx, "QueryWorkflow", in, out, opts...)
}

func (c *MatchingServiceClient) RespondQueryTaskCompleted(ctx context.Context, in *RespondQueryTaskCompletedRequest, opts ...grpc.CallOption) (*RespondQueryTaskCompletedResponse, error) {
	out := new(RespondQueryTaskCompletedResponse)
	return out, c.call(ctx, "RespondQueryTaskCompleted", in, out, opts...)
}

func (c *MatchingServiceClient) HeartbeatTask(ctx context.Context, in *HeartbeatTaskRequest, opts ...grpc.CallOption) (*HeartbeatTaskResponse, error) {
	out := new(HeartbeatTaskResponse)
	return out, c.call(ctx, "HeartbeatTask", in, out, opts...)
}
