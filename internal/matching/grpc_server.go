package matching

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/linkflow/engine/internal/matching/engine"
	"github.com/linkflow/engine/internal/rpc"
)

// Server adapts Service to the rpc.MatchingServiceServer wire contract.
type Server struct {
	service *Service
}

func NewServer(service *Service) *Server {
	return &Server{service: service}
}

// generateTaskID creates a deterministic task ID from workflow identity and event.
// This ensures uniqueness and idempotency for task scheduling.
func generateTaskID(namespace, workflowID, runID string, taskType rpc.TaskType, scheduledEventID int64) string {
	return fmt.Sprintf("%s:%s:%s:%d:%d", namespace, workflowID, runID, taskType, scheduledEventID)
}

// generateSecureToken creates a cryptographically secure random token.
func generateSecureToken() ([]byte, error) {
	token := make([]byte, 32)
	if _, err := rand.Read(token); err != nil {
		return nil, fmt.Errorf("failed to generate secure token: %w", err)
	}
	return []byte(hex.EncodeToString(token)), nil
}

func (s *Server) AddTask(ctx context.Context, req *rpc.AddTaskRequest) (*rpc.AddTaskResponse, error) {
	if req.WorkflowExecution == nil {
		return nil, fmt.Errorf("workflow_execution is required")
	}
	if req.WorkflowExecution.WorkflowID == "" {
		return nil, fmt.Errorf("workflow_id is required")
	}

	taskID := generateTaskID(
		req.Namespace,
		req.WorkflowExecution.WorkflowID,
		req.WorkflowExecution.RunID,
		req.TaskType,
		req.ScheduledEventID,
	)

	rawToken, err := generateSecureToken()
	if err != nil {
		return nil, err
	}

	queueName := ""
	if req.TaskQueue != nil {
		queueName = req.TaskQueue.Name
	}
	if queueName == "" {
		queueName = "default"
	}

	// Token format: namespace|queue|taskID|random.
	// This lets workers complete tasks safely without additional lookups.
	token := []byte(fmt.Sprintf("%s|%s|%s|%s", req.Namespace, queueName, taskID, string(rawToken)))

	task := &engine.Task{
		ID:               taskID,
		Token:            token,
		WorkflowID:       req.WorkflowExecution.WorkflowID,
		RunID:            req.WorkflowExecution.RunID,
		Namespace:        req.Namespace,
		ScheduledTime:    time.Now().UTC(),
		TaskType:         int32(req.TaskType),
		ScheduledEventID: req.ScheduledEventID,
		ActivityID:       fmt.Sprintf("%d", req.ScheduledEventID),
	}
	if req.ActivityTaskInfo != nil {
		task.ActivityType = req.ActivityTaskInfo.ActivityType
	}

	if err := s.service.AddTask(ctx, queueName, task); err != nil {
		return nil, err
	}

	return &rpc.AddTaskResponse{TaskID: taskID}, nil
}

func (s *Server) PollTask(ctx context.Context, req *rpc.PollTaskRequest) (*rpc.PollTaskResponse, error) {
	queueName := ""
	if req.TaskQueue != nil {
		queueName = req.TaskQueue.Name
	}
	if queueName == "" {
		queueName = "default"
	}

	task, err := s.service.PollTask(ctx, queueName, int32(req.TaskType), req.Identity)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return &rpc.PollTaskResponse{}, nil
	}

	resp := &rpc.PollTaskResponse{
		TaskToken: task.Token,
		WorkflowExecution: &rpc.WorkflowExecution{
			WorkflowID: task.WorkflowID,
			RunID:      task.RunID,
		},
		Attempt: task.Attempt,
	}

	if rpc.TaskType(task.TaskType) == rpc.TaskTypeWorkflow {
		info := &rpc.WorkflowTaskInfo{
			ScheduledEventID: task.ScheduledEventID,
		}
		if task.IsQuery {
			query := &rpc.WorkflowQuery{
				QueryID:   task.QueryID,
				QueryType: task.QueryType,
			}
			if len(task.QueryArgs) > 0 {
				query.Args = &rpc.Payloads{Payloads: []*rpc.Payload{{Data: task.QueryArgs}}}
			}
			info.Query = query
		}
		resp.WorkflowTaskInfo = info
	} else {
		info := &rpc.ActivityTaskInfo{
			ActivityID:       task.ActivityID,
			ActivityType:     task.ActivityType,
			ScheduledEventID: task.ScheduledEventID,
		}
		if len(task.Input) > 0 {
			info.Input = &rpc.Payloads{Payloads: []*rpc.Payload{{Data: task.Input}}}
		}
		resp.ActivityTaskInfo = info
	}

	return resp, nil
}

func (s *Server) CompleteTask(ctx context.Context, req *rpc.CompleteTaskRequest) (*rpc.CompleteTaskResponse, error) {
	_, queueName, taskID, err := parseTaskToken(req.TaskToken)
	if err != nil {
		return nil, err
	}
	if queueName == "" || taskID == "" {
		return nil, fmt.Errorf("invalid task token")
	}

	if err := s.service.CompleteTaskByID(ctx, taskID); err != nil && err != ErrTaskNotFound {
		return nil, err
	}

	// Completion is idempotent; already-completed/not-found tasks are treated as success.
	return &rpc.CompleteTaskResponse{}, nil
}

// defaultQueryTimeout bounds how long QueryWorkflow waits for a worker to
// pick up and answer a query task before giving up.
const defaultQueryTimeout = 10 * time.Second

func (s *Server) QueryWorkflow(ctx context.Context, req *rpc.QueryWorkflowRequest) (*rpc.QueryWorkflowResponse, error) {
	if req.WorkflowExecution == nil || req.WorkflowExecution.WorkflowID == "" {
		return nil, fmt.Errorf("workflow_execution is required")
	}
	if req.Query == nil || req.Query.QueryType == "" {
		return nil, fmt.Errorf("query is required")
	}
	queueName := ""
	if req.TaskQueue != nil {
		queueName = req.TaskQueue.Name
	}
	if queueName == "" {
		return nil, fmt.Errorf("task_queue is required")
	}

	queryID := req.Query.QueryID
	if queryID == "" {
		rawToken, err := generateSecureToken()
		if err != nil {
			return nil, err
		}
		queryID = string(rawToken)
	}

	taskID := generateTaskID(req.Namespace, req.WorkflowExecution.WorkflowID, req.WorkflowExecution.RunID, rpc.TaskTypeWorkflow, 0) + ":query:" + queryID
	rawToken, err := generateSecureToken()
	if err != nil {
		return nil, err
	}

	task := &engine.Task{
		ID:         taskID,
		Token:      []byte(fmt.Sprintf("%s|%s|%s|%s", req.Namespace, queueName, taskID, string(rawToken))),
		WorkflowID: req.WorkflowExecution.WorkflowID,
		RunID:      req.WorkflowExecution.RunID,
		Namespace:  req.Namespace,
		TaskType:   int32(rpc.TaskTypeWorkflow),
		IsQuery:    true,
		QueryID:    queryID,
		QueryType:  req.Query.QueryType,
	}
	if req.Query.Args != nil && len(req.Query.Args.Payloads) > 0 {
		task.QueryArgs = req.Query.Args.Payloads[0].Data
	}

	queryCtx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	outcome, err := s.service.DispatchQuery(queryCtx, queueName, task)
	if err != nil {
		return nil, err
	}

	result := &rpc.WorkflowQueryResult{
		QueryID:   queryID,
		Succeeded: outcome.Succeeded,
	}
	if len(outcome.Result) > 0 {
		result.Result = &rpc.Payloads{Payloads: []*rpc.Payload{{Data: outcome.Result}}}
	}
	if !outcome.Succeeded && outcome.FailureMessage != "" {
		result.Failure = &rpc.Failure{Message: outcome.FailureMessage}
	}

	return &rpc.QueryWorkflowResponse{Result: result}, nil
}

func (s *Server) RespondQueryTaskCompleted(ctx context.Context, req *rpc.RespondQueryTaskCompletedRequest) (*rpc.RespondQueryTaskCompletedResponse, error) {
	_, _, taskID, err := parseTaskToken(req.TaskToken)
	if err != nil {
		return nil, err
	}

	outcome := &engine.QueryOutcome{Succeeded: req.Succeeded}
	if req.Result != nil && len(req.Result.Payloads) > 0 {
		outcome.Result = req.Result.Payloads[0].Data
	}
	if req.Failure != nil {
		outcome.FailureMessage = req.Failure.Message
	}

	s.service.CompleteQuery(taskID, outcome)
	return &rpc.RespondQueryTaskCompletedResponse{}, nil
}

func (s *Server) HeartbeatTask(ctx context.Context, req *rpc.HeartbeatTaskRequest) (*rpc.HeartbeatTaskResponse, error) {
	return &rpc.HeartbeatTaskResponse{CancelRequested: false}, nil
}

func parseTaskToken(token []byte) (namespace string, queueName string, taskID string, err error) {
	parts := strings.SplitN(string(token), "|", 4)
	if len(parts) < 4 {
		return "", "", "", fmt.Errorf("malformed task token")
	}
	return parts[0], parts[1], parts[2], nil
}
