package frontend

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/linkflow/engine/internal/frontend/namespace"
	"github.com/linkflow/engine/internal/frontend/ratelimit"
	"github.com/linkflow/engine/internal/observability/metrics"
	"github.com/linkflow/engine/internal/security/audit"
)

type HistoryClient interface {
	RecordEvent(ctx context.Context, req *RecordEventRequest) error
	GetHistory(ctx context.Context, req *GetHistoryRequest) (*GetHistoryResponse, error)
	GetMutableState(ctx context.Context, key ExecutionKey) (*MutableState, error)
	UpdateWorkflow(ctx context.Context, req *UpdateWorkflowExecutionRequest) (*UpdateWorkflowExecutionResponse, error)
}

type MatchingClient interface {
	AddTask(ctx context.Context, req *AddTaskRequest) error
	PollTask(ctx context.Context, req *PollTaskRequest) (*Task, error)
	QueryWorkflow(ctx context.Context, req *MatchingQueryWorkflowRequest) (*MatchingQueryWorkflowResponse, error)
}

type Service struct {
	historyClient  HistoryClient
	matchingClient MatchingClient
	namespaceCache *namespace.Cache
	rateLimiter    *ratelimit.Limiter
	metrics        *metrics.ServiceMetrics
	audit          *audit.Logger
	logger         *slog.Logger
}

type ServiceConfig struct {
	RateLimitConfig ratelimit.Config
	MetricsRegistry *metrics.Registry
	AuditLogger     *audit.Logger
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		RateLimitConfig: ratelimit.DefaultConfig(),
	}
}

func NewService(
	historyClient HistoryClient,
	matchingClient MatchingClient,
	logger *slog.Logger,
	cfg ServiceConfig,
) *Service {
	auditLogger := cfg.AuditLogger
	if auditLogger == nil {
		auditLogger = audit.NewLogger(audit.DefaultConfig(), logger)
		auditLogger.AddSink(audit.NewConsoleSink(logger))
	}

	return &Service{
		historyClient:  historyClient,
		matchingClient: matchingClient,
		namespaceCache: namespace.NewCache(),
		rateLimiter:    ratelimit.NewLimiter(cfg.RateLimitConfig),
		metrics:        metrics.NewServiceMetrics(cfg.MetricsRegistry, "frontend"),
		audit:          auditLogger,
		logger:         logger,
	}
}

func (s *Service) HistoryClient() HistoryClient {
	return s.historyClient
}

func (s *Service) MatchingClient() MatchingClient {
	return s.matchingClient
}

func (s *Service) NamespaceCache() *namespace.Cache {
	return s.namespaceCache
}

func (s *Service) RateLimiter() *ratelimit.Limiter {
	return s.rateLimiter
}

func (s *Service) Logger() *slog.Logger {
	return s.logger
}

func (s *Service) StartWorkflowExecution(ctx context.Context, req *StartWorkflowExecutionRequest) (*StartWorkflowExecutionResponse, error) {
	runID := req.RequestID
	if runID == "" {
		runID = generateRunID()
	}

	eventReq := &RecordEventRequest{
		NamespaceID: req.Namespace,
		WorkflowID:  req.WorkflowID,
		RunID:       runID,
		EventType:   "WorkflowExecutionStarted",
		Attributes: &ExecutionStartedAttributes{
			WorkflowType: req.WorkflowType,
			TaskQueue:    req.TaskQueue,
			Input:        req.Input,
		},
	}
	if err := s.historyClient.RecordEvent(ctx, eventReq); err != nil {
		return nil, err
	}

	taskReq := &AddTaskRequest{
		NamespaceID:      req.Namespace,
		WorkflowID:       req.WorkflowID,
		RunID:            runID,
		TaskQueue:        req.TaskQueue,
		TaskType:         TaskTypeWorkflow,
		TaskInfo:         nil,
		ScheduledEventID: 1,
	}
	if err := s.matchingClient.AddTask(ctx, taskReq); err != nil {
		return nil, err
	}

	s.metrics.ExecutionStarted(req.Namespace, req.WorkflowType)
	s.audit.Log(ctx, audit.NewEventBuilder().
		WithType(audit.EventTypeExecution).
		WithAction(audit.ActionExecute).
		WithOutcome(audit.OutcomeSuccess).
		WithWorkspace(req.Namespace).
		WithResource("workflow", req.WorkflowID, req.WorkflowType).
		Build())

	return &StartWorkflowExecutionResponse{
		RunID: runID,
	}, nil
}

func (s *Service) SignalWorkflowExecution(ctx context.Context, req *SignalWorkflowExecutionRequest) error {
	eventReq := &RecordEventRequest{
		NamespaceID: req.Namespace,
		WorkflowID:  req.WorkflowID,
		RunID:       req.RunID,
		EventType:   "WorkflowExecutionSignaled",
		Attributes:  req.Input,
	}
	if err := s.historyClient.RecordEvent(ctx, eventReq); err != nil {
		return err
	}

	s.audit.Log(ctx, audit.NewEventBuilder().
		WithType(audit.EventTypeExecution).
		WithAction(audit.ActionUpdate).
		WithOutcome(audit.OutcomeSuccess).
		WithWorkspace(req.Namespace).
		WithResource("workflow", req.WorkflowID, req.SignalName).
		Build())
	return nil
}

func (s *Service) TerminateWorkflowExecution(ctx context.Context, req *TerminateWorkflowExecutionRequest) error {
	eventReq := &RecordEventRequest{
		NamespaceID: req.Namespace,
		WorkflowID:  req.WorkflowID,
		RunID:       req.RunID,
		EventType:   "WorkflowExecutionTerminated",
		Attributes:  req.Details,
	}
	if err := s.historyClient.RecordEvent(ctx, eventReq); err != nil {
		return err
	}

	s.audit.Log(ctx, audit.NewEventBuilder().
		WithType(audit.EventTypeExecution).
		WithAction(audit.ActionDelete).
		WithOutcome(audit.OutcomeSuccess).
		WithWorkspace(req.Namespace).
		WithResource("workflow", req.WorkflowID, req.Reason).
		Build())
	return nil
}

// QueryWorkflow routes a read-only query to whatever worker is currently
// polling the run's task queue and returns its synchronous answer. A worker
// answers by replaying the run, so this also serves closed runs so long as a
// worker is still willing to pick the query task up; there is no on-demand
// replay sandbox in this process to answer a query with nobody listening.
func (s *Service) QueryWorkflow(ctx context.Context, req *QueryWorkflowRequest) (*QueryWorkflowResponse, error) {
	key := ExecutionKey{
		NamespaceID: req.Namespace,
		WorkflowID:  req.WorkflowID,
		RunID:       req.RunID,
	}

	state, err := s.historyClient.GetMutableState(ctx, key)
	if err != nil {
		return nil, err
	}
	if state.ExecutionInfo == nil || state.ExecutionInfo.TaskQueue == "" {
		return nil, fmt.Errorf("workflow %s has no task queue to route the query to", req.WorkflowID)
	}

	result, err := s.matchingClient.QueryWorkflow(ctx, &MatchingQueryWorkflowRequest{
		NamespaceID: req.Namespace,
		WorkflowID:  req.WorkflowID,
		RunID:       req.RunID,
		TaskQueue:   state.ExecutionInfo.TaskQueue,
		QueryType:   req.QueryType,
		QueryArgs:   req.QueryArgs,
	})
	if err != nil {
		return nil, err
	}
	if !result.Succeeded {
		return nil, fmt.Errorf("query %q failed: %s", req.QueryType, result.FailureMessage)
	}

	return &QueryWorkflowResponse{
		QueryResult: result.Result,
	}, nil
}

// SignalWithStartWorkflowExecution signals a run if RunID names one, or
// otherwise starts a new run and then signals it, so the signal lands as a
// separate event after the new run's start event. A true find-or-start against "whatever run is currently active
// for this workflow ID" would need a workflow-ID-to-current-run-ID index the
// store layer does not maintain, so an empty RunID always starts fresh
// rather than searching for one.
func (s *Service) SignalWithStartWorkflowExecution(ctx context.Context, req *SignalWithStartWorkflowExecutionRequest) (*SignalWithStartWorkflowExecutionResponse, error) {
	if req.RunID != "" {
		if err := s.SignalWorkflowExecution(ctx, &SignalWorkflowExecutionRequest{
			Namespace:  req.Namespace,
			WorkflowID: req.WorkflowID,
			RunID:      req.RunID,
			SignalName: req.SignalName,
			Input:      req.SignalInput,
			RequestID:  req.RequestID,
		}); err != nil {
			return nil, err
		}
		return &SignalWithStartWorkflowExecutionResponse{RunID: req.RunID, Started: false}, nil
	}

	started, err := s.StartWorkflowExecution(ctx, &StartWorkflowExecutionRequest{
		Namespace:                req.Namespace,
		WorkflowID:               req.WorkflowID,
		WorkflowType:             req.WorkflowType,
		TaskQueue:                req.TaskQueue,
		Input:                    req.Input,
		WorkflowExecutionTimeout: req.WorkflowExecutionTimeout,
		WorkflowRunTimeout:       req.WorkflowRunTimeout,
		WorkflowTaskTimeout:      req.WorkflowTaskTimeout,
		RequestID:                req.RequestID,
		RetryPolicy:              req.RetryPolicy,
		Memo:                     req.Memo,
		SearchAttributes:         req.SearchAttributes,
	})
	if err != nil {
		return nil, err
	}

	if err := s.SignalWorkflowExecution(ctx, &SignalWorkflowExecutionRequest{
		Namespace:  req.Namespace,
		WorkflowID: req.WorkflowID,
		RunID:      started.RunID,
		SignalName: req.SignalName,
		Input:      req.SignalInput,
		RequestID:  req.RequestID,
	}); err != nil {
		return nil, err
	}

	return &SignalWithStartWorkflowExecutionResponse{RunID: started.RunID, Started: true}, nil
}

// UpdateWorkflowExecution runs an update through the history service's
// two-phase validator/handler protocol and relays the result back verbatim.
func (s *Service) UpdateWorkflowExecution(ctx context.Context, req *UpdateWorkflowExecutionRequest) (*UpdateWorkflowExecutionResponse, error) {
	resp, err := s.historyClient.UpdateWorkflow(ctx, req)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.NewEventBuilder().
		WithType(audit.EventTypeExecution).
		WithAction(audit.ActionUpdate).
		WithOutcome(audit.OutcomeSuccess).
		WithWorkspace(req.Namespace).
		WithResource("workflow", req.WorkflowID, req.Name).
		Build())

	return resp, nil
}

func (s *Service) GetExecution(ctx context.Context, req *GetExecutionRequest) (*GetExecutionResponse, error) {
	key := ExecutionKey{
		NamespaceID: req.Namespace,
		WorkflowID:  req.WorkflowID,
		RunID:       req.RunID,
	}

	state, err := s.historyClient.GetMutableState(ctx, key)
	if err != nil {
		return nil, err
	}

	return &GetExecutionResponse{
		Execution: state.ExecutionInfo,
	}, nil
}

func (s *Service) ListExecutions(ctx context.Context, req *ListExecutionsRequest) (*ListExecutionsResponse, error) {
	return &ListExecutionsResponse{
		Executions:    []*WorkflowExecution{},
		NextPageToken: nil,
	}, nil
}

func (s *Service) DescribeExecution(ctx context.Context, req *DescribeExecutionRequest) (*DescribeExecutionResponse, error) {
	key := ExecutionKey{
		NamespaceID: req.Namespace,
		WorkflowID:  req.WorkflowID,
		RunID:       req.RunID,
	}

	state, err := s.historyClient.GetMutableState(ctx, key)
	if err != nil {
		return nil, err
	}

	pendingActivities := make([]*PendingActivity, 0, len(state.ActivityInfos))
	for _, info := range state.ActivityInfos {
		pendingActivities = append(pendingActivities, &PendingActivity{
			ActivityID:    info.ActivityID,
			ActivityType:  info.ActivityType,
			ScheduledTime: info.ScheduledTime,
			Attempt:       info.Attempt,
		})
	}

	pendingChildren := make([]*PendingChildExecution, 0, len(state.ChildExecutions))
	for _, child := range state.ChildExecutions {
		pendingChildren = append(pendingChildren, &PendingChildExecution{
			WorkflowID:   child.WorkflowID,
			RunID:        child.RunID,
			WorkflowType: child.WorkflowType,
			InitiatedID:  child.InitiatedID,
		})
	}

	return &DescribeExecutionResponse{
		Execution:         state.ExecutionInfo,
		PendingActivities: pendingActivities,
		PendingChildExecs: pendingChildren,
	}, nil
}

func generateRunID() string {
	return "run-" + secureRandomString(32)
}

func secureRandomString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// Fallback to a UUID-like format if crypto/rand fails
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b)
}
