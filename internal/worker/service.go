package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/linkflow/engine/internal/rpc"
	"github.com/linkflow/engine/internal/worker/adapter"
	"github.com/linkflow/engine/internal/worker/executor"
	"github.com/linkflow/engine/internal/worker/poller"
	"github.com/linkflow/engine/internal/worker/retry"
)

// WorkflowFunc replays a workflow's full history and returns the commands
// its next decision produces. The engine never authors workflow code itself
// (see executor.Handler for the equivalent activity-side contract); callers
// register one WorkflowFunc per workflow type name.
type WorkflowFunc func(ctx context.Context, history []*rpc.HistoryEvent) ([]*rpc.Command, error)

type Service struct {
	historyClient *adapter.HistoryClient
	matchingConn  *grpc.ClientConn
	activities    *executor.Registry
	workflows     map[string]WorkflowFunc
	taskPollers   []*poller.Poller
	retryPolicy   *retry.Policy
	logger        *slog.Logger
	wg            sync.WaitGroup

	mu      sync.RWMutex
	running bool
}

type Config struct {
	TaskQueues       []string
	NumPollers       int
	Identity         string
	MatchingAddr     string
	PollInterval     time.Duration
	RetryPolicy      *retry.Policy
	Logger           *slog.Logger
	HistoryClient    *adapter.HistoryClient
	ActivityRegistry *executor.Registry
}

// NewService creates a new worker service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = retry.DefaultPolicy()
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.NumPollers <= 0 {
		cfg.NumPollers = 1
	}
	if cfg.MatchingAddr == "" {
		return nil, fmt.Errorf("matching service address is required")
	}
	if cfg.ActivityRegistry == nil {
		cfg.ActivityRegistry = executor.NewRegistry()
	}

	conn, err := grpc.NewClient(
		cfg.MatchingAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		cfg.Logger.Error("failed to connect to matching service", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to connect to matching service: %w", err)
	}

	client := adapter.NewMatchingClient(conn)

	// Each queue gets a disjoint poller pool per task kind, mirroring the
	// matching service's separate workflow/activity FIFOs: a backlog of
	// activities can never starve workflow task dispatch on the same queue.
	taskKinds := []rpc.TaskType{rpc.TaskTypeWorkflow, rpc.TaskTypeActivity}

	var pollers []*poller.Poller
	for _, queue := range cfg.TaskQueues {
		for _, taskType := range taskKinds {
			for i := 0; i < cfg.NumPollers; i++ {
				identity := fmt.Sprintf("%s-%s", cfg.Identity, taskTypeSuffix(taskType))
				if cfg.NumPollers > 1 {
					identity = fmt.Sprintf("%s-%d", identity, i+1)
				}

				p := poller.New(poller.Config{
					Client:       client,
					TaskQueue:    queue,
					TaskType:     int32(taskType),
					Identity:     identity,
					PollInterval: cfg.PollInterval,
					Logger:       cfg.Logger,
				})
				pollers = append(pollers, p)
			}
		}
	}

	svc := &Service{
		historyClient: cfg.HistoryClient,
		matchingConn:  conn,
		activities:    cfg.ActivityRegistry,
		workflows:     make(map[string]WorkflowFunc),
		taskPollers:   pollers,
		retryPolicy:   cfg.RetryPolicy,
		logger:        cfg.Logger,
	}

	for _, p := range pollers {
		p.SetHandler(svc.handleTask)
	}

	return svc, nil
}

func (s *Service) RegisterActivity(h executor.Handler) {
	s.activities.MustRegister(h)
	s.logger.Info("registered activity handler", slog.String("activity_type", h.ActivityType()))
}

func (s *Service) RegisterWorkflow(workflowType string, fn WorkflowFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[workflowType] = fn
	s.logger.Info("registered workflow", slog.String("workflow_type", workflowType))
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("service already running")
	}
	s.running = true
	s.mu.Unlock()

	for _, p := range s.taskPollers {
		if err := p.Start(ctx); err != nil {
			return fmt.Errorf("failed to start task poller: %w", err)
		}
	}

	s.logger.Info("worker service started")
	return nil
}

func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("service not running")
	}
	s.running = false
	s.mu.Unlock()

	for _, p := range s.taskPollers {
		p.Stop()
	}
	s.wg.Wait()

	if s.matchingConn != nil {
		if err := s.matchingConn.Close(); err != nil {
			s.logger.Warn("failed to close matching connection", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("worker service stopped")
	return nil
}

func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Service) handleTask(ctx context.Context, task *poller.Task) (*poller.TaskResult, error) {
	s.wg.Add(1)
	defer s.wg.Done()

	if task.ActivityType == "workflow" {
		return s.processWorkflowTask(ctx, task)
	}
	return s.processActivityTask(ctx, task)
}

func (s *Service) processWorkflowTask(ctx context.Context, task *poller.Task) (*poller.TaskResult, error) {
	s.logger.Info("processing workflow task",
		slog.String("workflow_id", task.WorkflowID),
		slog.String("run_id", task.RunID),
	)

	historyResp, err := s.historyClient.GetHistory(ctx, task.Namespace, task.WorkflowID, task.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	workflowType, err := workflowTypeFromHistory(historyResp.Events)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	fn, ok := s.workflows[workflowType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no workflow registered for type %q", workflowType)
	}

	commands, err := fn(ctx, historyResp.Events)
	if err != nil {
		s.logger.Error("workflow replay failed", slog.String("error", err.Error()))
		_, _ = s.historyClient.RespondWorkflowTaskFailed(ctx, &rpc.RespondWorkflowTaskFailedRequest{
			Namespace: task.Namespace,
			WorkflowExecution: &rpc.WorkflowExecution{
				WorkflowID: task.WorkflowID,
				RunID:      task.RunID,
			},
			TaskToken: task.TaskToken,
			Cause:     "WorkflowFuncError",
			Failure:   &rpc.Failure{Message: err.Error()},
		})
		return nil, err
	}

	_, err = s.historyClient.RespondWorkflowTaskCompleted(ctx, &rpc.RespondWorkflowTaskCompletedRequest{
		Namespace: task.Namespace,
		WorkflowExecution: &rpc.WorkflowExecution{
			WorkflowID: task.WorkflowID,
			RunID:      task.RunID,
		},
		TaskToken: task.TaskToken,
		Identity:  task.Namespace,
		Commands:  commands,
	})
	if err != nil {
		s.logger.Error("failed to respond workflow task completed", slog.String("error", err.Error()))
		return nil, err
	}

	return &poller.TaskResult{TaskID: task.TaskID}, nil
}

func (s *Service) processActivityTask(ctx context.Context, task *poller.Task) (*poller.TaskResult, error) {
	s.logger.Info("processing activity task",
		slog.String("activity_type", task.ActivityType),
		slog.String("activity_id", task.ActivityID),
	)

	req := &executor.Request{
		ActivityType: task.ActivityType,
		ActivityID:   task.ActivityID,
		WorkflowID:   task.WorkflowID,
		RunID:        task.RunID,
		Namespace:    task.Namespace,
		Input:        task.Input,
		Attempt:      task.Attempt,
		Timeout:      time.Duration(task.TimeoutSec) * time.Second,
	}

	resp, err := s.activities.Execute(ctx, req)
	if err != nil {
		_, _ = s.historyClient.RespondActivityTaskFailed(ctx, &rpc.RespondActivityTaskFailedRequest{
			Namespace: task.Namespace,
			TaskToken: task.TaskToken,
			Failure:   &rpc.Failure{Message: err.Error(), Type: "ActivityError"},
		})
		return &poller.TaskResult{Error: err.Error()}, err
	}

	if resp.Error != nil {
		_, _ = s.historyClient.RespondActivityTaskFailed(ctx, &rpc.RespondActivityTaskFailedRequest{
			Namespace: task.Namespace,
			TaskToken: task.TaskToken,
			Failure: &rpc.Failure{
				Message:      resp.Error.Message,
				Type:         resp.Error.Type,
				NonRetryable: resp.Error.NonRetryable,
			},
		})
		return &poller.TaskResult{Error: resp.Error.Message}, nil
	}

	_, err = s.historyClient.RespondActivityTaskCompleted(ctx, &rpc.RespondActivityTaskCompletedRequest{
		Namespace: task.Namespace,
		TaskToken: task.TaskToken,
		Result:    &rpc.Payloads{Payloads: []*rpc.Payload{{Data: resp.Output}}},
	})
	if err != nil {
		return &poller.TaskResult{Output: resp.Output}, err
	}

	return &poller.TaskResult{Output: resp.Output}, nil
}

func taskTypeSuffix(t rpc.TaskType) string {
	if t == rpc.TaskTypeWorkflow {
		return "wf"
	}
	return "act"
}

func workflowTypeFromHistory(events []*rpc.HistoryEvent) (string, error) {
	for _, e := range events {
		if e.EventType != "ExecutionStarted" {
			continue
		}
		if wt, ok := e.Attrs["WorkflowType"].(string); ok && wt != "" {
			return wt, nil
		}
	}
	return "", fmt.Errorf("ExecutionStarted event with workflow type not found")
}
