package history

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/linkflow/engine/internal/history/archival"
	"github.com/linkflow/engine/internal/history/engine"
	"github.com/linkflow/engine/internal/history/shard"
	"github.com/linkflow/engine/internal/history/types"
	"github.com/linkflow/engine/internal/history/visibility"
	"github.com/linkflow/engine/internal/rpc"
)

var (
	ErrServiceNotRunning     = errors.New("history service is not running")
	ErrServiceAlreadyRunning = errors.New("history service is already running")
	ErrEventNotFound         = errors.New("event not found")
)

// EventStore defines the interface for storing and retrieving history events.
type EventStore interface {
	AppendEvents(ctx context.Context, key types.ExecutionKey, events []*types.HistoryEvent, expectedVersion int64) error
	GetEvents(ctx context.Context, key types.ExecutionKey, firstEventID, lastEventID int64) ([]*types.HistoryEvent, error)
	GetEventCount(ctx context.Context, key types.ExecutionKey) (int64, error)
}

// MutableStateStore defines the interface for storing workflow mutable state.
type MutableStateStore interface {
	GetMutableState(ctx context.Context, key types.ExecutionKey) (*engine.MutableState, error)
	UpdateMutableState(ctx context.Context, key types.ExecutionKey, state *engine.MutableState, expectedVersion int64) error
	ListRunningExecutions(ctx context.Context) ([]types.ExecutionKey, error)
}

// ShardController manages shard ownership and distribution.
type ShardController interface {
	Start() error
	GetShardForExecution(key types.ExecutionKey) (shard.Shard, error)
	GetShardIDForExecution(key types.ExecutionKey) int32
	Stop()
}

// MatchingClient is the subset of the matching service's client surface the
// history service needs, to dispatch activity and workflow tasks.
type MatchingClient interface {
	AddTask(ctx context.Context, req *rpc.AddTaskRequest, opts ...grpc.CallOption) (*rpc.AddTaskResponse, error)
}

// Metrics provides hooks for observability.
type Metrics interface {
	RecordEventRecorded(eventType types.EventType)
	RecordEventRetrieved(count int)
	RecordServiceLatency(operation string, duration time.Duration)
}

// noopMetrics1 is a no-op implementation of Metrics.
type noopMetrics1 struct{}

func (noopMetrics1) RecordEventRecorded(types.EventType)        {}
func (noopMetrics1) RecordEventRetrieved(int)                   {}
func (noopMetrics1) RecordServiceLatency(string, time.Duration) {}

// UpdateValidator runs against an update request before it is admitted into
// history. A non-nil error rejects the update without ever recording an
// UpdateAccepted event; the workflow itself never sees a rejected update.
type UpdateValidator func(name string, input []byte) error

// Service provides workflow history management capabilities and implements
// rpc.HistoryServiceServer.
type Service struct {
	shardController ShardController
	eventStore      EventStore
	stateStore      MutableStateStore
	visibilityStore visibility.Store
	matchingClient  MatchingClient
	historyEngine   *engine.Engine
	snapshotStore   engine.SnapshotStore
	archiver        *archival.Archiver
	metrics         Metrics
	logger          *slog.Logger
	updateValidator UpdateValidator

	runLocks *engine.RunLocks

	running bool
	mu      sync.RWMutex
	wg      sync.WaitGroup
	stopCh  chan struct{}
}

// Config holds configuration for the history service.
type Config struct {
	ShardController ShardController
	EventStore      EventStore
	StateStore      MutableStateStore
	VisibilityStore visibility.Store
	MatchingClient  MatchingClient
	SnapshotStore   engine.SnapshotStore // optional
	Archiver        *archival.Archiver   // optional
	Logger          *slog.Logger
	Metrics         Metrics
	UpdateValidator UpdateValidator // optional; defaults to rejecting only an empty name
}

// NewService creates a new history service with default config.
func NewService(
	shardController ShardController,
	eventStore EventStore,
	stateStore MutableStateStore,
	visibilityStore visibility.Store,
	matchingClient MatchingClient,
	logger *slog.Logger,
) *Service {
	return NewServiceWithConfig(Config{
		ShardController: shardController,
		EventStore:      eventStore,
		StateStore:      stateStore,
		VisibilityStore: visibilityStore,
		MatchingClient:  matchingClient,
		Logger:          logger,
	})
}

// NewServiceWithConfig creates a new history service with full configuration.
func NewServiceWithConfig(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics1{}
	}
	updateValidator := cfg.UpdateValidator
	if updateValidator == nil {
		updateValidator = defaultUpdateValidator
	}
	return &Service{
		shardController: cfg.ShardController,
		eventStore:      cfg.EventStore,
		stateStore:      cfg.StateStore,
		visibilityStore: cfg.VisibilityStore,
		matchingClient:  cfg.MatchingClient,
		historyEngine:   engine.NewEngine(cfg.Logger),
		snapshotStore:   cfg.SnapshotStore,
		archiver:        cfg.Archiver,
		metrics:         metrics,
		logger:          cfg.Logger,
		updateValidator: updateValidator,
		runLocks:        engine.NewRunLocks(),
		running:         false,
	}
}

// defaultUpdateValidator admits any named update; a caller that needs
// business-rule rejection (schema checks, unknown update names, and so on)
// supplies Config.UpdateValidator instead.
func defaultUpdateValidator(name string, input []byte) error {
	if name == "" {
		return errors.New("update name is required")
	}
	return nil
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrServiceAlreadyRunning
	}

	s.logger.Info("starting history service")

	if s.shardController != nil {
		if err := s.shardController.Start(); err != nil {
			return err
		}
	}

	s.stopCh = make(chan struct{})
	s.running = true

	s.startTimeoutChecker()

	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()
		return nil
	}

	s.logger.Info("stopping history service")

	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()

	if s.shardController != nil {
		s.shardController.Stop()
	}

	return nil
}

func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// keyFromWire builds an ExecutionKey from a namespace and wire execution.
func keyFromWire(namespace string, we *rpc.WorkflowExecution) types.ExecutionKey {
	return types.ExecutionKey{NamespaceID: namespace, WorkflowID: we.WorkflowID, RunID: we.RunID}
}

// decodeTaskToken extracts the scheduled event ID from a workflow task
// token; the execution itself is already identified by the request's own
// namespace/WorkflowExecution fields.
func decodeTaskToken(token []byte) int64 {
	t, err := DecodeTaskToken(token)
	if err != nil {
		return 0
	}
	return t.ScheduledEventID
}

// decodeActivityTaskToken extracts both the execution key and the scheduled
// event ID: activity completion requests carry no WorkflowExecution field of
// their own, so the token is the only source of the run's identity.
func decodeActivityTaskToken(token []byte) (types.ExecutionKey, int64, error) {
	t, err := DecodeTaskToken(token)
	if err != nil {
		return types.ExecutionKey{}, 0, err
	}
	key := types.ExecutionKey{NamespaceID: t.NamespaceID, WorkflowID: t.WorkflowID, RunID: t.RunID}
	return key, t.ScheduledEventID, nil
}

// processEvents is the core event processing loop: it persists events,
// folds them into mutable state, records visibility, dispatches tasks, and
// fans out to the optional snapshot/archival side channels. Every
// call is serialized per-run by runLocks so concurrent RPCs against the same
// execution never race on its mutable state.
func (s *Service) processEvents(ctx context.Context, key types.ExecutionKey, newEvents []*types.HistoryEvent) (*engine.MutableState, error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordServiceLatency("ProcessEvents", time.Since(start))
	}()

	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	if !running {
		return nil, ErrServiceNotRunning
	}

	unlock := s.runLocks.Lock(key)
	defer unlock()

	if s.shardController != nil {
		if _, err := s.shardController.GetShardForExecution(key); err != nil {
			return nil, err
		}
	}

	state, err := s.stateStore.GetMutableState(ctx, key)
	if err != nil {
		if errors.Is(err, types.ErrExecutionNotFound) {
			state = engine.NewMutableState(&types.ExecutionInfo{
				NamespaceID: key.NamespaceID,
				WorkflowID:  key.WorkflowID,
				RunID:       key.RunID,
			})
		} else {
			return nil, err
		}
	}

	expectedVersion := state.DBVersion

	for _, event := range newEvents {
		if event.EventID == 0 {
			event.EventID = state.NextEventID
		}
		if err := s.historyEngine.ProcessEvent(state, event); err != nil {
			return nil, err
		}
	}

	if err := s.eventStore.AppendEvents(ctx, key, newEvents, expectedVersion); err != nil {
		return nil, err
	}

	state.DBVersion++
	if err := s.stateStore.UpdateMutableState(ctx, key, state, expectedVersion); err != nil {
		s.logger.Warn("failed to update mutable state", "error", err, "workflow_id", key.WorkflowID)
		return nil, err
	}

	if state.ExecutionInfo != nil && state.ExecutionInfo.Status.Closed() {
		s.runLocks.Forget(key)
	}

	for _, event := range newEvents {
		s.metrics.RecordEventRecorded(event.EventType)
	}

	if s.visibilityStore != nil {
		for _, event := range newEvents {
			s.recordVisibility(ctx, key, event, state)
		}
	}

	if s.matchingClient != nil {
		for _, event := range newEvents {
			if err := s.dispatchTasks(ctx, key, event, state); err != nil {
				s.logger.Error("failed to dispatch tasks to matching", "error", err)
			}
		}
	}

	if s.snapshotStore != nil && state.NextEventID%100 == 0 {
		snapshot := &engine.Snapshot{
			ExecutionKey: key,
			State:        state.Clone(),
			LastEventID:  state.NextEventID - 1,
			CreatedAt:    time.Now(),
		}
		if err := s.snapshotStore.SaveSnapshot(ctx, snapshot); err != nil {
			s.logger.Warn("failed to save snapshot", "error", err, "workflow_id", key.WorkflowID)
		}
	}

	if s.archiver != nil {
		for _, event := range newEvents {
			if state.ExecutionInfo != nil && state.ExecutionInfo.Status.Closed() {
				allEvents, err := s.eventStore.GetEvents(ctx, key, 1, state.NextEventID-1)
				if err != nil {
					s.logger.Warn("failed to fetch events for archival", "error", err, "workflow_id", key.WorkflowID)
					break
				}
				if err := s.archiver.Archive(ctx, &archival.ArchiveRequest{
					NamespaceID: key.NamespaceID,
					ExecutionID: key.RunID,
					WorkflowID:  key.WorkflowID,
					Events:      allEvents,
					ClosedAt:    event.Timestamp,
				}); err != nil {
					s.logger.Warn("failed to archive execution", "error", err, "workflow_id", key.WorkflowID)
				}
				break
			}
		}
	}

	return state, nil
}

func (s *Service) recordVisibility(ctx context.Context, key types.ExecutionKey, event *types.HistoryEvent, state *engine.MutableState) {
	exec := &rpc.WorkflowExecution{WorkflowID: key.WorkflowID, RunID: key.RunID}

	switch event.EventType {
	case types.EventTypeExecutionStarted:
		attrs, ok := event.Attributes.(*types.ExecutionStartedAttributes)
		if !ok {
			return
		}
		s.visibilityStore.RecordWorkflowExecutionStarted(ctx, &visibility.RecordWorkflowExecutionStartedRequest{
			NamespaceID:  key.NamespaceID,
			Execution:    exec,
			WorkflowType: attrs.WorkflowType,
			StartTime:    event.Timestamp,
			Status:       types.ExecutionStatusRunning,
			Memo:         state.ExecutionInfo.Memo,
		})

	case types.EventTypeExecutionCompleted, types.EventTypeExecutionFailed,
		types.EventTypeExecutionTerminated, types.EventTypeExecutionCanceled,
		types.EventTypeExecutionTimedOut:
		s.visibilityStore.RecordWorkflowExecutionClosed(ctx, &visibility.RecordWorkflowExecutionClosedRequest{
			NamespaceID:   key.NamespaceID,
			Execution:     exec,
			WorkflowType:  state.ExecutionInfo.WorkflowTypeName,
			StartTime:     state.ExecutionInfo.StartTime,
			CloseTime:     event.Timestamp,
			Status:        state.ExecutionInfo.Status,
			HistoryLength: state.NextEventID - 1,
			Memo:          state.ExecutionInfo.Memo,
		})
	}
}

// RecordEvent appends a single externally-supplied event (used by clients
// delivering signals, or by the timer service recording a fired timer).
func (s *Service) RecordEvent(ctx context.Context, req *rpc.RecordEventRequest) (*rpc.RecordEventResponse, error) {
	key := keyFromWire(req.Namespace, req.WorkflowExecution)

	event, err := fromWireEvent(req.Event)
	if err != nil {
		return nil, engine.ClientError(err)
	}

	state, err := s.processEvents(ctx, key, []*types.HistoryEvent{event})
	if err != nil {
		return nil, err
	}

	return &rpc.RecordEventResponse{EventID: state.NextEventID - 1}, nil
}

// RespondWorkflowTaskCompleted processes decisions from the workflow worker.
func (s *Service) RespondWorkflowTaskCompleted(ctx context.Context, req *rpc.RespondWorkflowTaskCompletedRequest) (*rpc.RespondWorkflowTaskCompletedResponse, error) {
	key := keyFromWire(req.Namespace, req.WorkflowExecution)
	scheduledEventID := decodeTaskToken(req.TaskToken)

	commands, err := fromWireCommands(req.Commands)
	if err != nil {
		return nil, engine.ClientError(err)
	}

	state, err := s.stateStore.GetMutableState(ctx, key)
	if err != nil {
		return nil, err
	}

	completedEvent := &types.HistoryEvent{
		EventType: types.EventTypeWorkflowTaskCompleted,
		Attributes: &types.WorkflowTaskCompletedAttributes{
			ScheduledEventID: scheduledEventID,
			Identity:         req.Identity,
		},
	}

	newEvents := []*types.HistoryEvent{completedEvent}

	// Pre-stage the command-derived events against a scratch clone so a
	// malformed command fails the whole response atomically, before any of
	// it is persisted.
	scratch := state.Clone()
	if err := scratch.ApplyEvent(completedEvent); err != nil {
		return nil, engine.WorkflowTaskFailure(err)
	}
	commandEvents, err := s.historyEngine.ApplyCommands(scratch, commands, req.Identity)
	if err != nil {
		var typedErr *engine.TypedError
		if errors.As(err, &typedErr) && typedErr.NonDeterministic {
			return s.failWorkflowTaskNonDeterministic(ctx, key, scheduledEventID, req.Identity, typedErr.Err)
		}
		return nil, err
	}
	newEvents = append(newEvents, commandEvents...)

	if _, err := s.processEvents(ctx, key, newEvents); err != nil {
		return nil, err
	}

	return &rpc.RespondWorkflowTaskCompletedResponse{}, nil
}

// failWorkflowTaskNonDeterministic records a WorkflowTaskFailed event with
// Cause NonDeterministic in place of the command batch the worker submitted.
// It is reached when that batch assumes timer, activity or update state the
// run's actual history never produced: a sticky worker whose cached replay
// has diverged. The run is left with no outstanding workflow task and none
// is automatically rescheduled, since a deterministic replay that already
// diverged would diverge identically on retry; recovering the run requires
// an operator Reset or Terminate.
func (s *Service) failWorkflowTaskNonDeterministic(ctx context.Context, key types.ExecutionKey, scheduledEventID int64, identity string, cause error) (*rpc.RespondWorkflowTaskCompletedResponse, error) {
	event := &types.HistoryEvent{
		EventType: types.EventTypeWorkflowTaskFailed,
		Attributes: &types.WorkflowTaskFailedAttributes{
			ScheduledEventID: scheduledEventID,
			Cause:            engine.CauseNonDeterministic,
			FailureReason:    cause.Error(),
			Identity:         identity,
		},
	}

	if _, err := s.processEvents(ctx, key, []*types.HistoryEvent{event}); err != nil {
		return nil, err
	}

	s.logger.Warn("workflow task failed: non-deterministic command batch",
		slog.String("workflow_id", key.WorkflowID),
		slog.String("run_id", key.RunID),
		slog.String("cause", cause.Error()),
	)

	return &rpc.RespondWorkflowTaskCompletedResponse{}, nil
}

func (s *Service) RespondWorkflowTaskFailed(ctx context.Context, req *rpc.RespondWorkflowTaskFailedRequest) (*rpc.RespondWorkflowTaskFailedResponse, error) {
	key := keyFromWire(req.Namespace, req.WorkflowExecution)
	scheduledEventID := decodeTaskToken(req.TaskToken)

	var reason string
	var details []byte
	if req.Failure != nil {
		reason = req.Failure.Message
	}

	event := &types.HistoryEvent{
		EventType: types.EventTypeWorkflowTaskFailed,
		Attributes: &types.WorkflowTaskFailedAttributes{
			ScheduledEventID: scheduledEventID,
			Cause:            req.Cause,
			FailureReason:    reason,
			FailureDetails:   details,
			Identity:         req.Identity,
		},
	}

	if _, err := s.processEvents(ctx, key, []*types.HistoryEvent{event}); err != nil {
		return nil, err
	}
	return &rpc.RespondWorkflowTaskFailedResponse{}, nil
}

func (s *Service) RespondActivityTaskCompleted(ctx context.Context, req *rpc.RespondActivityTaskCompletedRequest) (*rpc.RespondActivityTaskCompletedResponse, error) {
	key, scheduledEventID, err := decodeActivityTaskToken(req.TaskToken)
	if err != nil {
		return nil, engine.ClientError(err)
	}

	event := &types.HistoryEvent{
		EventType: types.EventTypeActivityCompleted,
		Attributes: &types.ActivityCompletedAttributes{
			ScheduledEventID: scheduledEventID,
			Result:           payloadsToBytes(req.Result),
		},
	}

	if _, err := s.processEvents(ctx, key, []*types.HistoryEvent{event}); err != nil {
		return nil, err
	}

	return &rpc.RespondActivityTaskCompletedResponse{}, nil
}

func (s *Service) RespondActivityTaskFailed(ctx context.Context, req *rpc.RespondActivityTaskFailedRequest) (*rpc.RespondActivityTaskFailedResponse, error) {
	key, scheduledEventID, err := decodeActivityTaskToken(req.TaskToken)
	if err != nil {
		return nil, engine.ClientError(err)
	}

	state, err := s.stateStore.GetMutableState(ctx, key)
	if err != nil {
		return nil, err
	}

	ai, exists := state.GetPendingActivity(scheduledEventID)
	if !exists {
		return nil, engine.PreconditionFailure(ErrEventNotFound)
	}

	var message, errorType string
	if req.Failure != nil {
		message = req.Failure.Message
		errorType = req.Failure.Type
	}

	if !s.historyEngine.ShouldRetryActivity(ai, errorType, message) {
		event := &types.HistoryEvent{
			EventType: types.EventTypeActivityFailed,
			Attributes: &types.ActivityFailedAttributes{
				ScheduledEventID: scheduledEventID,
				Reason:           message,
			},
		}
		if _, err := s.processEvents(ctx, key, []*types.HistoryEvent{event}); err != nil {
			return nil, err
		}
		return &rpc.RespondActivityTaskFailedResponse{}, nil
	}

	// The activity still has retries left: schedule a new attempt instead of
	// closing out the original ActivityFailed event. Workers see this as a
	// fresh ActivityScheduled/Started pair on a later attempt number.
	delay := s.historyEngine.NextActivityRetryDelay(ai)
	s.logger.Info("scheduling activity retry",
		slog.String("activity_id", ai.ActivityID),
		slog.Int64("scheduled_event_id", scheduledEventID),
		slog.Duration("delay", delay),
	)

	rescheduled := &types.HistoryEvent{
		EventType: types.EventTypeActivityScheduled,
		Attributes: &types.ActivityScheduledAttributes{
			ActivityID:       ai.ActivityID,
			ActivityType:     ai.ActivityType,
			TaskQueue:        ai.TaskQueue,
			Input:            ai.Input,
			ScheduleToClose:  ai.ScheduleTimeout,
			StartToClose:     ai.StartToClose,
			HeartbeatTimeout: ai.HeartbeatTimeout,
			RetryPolicy:      ai.RetryPolicy,
		},
	}

	if _, err := s.processEvents(ctx, key, []*types.HistoryEvent{rescheduled}); err != nil {
		return nil, err
	}

	return &rpc.RespondActivityTaskFailedResponse{}, nil
}

func (s *Service) RecordActivityTaskHeartbeat(ctx context.Context, req *rpc.RecordActivityTaskHeartbeatRequest) (*rpc.RecordActivityTaskHeartbeatResponse, error) {
	key, scheduledEventID, err := decodeActivityTaskToken(req.TaskToken)
	if err != nil {
		return nil, engine.ClientError(err)
	}

	state, err := s.stateStore.GetMutableState(ctx, key)
	if err != nil {
		return nil, err
	}

	ai, exists := state.GetPendingActivity(scheduledEventID)
	if !exists {
		return nil, engine.PreconditionFailure(ErrEventNotFound)
	}

	ai.LastHeartbeat = time.Now()
	ai.HeartbeatDetails = payloadsToBytes(req.Details)

	if err := s.stateStore.UpdateMutableState(ctx, key, state, state.DBVersion); err != nil {
		return nil, err
	}

	return &rpc.RecordActivityTaskHeartbeatResponse{CancelRequested: ai.CancelRequested}, nil
}

func (s *Service) RecordTimerFired(ctx context.Context, req *rpc.RecordTimerFiredRequest) (*rpc.RecordTimerFiredResponse, error) {
	key := keyFromWire(req.Namespace, req.WorkflowExecution)

	state, err := s.stateStore.GetMutableState(ctx, key)
	if err != nil {
		return nil, err
	}

	timerInfo, exists := state.GetPendingTimer(req.TimerID)
	if !exists {
		return nil, engine.PreconditionFailure(ErrEventNotFound)
	}

	event := &types.HistoryEvent{
		EventType: types.EventTypeTimerFired,
		Attributes: &types.TimerFiredAttributes{
			TimerID:        req.TimerID,
			StartedEventID: timerInfo.StartedEventID,
		},
	}

	if _, err := s.processEvents(ctx, key, []*types.HistoryEvent{event}); err != nil {
		return nil, err
	}

	return &rpc.RecordTimerFiredResponse{}, nil
}

// updatePollInterval/updatePollTimeout bound how long UpdateWorkflow blocks
// waiting for a workflow task to resolve an accepted update when the caller
// asked for UpdateWaitStageCompleted.
const (
	updatePollInterval = 100 * time.Millisecond
	updatePollTimeout  = 30 * time.Second
)

// UpdateWorkflow runs an update request through its two phases: a
// synchronous validator decides admission (producing UpdateAccepted or
// UpdateRejected immediately), after which the workflow's own command batch
// resolves it (UpdateCompleted, carried by a later RespondWorkflowTaskCompleted
// call via CommandTypeRespondUpdate). WaitStage controls which of those
// phases the caller blocks for.
func (s *Service) UpdateWorkflow(ctx context.Context, req *rpc.UpdateWorkflowRequest) (*rpc.UpdateWorkflowResponse, error) {
	key := keyFromWire(req.Namespace, req.WorkflowExecution)
	input := payloadsToBytes(req.Input)

	updateID := req.UpdateID
	if updateID == "" {
		updateID = generateRunID()
	}

	if err := s.updateValidator(req.Name, input); err != nil {
		event := &types.HistoryEvent{
			EventType: types.EventTypeUpdateRejected,
			Attributes: &types.UpdateRejectedAttributes{
				UpdateID: updateID,
				Reason:   err.Error(),
			},
		}
		if _, procErr := s.processEvents(ctx, key, []*types.HistoryEvent{event}); procErr != nil {
			return nil, procErr
		}
		return &rpc.UpdateWorkflowResponse{
			UpdateID:        updateID,
			Stage:           rpc.UpdateWaitStageAccepted,
			Rejected:        true,
			RejectionReason: err.Error(),
		}, nil
	}

	event := &types.HistoryEvent{
		EventType: types.EventTypeUpdateAccepted,
		Attributes: &types.UpdateAcceptedAttributes{
			UpdateID: updateID,
			Name:     req.Name,
			Input:    input,
			Identity: req.Identity,
		},
	}
	if _, err := s.processEvents(ctx, key, []*types.HistoryEvent{event}); err != nil {
		return nil, err
	}

	resp := &rpc.UpdateWorkflowResponse{UpdateID: updateID, Stage: rpc.UpdateWaitStageAccepted}
	if req.WaitStage != rpc.UpdateWaitStageCompleted {
		return resp, nil
	}

	return s.awaitUpdateCompletion(ctx, key, updateID)
}

// awaitUpdateCompletion polls mutable state for the update's resolution.
// There is no per-update notification channel in this store layer, so this
// mirrors the bounded-ticker pattern startTimeoutChecker already uses
// elsewhere in this file rather than blocking indefinitely.
func (s *Service) awaitUpdateCompletion(ctx context.Context, key types.ExecutionKey, updateID string) (*rpc.UpdateWorkflowResponse, error) {
	deadline := time.Now().Add(updatePollTimeout)
	ticker := time.NewTicker(updatePollInterval)
	defer ticker.Stop()

	for {
		state, err := s.stateStore.GetMutableState(ctx, key)
		if err != nil {
			return nil, err
		}
		if ui, exists := state.PendingUpdates[updateID]; exists && ui.Completed {
			return &rpc.UpdateWorkflowResponse{
				UpdateID:        updateID,
				Stage:           rpc.UpdateWaitStageCompleted,
				Rejected:        ui.Rejected,
				RejectionReason: ui.RejectionReason,
				Result:          bytesToPayloads(ui.Result),
			}, nil
		}
		if _, exists := state.PendingUpdates[updateID]; !exists {
			return nil, fmt.Errorf("update %q not found while awaiting completion", updateID)
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for update %q to complete", updateID)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) GetMutableState(ctx context.Context, req *rpc.GetMutableStateRequest) (*rpc.GetMutableStateResponse, error) {
	key := keyFromWire(req.Namespace, req.WorkflowExecution)

	state, err := s.stateStore.GetMutableState(ctx, key)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal mutable state: %w", err)
	}

	status := ""
	if state.ExecutionInfo != nil {
		status = state.ExecutionInfo.Status.String()
	}

	return &rpc.GetMutableStateResponse{
		NextEventID: state.NextEventID,
		DBVersion:   state.DBVersion,
		Status:      status,
		State:       data,
	}, nil
}

func (s *Service) GetHistory(ctx context.Context, req *rpc.GetHistoryRequest) (*rpc.GetHistoryResponse, error) {
	key := keyFromWire(req.Namespace, req.WorkflowExecution)

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	startEventID := int64(1)
	if len(req.NextPageToken) > 0 {
		id, err := strconv.ParseInt(string(req.NextPageToken), 10, 64)
		if err == nil {
			startEventID = id + 1
		}
	}

	events, err := s.eventStore.GetEvents(ctx, key, startEventID, startEventID+int64(pageSize)-1)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordEventRetrieved(len(events))

	wireEvents, err := toWireEvents(events)
	if err != nil {
		return nil, err
	}

	resp := &rpc.GetHistoryResponse{Events: wireEvents}
	if int32(len(events)) == pageSize {
		last := events[len(events)-1]
		resp.NextPageToken = []byte(strconv.FormatInt(last.EventID, 10))
	}
	return resp, nil
}

func (s *Service) dispatchTasks(ctx context.Context, key types.ExecutionKey, event *types.HistoryEvent, state *engine.MutableState) error {
	var taskType rpc.TaskType
	var taskQueue string

	switch event.EventType {
	case types.EventTypeWorkflowTaskScheduled:
		attrs, ok := event.Attributes.(*types.WorkflowTaskScheduledAttributes)
		if !ok {
			return nil
		}
		taskType = rpc.TaskTypeWorkflow
		taskQueue = attrs.TaskQueue

	case types.EventTypeActivityScheduled:
		attrs, ok := event.Attributes.(*types.ActivityScheduledAttributes)
		if !ok {
			return nil
		}
		taskType = rpc.TaskTypeActivity
		taskQueue = attrs.TaskQueue

	default:
		return nil
	}

	req := &rpc.AddTaskRequest{
		Namespace: key.NamespaceID,
		TaskQueue: &rpc.TaskQueue{Name: taskQueue, Kind: rpc.TaskQueueKindNormal},
		TaskType:  taskType,
		WorkflowExecution: &rpc.WorkflowExecution{
			WorkflowID: key.WorkflowID,
			RunID:      key.RunID,
		},
		ScheduledEventID: event.EventID,
	}

	_, err := s.matchingClient.AddTask(ctx, req)
	return err
}

func (s *Service) GetShardForExecution(key types.ExecutionKey) (shard.Shard, error) {
	return s.shardController.GetShardForExecution(key)
}

func (s *Service) GetShardIDForExecution(key types.ExecutionKey) int32 {
	return s.shardController.GetShardIDForExecution(key)
}

func (s *Service) ResetExecution(ctx context.Context, key types.ExecutionKey, reason string, resetEventID int64) (string, error) {
	events, err := s.eventStore.GetEvents(ctx, key, 1, resetEventID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch events for reset: %w", err)
	}
	if len(events) == 0 {
		return "", fmt.Errorf("no events found up to event ID %d", resetEventID)
	}

	firstEvent := events[0]
	if firstEvent.EventType != types.EventTypeExecutionStarted {
		return "", fmt.Errorf("first event is not ExecutionStarted")
	}

	newRunID := generateRunID()

	newKey := types.ExecutionKey{
		NamespaceID: key.NamespaceID,
		WorkflowID:  key.WorkflowID,
		RunID:       newRunID,
	}

	newState := engine.NewMutableState(&types.ExecutionInfo{
		NamespaceID: newKey.NamespaceID,
		WorkflowID:  newKey.WorkflowID,
		RunID:       newKey.RunID,
	})

	replayedEvents := make([]*types.HistoryEvent, len(events))
	for i, evt := range events {
		clone := *evt
		clone.EventID = int64(i + 1)
		if err := newState.ApplyEvent(&clone); err != nil {
			return "", fmt.Errorf("failed to replay event %d during reset: %w", clone.EventID, err)
		}
		replayedEvents[i] = &clone
	}

	if err := s.eventStore.AppendEvents(ctx, newKey, replayedEvents, 0); err != nil {
		return "", fmt.Errorf("failed to persist reset events: %w", err)
	}

	if err := s.stateStore.UpdateMutableState(ctx, newKey, newState, 0); err != nil {
		return "", fmt.Errorf("failed to persist reset state: %w", err)
	}

	if s.matchingClient != nil && newState.ExecutionInfo != nil && newState.ExecutionInfo.TaskQueue != "" {
		taskReq := &rpc.AddTaskRequest{
			Namespace: newKey.NamespaceID,
			TaskQueue: &rpc.TaskQueue{Name: newState.ExecutionInfo.TaskQueue, Kind: rpc.TaskQueueKindNormal},
			TaskType:  rpc.TaskTypeWorkflow,
			WorkflowExecution: &rpc.WorkflowExecution{
				WorkflowID: newKey.WorkflowID,
				RunID:      newKey.RunID,
			},
			ScheduledEventID: newState.NextEventID - 1,
		}
		if _, err := s.matchingClient.AddTask(ctx, taskReq); err != nil {
			s.logger.Warn("failed to dispatch workflow task after reset", "error", err, "workflow_id", newKey.WorkflowID)
		}
	}

	s.logger.Info("execution reset completed",
		slog.String("workflow_id", key.WorkflowID),
		slog.String("old_run_id", key.RunID),
		slog.String("new_run_id", newRunID),
		slog.String("reason", reason),
		slog.Int64("reset_event_id", resetEventID),
	)

	return newRunID, nil
}

// ListWorkflowExecutionsRequest/Response are the Go-native list call surface
// used by the frontend's Interaction API.
type ListWorkflowExecutionsRequest struct {
	Namespace     string
	PageSize      int32
	NextPageToken []byte
	Query         string
}

type ListWorkflowExecutionsResponse struct {
	Executions    []*visibility.WorkflowExecutionInfo
	NextPageToken []byte
}

func (s *Service) ListWorkflowExecutions(ctx context.Context, req *ListWorkflowExecutionsRequest) (*ListWorkflowExecutionsResponse, error) {
	if s.visibilityStore == nil {
		return nil, errors.New("visibility store not initialized")
	}

	visReq := &visibility.ListRequest{
		NamespaceID:   req.Namespace,
		PageSize:      int(req.PageSize),
		NextPageToken: req.NextPageToken,
		Query:         req.Query,
	}

	resp, err := s.visibilityStore.ListOpenWorkflowExecutions(ctx, visReq)
	if err != nil {
		return nil, err
	}

	return &ListWorkflowExecutionsResponse{
		Executions:    resp.Executions,
		NextPageToken: resp.NextPageToken,
	}, nil
}

// GetHistoryPageRequest is the request for paginated history retrieval.
type GetHistoryPageRequest struct {
	Key       types.ExecutionKey
	PageSize  int32
	PageToken string // base64 encoded last event ID
}

// GetHistoryPageResponse is the response for paginated history retrieval.
type GetHistoryPageResponse struct {
	Events        []*types.HistoryEvent
	NextPageToken string
	TotalEvents   int64
}

// GetHistoryPage returns a paginated view of the execution history.
func (s *Service) GetHistoryPage(ctx context.Context, req *GetHistoryPageRequest) (*GetHistoryPageResponse, error) {
	if req.PageSize <= 0 {
		req.PageSize = 100
	}

	var startEventID int64 = 1
	if req.PageToken != "" {
		tokenBytes, err := base64.StdEncoding.DecodeString(req.PageToken)
		if err != nil {
			return nil, fmt.Errorf("invalid page token: %w", err)
		}
		lastID, err := strconv.ParseInt(string(tokenBytes), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid page token value: %w", err)
		}
		startEventID = lastID + 1
	}

	fetchSize := int64(req.PageSize) + 1
	events, err := s.eventStore.GetEvents(ctx, req.Key, startEventID, startEventID+fetchSize-1)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	totalEvents, err := s.eventStore.GetEventCount(ctx, req.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to get event count: %w", err)
	}

	resp := &GetHistoryPageResponse{
		TotalEvents: totalEvents,
	}

	if int32(len(events)) > req.PageSize {
		resp.Events = events[:req.PageSize]
		lastEvent := resp.Events[len(resp.Events)-1]
		resp.NextPageToken = base64.StdEncoding.EncodeToString(
			[]byte(strconv.FormatInt(lastEvent.EventID, 10)),
		)
	} else {
		resp.Events = events
	}

	return resp, nil
}

// startTimeoutChecker launches a background goroutine that checks for execution timeouts.
func (s *Service) startTimeoutChecker() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				s.checkExecutionTimeouts(ctx)
				cancel()
			}
		}
	}()
}

// checkExecutionTimeouts checks running executions for timeout violations.
// Uses batched processing with a cap to prevent unbounded DB load.
func (s *Service) checkExecutionTimeouts(ctx context.Context) {
	const maxExecutionsPerCheck = 100

	keys, err := s.stateStore.ListRunningExecutions(ctx)
	if err != nil {
		s.logger.Warn("failed to list running executions for timeout check", "error", err)
		return
	}

	if len(keys) > maxExecutionsPerCheck {
		s.logger.Warn("timeout check truncated; consider using timer-based timeouts",
			slog.Int("total_running", len(keys)),
			slog.Int("checked", maxExecutionsPerCheck),
		)
		keys = keys[:maxExecutionsPerCheck]
	}

	for _, key := range keys {
		if ctx.Err() != nil {
			return
		}

		state, err := s.stateStore.GetMutableState(ctx, key)
		if err != nil {
			s.logger.Warn("failed to get state for timeout check", "error", err, "workflow_id", key.WorkflowID)
			continue
		}

		if state.ExecutionInfo == nil || state.ExecutionInfo.ExecutionTimeout <= 0 {
			continue
		}

		if time.Since(state.ExecutionInfo.StartTime) > state.ExecutionInfo.ExecutionTimeout {
			s.logger.Info("execution timeout exceeded, terminating",
				slog.String("workflow_id", key.WorkflowID),
				slog.String("run_id", key.RunID),
			)

			timeoutEvent := &types.HistoryEvent{
				EventType: types.EventTypeExecutionTimedOut,
				Timestamp: time.Now(),
				Attributes: &types.ExecutionTimedOutAttributes{
					TimeoutType: "execution",
				},
			}

			if _, err := s.processEvents(ctx, key, []*types.HistoryEvent{timeoutEvent}); err != nil {
				s.logger.Warn("failed to time out execution", "error", err, "workflow_id", key.WorkflowID)
			}
		}
	}
}

// generateRunID generates a new unique run ID.
func generateRunID() string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return "run-" + string(b)
}
