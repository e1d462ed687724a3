package engine

import (
	"errors"
	"log/slog"
	"time"

	"github.com/linkflow/engine/internal/history/types"
)

var (
	ErrInvalidEvent       = errors.New("invalid event")
	ErrEventOutOfOrder    = errors.New("event out of order")
	ErrDuplicateTimer     = errors.New("duplicate timer")
	ErrTimerNotFound      = errors.New("timer not found")
	ErrActivityNotFound   = errors.New("activity not found")
	ErrWorkflowNotRunning = errors.New("workflow not running")
	ErrInvalidEventType   = errors.New("invalid event type")
	ErrNoWorkflowTask     = errors.New("no outstanding workflow task")
	ErrUpdateNotFound     = errors.New("update not found")
)

// Engine applies and validates history events against a run's mutable
// state. It holds no per-run state of its own: every call is handed the
// MutableState it should read and mutate, so a single Engine instance is
// shared (and safe for concurrent use) across every run a shard owns.
type Engine struct {
	logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger: logger,
	}
}

// ProcessEvent validates event against state and, if it passes, folds it in.
func (e *Engine) ProcessEvent(state *MutableState, event *types.HistoryEvent) error {
	if err := e.ValidateEvent(state, event); err != nil {
		return err
	}
	return state.ApplyEvent(event)
}

func (e *Engine) ValidateEvent(state *MutableState, event *types.HistoryEvent) error {
	if event == nil {
		return ErrInvalidEvent
	}

	if event.EventID != state.NextEventID {
		return ErrEventOutOfOrder
	}

	switch event.EventType {
	case types.EventTypeExecutionStarted:
		return e.validateExecutionStarted(event)
	case types.EventTypeExecutionCompleted, types.EventTypeExecutionFailed,
		types.EventTypeExecutionTerminated, types.EventTypeExecutionCanceled,
		types.EventTypeExecutionTimedOut, types.EventTypeExecutionContinuedAsNew:
		return e.validateExecutionClose(state)
	case types.EventTypeTimerStarted:
		return e.validateTimerStarted(state, event)
	case types.EventTypeTimerFired, types.EventTypeTimerCanceled:
		return e.validateTimerOperation(state, event)
	case types.EventTypeActivityScheduled:
		return e.validateActivityScheduled(state)
	case types.EventTypeActivityStarted:
		return e.validateActivityStarted(state, event)
	case types.EventTypeActivityCompleted, types.EventTypeActivityFailed,
		types.EventTypeActivityTimedOut, types.EventTypeActivityCanceled:
		return e.validateActivityClose(state, event)
	case types.EventTypeWorkflowTaskCompleted, types.EventTypeWorkflowTaskFailed,
		types.EventTypeWorkflowTaskTimedOut:
		return e.validateWorkflowTaskClose(state)
	}

	return nil
}

func (e *Engine) validateExecutionStarted(event *types.HistoryEvent) error {
	if event.EventID != 1 {
		return ErrEventOutOfOrder
	}
	return nil
}

func (e *Engine) validateExecutionClose(state *MutableState) error {
	if !state.IsWorkflowExecutionRunning() {
		return ErrWorkflowNotRunning
	}
	return nil
}

func (e *Engine) validateTimerStarted(state *MutableState, event *types.HistoryEvent) error {
	if !state.IsWorkflowExecutionRunning() {
		return ErrWorkflowNotRunning
	}
	attrs, ok := event.Attributes.(*types.TimerStartedAttributes)
	if !ok {
		return ErrInvalidEventType
	}
	if _, exists := state.PendingTimers[attrs.TimerID]; exists {
		return ErrDuplicateTimer
	}
	return nil
}

func (e *Engine) validateTimerOperation(state *MutableState, event *types.HistoryEvent) error {
	if !state.IsWorkflowExecutionRunning() {
		return ErrWorkflowNotRunning
	}
	var timerID string
	switch attrs := event.Attributes.(type) {
	case *types.TimerFiredAttributes:
		timerID = attrs.TimerID
	case *types.TimerCanceledAttributes:
		timerID = attrs.TimerID
	default:
		return ErrInvalidEventType
	}
	if _, exists := state.PendingTimers[timerID]; !exists {
		return ErrTimerNotFound
	}
	return nil
}

func (e *Engine) validateActivityScheduled(state *MutableState) error {
	if !state.IsWorkflowExecutionRunning() {
		return ErrWorkflowNotRunning
	}
	return nil
}

func (e *Engine) validateActivityStarted(state *MutableState, event *types.HistoryEvent) error {
	if !state.IsWorkflowExecutionRunning() {
		return ErrWorkflowNotRunning
	}
	attrs, ok := event.Attributes.(*types.ActivityStartedAttributes)
	if !ok {
		return ErrInvalidEventType
	}
	if _, exists := state.PendingActivities[attrs.ScheduledEventID]; !exists {
		return ErrActivityNotFound
	}
	return nil
}

func (e *Engine) validateActivityClose(state *MutableState, event *types.HistoryEvent) error {
	if !state.IsWorkflowExecutionRunning() {
		return ErrWorkflowNotRunning
	}
	var scheduledEventID int64
	switch attrs := event.Attributes.(type) {
	case *types.ActivityCompletedAttributes:
		scheduledEventID = attrs.ScheduledEventID
	case *types.ActivityFailedAttributes:
		scheduledEventID = attrs.ScheduledEventID
	case *types.ActivityCanceledAttributes:
		scheduledEventID = attrs.ScheduledEventID
	default:
		return ErrInvalidEventType
	}
	if _, exists := state.PendingActivities[scheduledEventID]; !exists {
		return ErrActivityNotFound
	}
	return nil
}

func (e *Engine) validateWorkflowTaskClose(state *MutableState) error {
	if state.PendingWorkflowTask == nil {
		return ErrNoWorkflowTask
	}
	return nil
}

// --- Event constructors. Each builds the event and immediately folds it
// into state via ApplyEvent, so the returned event and state.NextEventID
// always agree with each other. ---

func (e *Engine) append(state *MutableState, eventType types.EventType, attrs any) (*types.HistoryEvent, error) {
	event := &types.HistoryEvent{
		EventID:    state.IncrementNextEventID(),
		EventType:  eventType,
		Timestamp:  time.Now(),
		Attributes: attrs,
	}
	if err := state.ApplyEvent(event); err != nil {
		return nil, err
	}
	return event, nil
}

func (e *Engine) StartTimer(state *MutableState, timerID string, duration time.Duration) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	if _, exists := state.PendingTimers[timerID]; exists {
		return nil, ErrDuplicateTimer
	}
	return e.append(state, types.EventTypeTimerStarted, &types.TimerStartedAttributes{
		TimerID:     timerID,
		StartToFire: duration,
	})
}

func (e *Engine) FireTimer(state *MutableState, timerID string) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	timerInfo, exists := state.PendingTimers[timerID]
	if !exists {
		return nil, ErrTimerNotFound
	}
	return e.append(state, types.EventTypeTimerFired, &types.TimerFiredAttributes{
		TimerID:        timerID,
		StartedEventID: timerInfo.StartedEventID,
	})
}

func (e *Engine) CancelTimer(state *MutableState, timerID, identity string) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	timerInfo, exists := state.PendingTimers[timerID]
	if !exists {
		return nil, ErrTimerNotFound
	}
	return e.append(state, types.EventTypeTimerCanceled, &types.TimerCanceledAttributes{
		TimerID:        timerID,
		StartedEventID: timerInfo.StartedEventID,
		Identity:       identity,
	})
}

func (e *Engine) ScheduleActivity(state *MutableState, attrs *types.ActivityScheduledAttributes) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	return e.append(state, types.EventTypeActivityScheduled, attrs)
}

func (e *Engine) StartActivity(state *MutableState, scheduledEventID int64, identity string, attempt int32) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	if _, exists := state.PendingActivities[scheduledEventID]; !exists {
		return nil, ErrActivityNotFound
	}
	return e.append(state, types.EventTypeActivityStarted, &types.ActivityStartedAttributes{
		ScheduledEventID: scheduledEventID,
		Identity:         identity,
		Attempt:          attempt,
	})
}

func (e *Engine) CompleteActivity(state *MutableState, scheduledEventID, startedEventID int64, result []byte) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	if _, exists := state.PendingActivities[scheduledEventID]; !exists {
		return nil, ErrActivityNotFound
	}
	return e.append(state, types.EventTypeActivityCompleted, &types.ActivityCompletedAttributes{
		ScheduledEventID: scheduledEventID,
		StartedEventID:   startedEventID,
		Result:           result,
	})
}

// FailActivity records a terminal activity failure. Callers are responsible
// for consulting the activity's retry policy first (see ShouldRetryActivity)
// and only calling FailActivity once the policy is exhausted or the error is
// marked non-retryable.
func (e *Engine) FailActivity(state *MutableState, scheduledEventID, startedEventID int64, reason string, details []byte) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	if _, exists := state.PendingActivities[scheduledEventID]; !exists {
		return nil, ErrActivityNotFound
	}
	return e.append(state, types.EventTypeActivityFailed, &types.ActivityFailedAttributes{
		ScheduledEventID: scheduledEventID,
		StartedEventID:   startedEventID,
		Reason:           reason,
		Details:          details,
	})
}

func (e *Engine) TimeoutActivity(state *MutableState, scheduledEventID, startedEventID int64, timeoutType string) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	if _, exists := state.PendingActivities[scheduledEventID]; !exists {
		return nil, ErrActivityNotFound
	}
	return e.append(state, types.EventTypeActivityTimedOut, &types.ActivityFailedAttributes{
		ScheduledEventID: scheduledEventID,
		StartedEventID:   startedEventID,
		Reason:           timeoutType,
		RetryState:       1,
	})
}

func (e *Engine) RequestActivityCancel(state *MutableState, scheduledEventID int64, identity string) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	ai, exists := state.PendingActivities[scheduledEventID]
	if !exists {
		return nil, ErrActivityNotFound
	}
	ai.CancelRequested = true
	return e.append(state, types.EventTypeActivityCancelRequested, &types.ActivityCancelRequestedAttributes{
		ScheduledEventID: scheduledEventID,
		Identity:         identity,
	})
}

func (e *Engine) CancelActivity(state *MutableState, scheduledEventID, startedEventID int64, details []byte) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	if _, exists := state.PendingActivities[scheduledEventID]; !exists {
		return nil, ErrActivityNotFound
	}
	return e.append(state, types.EventTypeActivityCanceled, &types.ActivityCanceledAttributes{
		ScheduledEventID: scheduledEventID,
		StartedEventID:   startedEventID,
		Details:          details,
	})
}

// ReceiveSignal buffers a signal into history; it is always accepted
// regardless of whether a workflow task is outstanding, and will be
// delivered to the worker on the next workflow task it is handed.
func (e *Engine) ReceiveSignal(state *MutableState, signalName string, input []byte, identity, requestID string) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	return e.append(state, types.EventTypeSignalReceived, &types.SignalReceivedAttributes{
		SignalName: signalName,
		Input:      input,
		Identity:   identity,
		RequestID:  requestID,
	})
}

func (e *Engine) ScheduleWorkflowTask(state *MutableState, taskQueue string, startToClose time.Duration, attempt int32) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	return e.append(state, types.EventTypeWorkflowTaskScheduled, &types.WorkflowTaskScheduledAttributes{
		TaskQueue:    taskQueue,
		StartToClose: startToClose,
		Attempt:      attempt,
	})
}

func (e *Engine) StartWorkflowTask(state *MutableState, scheduledEventID int64, identity, requestID string) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	return e.append(state, types.EventTypeWorkflowTaskStarted, &types.WorkflowTaskStartedAttributes{
		ScheduledEventID: scheduledEventID,
		Identity:         identity,
		RequestID:        requestID,
	})
}

func (e *Engine) CompleteWorkflowTask(state *MutableState, scheduledEventID, startedEventID int64, identity string) (*types.HistoryEvent, error) {
	if state.PendingWorkflowTask == nil {
		return nil, ErrNoWorkflowTask
	}
	return e.append(state, types.EventTypeWorkflowTaskCompleted, &types.WorkflowTaskCompletedAttributes{
		ScheduledEventID: scheduledEventID,
		StartedEventID:   startedEventID,
		Identity:         identity,
	})
}

func (e *Engine) FailWorkflowTask(state *MutableState, scheduledEventID, startedEventID int64, cause, reason string, details []byte, identity string) (*types.HistoryEvent, error) {
	if state.PendingWorkflowTask == nil {
		return nil, ErrNoWorkflowTask
	}
	return e.append(state, types.EventTypeWorkflowTaskFailed, &types.WorkflowTaskFailedAttributes{
		ScheduledEventID: scheduledEventID,
		StartedEventID:   startedEventID,
		Cause:            cause,
		FailureReason:    reason,
		FailureDetails:   details,
		Identity:         identity,
	})
}

func (e *Engine) TimeoutWorkflowTask(state *MutableState, scheduledEventID, startedEventID int64) (*types.HistoryEvent, error) {
	if state.PendingWorkflowTask == nil {
		return nil, ErrNoWorkflowTask
	}
	return e.append(state, types.EventTypeWorkflowTaskTimedOut, &types.WorkflowTaskTimedOutAttributes{
		ScheduledEventID: scheduledEventID,
		StartedEventID:   startedEventID,
		TimeoutType:      "start_to_close",
	})
}

func (e *Engine) CompleteWorkflow(state *MutableState, result []byte) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	return e.append(state, types.EventTypeExecutionCompleted, &types.ExecutionCompletedAttributes{Result: result})
}

func (e *Engine) FailWorkflow(state *MutableState, reason string, details []byte) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	return e.append(state, types.EventTypeExecutionFailed, &types.ExecutionFailedAttributes{Reason: reason, Details: details})
}

func (e *Engine) TerminateWorkflow(state *MutableState, reason, identity string) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	return e.append(state, types.EventTypeExecutionTerminated, &types.ExecutionTerminatedAttributes{Reason: reason, Identity: identity})
}

func (e *Engine) RequestCancelWorkflow(state *MutableState, reason, identity string) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	return e.append(state, types.EventTypeExecutionCancelRequested, &types.ExecutionCancelRequestedAttributes{Reason: reason, Identity: identity})
}

func (e *Engine) CancelWorkflow(state *MutableState, details []byte) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	return e.append(state, types.EventTypeExecutionCanceled, &types.ExecutionCanceledAttributes{Details: details})
}

func (e *Engine) TimeoutWorkflow(state *MutableState, timeoutType string) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	return e.append(state, types.EventTypeExecutionTimedOut, &types.ExecutionTimedOutAttributes{TimeoutType: timeoutType})
}

func (e *Engine) ContinueAsNew(state *MutableState, attrs *types.ExecutionContinuedAsNewAttributes) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	return e.append(state, types.EventTypeExecutionContinuedAsNew, attrs)
}

func (e *Engine) InitiateChildWorkflow(state *MutableState, attrs *types.ChildWorkflowInitiatedAttributes) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	return e.append(state, types.EventTypeChildWorkflowInitiated, attrs)
}

func (e *Engine) StartChildWorkflow(state *MutableState, initiatedEventID int64, workflowID, runID string) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	return e.append(state, types.EventTypeChildWorkflowStarted, &types.ChildWorkflowStartedAttributes{
		InitiatedEventID: initiatedEventID,
		WorkflowID:       workflowID,
		RunID:            runID,
	})
}

func (e *Engine) CompleteChildWorkflow(state *MutableState, initiatedEventID, startedEventID int64, result []byte) (*types.HistoryEvent, error) {
	return e.append(state, types.EventTypeChildWorkflowCompleted, &types.ChildWorkflowCompletedAttributes{
		InitiatedEventID: initiatedEventID,
		StartedEventID:   startedEventID,
		Result:           result,
	})
}

func (e *Engine) FailChildWorkflow(state *MutableState, initiatedEventID, startedEventID int64, reason string, details []byte) (*types.HistoryEvent, error) {
	return e.append(state, types.EventTypeChildWorkflowFailed, &types.ChildWorkflowFailedAttributes{
		InitiatedEventID: initiatedEventID,
		StartedEventID:   startedEventID,
		Reason:           reason,
		Details:          details,
	})
}

func (e *Engine) SignalExternalInitiated(state *MutableState, workflowID, runID, signalName string, input []byte) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	return e.append(state, types.EventTypeSignalExternalInitiated, &types.SignalExternalInitiatedAttributes{
		WorkflowID: workflowID,
		RunID:      runID,
		SignalName: signalName,
		Input:      input,
	})
}

func (e *Engine) AcceptUpdate(state *MutableState, updateID, name string, input []byte, identity string) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	return e.append(state, types.EventTypeUpdateAccepted, &types.UpdateAcceptedAttributes{
		UpdateID: updateID,
		Name:     name,
		Input:    input,
		Identity: identity,
	})
}

func (e *Engine) RejectUpdate(state *MutableState, updateID, reason string) (*types.HistoryEvent, error) {
	return e.append(state, types.EventTypeUpdateRejected, &types.UpdateRejectedAttributes{
		UpdateID: updateID,
		Reason:   reason,
	})
}

func (e *Engine) CompleteUpdate(state *MutableState, updateID string, result []byte, rejected bool, reason string) (*types.HistoryEvent, error) {
	if _, exists := state.PendingUpdates[updateID]; !exists {
		return nil, ErrUpdateNotFound
	}
	return e.append(state, types.EventTypeUpdateCompleted, &types.UpdateCompletedAttributes{
		UpdateID: updateID,
		Result:   result,
		Rejected: rejected,
		Reason:   reason,
	})
}

func (e *Engine) UpsertSearchAttributes(state *MutableState, attrs map[string][]byte) (*types.HistoryEvent, error) {
	if !state.IsWorkflowExecutionRunning() {
		return nil, ErrWorkflowNotRunning
	}
	return e.append(state, types.EventTypeUpsertSearchAttributes, &types.UpsertSearchAttributesAttributes{SearchAttributes: attrs})
}
