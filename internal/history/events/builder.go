package events

import (
	"time"

	"github.com/linkflow/engine/internal/history/types"
)

// EventBuilder stamps a namespace/workflow/run's event metadata (version,
// task ID) onto freshly constructed history events, for callers that build
// events directly rather than going through the engine's MutableState.
type EventBuilder struct {
	namespaceID string
	workflowID  string
	runID       string
	version     int64
	taskID      int64
}

func NewEventBuilder(namespaceID, workflowID, runID string) *EventBuilder {
	return &EventBuilder{
		namespaceID: namespaceID,
		workflowID:  workflowID,
		runID:       runID,
		version:     1,
		taskID:      0,
	}
}

func (b *EventBuilder) WithVersion(version int64) *EventBuilder {
	b.version = version
	return b
}

func (b *EventBuilder) WithTaskID(taskID int64) *EventBuilder {
	b.taskID = taskID
	return b
}

func (b *EventBuilder) newEvent(eventID int64, eventType types.EventType, attrs any) *types.HistoryEvent {
	return &types.HistoryEvent{
		EventID:    eventID,
		EventType:  eventType,
		Timestamp:  time.Now(),
		Version:    b.version,
		TaskID:     b.taskID,
		Attributes: attrs,
	}
}

func (b *EventBuilder) BuildExecutionStarted(
	eventID int64,
	workflowType, taskQueue string,
	input []byte,
	executionTimeout, runTimeout, taskTimeout time.Duration,
	parentExecution *types.ExecutionKey,
	initiator string,
) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeExecutionStarted, &types.ExecutionStartedAttributes{
		WorkflowType:     workflowType,
		TaskQueue:        taskQueue,
		Input:            input,
		ExecutionTimeout: executionTimeout,
		RunTimeout:       runTimeout,
		TaskTimeout:      taskTimeout,
		ParentExecution:  parentExecution,
		Initiator:        initiator,
	})
}

func (b *EventBuilder) BuildExecutionCompleted(eventID int64, result []byte) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeExecutionCompleted, &types.ExecutionCompletedAttributes{
		Result: result,
	})
}

func (b *EventBuilder) BuildExecutionFailed(eventID int64, reason string, details []byte) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeExecutionFailed, &types.ExecutionFailedAttributes{
		Reason:  reason,
		Details: details,
	})
}

func (b *EventBuilder) BuildExecutionTerminated(eventID int64, reason, identity string) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeExecutionTerminated, &types.ExecutionTerminatedAttributes{
		Reason:   reason,
		Identity: identity,
	})
}

func (b *EventBuilder) BuildExecutionCancelRequested(eventID int64, reason, identity string) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeExecutionCancelRequested, &types.ExecutionCancelRequestedAttributes{
		Reason:   reason,
		Identity: identity,
	})
}

func (b *EventBuilder) BuildExecutionCanceled(eventID int64, details []byte) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeExecutionCanceled, &types.ExecutionCanceledAttributes{
		Details: details,
	})
}

func (b *EventBuilder) BuildExecutionTimedOut(eventID int64, timeoutType string) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeExecutionTimedOut, &types.ExecutionTimedOutAttributes{
		TimeoutType: timeoutType,
	})
}

func (b *EventBuilder) BuildExecutionContinuedAsNew(eventID int64, attrs *types.ExecutionContinuedAsNewAttributes) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeExecutionContinuedAsNew, attrs)
}

func (b *EventBuilder) BuildTimerStarted(eventID int64, timerID string, startToFire time.Duration) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeTimerStarted, &types.TimerStartedAttributes{
		TimerID:     timerID,
		StartToFire: startToFire,
	})
}

func (b *EventBuilder) BuildTimerFired(eventID int64, timerID string, startedEventID int64) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeTimerFired, &types.TimerFiredAttributes{
		TimerID:        timerID,
		StartedEventID: startedEventID,
	})
}

func (b *EventBuilder) BuildTimerCanceled(eventID int64, timerID string, startedEventID int64, identity string) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeTimerCanceled, &types.TimerCanceledAttributes{
		TimerID:        timerID,
		StartedEventID: startedEventID,
		Identity:       identity,
	})
}

func (b *EventBuilder) BuildActivityScheduled(
	eventID int64,
	activityID, activityType, taskQueue string,
	input []byte,
	scheduleToClose, scheduleToStart, startToClose, heartbeatTimeout time.Duration,
	retryPolicy *types.RetryPolicy,
) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeActivityScheduled, &types.ActivityScheduledAttributes{
		ActivityID:       activityID,
		ActivityType:     activityType,
		TaskQueue:        taskQueue,
		Input:            input,
		ScheduleToClose:  scheduleToClose,
		ScheduleToStart:  scheduleToStart,
		StartToClose:     startToClose,
		HeartbeatTimeout: heartbeatTimeout,
		RetryPolicy:      retryPolicy,
	})
}

func (b *EventBuilder) BuildActivityStarted(eventID int64, scheduledEventID int64, identity string, attempt int32) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeActivityStarted, &types.ActivityStartedAttributes{
		ScheduledEventID: scheduledEventID,
		Identity:         identity,
		Attempt:          attempt,
	})
}

func (b *EventBuilder) BuildActivityCompleted(eventID int64, scheduledEventID, startedEventID int64, result []byte) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeActivityCompleted, &types.ActivityCompletedAttributes{
		ScheduledEventID: scheduledEventID,
		StartedEventID:   startedEventID,
		Result:           result,
	})
}

func (b *EventBuilder) BuildActivityFailed(eventID int64, scheduledEventID, startedEventID int64, reason string, details []byte, retryState int32) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeActivityFailed, &types.ActivityFailedAttributes{
		ScheduledEventID: scheduledEventID,
		StartedEventID:   startedEventID,
		Reason:           reason,
		Details:          details,
		RetryState:       retryState,
	})
}

func (b *EventBuilder) BuildActivityCancelRequested(eventID int64, scheduledEventID int64, identity string) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeActivityCancelRequested, &types.ActivityCancelRequestedAttributes{
		ScheduledEventID: scheduledEventID,
		Identity:         identity,
	})
}

func (b *EventBuilder) BuildActivityCanceled(eventID int64, scheduledEventID, startedEventID int64, details []byte) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeActivityCanceled, &types.ActivityCanceledAttributes{
		ScheduledEventID: scheduledEventID,
		StartedEventID:   startedEventID,
		Details:          details,
	})
}

func (b *EventBuilder) BuildSignalReceived(eventID int64, signalName string, input []byte, identity, requestID string) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeSignalReceived, &types.SignalReceivedAttributes{
		SignalName: signalName,
		Input:      input,
		Identity:   identity,
		RequestID:  requestID,
	})
}

func (b *EventBuilder) BuildMarkerRecorded(eventID int64, markerName string, details map[string][]byte) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeMarkerRecorded, &types.MarkerRecordedAttributes{
		MarkerName: markerName,
		Details:    details,
	})
}

func (b *EventBuilder) BuildWorkflowTaskScheduled(eventID int64, taskQueue string, startToClose time.Duration, attempt int32) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeWorkflowTaskScheduled, &types.WorkflowTaskScheduledAttributes{
		TaskQueue:    taskQueue,
		StartToClose: startToClose,
		Attempt:      attempt,
	})
}

func (b *EventBuilder) BuildWorkflowTaskStarted(eventID, scheduledEventID int64, identity, requestID string) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeWorkflowTaskStarted, &types.WorkflowTaskStartedAttributes{
		ScheduledEventID: scheduledEventID,
		Identity:         identity,
		RequestID:        requestID,
	})
}

func (b *EventBuilder) BuildWorkflowTaskCompleted(eventID, scheduledEventID, startedEventID int64, identity string) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeWorkflowTaskCompleted, &types.WorkflowTaskCompletedAttributes{
		ScheduledEventID: scheduledEventID,
		StartedEventID:   startedEventID,
		Identity:         identity,
	})
}

func (b *EventBuilder) BuildWorkflowTaskFailed(eventID, scheduledEventID, startedEventID int64, cause, reason string, details []byte, identity string) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeWorkflowTaskFailed, &types.WorkflowTaskFailedAttributes{
		ScheduledEventID: scheduledEventID,
		StartedEventID:   startedEventID,
		Cause:            cause,
		FailureReason:    reason,
		FailureDetails:   details,
		Identity:         identity,
	})
}

func (b *EventBuilder) BuildChildWorkflowInitiated(eventID int64, attrs *types.ChildWorkflowInitiatedAttributes) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeChildWorkflowInitiated, attrs)
}

func (b *EventBuilder) BuildUpdateAccepted(eventID int64, updateID, name string, input []byte, identity string) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeUpdateAccepted, &types.UpdateAcceptedAttributes{
		UpdateID: updateID,
		Name:     name,
		Input:    input,
		Identity: identity,
	})
}

func (b *EventBuilder) BuildUpdateCompleted(eventID int64, updateID string, result []byte, rejected bool, reason string) *types.HistoryEvent {
	return b.newEvent(eventID, types.EventTypeUpdateCompleted, &types.UpdateCompletedAttributes{
		UpdateID: updateID,
		Result:   result,
		Rejected: rejected,
		Reason:   reason,
	})
}
