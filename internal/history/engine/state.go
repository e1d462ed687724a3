package engine

import (
	"time"

	"github.com/linkflow/engine/internal/history/types"
)

// MutableState is the derived, rebuildable-from-history cache a run carries
// while it is active. Every field here must be fully reconstructible by
// replaying ApplyEvent over the run's event log from EventID 1.
type MutableState struct {
	ExecutionInfo       *types.ExecutionInfo
	NextEventID         int64
	PendingActivities   map[int64]*types.ActivityInfo
	PendingTimers       map[string]*types.TimerInfo
	PendingSignals      []*types.SignalInfo
	PendingUpdates      map[string]*types.UpdateInfo
	PendingChildren     map[int64]*types.ChildInfo
	PendingWorkflowTask *types.WorkflowTaskInfo
	BufferedEvents      []*types.HistoryEvent

	// StickyWorkerIdentity/StickyExpiry record the worker a workflow task
	// was dispatched to on a sticky task queue, and until when that
	// affinity is honored before falling back to the normal queue.
	StickyWorkerIdentity string
	StickyExpiry         time.Time

	// LastCompletedWorkflowTaskEventID anchors non-determinism checks: a
	// replay must reach the same point before diverging into new commands.
	LastCompletedWorkflowTaskEventID int64

	DBVersion int64
}

func NewMutableState(info *types.ExecutionInfo) *MutableState {
	return &MutableState{
		ExecutionInfo:     info,
		NextEventID:       1,
		PendingActivities: make(map[int64]*types.ActivityInfo),
		PendingTimers:     make(map[string]*types.TimerInfo),
		PendingSignals:    make([]*types.SignalInfo, 0),
		PendingUpdates:    make(map[string]*types.UpdateInfo),
		PendingChildren:   make(map[int64]*types.ChildInfo),
		BufferedEvents:    make([]*types.HistoryEvent, 0),
		DBVersion:         0,
	}
}

func (ms *MutableState) Clone() *MutableState {
	clone := &MutableState{
		ExecutionInfo:                    ms.cloneExecutionInfo(),
		NextEventID:                      ms.NextEventID,
		PendingActivities:                make(map[int64]*types.ActivityInfo, len(ms.PendingActivities)),
		PendingTimers:                    make(map[string]*types.TimerInfo, len(ms.PendingTimers)),
		PendingSignals:                   make([]*types.SignalInfo, len(ms.PendingSignals)),
		PendingUpdates:                   make(map[string]*types.UpdateInfo, len(ms.PendingUpdates)),
		PendingChildren:                  make(map[int64]*types.ChildInfo, len(ms.PendingChildren)),
		BufferedEvents:                   make([]*types.HistoryEvent, len(ms.BufferedEvents)),
		StickyWorkerIdentity:             ms.StickyWorkerIdentity,
		StickyExpiry:                     ms.StickyExpiry,
		LastCompletedWorkflowTaskEventID: ms.LastCompletedWorkflowTaskEventID,
		DBVersion:                        ms.DBVersion,
	}

	for k, v := range ms.PendingActivities {
		clone.PendingActivities[k] = ms.cloneActivityInfo(v)
	}
	for k, v := range ms.PendingTimers {
		clone.PendingTimers[k] = ms.cloneTimerInfo(v)
	}
	for k, v := range ms.PendingUpdates {
		c := *v
		clone.PendingUpdates[k] = &c
	}
	for k, v := range ms.PendingChildren {
		c := *v
		clone.PendingChildren[k] = &c
	}
	copy(clone.PendingSignals, ms.PendingSignals)
	copy(clone.BufferedEvents, ms.BufferedEvents)

	if ms.PendingWorkflowTask != nil {
		wt := *ms.PendingWorkflowTask
		clone.PendingWorkflowTask = &wt
	}

	return clone
}

func (ms *MutableState) cloneExecutionInfo() *types.ExecutionInfo {
	if ms.ExecutionInfo == nil {
		return nil
	}
	info := *ms.ExecutionInfo
	if ms.ExecutionInfo.Input != nil {
		info.Input = make([]byte, len(ms.ExecutionInfo.Input))
		copy(info.Input, ms.ExecutionInfo.Input)
	}
	return &info
}

func (ms *MutableState) cloneActivityInfo(ai *types.ActivityInfo) *types.ActivityInfo {
	if ai == nil {
		return nil
	}
	clone := *ai
	if ai.Input != nil {
		clone.Input = make([]byte, len(ai.Input))
		copy(clone.Input, ai.Input)
	}
	if ai.HeartbeatDetails != nil {
		clone.HeartbeatDetails = make([]byte, len(ai.HeartbeatDetails))
		copy(clone.HeartbeatDetails, ai.HeartbeatDetails)
	}
	return &clone
}

func (ms *MutableState) cloneTimerInfo(ti *types.TimerInfo) *types.TimerInfo {
	if ti == nil {
		return nil
	}
	clone := *ti
	return &clone
}

// ApplyEvent folds a single history event into mutable state. It is the
// only place state is allowed to change: the store rebuilds a run's state by
// replaying its history through this function from event 1 onward.
func (ms *MutableState) ApplyEvent(event *types.HistoryEvent) error {
	switch event.EventType {
	case types.EventTypeExecutionStarted:
		return ms.applyExecutionStarted(event)
	case types.EventTypeExecutionCompleted:
		return ms.applyExecutionCompleted(event)
	case types.EventTypeExecutionFailed:
		return ms.applyExecutionFailed(event)
	case types.EventTypeExecutionTerminated:
		return ms.applyExecutionTerminated(event)
	case types.EventTypeExecutionCancelRequested:
		return ms.applyExecutionCancelRequested(event)
	case types.EventTypeExecutionCanceled:
		return ms.applyExecutionCanceled(event)
	case types.EventTypeExecutionTimedOut:
		return ms.applyExecutionTimedOut(event)
	case types.EventTypeExecutionContinuedAsNew:
		return ms.applyExecutionContinuedAsNew(event)
	case types.EventTypeTimerStarted:
		return ms.applyTimerStarted(event)
	case types.EventTypeTimerFired:
		return ms.applyTimerFired(event)
	case types.EventTypeTimerCanceled:
		return ms.applyTimerCanceled(event)
	case types.EventTypeActivityScheduled:
		return ms.applyActivityScheduled(event)
	case types.EventTypeActivityStarted:
		return ms.applyActivityStarted(event)
	case types.EventTypeActivityCompleted:
		return ms.applyActivityCompleted(event)
	case types.EventTypeActivityFailed:
		return ms.applyActivityFailed(event)
	case types.EventTypeActivityTimedOut:
		return ms.applyActivityTimedOut(event)
	case types.EventTypeActivityCancelRequested:
		return ms.applyActivityCancelRequested(event)
	case types.EventTypeActivityCanceled:
		return ms.applyActivityCanceled(event)
	case types.EventTypeSignalReceived:
		return ms.applySignalReceived(event)
	case types.EventTypeWorkflowTaskScheduled:
		return ms.applyWorkflowTaskScheduled(event)
	case types.EventTypeWorkflowTaskStarted:
		return ms.applyWorkflowTaskStarted(event)
	case types.EventTypeWorkflowTaskCompleted:
		return ms.applyWorkflowTaskCompleted(event)
	case types.EventTypeWorkflowTaskFailed:
		return ms.applyWorkflowTaskFailed(event)
	case types.EventTypeWorkflowTaskTimedOut:
		return ms.applyWorkflowTaskTimedOut(event)
	case types.EventTypeChildWorkflowInitiated:
		return ms.applyChildWorkflowInitiated(event)
	case types.EventTypeChildWorkflowStarted:
		return ms.applyChildWorkflowStarted(event)
	case types.EventTypeChildWorkflowCompleted:
		return ms.applyChildWorkflowTerminal(event, attrsEventID(event))
	case types.EventTypeChildWorkflowFailed:
		return ms.applyChildWorkflowTerminal(event, attrsEventID(event))
	case types.EventTypeChildWorkflowCanceled:
		return ms.applyChildWorkflowTerminal(event, attrsEventID(event))
	case types.EventTypeChildWorkflowTerminated:
		return ms.applyChildWorkflowTerminal(event, attrsEventID(event))
	case types.EventTypeChildWorkflowTimedOut:
		return ms.applyChildWorkflowTerminal(event, attrsEventID(event))
	case types.EventTypeUpdateAccepted:
		return ms.applyUpdateAccepted(event)
	case types.EventTypeUpdateRejected:
		return ms.applyUpdateRejected(event)
	case types.EventTypeUpdateCompleted:
		return ms.applyUpdateCompleted(event)
	case types.EventTypeUpsertSearchAttributes:
		return ms.applyUpsertSearchAttributes(event)
	}

	ms.NextEventID = event.EventID + 1
	return nil
}

// attrsEventID extracts the InitiatedEventID that every child-workflow
// terminal attribute type carries, so one handler can retire the pending
// child regardless of which of the five outcomes fired.
func attrsEventID(event *types.HistoryEvent) int64 {
	switch a := event.Attributes.(type) {
	case *types.ChildWorkflowCompletedAttributes:
		return a.InitiatedEventID
	case *types.ChildWorkflowFailedAttributes:
		return a.InitiatedEventID
	case *types.ChildWorkflowCanceledAttributes:
		return a.InitiatedEventID
	case *types.ChildWorkflowTerminatedAttributes:
		return a.InitiatedEventID
	case *types.ChildWorkflowTimedOutAttributes:
		return a.InitiatedEventID
	}
	return 0
}

func (ms *MutableState) applyExecutionStarted(event *types.HistoryEvent) error {
	attrs, ok := event.Attributes.(*types.ExecutionStartedAttributes)
	if !ok {
		return nil
	}
	ms.ExecutionInfo.WorkflowTypeName = attrs.WorkflowType
	ms.ExecutionInfo.TaskQueue = attrs.TaskQueue
	ms.ExecutionInfo.Input = attrs.Input
	ms.ExecutionInfo.ExecutionTimeout = attrs.ExecutionTimeout
	ms.ExecutionInfo.RunTimeout = attrs.RunTimeout
	ms.ExecutionInfo.TaskTimeout = attrs.TaskTimeout
	ms.ExecutionInfo.ParentExecution = attrs.ParentExecution
	ms.ExecutionInfo.Status = types.ExecutionStatusRunning
	ms.ExecutionInfo.StartTime = event.Timestamp
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyExecutionCompleted(event *types.HistoryEvent) error {
	ms.ExecutionInfo.Status = types.ExecutionStatusCompleted
	ms.ExecutionInfo.CloseTime = event.Timestamp
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyExecutionFailed(event *types.HistoryEvent) error {
	ms.ExecutionInfo.Status = types.ExecutionStatusFailed
	ms.ExecutionInfo.CloseTime = event.Timestamp
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyExecutionTerminated(event *types.HistoryEvent) error {
	ms.ExecutionInfo.Status = types.ExecutionStatusTerminated
	ms.ExecutionInfo.CloseTime = event.Timestamp
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyExecutionCancelRequested(event *types.HistoryEvent) error {
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyExecutionCanceled(event *types.HistoryEvent) error {
	ms.ExecutionInfo.Status = types.ExecutionStatusCanceled
	ms.ExecutionInfo.CloseTime = event.Timestamp
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyExecutionTimedOut(event *types.HistoryEvent) error {
	ms.ExecutionInfo.Status = types.ExecutionStatusTimedOut
	ms.ExecutionInfo.CloseTime = event.Timestamp
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyExecutionContinuedAsNew(event *types.HistoryEvent) error {
	ms.ExecutionInfo.Status = types.ExecutionStatusContinuedAsNew
	ms.ExecutionInfo.CloseTime = event.Timestamp
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyTimerStarted(event *types.HistoryEvent) error {
	attrs, ok := event.Attributes.(*types.TimerStartedAttributes)
	if !ok {
		return nil
	}
	ms.PendingTimers[attrs.TimerID] = &types.TimerInfo{
		TimerID:        attrs.TimerID,
		StartedEventID: event.EventID,
		FireTime:       event.Timestamp.Add(attrs.StartToFire),
		ExpiryTime:     event.Timestamp.Add(attrs.StartToFire),
	}
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyTimerFired(event *types.HistoryEvent) error {
	attrs, ok := event.Attributes.(*types.TimerFiredAttributes)
	if !ok {
		return nil
	}
	delete(ms.PendingTimers, attrs.TimerID)
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyTimerCanceled(event *types.HistoryEvent) error {
	attrs, ok := event.Attributes.(*types.TimerCanceledAttributes)
	if !ok {
		return nil
	}
	delete(ms.PendingTimers, attrs.TimerID)
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyActivityScheduled(event *types.HistoryEvent) error {
	attrs, ok := event.Attributes.(*types.ActivityScheduledAttributes)
	if !ok {
		return nil
	}
	var maxAttempts int32
	if attrs.RetryPolicy != nil {
		maxAttempts = attrs.RetryPolicy.MaxAttempts
	}
	ms.PendingActivities[event.EventID] = &types.ActivityInfo{
		ScheduledEventID: event.EventID,
		ActivityID:       attrs.ActivityID,
		ActivityType:     attrs.ActivityType,
		TaskQueue:        attrs.TaskQueue,
		Input:            attrs.Input,
		ScheduledTime:    event.Timestamp,
		HeartbeatTimeout: attrs.HeartbeatTimeout,
		ScheduleTimeout:  attrs.ScheduleToClose,
		StartToClose:     attrs.StartToClose,
		RetryPolicy:      attrs.RetryPolicy,
		MaxRetries:       maxAttempts,
		Attempt:          1,
	}
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyActivityStarted(event *types.HistoryEvent) error {
	attrs, ok := event.Attributes.(*types.ActivityStartedAttributes)
	if !ok {
		return nil
	}
	if ai, exists := ms.PendingActivities[attrs.ScheduledEventID]; exists {
		ai.StartedEventID = event.EventID
		ai.StartedTime = event.Timestamp
		ai.Attempt = attrs.Attempt
	}
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyActivityCompleted(event *types.HistoryEvent) error {
	attrs, ok := event.Attributes.(*types.ActivityCompletedAttributes)
	if !ok {
		return nil
	}
	delete(ms.PendingActivities, attrs.ScheduledEventID)
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyActivityFailed(event *types.HistoryEvent) error {
	attrs, ok := event.Attributes.(*types.ActivityFailedAttributes)
	if !ok {
		return nil
	}
	delete(ms.PendingActivities, attrs.ScheduledEventID)
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyActivityTimedOut(event *types.HistoryEvent) error {
	attrs, ok := event.Attributes.(*types.ActivityFailedAttributes)
	if ok {
		delete(ms.PendingActivities, attrs.ScheduledEventID)
	}
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyActivityCancelRequested(event *types.HistoryEvent) error {
	if attrs, ok := event.Attributes.(*types.ActivityCancelRequestedAttributes); ok {
		if ai, exists := ms.PendingActivities[attrs.ScheduledEventID]; exists {
			ai.CancelRequested = true
		}
	}
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyActivityCanceled(event *types.HistoryEvent) error {
	attrs, ok := event.Attributes.(*types.ActivityCanceledAttributes)
	if !ok {
		return nil
	}
	delete(ms.PendingActivities, attrs.ScheduledEventID)
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applySignalReceived(event *types.HistoryEvent) error {
	attrs, ok := event.Attributes.(*types.SignalReceivedAttributes)
	if !ok {
		return nil
	}
	ms.PendingSignals = append(ms.PendingSignals, &types.SignalInfo{
		SignalName: attrs.SignalName,
		Input:      attrs.Input,
		Identity:   attrs.Identity,
		RequestID:  attrs.RequestID,
	})
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyWorkflowTaskScheduled(event *types.HistoryEvent) error {
	attrs, ok := event.Attributes.(*types.WorkflowTaskScheduledAttributes)
	if !ok {
		return nil
	}
	ms.PendingWorkflowTask = &types.WorkflowTaskInfo{
		ScheduledEventID: event.EventID,
		Attempt:          attrs.Attempt,
		ScheduledTime:    event.Timestamp,
		TaskQueue:        attrs.TaskQueue,
		StartToClose:     attrs.StartToClose,
	}
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyWorkflowTaskStarted(event *types.HistoryEvent) error {
	attrs, ok := event.Attributes.(*types.WorkflowTaskStartedAttributes)
	if !ok {
		return nil
	}
	if ms.PendingWorkflowTask != nil && ms.PendingWorkflowTask.ScheduledEventID == attrs.ScheduledEventID {
		ms.PendingWorkflowTask.StartedEventID = event.EventID
		ms.PendingWorkflowTask.StartedTime = event.Timestamp
	}
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyWorkflowTaskCompleted(event *types.HistoryEvent) error {
	ms.PendingWorkflowTask = nil
	ms.LastCompletedWorkflowTaskEventID = event.EventID
	ms.ClearBufferedEvents()
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyWorkflowTaskFailed(event *types.HistoryEvent) error {
	ms.PendingWorkflowTask = nil
	if attrs, ok := event.Attributes.(*types.WorkflowTaskFailedAttributes); ok && attrs.Cause == CauseNonDeterministic {
		ms.ExecutionInfo.Status = types.ExecutionStatusStuck
	}
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyWorkflowTaskTimedOut(event *types.HistoryEvent) error {
	ms.PendingWorkflowTask = nil
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyChildWorkflowInitiated(event *types.HistoryEvent) error {
	attrs, ok := event.Attributes.(*types.ChildWorkflowInitiatedAttributes)
	if !ok {
		return nil
	}
	ms.PendingChildren[event.EventID] = &types.ChildInfo{
		InitiatedEventID: event.EventID,
		WorkflowID:       attrs.WorkflowID,
		WorkflowType:     attrs.WorkflowType,
		Namespace:        attrs.Namespace,
	}
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyChildWorkflowStarted(event *types.HistoryEvent) error {
	attrs, ok := event.Attributes.(*types.ChildWorkflowStartedAttributes)
	if !ok {
		return nil
	}
	if ci, exists := ms.PendingChildren[attrs.InitiatedEventID]; exists {
		ci.StartedEventID = event.EventID
		ci.RunID = attrs.RunID
	}
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyChildWorkflowTerminal(event *types.HistoryEvent, initiatedEventID int64) error {
	delete(ms.PendingChildren, initiatedEventID)
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyUpdateAccepted(event *types.HistoryEvent) error {
	attrs, ok := event.Attributes.(*types.UpdateAcceptedAttributes)
	if !ok {
		return nil
	}
	ms.PendingUpdates[attrs.UpdateID] = &types.UpdateInfo{
		UpdateID:        attrs.UpdateID,
		Name:            attrs.Name,
		Input:           attrs.Input,
		Identity:        attrs.Identity,
		AcceptedEventID: event.EventID,
		Accepted:        true,
	}
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyUpdateRejected(event *types.HistoryEvent) error {
	attrs, ok := event.Attributes.(*types.UpdateRejectedAttributes)
	if !ok {
		return nil
	}
	delete(ms.PendingUpdates, attrs.UpdateID)
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyUpdateCompleted(event *types.HistoryEvent) error {
	attrs, ok := event.Attributes.(*types.UpdateCompletedAttributes)
	if !ok {
		return nil
	}
	if ui, exists := ms.PendingUpdates[attrs.UpdateID]; exists {
		ui.Completed = true
		ui.Result = attrs.Result
		ui.Rejected = attrs.Rejected
		ui.RejectionReason = attrs.Reason
	}
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) applyUpsertSearchAttributes(event *types.HistoryEvent) error {
	attrs, ok := event.Attributes.(*types.UpsertSearchAttributesAttributes)
	if !ok {
		return nil
	}
	if ms.ExecutionInfo.SearchAttributes == nil {
		ms.ExecutionInfo.SearchAttributes = make(map[string][]byte)
	}
	for k, v := range attrs.SearchAttributes {
		ms.ExecutionInfo.SearchAttributes[k] = v
	}
	ms.NextEventID = event.EventID + 1
	return nil
}

func (ms *MutableState) AddPendingActivity(scheduledEventID int64, info *types.ActivityInfo) {
	ms.PendingActivities[scheduledEventID] = info
}

func (ms *MutableState) GetPendingActivity(scheduledEventID int64) (*types.ActivityInfo, bool) {
	info, ok := ms.PendingActivities[scheduledEventID]
	return info, ok
}

func (ms *MutableState) DeletePendingActivity(scheduledEventID int64) {
	delete(ms.PendingActivities, scheduledEventID)
}

func (ms *MutableState) AddPendingTimer(timerID string, info *types.TimerInfo) {
	ms.PendingTimers[timerID] = info
}

func (ms *MutableState) GetPendingTimer(timerID string) (*types.TimerInfo, bool) {
	info, ok := ms.PendingTimers[timerID]
	return info, ok
}

func (ms *MutableState) DeletePendingTimer(timerID string) {
	delete(ms.PendingTimers, timerID)
}

func (ms *MutableState) AddBufferedEvent(event *types.HistoryEvent) {
	ms.BufferedEvents = append(ms.BufferedEvents, event)
}

func (ms *MutableState) ClearBufferedEvents() {
	ms.BufferedEvents = ms.BufferedEvents[:0]
}

func (ms *MutableState) GetNextEventID() int64 {
	return ms.NextEventID
}

func (ms *MutableState) IncrementNextEventID() int64 {
	id := ms.NextEventID
	ms.NextEventID++
	return id
}

func (ms *MutableState) IsWorkflowExecutionRunning() bool {
	return ms.ExecutionInfo != nil && ms.ExecutionInfo.Status == types.ExecutionStatusRunning
}

func (ms *MutableState) HasPendingWorkflowTask() bool {
	return ms.PendingWorkflowTask != nil
}

func (ms *MutableState) GetStartTime() time.Time {
	if ms.ExecutionInfo == nil {
		return time.Time{}
	}
	return ms.ExecutionInfo.StartTime
}

func (ms *MutableState) GetCloseTime() time.Time {
	if ms.ExecutionInfo == nil {
		return time.Time{}
	}
	return ms.ExecutionInfo.CloseTime
}
