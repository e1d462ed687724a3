package engine

import (
	"errors"

	"github.com/linkflow/engine/internal/history/types"
)

// ApplyCommands folds the decisions a workflow task completion carried into
// new history events. It is called after the WorkflowTaskCompleted event
// itself has already been applied, so every command here operates against a
// state with no outstanding workflow task.
func (e *Engine) ApplyCommands(state *MutableState, commands []*types.Command, identity string) ([]*types.HistoryEvent, error) {
	var produced []*types.HistoryEvent

	for _, cmd := range commands {
		event, err := e.applyCommand(state, cmd, identity)
		if err != nil {
			if isReplayDivergence(err) {
				return produced, NonDeterministicError(err)
			}
			return produced, err
		}
		if event != nil {
			produced = append(produced, event)
		}
	}

	return produced, nil
}

// isReplayDivergence reports whether err is one of the state-lookup
// failures a command can only produce by assuming timer, activity or
// update state the actual history never contains -- the signature of a
// sticky worker whose cached replay diverged from what really happened, as
// opposed to a structurally malformed command (caught separately as
// ErrInvalidEventType).
func isReplayDivergence(err error) bool {
	return errors.Is(err, ErrTimerNotFound) ||
		errors.Is(err, ErrDuplicateTimer) ||
		errors.Is(err, ErrActivityNotFound) ||
		errors.Is(err, ErrUpdateNotFound) ||
		errors.Is(err, ErrNoWorkflowTask) ||
		errors.Is(err, ErrWorkflowNotRunning)
}

func (e *Engine) applyCommand(state *MutableState, cmd *types.Command, identity string) (*types.HistoryEvent, error) {
	switch cmd.Type {
	case types.CommandTypeScheduleActivity:
		attrs, ok := cmd.Attributes.(*types.ActivityScheduledAttributes)
		if !ok {
			return nil, WorkflowTaskFailure(ErrInvalidEventType)
		}
		return e.ScheduleActivity(state, attrs)

	case types.CommandTypeRequestActivityCancel:
		attrs, ok := cmd.Attributes.(*types.ActivityCancelRequestedAttributes)
		if !ok {
			return nil, WorkflowTaskFailure(ErrInvalidEventType)
		}
		return e.RequestActivityCancel(state, attrs.ScheduledEventID, identity)

	case types.CommandTypeStartTimer:
		attrs, ok := cmd.Attributes.(*types.TimerStartedAttributes)
		if !ok {
			return nil, WorkflowTaskFailure(ErrInvalidEventType)
		}
		return e.StartTimer(state, attrs.TimerID, attrs.StartToFire)

	case types.CommandTypeCancelTimer:
		attrs, ok := cmd.Attributes.(*types.TimerCanceledAttributes)
		if !ok {
			return nil, WorkflowTaskFailure(ErrInvalidEventType)
		}
		return e.CancelTimer(state, attrs.TimerID, identity)

	case types.CommandTypeCompleteWorkflow:
		attrs, ok := cmd.Attributes.(*types.ExecutionCompletedAttributes)
		if !ok {
			return nil, WorkflowTaskFailure(ErrInvalidEventType)
		}
		return e.CompleteWorkflow(state, attrs.Result)

	case types.CommandTypeFailWorkflow:
		attrs, ok := cmd.Attributes.(*types.ExecutionFailedAttributes)
		if !ok {
			return nil, WorkflowTaskFailure(ErrInvalidEventType)
		}
		return e.FailWorkflow(state, attrs.Reason, attrs.Details)

	case types.CommandTypeCancelWorkflow:
		attrs, ok := cmd.Attributes.(*types.ExecutionCanceledAttributes)
		if !ok {
			return nil, WorkflowTaskFailure(ErrInvalidEventType)
		}
		return e.CancelWorkflow(state, attrs.Details)

	case types.CommandTypeContinueAsNew:
		attrs, ok := cmd.Attributes.(*types.ExecutionContinuedAsNewAttributes)
		if !ok {
			return nil, WorkflowTaskFailure(ErrInvalidEventType)
		}
		return e.ContinueAsNew(state, attrs)

	case types.CommandTypeStartChildWorkflow:
		attrs, ok := cmd.Attributes.(*types.ChildWorkflowInitiatedAttributes)
		if !ok {
			return nil, WorkflowTaskFailure(ErrInvalidEventType)
		}
		return e.InitiateChildWorkflow(state, attrs)

	case types.CommandTypeSignalExternalWorkflow:
		attrs, ok := cmd.Attributes.(*types.SignalExternalInitiatedAttributes)
		if !ok {
			return nil, WorkflowTaskFailure(ErrInvalidEventType)
		}
		return e.SignalExternalInitiated(state, attrs.WorkflowID, attrs.RunID, attrs.SignalName, attrs.Input)

	case types.CommandTypeUpsertSearchAttributes:
		attrs, ok := cmd.Attributes.(*types.UpsertSearchAttributesAttributes)
		if !ok {
			return nil, WorkflowTaskFailure(ErrInvalidEventType)
		}
		return e.UpsertSearchAttributes(state, attrs.SearchAttributes)

	case types.CommandTypeRespondUpdate:
		attrs, ok := cmd.Attributes.(*types.UpdateCompletedAttributes)
		if !ok {
			return nil, WorkflowTaskFailure(ErrInvalidEventType)
		}
		return e.CompleteUpdate(state, attrs.UpdateID, attrs.Result, attrs.Rejected, attrs.Reason)

	case types.CommandTypeRecordMarker:
		attrs, ok := cmd.Attributes.(*types.MarkerRecordedAttributes)
		if !ok {
			return nil, WorkflowTaskFailure(ErrInvalidEventType)
		}
		return e.append(state, types.EventTypeMarkerRecorded, attrs)

	case types.CommandTypeRequestChildCancel:
		// No dedicated event type carries this on its own; a future child
		// cancellation is recorded via the child's eventual terminal event.
		return nil, nil
	}

	return nil, WorkflowTaskFailure(ErrInvalidEventType)
}
