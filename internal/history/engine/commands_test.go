package engine

import (
	"errors"
	"testing"

	"github.com/linkflow/engine/internal/history/types"
)

func newRunningState() *MutableState {
	return NewMutableState(&types.ExecutionInfo{
		NamespaceID: "ns",
		WorkflowID:  "wf-1",
		RunID:       "run-1",
		Status:      types.ExecutionStatusRunning,
	})
}

func TestApplyCommands_NonDeterministicCancelUnknownTimer(t *testing.T) {
	e := NewEngine(nil)
	state := newRunningState()

	commands := []*types.Command{
		{
			Type: types.CommandTypeCancelTimer,
			Attributes: &types.TimerCanceledAttributes{
				TimerID: "timer-that-was-never-started",
			},
		},
	}

	_, err := e.ApplyCommands(state, commands, "worker-1")
	if err == nil {
		t.Fatal("ApplyCommands error = nil, want non-determinism error")
	}

	var typedErr *TypedError
	if !errors.As(err, &typedErr) {
		t.Fatalf("error %v is not a *TypedError", err)
	}
	if !typedErr.NonDeterministic {
		t.Errorf("TypedError.NonDeterministic = false, want true")
	}
	if typedErr.Type != FailureTypeWorkflowTask {
		t.Errorf("TypedError.Type = %v, want %v", typedErr.Type, FailureTypeWorkflowTask)
	}
	if !errors.Is(err, ErrTimerNotFound) {
		t.Errorf("error does not wrap ErrTimerNotFound: %v", err)
	}
}

func TestApplyCommands_MalformedCommandIsNotNonDeterministic(t *testing.T) {
	e := NewEngine(nil)
	state := newRunningState()

	commands := []*types.Command{
		{
			Type:       types.CommandTypeCancelTimer,
			Attributes: &types.ActivityCancelRequestedAttributes{ScheduledEventID: 1},
		},
	}

	_, err := e.ApplyCommands(state, commands, "worker-1")
	if err == nil {
		t.Fatal("ApplyCommands error = nil, want error")
	}

	var typedErr *TypedError
	if !errors.As(err, &typedErr) {
		t.Fatalf("error %v is not a *TypedError", err)
	}
	if typedErr.NonDeterministic {
		t.Errorf("TypedError.NonDeterministic = true, want false for a malformed command")
	}
}

func TestApplyCommands_ValidBatchAppliesCleanly(t *testing.T) {
	e := NewEngine(nil)
	state := newRunningState()

	commands := []*types.Command{
		{
			Type: types.CommandTypeStartTimer,
			Attributes: &types.TimerStartedAttributes{
				TimerID: "timer-1",
			},
		},
	}

	events, err := e.ApplyCommands(state, commands, "worker-1")
	if err != nil {
		t.Fatalf("ApplyCommands error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if _, ok := state.PendingTimers["timer-1"]; !ok {
		t.Errorf("timer-1 not recorded as pending after StartTimer command")
	}
}

func TestMutableState_WorkflowTaskFailedNonDeterministicMarksRunStuck(t *testing.T) {
	state := newRunningState()
	state.NextEventID = 1

	event := &types.HistoryEvent{
		EventID:   1,
		EventType: types.EventTypeWorkflowTaskFailed,
		Attributes: &types.WorkflowTaskFailedAttributes{
			Cause: CauseNonDeterministic,
		},
	}

	if err := state.ApplyEvent(event); err != nil {
		t.Fatalf("ApplyEvent error = %v", err)
	}

	if state.ExecutionInfo.Status != types.ExecutionStatusStuck {
		t.Errorf("ExecutionInfo.Status = %v, want %v", state.ExecutionInfo.Status, types.ExecutionStatusStuck)
	}
}

func TestMutableState_WorkflowTaskFailedOtherCauseLeavesRunRunning(t *testing.T) {
	state := newRunningState()
	state.NextEventID = 1

	event := &types.HistoryEvent{
		EventID:   1,
		EventType: types.EventTypeWorkflowTaskFailed,
		Attributes: &types.WorkflowTaskFailedAttributes{
			Cause: "WorkflowFuncError",
		},
	}

	if err := state.ApplyEvent(event); err != nil {
		t.Fatalf("ApplyEvent error = %v", err)
	}

	if state.ExecutionInfo.Status != types.ExecutionStatusRunning {
		t.Errorf("ExecutionInfo.Status = %v, want %v", state.ExecutionInfo.Status, types.ExecutionStatusRunning)
	}
}
