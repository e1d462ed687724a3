package history

import (
	"encoding/json"
	"fmt"

	"github.com/linkflow/engine/internal/history/types"
	"github.com/linkflow/engine/internal/rpc"
)

// toWireEvent flattens an internal history event into the JSON-friendly form
// sent to workers and clients: the attribute struct is re-marshaled into a
// plain map so callers never need to know the internal Go type it came from.
func toWireEvent(e *types.HistoryEvent) (*rpc.HistoryEvent, error) {
	out := &rpc.HistoryEvent{
		EventID:   e.EventID,
		EventType: e.EventType.String(),
		Timestamp: e.Timestamp,
		Version:   e.Version,
	}
	if e.Attributes != nil {
		b, err := json.Marshal(e.Attributes)
		if err != nil {
			return nil, fmt.Errorf("marshal attributes for event %d: %w", e.EventID, err)
		}
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("unmarshal attributes for event %d: %w", e.EventID, err)
		}
		out.Attrs = m
	}
	return out, nil
}

func toWireEvents(events []*types.HistoryEvent) ([]*rpc.HistoryEvent, error) {
	out := make([]*rpc.HistoryEvent, len(events))
	for i, e := range events {
		wire, err := toWireEvent(e)
		if err != nil {
			return nil, err
		}
		out[i] = wire
	}
	return out, nil
}

var commandAttrPrototype = map[types.CommandType]func() any{
	types.CommandTypeScheduleActivity:       func() any { return &types.ActivityScheduledAttributes{} },
	types.CommandTypeRequestActivityCancel:  func() any { return &types.ActivityCancelRequestedAttributes{} },
	types.CommandTypeStartTimer:             func() any { return &types.TimerStartedAttributes{} },
	types.CommandTypeCancelTimer:            func() any { return &types.TimerCanceledAttributes{} },
	types.CommandTypeCompleteWorkflow:       func() any { return &types.ExecutionCompletedAttributes{} },
	types.CommandTypeFailWorkflow:           func() any { return &types.ExecutionFailedAttributes{} },
	types.CommandTypeCancelWorkflow:         func() any { return &types.ExecutionCanceledAttributes{} },
	types.CommandTypeContinueAsNew:          func() any { return &types.ExecutionContinuedAsNewAttributes{} },
	types.CommandTypeStartChildWorkflow:     func() any { return &types.ChildWorkflowInitiatedAttributes{} },
	types.CommandTypeRequestChildCancel:     func() any { return &types.ChildWorkflowCanceledAttributes{} },
	types.CommandTypeSignalExternalWorkflow: func() any { return &types.SignalExternalInitiatedAttributes{} },
	types.CommandTypeRecordMarker:           func() any { return &types.MarkerRecordedAttributes{} },
	types.CommandTypeUpsertSearchAttributes: func() any { return &types.UpsertSearchAttributesAttributes{} },
	types.CommandTypeRespondUpdate:          func() any { return &types.UpdateCompletedAttributes{} },
}

var commandTypeNames = map[string]types.CommandType{
	"ScheduleActivity":       types.CommandTypeScheduleActivity,
	"RequestActivityCancel":  types.CommandTypeRequestActivityCancel,
	"StartTimer":             types.CommandTypeStartTimer,
	"CancelTimer":            types.CommandTypeCancelTimer,
	"CompleteWorkflow":       types.CommandTypeCompleteWorkflow,
	"FailWorkflow":           types.CommandTypeFailWorkflow,
	"CancelWorkflow":         types.CommandTypeCancelWorkflow,
	"ContinueAsNew":          types.CommandTypeContinueAsNew,
	"StartChildWorkflow":     types.CommandTypeStartChildWorkflow,
	"RequestChildCancel":     types.CommandTypeRequestChildCancel,
	"SignalExternalWorkflow": types.CommandTypeSignalExternalWorkflow,
	"RecordMarker":           types.CommandTypeRecordMarker,
	"UpsertSearchAttributes": types.CommandTypeUpsertSearchAttributes,
	"RespondUpdate":          types.CommandTypeRespondUpdate,
}

// fromWireCommand decodes a wire command into the internal Command sum type
// the engine understands, picking the attribute struct from cmd.Type.
func fromWireCommand(cmd *rpc.Command) (*types.Command, error) {
	commandType, ok := commandTypeNames[cmd.Type]
	if !ok {
		return nil, fmt.Errorf("unknown command type %q", cmd.Type)
	}

	proto, ok := commandAttrPrototype[commandType]
	if !ok {
		return nil, fmt.Errorf("no attribute mapping for command type %q", cmd.Type)
	}
	attrs := proto()

	if cmd.Attrs != nil {
		b, err := json.Marshal(cmd.Attrs)
		if err != nil {
			return nil, fmt.Errorf("marshal command attrs: %w", err)
		}
		if err := json.Unmarshal(b, attrs); err != nil {
			return nil, fmt.Errorf("unmarshal command attrs for %q: %w", cmd.Type, err)
		}
	}

	return &types.Command{Type: commandType, Attributes: attrs}, nil
}

func fromWireCommands(commands []*rpc.Command) ([]*types.Command, error) {
	out := make([]*types.Command, len(commands))
	for i, c := range commands {
		cmd, err := fromWireCommand(c)
		if err != nil {
			return nil, err
		}
		out[i] = cmd
	}
	return out, nil
}

var eventAttrPrototype = map[types.EventType]func() any{
	types.EventTypeExecutionStarted:         func() any { return &types.ExecutionStartedAttributes{} },
	types.EventTypeExecutionCompleted:       func() any { return &types.ExecutionCompletedAttributes{} },
	types.EventTypeExecutionFailed:          func() any { return &types.ExecutionFailedAttributes{} },
	types.EventTypeExecutionTerminated:      func() any { return &types.ExecutionTerminatedAttributes{} },
	types.EventTypeExecutionCancelRequested: func() any { return &types.ExecutionCancelRequestedAttributes{} },
	types.EventTypeExecutionCanceled:        func() any { return &types.ExecutionCanceledAttributes{} },
	types.EventTypeExecutionTimedOut:        func() any { return &types.ExecutionTimedOutAttributes{} },
	types.EventTypeExecutionContinuedAsNew:  func() any { return &types.ExecutionContinuedAsNewAttributes{} },
	types.EventTypeTimerStarted:             func() any { return &types.TimerStartedAttributes{} },
	types.EventTypeTimerFired:               func() any { return &types.TimerFiredAttributes{} },
	types.EventTypeTimerCanceled:            func() any { return &types.TimerCanceledAttributes{} },
	types.EventTypeActivityScheduled:        func() any { return &types.ActivityScheduledAttributes{} },
	types.EventTypeActivityStarted:          func() any { return &types.ActivityStartedAttributes{} },
	types.EventTypeActivityCompleted:        func() any { return &types.ActivityCompletedAttributes{} },
	types.EventTypeActivityFailed:           func() any { return &types.ActivityFailedAttributes{} },
	types.EventTypeActivityTimedOut:         func() any { return &types.ActivityFailedAttributes{} },
	types.EventTypeActivityCancelRequested:  func() any { return &types.ActivityCancelRequestedAttributes{} },
	types.EventTypeActivityCanceled:         func() any { return &types.ActivityCanceledAttributes{} },
	types.EventTypeSignalReceived:           func() any { return &types.SignalReceivedAttributes{} },
	types.EventTypeSignalExternalInitiated:  func() any { return &types.SignalExternalInitiatedAttributes{} },
	types.EventTypeSignalExternalFailed:     func() any { return &types.SignalExternalFailedAttributes{} },
	types.EventTypeMarkerRecorded:           func() any { return &types.MarkerRecordedAttributes{} },
	types.EventTypeWorkflowTaskScheduled:    func() any { return &types.WorkflowTaskScheduledAttributes{} },
	types.EventTypeWorkflowTaskStarted:      func() any { return &types.WorkflowTaskStartedAttributes{} },
	types.EventTypeWorkflowTaskCompleted:    func() any { return &types.WorkflowTaskCompletedAttributes{} },
	types.EventTypeWorkflowTaskFailed:       func() any { return &types.WorkflowTaskFailedAttributes{} },
	types.EventTypeWorkflowTaskTimedOut:     func() any { return &types.WorkflowTaskTimedOutAttributes{} },
	types.EventTypeChildWorkflowInitiated:   func() any { return &types.ChildWorkflowInitiatedAttributes{} },
	types.EventTypeChildWorkflowStarted:     func() any { return &types.ChildWorkflowStartedAttributes{} },
	types.EventTypeChildWorkflowCompleted:   func() any { return &types.ChildWorkflowCompletedAttributes{} },
	types.EventTypeChildWorkflowFailed:      func() any { return &types.ChildWorkflowFailedAttributes{} },
	types.EventTypeChildWorkflowCanceled:    func() any { return &types.ChildWorkflowCanceledAttributes{} },
	types.EventTypeChildWorkflowTerminated:  func() any { return &types.ChildWorkflowTerminatedAttributes{} },
	types.EventTypeChildWorkflowTimedOut:    func() any { return &types.ChildWorkflowTimedOutAttributes{} },
	types.EventTypeUpdateAccepted:           func() any { return &types.UpdateAcceptedAttributes{} },
	types.EventTypeUpdateRejected:           func() any { return &types.UpdateRejectedAttributes{} },
	types.EventTypeUpdateCompleted:          func() any { return &types.UpdateCompletedAttributes{} },
	types.EventTypeUpsertSearchAttributes:   func() any { return &types.UpsertSearchAttributesAttributes{} },
}

var eventTypeNames = func() map[string]types.EventType {
	m := make(map[string]types.EventType, len(eventAttrPrototype))
	for t := range eventAttrPrototype {
		m[t.String()] = t
	}
	return m
}()

// fromWireEvent decodes a client- or worker-supplied wire event (a signal
// delivery, a timer fired notification) into the internal representation the
// engine folds into mutable state.
func fromWireEvent(e *rpc.HistoryEvent) (*types.HistoryEvent, error) {
	eventType, ok := eventTypeNames[e.EventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", e.EventType)
	}

	proto, ok := eventAttrPrototype[eventType]
	if !ok {
		return nil, fmt.Errorf("no attribute mapping for event type %q", e.EventType)
	}
	attrs := proto()

	if e.Attrs != nil {
		b, err := json.Marshal(e.Attrs)
		if err != nil {
			return nil, fmt.Errorf("marshal event attrs: %w", err)
		}
		if err := json.Unmarshal(b, attrs); err != nil {
			return nil, fmt.Errorf("unmarshal event attrs for %q: %w", e.EventType, err)
		}
	}

	return &types.HistoryEvent{
		EventID:    e.EventID,
		EventType:  eventType,
		Timestamp:  e.Timestamp,
		Version:    e.Version,
		Attributes: attrs,
	}, nil
}

// TaskToken is the opaque identifier a worker round-trips on its poll
// response and the matching completion calls it later makes: it carries
// everything needed to locate the execution and the pending work item
// without the history service keeping server-side poll session state.
type TaskToken struct {
	NamespaceID      string `json:"namespace_id"`
	WorkflowID       string `json:"workflow_id"`
	RunID            string `json:"run_id"`
	ScheduledEventID int64  `json:"scheduled_event_id"`
}

func EncodeTaskToken(t *TaskToken) []byte {
	b, _ := json.Marshal(t)
	return b
}

func DecodeTaskToken(data []byte) (*TaskToken, error) {
	var t TaskToken
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode task token: %w", err)
	}
	return &t, nil
}

// payloadsToBytes flattens a wire Payloads envelope down to the single byte
// slice the internal event attributes carry. A single payload's Data passes
// through unchanged; more than one is JSON-encoded as a list so no
// information is lost.
func payloadsToBytes(p *rpc.Payloads) []byte {
	if p == nil || len(p.Payloads) == 0 {
		return nil
	}
	if len(p.Payloads) == 1 {
		return p.Payloads[0].Data
	}
	segments := make([][]byte, len(p.Payloads))
	for i, payload := range p.Payloads {
		segments[i] = payload.Data
	}
	b, _ := json.Marshal(segments)
	return b
}

// bytesToPayloads wraps a single result/input byte slice back into the wire
// Payloads envelope handed to a worker on poll.
func bytesToPayloads(b []byte) *rpc.Payloads {
	if len(b) == 0 {
		return nil
	}
	return &rpc.Payloads{Payloads: []*rpc.Payload{{Data: b}}}
}
