package events

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/linkflow/engine/internal/crypto"
	"github.com/linkflow/engine/internal/history/types"
)

func init() {
	gob.Register(&types.ExecutionStartedAttributes{})
	gob.Register(&types.ExecutionCompletedAttributes{})
	gob.Register(&types.ExecutionFailedAttributes{})
	gob.Register(&types.ExecutionTerminatedAttributes{})
	gob.Register(&types.ExecutionCancelRequestedAttributes{})
	gob.Register(&types.ExecutionCanceledAttributes{})
	gob.Register(&types.ExecutionTimedOutAttributes{})
	gob.Register(&types.ExecutionContinuedAsNewAttributes{})
	gob.Register(&types.TimerStartedAttributes{})
	gob.Register(&types.TimerFiredAttributes{})
	gob.Register(&types.TimerCanceledAttributes{})
	gob.Register(&types.ActivityScheduledAttributes{})
	gob.Register(&types.ActivityStartedAttributes{})
	gob.Register(&types.ActivityCompletedAttributes{})
	gob.Register(&types.ActivityFailedAttributes{})
	gob.Register(&types.ActivityCancelRequestedAttributes{})
	gob.Register(&types.ActivityCanceledAttributes{})
	gob.Register(&types.SignalReceivedAttributes{})
	gob.Register(&types.SignalExternalInitiatedAttributes{})
	gob.Register(&types.SignalExternalFailedAttributes{})
	gob.Register(&types.MarkerRecordedAttributes{})
	gob.Register(&types.WorkflowTaskScheduledAttributes{})
	gob.Register(&types.WorkflowTaskStartedAttributes{})
	gob.Register(&types.WorkflowTaskCompletedAttributes{})
	gob.Register(&types.WorkflowTaskFailedAttributes{})
	gob.Register(&types.WorkflowTaskTimedOutAttributes{})
	gob.Register(&types.ChildWorkflowInitiatedAttributes{})
	gob.Register(&types.ChildWorkflowStartedAttributes{})
	gob.Register(&types.ChildWorkflowCompletedAttributes{})
	gob.Register(&types.ChildWorkflowFailedAttributes{})
	gob.Register(&types.ChildWorkflowCanceledAttributes{})
	gob.Register(&types.ChildWorkflowTerminatedAttributes{})
	gob.Register(&types.ChildWorkflowTimedOutAttributes{})
	gob.Register(&types.UpdateAcceptedAttributes{})
	gob.Register(&types.UpdateRejectedAttributes{})
	gob.Register(&types.UpdateCompletedAttributes{})
	gob.Register(&types.UpsertSearchAttributesAttributes{})
	gob.Register(&types.ExecutionKey{})
	gob.Register(&types.RetryPolicy{})
}

type EncodingType int

const (
	EncodingTypeJSON EncodingType = iota
	EncodingTypeGob
)

const currentSerializerVersion = 1

type Serializer struct {
	encoding  EncodingType
	encryptor *crypto.Encryptor
}

func NewSerializer(encoding EncodingType) *Serializer {
	return &Serializer{
		encoding: encoding,
	}
}

func NewJSONSerializer() *Serializer {
	return NewSerializer(EncodingTypeJSON)
}

func NewGobSerializer() *Serializer {
	return NewSerializer(EncodingTypeGob)
}

// NewEncryptedJSONSerializer wraps the JSON encoding with at-rest envelope
// encryption of the serialized event bytes, keyed per namespace by the
// caller (each namespace gets its own Encryptor instance).
func NewEncryptedJSONSerializer(encryptor *crypto.Encryptor) *Serializer {
	return &Serializer{
		encoding:  EncodingTypeJSON,
		encryptor: encryptor,
	}
}

type serializedEvent struct {
	Version    int                    `json:"v"`
	EventID    int64                  `json:"event_id"`
	EventType  int32                  `json:"event_type"`
	Timestamp  int64                  `json:"timestamp"`
	EvtVersion int64                  `json:"evt_version"`
	TaskID     int64                  `json:"task_id"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

func (s *Serializer) Serialize(event *types.HistoryEvent) ([]byte, error) {
	if event == nil {
		return nil, errors.New("cannot serialize nil event")
	}

	var (
		data []byte
		err  error
	)
	switch s.encoding {
	case EncodingTypeJSON:
		data, err = s.serializeJSON(event)
	case EncodingTypeGob:
		data, err = s.serializeGob(event)
	default:
		return nil, fmt.Errorf("unsupported encoding type: %d", s.encoding)
	}
	if err != nil {
		return nil, err
	}

	if s.encryptor != nil {
		ciphertext, err := s.encryptor.Encrypt(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt event: %w", err)
		}
		return []byte(ciphertext), nil
	}
	return data, nil
}

func (s *Serializer) serializeJSON(event *types.HistoryEvent) ([]byte, error) {
	se := serializedEvent{
		Version:    currentSerializerVersion,
		EventID:    event.EventID,
		EventType:  int32(event.EventType),
		Timestamp:  event.Timestamp.UnixNano(),
		EvtVersion: event.Version,
		TaskID:     event.TaskID,
	}

	if event.Attributes != nil {
		attrBytes, err := json.Marshal(event.Attributes)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal attributes: %w", err)
		}
		var attrMap map[string]interface{}
		if err := json.Unmarshal(attrBytes, &attrMap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes to map: %w", err)
		}
		se.Attributes = attrMap
	}

	return json.Marshal(se)
}

func (s *Serializer) serializeGob(event *types.HistoryEvent) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(currentSerializerVersion))
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(event); err != nil {
		return nil, fmt.Errorf("failed to gob encode event: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Serializer) Deserialize(data []byte) (*types.HistoryEvent, error) {
	if len(data) == 0 {
		return nil, errors.New("cannot deserialize empty data")
	}

	if s.encryptor != nil {
		plaintext, err := s.encryptor.Decrypt(string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt event: %w", err)
		}
		data = plaintext
	}

	switch s.encoding {
	case EncodingTypeJSON:
		return s.deserializeJSON(data)
	case EncodingTypeGob:
		return s.deserializeGob(data)
	default:
		return nil, fmt.Errorf("unsupported encoding type: %d", s.encoding)
	}
}

func (s *Serializer) deserializeJSON(data []byte) (*types.HistoryEvent, error) {
	var se serializedEvent
	if err := json.Unmarshal(data, &se); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	event := &types.HistoryEvent{
		EventID:   se.EventID,
		EventType: types.EventType(se.EventType),
		Version:   se.EvtVersion,
		TaskID:    se.TaskID,
	}
	event.Timestamp = time.Unix(0, se.Timestamp).UTC()

	if se.Attributes != nil {
		attrs, err := s.deserializeAttributes(types.EventType(se.EventType), se.Attributes)
		if err != nil {
			return nil, err
		}
		event.Attributes = attrs
	}

	return event, nil
}

func (s *Serializer) deserializeAttributes(eventType types.EventType, attrMap map[string]interface{}) (any, error) {
	attrBytes, err := json.Marshal(attrMap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attribute map: %w", err)
	}

	var attrs any
	switch eventType {
	case types.EventTypeExecutionStarted:
		attrs = &types.ExecutionStartedAttributes{}
	case types.EventTypeExecutionCompleted:
		attrs = &types.ExecutionCompletedAttributes{}
	case types.EventTypeExecutionFailed:
		attrs = &types.ExecutionFailedAttributes{}
	case types.EventTypeExecutionTerminated:
		attrs = &types.ExecutionTerminatedAttributes{}
	case types.EventTypeExecutionCancelRequested:
		attrs = &types.ExecutionCancelRequestedAttributes{}
	case types.EventTypeExecutionCanceled:
		attrs = &types.ExecutionCanceledAttributes{}
	case types.EventTypeExecutionTimedOut:
		attrs = &types.ExecutionTimedOutAttributes{}
	case types.EventTypeExecutionContinuedAsNew:
		attrs = &types.ExecutionContinuedAsNewAttributes{}
	case types.EventTypeTimerStarted:
		attrs = &types.TimerStartedAttributes{}
	case types.EventTypeTimerFired:
		attrs = &types.TimerFiredAttributes{}
	case types.EventTypeTimerCanceled:
		attrs = &types.TimerCanceledAttributes{}
	case types.EventTypeActivityScheduled:
		attrs = &types.ActivityScheduledAttributes{}
	case types.EventTypeActivityStarted:
		attrs = &types.ActivityStartedAttributes{}
	case types.EventTypeActivityCompleted:
		attrs = &types.ActivityCompletedAttributes{}
	case types.EventTypeActivityFailed, types.EventTypeActivityTimedOut:
		attrs = &types.ActivityFailedAttributes{}
	case types.EventTypeActivityCancelRequested:
		attrs = &types.ActivityCancelRequestedAttributes{}
	case types.EventTypeActivityCanceled:
		attrs = &types.ActivityCanceledAttributes{}
	case types.EventTypeSignalReceived:
		attrs = &types.SignalReceivedAttributes{}
	case types.EventTypeSignalExternalInitiated:
		attrs = &types.SignalExternalInitiatedAttributes{}
	case types.EventTypeSignalExternalFailed:
		attrs = &types.SignalExternalFailedAttributes{}
	case types.EventTypeMarkerRecorded:
		attrs = &types.MarkerRecordedAttributes{}
	case types.EventTypeWorkflowTaskScheduled:
		attrs = &types.WorkflowTaskScheduledAttributes{}
	case types.EventTypeWorkflowTaskStarted:
		attrs = &types.WorkflowTaskStartedAttributes{}
	case types.EventTypeWorkflowTaskCompleted:
		attrs = &types.WorkflowTaskCompletedAttributes{}
	case types.EventTypeWorkflowTaskFailed:
		attrs = &types.WorkflowTaskFailedAttributes{}
	case types.EventTypeWorkflowTaskTimedOut:
		attrs = &types.WorkflowTaskTimedOutAttributes{}
	case types.EventTypeChildWorkflowInitiated:
		attrs = &types.ChildWorkflowInitiatedAttributes{}
	case types.EventTypeChildWorkflowStarted:
		attrs = &types.ChildWorkflowStartedAttributes{}
	case types.EventTypeChildWorkflowCompleted:
		attrs = &types.ChildWorkflowCompletedAttributes{}
	case types.EventTypeChildWorkflowFailed:
		attrs = &types.ChildWorkflowFailedAttributes{}
	case types.EventTypeChildWorkflowCanceled:
		attrs = &types.ChildWorkflowCanceledAttributes{}
	case types.EventTypeChildWorkflowTerminated:
		attrs = &types.ChildWorkflowTerminatedAttributes{}
	case types.EventTypeChildWorkflowTimedOut:
		attrs = &types.ChildWorkflowTimedOutAttributes{}
	case types.EventTypeUpdateAccepted:
		attrs = &types.UpdateAcceptedAttributes{}
	case types.EventTypeUpdateRejected:
		attrs = &types.UpdateRejectedAttributes{}
	case types.EventTypeUpdateCompleted:
		attrs = &types.UpdateCompletedAttributes{}
	case types.EventTypeUpsertSearchAttributes:
		attrs = &types.UpsertSearchAttributesAttributes{}
	default:
		return attrMap, nil
	}

	if err := json.Unmarshal(attrBytes, attrs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attributes for event type %s: %w", eventType, err)
	}

	return attrs, nil
}

func (s *Serializer) deserializeGob(data []byte) (*types.HistoryEvent, error) {
	if len(data) < 2 {
		return nil, errors.New("gob data too short")
	}

	buf := bytes.NewBuffer(data[1:])
	dec := gob.NewDecoder(buf)

	var event types.HistoryEvent
	if err := dec.Decode(&event); err != nil {
		return nil, fmt.Errorf("failed to gob decode event: %w", err)
	}

	return &event, nil
}

func (s *Serializer) SerializeEvents(events []*types.HistoryEvent) ([][]byte, error) {
	result := make([][]byte, len(events))
	for i, event := range events {
		data, err := s.Serialize(event)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize event %d: %w", event.EventID, err)
		}
		result[i] = data
	}
	return result, nil
}

func (s *Serializer) DeserializeEvents(dataList [][]byte) ([]*types.HistoryEvent, error) {
	result := make([]*types.HistoryEvent, len(dataList))
	for i, data := range dataList {
		event, err := s.Deserialize(data)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize event at index %d: %w", i, err)
		}
		result[i] = event
	}
	return result, nil
}
