package types

import (
	"errors"
	"time"
)

var (
	ErrExecutionNotFound = errors.New("execution not found")
	ErrOptimisticLock    = errors.New("optimistic lock failure")
)

type EventType int32

const (
	EventTypeUnspecified EventType = iota
	EventTypeExecutionStarted
	EventTypeExecutionCompleted
	EventTypeExecutionFailed
	EventTypeExecutionTerminated
	EventTypeExecutionCancelRequested
	EventTypeExecutionCanceled
	EventTypeExecutionTimedOut
	EventTypeExecutionContinuedAsNew
	EventTypeTimerStarted
	EventTypeTimerFired
	EventTypeTimerCanceled
	EventTypeActivityScheduled
	EventTypeActivityStarted
	EventTypeActivityCompleted
	EventTypeActivityFailed
	EventTypeActivityTimedOut
	EventTypeActivityCancelRequested
	EventTypeActivityCanceled
	EventTypeSignalReceived
	EventTypeSignalExternalInitiated
	EventTypeSignalExternalFailed
	EventTypeMarkerRecorded
	EventTypeWorkflowTaskScheduled
	EventTypeWorkflowTaskStarted
	EventTypeWorkflowTaskCompleted
	EventTypeWorkflowTaskFailed
	EventTypeWorkflowTaskTimedOut
	EventTypeChildWorkflowInitiated
	EventTypeChildWorkflowStarted
	EventTypeChildWorkflowCompleted
	EventTypeChildWorkflowFailed
	EventTypeChildWorkflowCanceled
	EventTypeChildWorkflowTerminated
	EventTypeChildWorkflowTimedOut
	EventTypeUpdateAccepted
	EventTypeUpdateRejected
	EventTypeUpdateCompleted
	EventTypeUpsertSearchAttributes
)

func (e EventType) String() string {
	names := map[EventType]string{
		EventTypeUnspecified:              "Unspecified",
		EventTypeExecutionStarted:         "ExecutionStarted",
		EventTypeExecutionCompleted:       "ExecutionCompleted",
		EventTypeExecutionFailed:          "ExecutionFailed",
		EventTypeExecutionTerminated:      "ExecutionTerminated",
		EventTypeExecutionCancelRequested: "ExecutionCancelRequested",
		EventTypeExecutionCanceled:        "ExecutionCanceled",
		EventTypeExecutionTimedOut:        "ExecutionTimedOut",
		EventTypeExecutionContinuedAsNew:  "ExecutionContinuedAsNew",
		EventTypeTimerStarted:             "TimerStarted",
		EventTypeTimerFired:               "TimerFired",
		EventTypeTimerCanceled:            "TimerCanceled",
		EventTypeActivityScheduled:        "ActivityScheduled",
		EventTypeActivityStarted:          "ActivityStarted",
		EventTypeActivityCompleted:        "ActivityCompleted",
		EventTypeActivityFailed:           "ActivityFailed",
		EventTypeActivityTimedOut:         "ActivityTimedOut",
		EventTypeActivityCancelRequested:  "ActivityCancelRequested",
		EventTypeActivityCanceled:         "ActivityCanceled",
		EventTypeSignalReceived:           "SignalReceived",
		EventTypeSignalExternalInitiated:  "SignalExternalInitiated",
		EventTypeSignalExternalFailed:     "SignalExternalFailed",
		EventTypeMarkerRecorded:           "MarkerRecorded",
		EventTypeWorkflowTaskScheduled:    "WorkflowTaskScheduled",
		EventTypeWorkflowTaskStarted:      "WorkflowTaskStarted",
		EventTypeWorkflowTaskCompleted:    "WorkflowTaskCompleted",
		EventTypeWorkflowTaskFailed:       "WorkflowTaskFailed",
		EventTypeWorkflowTaskTimedOut:     "WorkflowTaskTimedOut",
		EventTypeChildWorkflowInitiated:   "ChildWorkflowInitiated",
		EventTypeChildWorkflowStarted:     "ChildWorkflowStarted",
		EventTypeChildWorkflowCompleted:   "ChildWorkflowCompleted",
		EventTypeChildWorkflowFailed:      "ChildWorkflowFailed",
		EventTypeChildWorkflowCanceled:    "ChildWorkflowCanceled",
		EventTypeChildWorkflowTerminated:  "ChildWorkflowTerminated",
		EventTypeChildWorkflowTimedOut:    "ChildWorkflowTimedOut",
		EventTypeUpdateAccepted:           "UpdateAccepted",
		EventTypeUpdateRejected:           "UpdateRejected",
		EventTypeUpdateCompleted:          "UpdateCompleted",
		EventTypeUpsertSearchAttributes:   "UpsertSearchAttributes",
	}
	if name, ok := names[e]; ok {
		return name
	}
	return "Unknown"
}

// IDReusePolicy controls whether a new run may reuse a workflow ID whose
// most recent run has already closed.
type IDReusePolicy int32

const (
	IDReusePolicyAllowDuplicate IDReusePolicy = iota
	IDReusePolicyAllowDuplicateFailedOnly
	IDReusePolicyRejectDuplicate
	IDReusePolicyTerminateIfRunning
)

type ExecutionStatus int32

const (
	ExecutionStatusUnspecified ExecutionStatus = iota
	ExecutionStatusRunning
	ExecutionStatusCompleted
	ExecutionStatusFailed
	ExecutionStatusTerminated
	ExecutionStatusTimedOut
	ExecutionStatusCanceled
	ExecutionStatusContinuedAsNew
	// ExecutionStatusStuck marks a run whose worker submitted commands that
	// disagree with the history its replay should have observed. The run is
	// not closed and not dispatched any further workflow task automatically;
	// it only leaves this state via an operator-driven Reset or Terminate.
	ExecutionStatusStuck
)

func (s ExecutionStatus) Closed() bool {
	return s != ExecutionStatusUnspecified && s != ExecutionStatusRunning && s != ExecutionStatusStuck
}

func (s ExecutionStatus) String() string {
	names := map[ExecutionStatus]string{
		ExecutionStatusUnspecified:    "Unspecified",
		ExecutionStatusRunning:        "Running",
		ExecutionStatusCompleted:      "Completed",
		ExecutionStatusFailed:         "Failed",
		ExecutionStatusTerminated:     "Terminated",
		ExecutionStatusTimedOut:       "TimedOut",
		ExecutionStatusCanceled:       "Canceled",
		ExecutionStatusContinuedAsNew: "ContinuedAsNew",
		ExecutionStatusStuck:          "Stuck",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return "Unknown"
}

type ExecutionKey struct {
	NamespaceID string
	WorkflowID  string
	RunID       string
}

type ExecutionInfo struct {
	NamespaceID        string
	WorkflowID         string
	RunID              string
	WorkflowTypeName   string
	TaskQueue          string
	Input              []byte
	Status             ExecutionStatus
	StartTime          time.Time
	CloseTime          time.Time
	ExecutionTimeout   time.Duration
	RunTimeout         time.Duration
	TaskTimeout        time.Duration
	LastEventTaskID    int64
	IDReusePolicy      IDReusePolicy
	ParentExecution    *ExecutionKey
	ContinuedFromRunID string
	Memo               map[string][]byte
	SearchAttributes   map[string][]byte
}

// SignalInfo is a signal waiting to be delivered to the next workflow task,
// or already delivered and retained for replay.
type SignalInfo struct {
	SignalName string
	Input      []byte
	Identity   string
	RequestID  string
}

// UpdateInfo tracks an in-flight workflow update from acceptance through to
// its eventual completion or rejection.
type UpdateInfo struct {
	UpdateID         string
	Name             string
	Input            []byte
	Identity         string
	AcceptedEventID  int64
	Accepted         bool
	Completed        bool
	Result           []byte
	Rejected         bool
	RejectionReason  string
}

// ChildInfo tracks a child workflow execution initiated by this run.
type ChildInfo struct {
	InitiatedEventID int64
	StartedEventID   int64
	WorkflowID       string
	RunID            string
	WorkflowType     string
	Namespace        string
}

// WorkflowTaskInfo tracks the single outstanding workflow task for a run.
type WorkflowTaskInfo struct {
	ScheduledEventID int64
	StartedEventID   int64
	Attempt          int32
	ScheduledTime    time.Time
	StartedTime      time.Time
	TaskQueue        string
	StartToClose     time.Duration
}

// Command is one decision a workflow task completion may carry; which
// attribute field is populated is determined by Type.
type Command struct {
	Type       CommandType
	Attributes any
}

type CommandType int32

const (
	CommandTypeUnspecified CommandType = iota
	CommandTypeScheduleActivity
	CommandTypeRequestActivityCancel
	CommandTypeStartTimer
	CommandTypeCancelTimer
	CommandTypeCompleteWorkflow
	CommandTypeFailWorkflow
	CommandTypeCancelWorkflow
	CommandTypeContinueAsNew
	CommandTypeStartChildWorkflow
	CommandTypeRequestChildCancel
	CommandTypeSignalExternalWorkflow
	CommandTypeRecordMarker
	CommandTypeUpsertSearchAttributes
	CommandTypeRespondUpdate
)

type ActivityInfo struct {
	ScheduledEventID int64
	StartedEventID   int64
	ActivityID       string
	ActivityType     string
	TaskQueue        string
	Input            []byte
	ScheduledTime    time.Time
	StartedTime      time.Time
	Attempt          int32
	MaxRetries       int32
	RetryPolicy      *RetryPolicy
	CancelRequested  bool
	HeartbeatTimeout time.Duration
	ScheduleTimeout  time.Duration
	StartToClose     time.Duration
	HeartbeatDetails []byte
	LastHeartbeat    time.Time
}

type TimerInfo struct {
	TimerID        string
	StartedEventID int64
	FireTime       time.Time
	ExpiryTime     time.Time
	TaskStatus     int32
}

type HistoryEvent struct {
	EventID    int64
	EventType  EventType
	Timestamp  time.Time
	Version    int64
	TaskID     int64
	Attributes any
}

type ExecutionStartedAttributes struct {
	WorkflowType     string
	TaskQueue        string
	Input            []byte
	ExecutionTimeout time.Duration
	RunTimeout       time.Duration
	TaskTimeout      time.Duration
	ParentExecution  *ExecutionKey
	Initiator        string
}

type ExecutionCompletedAttributes struct {
	Result []byte
}

type ExecutionFailedAttributes struct {
	Reason  string
	Details []byte
}

type ExecutionTerminatedAttributes struct {
	Reason   string
	Identity string
}

type ExecutionCancelRequestedAttributes struct {
	Reason   string
	Identity string
}

type ExecutionCanceledAttributes struct {
	Details []byte
}

type ExecutionTimedOutAttributes struct {
	TimeoutType string // "execution" or "run"
}

type ExecutionContinuedAsNewAttributes struct {
	NewRunID         string
	WorkflowType     string
	TaskQueue        string
	Input            []byte
	ExecutionTimeout time.Duration
	RunTimeout       time.Duration
	TaskTimeout      time.Duration
}

type TimerStartedAttributes struct {
	TimerID     string
	StartToFire time.Duration
}

type TimerFiredAttributes struct {
	TimerID        string
	StartedEventID int64
}

type TimerCanceledAttributes struct {
	TimerID        string
	StartedEventID int64
	Identity       string
}

type ActivityScheduledAttributes struct {
	ActivityID       string
	ActivityType     string
	TaskQueue        string
	Input            []byte
	ScheduleToClose  time.Duration
	ScheduleToStart  time.Duration
	StartToClose     time.Duration
	HeartbeatTimeout time.Duration
	RetryPolicy      *RetryPolicy
}

type ActivityStartedAttributes struct {
	ScheduledEventID int64
	Identity         string
	Attempt          int32
}

type ActivityCompletedAttributes struct {
	ScheduledEventID int64
	StartedEventID   int64
	Result           []byte
}

type ActivityFailedAttributes struct {
	ScheduledEventID int64
	StartedEventID   int64
	Reason           string
	Details          []byte
	RetryState       int32
}

type RetryPolicy struct {
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaxInterval        time.Duration
	MaxAttempts        int32
	NonRetryableErrors []string
}

type ActivityCancelRequestedAttributes struct {
	ScheduledEventID int64
	Identity         string
}

type ActivityCanceledAttributes struct {
	ScheduledEventID int64
	StartedEventID   int64
	Details          []byte
}

type SignalReceivedAttributes struct {
	SignalName string
	Input      []byte
	Identity   string
	RequestID  string
}

type SignalExternalInitiatedAttributes struct {
	InitiatedEventID int64
	WorkflowID       string
	RunID            string
	SignalName       string
	Input            []byte
}

type SignalExternalFailedAttributes struct {
	InitiatedEventID int64
	WorkflowID       string
	RunID            string
	Cause            string
}

type MarkerRecordedAttributes struct {
	MarkerName string
	Details    map[string][]byte
}

type ChildWorkflowInitiatedAttributes struct {
	WorkflowID   string
	WorkflowType string
	TaskQueue    string
	Namespace    string
	Input        []byte
	RunTimeout   time.Duration
	TaskTimeout  time.Duration
}

type ChildWorkflowStartedAttributes struct {
	InitiatedEventID int64
	WorkflowID       string
	RunID            string
}

type ChildWorkflowCompletedAttributes struct {
	InitiatedEventID int64
	StartedEventID   int64
	Result           []byte
}

type ChildWorkflowFailedAttributes struct {
	InitiatedEventID int64
	StartedEventID   int64
	Reason           string
	Details          []byte
}

type ChildWorkflowCanceledAttributes struct {
	InitiatedEventID int64
	StartedEventID   int64
	Details          []byte
}

type ChildWorkflowTerminatedAttributes struct {
	InitiatedEventID int64
	StartedEventID   int64
}

type ChildWorkflowTimedOutAttributes struct {
	InitiatedEventID int64
	StartedEventID   int64
}

type UpdateAcceptedAttributes struct {
	UpdateID string
	Name     string
	Input    []byte
	Identity string
}

type UpdateRejectedAttributes struct {
	UpdateID string
	Reason   string
}

type UpdateCompletedAttributes struct {
	UpdateID string
	Result   []byte
	Rejected bool
	Reason   string
}

type UpsertSearchAttributesAttributes struct {
	SearchAttributes map[string][]byte
}

type WorkflowTaskScheduledAttributes struct {
	TaskQueue    string
	StartToClose time.Duration
	Attempt      int32
}

type WorkflowTaskStartedAttributes struct {
	ScheduledEventID int64
	Identity         string
	RequestID        string
}

type WorkflowTaskCompletedAttributes struct {
	ScheduledEventID int64
	StartedEventID   int64
	Identity         string
	BinaryChecksum   string
}

type WorkflowTaskFailedAttributes struct {
	ScheduledEventID int64
	StartedEventID   int64
	Cause            string
	FailureReason    string
	FailureDetails   []byte
	Identity         string
	BinaryChecksum   string
}

type WorkflowTaskTimedOutAttributes struct {
	ScheduledEventID int64
	StartedEventID   int64
	TimeoutType      string
}
