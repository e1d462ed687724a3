package rpc

import "time"

// WorkflowExecution identifies one run of one workflow.
type WorkflowExecution struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// Payload is a single opaque value exchanged with a worker: serialized bytes
// plus the content-type the worker used to produce them.
type Payload struct {
	Metadata map[string]string `json:"metadata,omitempty"`
	Data     []byte            `json:"data,omitempty"`
}

// Payloads is an ordered list of Payload, mirroring how activity/workflow
// inputs and results are framed on the wire.
type Payloads struct {
	Payloads []*Payload `json:"payloads,omitempty"`
}

// Failure captures a worker-reported error in a form that survives the trip
// back through history and out to clients inspecting an execution.
type Failure struct {
	Message      string   `json:"message"`
	Type         string   `json:"type,omitempty"`
	StackTrace   string   `json:"stack_trace,omitempty"`
	NonRetryable bool     `json:"non_retryable,omitempty"`
	Cause        *Failure `json:"cause,omitempty"`
}

// RetryPolicy mirrors the retry configuration attached to an activity or a
// workflow at schedule time.
type RetryPolicy struct {
	InitialInterval    time.Duration `json:"initial_interval"`
	BackoffCoefficient float64       `json:"backoff_coefficient"`
	MaximumInterval    time.Duration `json:"maximum_interval"`
	MaximumAttempts    int32         `json:"maximum_attempts"`
	NonRetryableErrors []string      `json:"non_retryable_errors,omitempty"`
}

// TaskQueueKind distinguishes a normal, shared task queue from a sticky one
// bound to a single worker for a single run.
type TaskQueueKind int32

const (
	TaskQueueKindNormal TaskQueueKind = iota
	TaskQueueKindSticky
)

// TaskQueue names a queue and how it should be matched against.
type TaskQueue struct {
	Name string        `json:"name"`
	Kind TaskQueueKind `json:"kind"`
}

// TaskType distinguishes the two kinds of task a worker polls for.
type TaskType int32

const (
	TaskTypeUnspecified TaskType = iota
	TaskTypeWorkflow
	TaskTypeActivity
)

// ActivityTaskInfo describes an activity task handed to a worker on poll.
type ActivityTaskInfo struct {
	ActivityID       string       `json:"activity_id"`
	ActivityType     string       `json:"activity_type"`
	ScheduledEventID int64        `json:"scheduled_event_id"`
	Input            *Payloads    `json:"input,omitempty"`
	Header           *Payloads    `json:"header,omitempty"`
	RetryPolicy      *RetryPolicy `json:"retry_policy,omitempty"`
	ScheduleToClose  time.Duration `json:"schedule_to_close,omitempty"`
	StartToClose     time.Duration `json:"start_to_close,omitempty"`
	HeartbeatTimeout time.Duration `json:"heartbeat_timeout,omitempty"`
}

// WorkflowTaskInfo describes a workflow task handed to a worker on poll: the
// slice of history the worker needs in order to replay up to the decision
// point, plus the event it must react to.
type WorkflowTaskInfo struct {
	ScheduledEventID int64           `json:"scheduled_event_id"`
	StartedEventID   int64           `json:"started_event_id"`
	PreviousStartedEventID int64     `json:"previous_started_event_id"`
	History          []*HistoryEvent `json:"history,omitempty"`
	Query            *WorkflowQuery  `json:"query,omitempty"`
}

// WorkflowQuery carries a synchronous query piggy-backed onto a workflow
// task, or delivered standalone against a cached/replayed run.
type WorkflowQuery struct {
	QueryID   string    `json:"query_id"`
	QueryType string    `json:"query_type"`
	Args      *Payloads `json:"args,omitempty"`
}

// WorkflowQueryResult is the worker's answer to a WorkflowQuery.
type WorkflowQueryResult struct {
	QueryID   string    `json:"query_id"`
	Succeeded bool      `json:"succeeded"`
	Result    *Payloads `json:"result,omitempty"`
	Failure   *Failure  `json:"failure,omitempty"`
}

// HistoryEvent is the wire form of a history event, decoupled from the
// storage-side representation so the two can evolve independently.
type HistoryEvent struct {
	EventID   int64          `json:"event_id"`
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Version   int64          `json:"version"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Command is a single decision emitted by a workflow task completion: one of
// ScheduleActivity, StartTimer, CompleteWorkflow, and so on. Which fields are
// populated is determined by Type.
type Command struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
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
