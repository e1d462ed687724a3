package engine

import "time"

type TaskQueueKind int

const (
	TaskQueueKindNormal TaskQueueKind = iota
	TaskQueueKindSticky
)

type Task struct {
	ID               string
	Token            []byte
	WorkflowID       string
	RunID            string
	Namespace        string
	ActivityID       string
	ActivityType     string
	Input            []byte
	ScheduledTime    time.Time
	StartedTime      time.Time
	Attempt          int32
	Priority         int32
	TaskType         int32
	ScheduledEventID int64

	// Query-task fields. DispatchQuery puts a query task on the TaskStore but
	// never writes it to the WAL. queryReplyCh is unexported and so not
	// marshaled: it survives only an in-memory store, where Poll hands back
	// the same *Task value that DispatchQuery enqueued.
	IsQuery      bool
	QueryID      string
	QueryType    string
	QueryArgs    []byte
	queryReplyCh chan *QueryOutcome
}

// QueryOutcome is a worker's synchronous answer to a dispatched query task.
type QueryOutcome struct {
	Succeeded      bool
	Result         []byte
	FailureMessage string
}

type Poller struct {
	Identity  string
	ResultCh  chan *Task
	CreatedAt time.Time
}
