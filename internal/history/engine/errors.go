package engine

// FailureType classifies an engine-level error so that callers (the gRPC
// server, the frontend, a worker's retry loop) know whether retrying the
// same request can ever succeed.
type FailureType string

const (
	FailureTypeClient             FailureType = "CLIENT_ERROR"
	FailureTypePrecondition        FailureType = "PRECONDITION_FAILURE"
	FailureTypeTransient          FailureType = "TRANSIENT_ERROR"
	FailureTypeWorkflowTask       FailureType = "WORKFLOW_TASK_FAILURE"
	FailureTypeActivity           FailureType = "ACTIVITY_FAILURE"
	FailureTypeTimeout            FailureType = "TIMEOUT"
)

// CauseNonDeterministic is the WorkflowTaskFailed cause written when a
// sticky worker's command batch disagrees with the state its replay should
// have observed.
const CauseNonDeterministic = "NonDeterministic"

// TypedError wraps an engine error with a stable type and whether retrying
// the originating request is ever useful.
type TypedError struct {
	Type             FailureType
	Retryable        bool
	NonDeterministic bool
	Err              error
}

func (e *TypedError) Error() string {
	return e.Err.Error()
}

func (e *TypedError) Unwrap() error {
	return e.Err
}

func newTypedError(t FailureType, retryable bool, err error) *TypedError {
	return &TypedError{Type: t, Retryable: retryable, Err: err}
}

// ClientError wraps err as a non-retryable request-shape problem (bad
// namespace, malformed command, unknown execution).
func ClientError(err error) *TypedError { return newTypedError(FailureTypeClient, false, err) }

// PreconditionFailure wraps err as a non-retryable state-mismatch problem
// (event-ID race, duplicate timer, closed execution).
func PreconditionFailure(err error) *TypedError {
	return newTypedError(FailureTypePrecondition, false, err)
}

// TransientError wraps err as a problem the caller should retry (store
// unavailable, optimistic-lock contention from a concurrent writer).
func TransientError(err error) *TypedError { return newTypedError(FailureTypeTransient, true, err) }

// WorkflowTaskFailure wraps err as a malformed-command problem surfaced
// back to the worker as a WorkflowTaskFailed event.
func WorkflowTaskFailure(err error) *TypedError {
	return newTypedError(FailureTypeWorkflowTask, false, err)
}

// NonDeterministicError wraps err as a command batch that disagrees with
// the history state it was derived from: a command referenced a timer,
// activity or update the replay should have produced but didn't (or
// produced one it shouldn't have). Retrying is never useful, since a
// deterministic replay that already diverged will diverge identically on
// retry; recovery requires an operator Reset or Terminate of the run.
func NonDeterministicError(err error) *TypedError {
	e := newTypedError(FailureTypeWorkflowTask, false, err)
	e.NonDeterministic = true
	return e
}

// ActivityFailure wraps err as an activity-side failure; Retryable reflects
// whether the activity's retry policy still permits another attempt.
func ActivityFailure(err error, retryable bool) *TypedError {
	return newTypedError(FailureTypeActivity, retryable, err)
}

// Timeout wraps err as any of the schedule-to-start / schedule-to-close /
// start-to-close / heartbeat timeout kinds.
func Timeout(err error) *TypedError { return newTypedError(FailureTypeTimeout, false, err) }
