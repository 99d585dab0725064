package jobqueue

import (
	"errors"
	"fmt"
)

// AppError is the unified, user-visible error taxonomy returned by Queue
// and RunningExecutor methods. Kind names one of the three families the
// design splits errors into; Sub narrows within that family.
type AppError struct {
	Kind    string // "execution" | "storage" | "job_run"
	Sub     string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s/%s: %s", e.Kind, e.Sub, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %v", e.Kind, e.Sub, e.Err)
	}
	return fmt.Sprintf("%s/%s", e.Kind, e.Sub)
}

func (e *AppError) Unwrap() error { return e.Err }

// Execution sub-kinds: RunningExecutor lifecycle failures.
const (
	SubSignalling = "signalling" // shutdown broadcast failed, receiver dropped
	SubJoin       = "join"       // worker goroutine terminated abnormally
)

// Storage sub-kinds.
const (
	SubBackend           = "backend"            // driver/IO failure
	SubSerialization     = "serialization"       // encode/decode failure
	SubNotFound          = "not_found"           // uid unknown to the backend
	SubIllegalTransition = "illegal_transition"  // set_result on a terminal job
	SubEmpty             = "empty"               // no eligible NotStarted record (internal only)
	SubUnknownType       = "unknown_type"        // type_tag not registered
	SubMalformedPayload  = "malformed_payload"   // payload does not parse under its type_tag's schema
)

// JobRun sub-kind: a job's own failure, recorded never propagated.
const SubTaskFailure = "task_failure"

func newStorageError(sub, message string, err error) *AppError {
	return &AppError{Kind: "storage", Sub: sub, Message: message, Err: err}
}

func newExecutionError(sub, message string, err error) *AppError {
	return &AppError{Kind: "execution", Sub: sub, Message: message, Err: err}
}

// ErrEmpty is returned by Provider.Pull when no NotStarted record is
// eligible. It is internal to the pull/backoff cycle: the executor loop
// recovers from it silently and it is never surfaced to a Queue caller.
var ErrEmpty = newStorageError(SubEmpty, "no eligible job", nil)

// ErrUnknownType is returned by a registry's Decode (and therefore by
// Provider.Pull, which decodes internally) when a type_tag was never
// registered for the family.
var ErrUnknownType = newStorageError(SubUnknownType, "unregistered type tag", nil)

// ErrMalformedPayload is returned when a payload fails to unmarshal under
// its type_tag's registered schema.
var ErrMalformedPayload = newStorageError(SubMalformedPayload, "payload does not match schema", nil)

// ErrNotFound is returned by SetResult/GetJob when the uid is unknown to
// the backend.
var ErrNotFound = newStorageError(SubNotFound, "uid not found", nil)

// ErrIllegalTransition is returned by SetResult when the target record is
// already in a terminal state.
var ErrIllegalTransition = newStorageError(SubIllegalTransition, "job already in a terminal state", nil)

// ErrAlreadyStopped is returned by a RunningExecutor's second Stop call, and
// by WaitFor when the executor loop has exited before reaching its target.
var ErrAlreadyStopped = newExecutionError(SubSignalling, "executor already stopped", nil)

// JobError is a job's own run failure, captured in the stored record's
// result column. It is JSON-serializable so it round-trips through
// storage, and it is never propagated out of the executor loop — only
// recorded.
type JobError struct {
	Message string `json:"message"`
}

func (e *JobError) Error() string { return e.Message }

// NewJobError wraps a job run failure for storage. A nil err yields a nil
// *JobError, matching the invariant that result is non-nil only when the
// job failed.
func NewJobError(err error) *JobError {
	if err == nil {
		return nil
	}
	return &JobError{Message: err.Error()}
}

// NewBackendError wraps a driver/IO failure from a storage backend.
func NewBackendError(err error) *AppError {
	return newStorageError(SubBackend, "", err)
}

// NewSerializationError wraps an encode/decode failure.
func NewSerializationError(err error) *AppError {
	return newStorageError(SubSerialization, "", err)
}

// NewNotFoundError reports that uid is unknown to the backend.
func NewNotFoundError(uid string) *AppError {
	return newStorageError(SubNotFound, fmt.Sprintf("uid %q not found", uid), nil)
}

// NewIllegalTransitionError reports a SetResult call against a job already
// in a terminal state.
func NewIllegalTransitionError(uid string) *AppError {
	return newStorageError(SubIllegalTransition, fmt.Sprintf("uid %q is already terminal", uid), nil)
}

// NewMalformedPayloadError wraps a payload that failed to parse under its
// type_tag's registered schema.
func NewMalformedPayloadError(err error) *AppError {
	return newStorageError(SubMalformedPayload, "payload does not match schema", err)
}

// IsEmpty reports whether err is (or wraps) ErrEmpty.
func IsEmpty(err error) bool {
	return errors.Is(err, ErrEmpty) || isSub(err, SubEmpty)
}

// IsNotFound reports whether err is (or wraps) a not-found storage error.
func IsNotFound(err error) bool { return isSub(err, SubNotFound) }

// IsIllegalTransition reports whether err is (or wraps) an illegal-transition
// storage error.
func IsIllegalTransition(err error) bool { return isSub(err, SubIllegalTransition) }

// IsUnknownType reports whether err is (or wraps) an unknown type_tag error.
func IsUnknownType(err error) bool { return isSub(err, SubUnknownType) }

func isSub(err error, sub string) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Sub == sub
	}
	return false
}
