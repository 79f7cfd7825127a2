package analysis

import "fmt"

// ErrorKind identifies specific types of errors that can occur during an
// analysis run. This enables error handling code to make decisions based on
// the type of error rather than matching on message text.
type ErrorKind int

// Error kinds for analysis operations.
const (
	// ErrKindInvalidStateTransition indicates an attempt to transition a
	// session to an invalid analyze state.
	ErrKindInvalidStateTransition ErrorKind = iota

	// ErrKindStaleSession indicates a finalize write found the session in a
	// state other than START, meaning it was concurrently mutated.
	ErrKindStaleSession

	// ErrKindMissingScript indicates a claimed session has no script reference.
	ErrKindMissingScript

	// ErrKindObservationNotFound indicates the observation catalog is empty or
	// a requested observation does not exist.
	ErrKindObservationNotFound

	// ErrKindTransport indicates the inference call could not complete.
	ErrKindTransport

	// ErrKindScriptDownload indicates the stored script could not be fetched
	// or decoded.
	ErrKindScriptDownload

	// ErrKindArtifactUpload indicates the report artifact could not be written.
	ErrKindArtifactUpload
)

// Error represents domain-specific failures of the analysis pipeline. It
// carries an error kind so the orchestrator can translate failures without
// string matching.
type Error struct {
	msg  string
	kind ErrorKind
}

// Error returns the error message. This implements the error interface.
func (e *Error) Error() string { return e.msg }

// Kind returns the tagged kind of the error.
func (e *Error) Kind() ErrorKind { return e.kind }

// Is enables error matching by comparing error kinds. This implements error
// wrapping introduced in Go 1.13.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == t.kind
}

// newInvalidStateTransitionError creates an error for invalid state transitions.
// It includes the attempted transition details to aid in debugging.
func newInvalidStateTransitionError(from, to AnalyzeState) error {
	return &Error{
		msg:  fmt.Sprintf("cannot transition analyze state from %s to %s", from, to),
		kind: ErrKindInvalidStateTransition,
	}
}

// NewStaleSessionError creates an error for finalize writes that lost the
// optimistic state check.
func NewStaleSessionError(sessionID int64, state AnalyzeState) error {
	return &Error{
		msg:  fmt.Sprintf("session %d is no longer at START (found %s)", sessionID, state),
		kind: ErrKindStaleSession,
	}
}

// NewMissingScriptError creates an error for claimed sessions without a
// script reference.
func NewMissingScriptError(sessionID int64) error {
	return &Error{
		msg:  fmt.Sprintf("session %d has no source script reference", sessionID),
		kind: ErrKindMissingScript,
	}
}

// NewObservationNotFoundError creates an error for missing catalog entries.
// An id of -1 means the catalog itself is empty.
func NewObservationNotFoundError(id int64) error {
	return &Error{
		msg:  fmt.Sprintf("observation %d not found", id),
		kind: ErrKindObservationNotFound,
	}
}

// NewTransportError wraps an inference transport failure with its dimension
// label for log context.
func NewTransportError(label string, cause error) error {
	return &Error{
		msg:  fmt.Sprintf("inference call for %q failed: %v", label, cause),
		kind: ErrKindTransport,
	}
}

// NewScriptDownloadError wraps a failure to fetch or decode the stored script.
func NewScriptDownloadError(ref string, cause error) error {
	return &Error{
		msg:  fmt.Sprintf("downloading script %q: %v", ref, cause),
		kind: ErrKindScriptDownload,
	}
}

// NewArtifactUploadError wraps a failure to persist the report artifact.
func NewArtifactUploadError(path string, cause error) error {
	return &Error{
		msg:  fmt.Sprintf("uploading analyze report under %q: %v", path, cause),
		kind: ErrKindArtifactUpload,
	}
}
