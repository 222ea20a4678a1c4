// Package apperr defines the error taxonomy of the pair lifecycle.
//
// Every failure a caller can act on carries a Code. Callers compare with
// errors.Is against the sentinel values (ErrNotAuthorized, ErrInvalidState,
// ...) or read the code with CodeOf. Infrastructure failures are plain
// wrapped errors and map to CodeInternal.
package apperr

import (
	"errors"
	"net/http"
)

// Code is a machine-readable failure kind.
type Code string

const (
	CodeNotAuthorized         Code = "NOT_AUTHORIZED"
	CodeInvalidState          Code = "INVALID_STATE"
	CodeInvalidSlot           Code = "INVALID_SLOT"
	CodeOutOfRange            Code = "OUT_OF_RANGE"
	CodeAlreadyScheduled      Code = "ALREADY_SCHEDULED"
	CodeAlreadySubmitted      Code = "ALREADY_SUBMITTED"
	CodePairNotReady          Code = "PAIR_NOT_READY"
	CodeRosterInsufficient    Code = "ROSTER_INSUFFICIENT"
	CodeConflictingActivePair Code = "CONFLICTING_ACTIVE_PAIR"
	CodeNotFound              Code = "NOT_FOUND"

	CodeJoinClosed        Code = "JOIN_CLOSED"
	CodeCapacityReached   Code = "CAPACITY_REACHED"
	CodeAlreadyJoined     Code = "ALREADY_JOINED"
	CodeParticipantLocked Code = "PARTICIPANT_LOCKED"
	CodeInvalidInput      Code = "INVALID_INPUT"
	CodeConflict          Code = "CONFLICT"
	CodeRateLimited       Code = "RATE_LIMITED"

	CodeInternal Code = "INTERNAL"
)

// HTTPStatus maps a code to the status the JSON API answers with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotAuthorized:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidSlot, CodeOutOfRange, CodeInvalidInput:
		return http.StatusUnprocessableEntity
	case CodeInvalidState, CodeAlreadyScheduled, CodeAlreadySubmitted, CodePairNotReady,
		CodeConflictingActivePair, CodeJoinClosed, CodeCapacityReached, CodeAlreadyJoined,
		CodeParticipantLocked, CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeRosterInsufficient:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// Error is a lifecycle failure with a code and a message naming the
// violated rule.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error that keeps cause in the chain.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// With returns a copy of e carrying one more metadata entry.
func (e *Error) With(key, value string) *Error {
	out := *e
	out.Metadata = make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		out.Metadata[k] = v
	}
	out.Metadata[key] = value
	return &out
}

// Sentinels for errors.Is.
var (
	ErrNotAuthorized         = New(CodeNotAuthorized, "not authorized")
	ErrInvalidState          = New(CodeInvalidState, "invalid state")
	ErrInvalidSlot           = New(CodeInvalidSlot, "invalid slot")
	ErrOutOfRange            = New(CodeOutOfRange, "out of range")
	ErrAlreadyScheduled      = New(CodeAlreadyScheduled, "already scheduled")
	ErrAlreadySubmitted      = New(CodeAlreadySubmitted, "already submitted")
	ErrPairNotReady          = New(CodePairNotReady, "pair not ready")
	ErrRosterInsufficient    = New(CodeRosterInsufficient, "roster insufficient")
	ErrConflictingActivePair = New(CodeConflictingActivePair, "conflicting active pair")
	ErrNotFound              = New(CodeNotFound, "not found")
	ErrJoinClosed            = New(CodeJoinClosed, "join closed")
	ErrCapacityReached       = New(CodeCapacityReached, "capacity reached")
	ErrAlreadyJoined         = New(CodeAlreadyJoined, "already joined")
	ErrParticipantLocked     = New(CodeParticipantLocked, "participant locked")
	ErrInvalidInput          = New(CodeInvalidInput, "invalid input")
	ErrConflict              = New(CodeConflict, "conflict")
)

func NotAuthorized(msg string) *Error    { return New(CodeNotAuthorized, msg) }
func InvalidState(msg string) *Error     { return New(CodeInvalidState, msg) }
func InvalidSlot(msg string) *Error      { return New(CodeInvalidSlot, msg) }
func OutOfRange(msg string) *Error       { return New(CodeOutOfRange, msg) }
func AlreadyScheduled(msg string) *Error { return New(CodeAlreadyScheduled, msg) }
func AlreadySubmitted(msg string) *Error { return New(CodeAlreadySubmitted, msg) }
func PairNotReady(msg string) *Error     { return New(CodePairNotReady, msg) }
func NotFound(msg string) *Error         { return New(CodeNotFound, msg) }
func InvalidInput(msg string) *Error     { return New(CodeInvalidInput, msg) }

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsDomain reports whether err carries a lifecycle code. Domain errors are
// final; the engine never retries them.
func IsDomain(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
