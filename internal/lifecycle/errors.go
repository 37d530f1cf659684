package lifecycle

import (
	"errors"
	"fmt"

	"rental-booking/internal/repository"
)

// Error codes. The first two reject the operation and reach the caller; the last
// two are only ever written to logs as error_code.
const (
	CodeOverlappingRequest     = "OVERLAPPING_REQUEST"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeNotificationFailure    = "NOTIFICATION_FAILURE"
	CodeReconcilerCycleFailure = "RECONCILER_CYCLE_FAILURE"
)

// Error a rejected lifecycle operation. Message is safe to show to the user,
// Diagnostic is for operators.
type Error struct {
	Code       string
	Message    string
	Diagnostic string
}

func (e *Error) Error() string {
	if e.Diagnostic == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Diagnostic)
}

// NewOverlapError conflictingID is the APPROVED request that blocks the stay
func NewOverlapError(conflictingID string) *Error {
	return &Error{
		Code:       CodeOverlappingRequest,
		Message:    "the requested dates overlap an approved reservation",
		Diagnostic: "conflicting_request_id=" + conflictingID,
	}
}

func NewInvalidTransitionError(from string) *Error {
	return &Error{
		Code:       CodeInvalidTransition,
		Message:    "cannot change status once decided",
		Diagnostic: "current_status=" + from,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or ""
func CodeOf(err error) string {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// FromStore maps the refusals of the conditional writes onto the same codes the
// guard produces, so callers see one taxonomy whichever check caught it.
func FromStore(err error) error {
	var conflict *repository.ConflictError
	switch {
	case errors.As(err, &conflict):
		return NewOverlapError(conflict.ConflictingID)
	case errors.Is(err, repository.ErrStatusConflict):
		return NewInvalidTransitionError("decided")
	}
	return err
}
