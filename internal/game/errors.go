package game

import (
	"errors"
	"fmt"
)

// Rejection kinds. A rejected action never changes the session.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrIllegalPhase = errors.New("illegal phase")
)

// RejectionError carries the human-readable reason an action was refused
type RejectionError struct {
	Kind   error
	Action Action
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return e.Kind
}

func invalidInput(action Action, format string, args ...interface{}) error {
	return &RejectionError{Kind: ErrInvalidInput, Action: action, Reason: fmt.Sprintf(format, args...)}
}

func illegalPhase(action Action, format string, args ...interface{}) error {
	return &RejectionError{Kind: ErrIllegalPhase, Action: action, Reason: fmt.Sprintf(format, args...)}
}

// Reason returns the display reason of a rejection, or the error text
func Reason(err error) string {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return err.Error()
}

// IsRejection reports whether err is a designed-for rejection rather than an internal fault
func IsRejection(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej)
}
