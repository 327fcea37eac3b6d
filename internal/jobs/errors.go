package jobs

import (
	"errors"
	"fmt"
)

var ErrValidation = errors.New("job validation failed")

// ValidationError rejects a job before any probe runs.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalidf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
