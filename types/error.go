package types

import (
	"time"

	"github.com/juju/errors"
)

var (
	_ error = &RetryError{}
	_ error = &FatalError{}
	_ error = &RoutingError{}
)

// NewRetryError marks otherErr as transient; the node waits backoff before
// invoking its handler again.
func NewRetryError(otherErr error, backoff time.Duration) error {
	return &RetryError{baseError: newBaseErr(otherErr), Backoff: backoff}
}

func NewRetryErrorf(backoff time.Duration, format string, args ...interface{}) error {
	return NewRetryError(errors.Errorf(format, args...), backoff)
}

// NewFatalError marks otherErr as permanent; the node fails without
// spending its retry budget.
func NewFatalError(otherErr error) error {
	return &FatalError{baseError: newBaseErr(otherErr)}
}

func NewFatalErrorf(format string, args ...interface{}) error {
	return NewFatalError(errors.Errorf(format, args...))
}

func NewRoutingErrorf(format string, args ...interface{}) error {
	return &RoutingError{baseError: newBaseErr(errors.Errorf(format, args...))}
}

func newBaseErr(otherErr error) *baseError {
	return &baseError{unwrapErr(otherErr)}
}

func unwrapErr(err error) error {
	if err == nil {
		return nil
	}
	if ue, ok := err.(wrappedErr); ok {
		return unwrapErr(ue.UnwrapLocal())
	}
	return err
}

type wrappedErr interface {
	UnwrapLocal() error
}

type baseError struct {
	BaseErr error
}

func (e *baseError) Error() string {
	if e.BaseErr == nil {
		return "<nil>"
	}
	return e.BaseErr.Error()
}

func (e *baseError) UnwrapLocal() error {
	return e.BaseErr
}

func (e *baseError) Unwrap() error {
	return e.BaseErr
}

type RetryError struct {
	*baseError
	Backoff time.Duration
}

type FatalError struct {
	*baseError
}

// RoutingError is a configuration-class failure of the graph walk itself:
// no start node, or a successor name that is not registered.
type RoutingError struct {
	*baseError
}

func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

func IsRoutingError(err error) bool {
	var re *RoutingError
	return errors.As(err, &re)
}

// RetryBackoff returns the backoff carried by a RetryError in err's chain.
func RetryBackoff(err error) (time.Duration, bool) {
	var re *RetryError
	if errors.As(err, &re) {
		return re.Backoff, true
	}
	return 0, false
}
