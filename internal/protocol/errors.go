package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/adbtp/internal/protocol/deadline"
	"github.com/danmuck/adbtp/internal/protocol/protoerr"
	"github.com/danmuck/adbtp/internal/protocol/transport"
)

var (
	ErrProtocol = protoerr.ErrProtocol
	ErrTimeout  = errors.New("protocol: transport protocol timeout")
	ErrClosed   = errors.New("protocol: cannot perform this action against closed protocol")

	// ErrTimeoutNotStarted is returned by deadline accessors used before Start.
	// It matches ErrProtocol.
	ErrTimeoutNotStarted = deadline.ErrNotStarted
)

// Error is a transport or codec failure observed by one pipeline step.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("protocol: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrProtocol }

// TimeoutError is a transport call that exceeded the timeout in effect for its step.
type TimeoutError struct {
	Op      string
	Timeout deadline.Timeout
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("protocol: %s: exceeded timeout %s: %v", e.Op, e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout || target == ErrProtocol
}

// translate maps a lower-layer failure from step op onto the taxonomy. t is the
// timeout the step passed to the transport.
func translate(op string, t deadline.Timeout, err error) error {
	if err == nil {
		return nil
	}
	var te *transport.TimeoutError
	if errors.As(err, &te) {
		if !te.Timeout.IsUndefined() {
			t = te.Timeout
		}
		return &TimeoutError{Op: op, Timeout: t, Err: err}
	}
	return &Error{Op: op, Err: err}
}

// errorKind labels err for metrics and logs.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
