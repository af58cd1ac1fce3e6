// Package transport owns the raw byte-stream side of the protocol.
//
// Ownership boundary:
// - exact-length reads and whole-buffer writes under a per-call timeout
// - transport default timeout resolution
// - transport error and timeout error types
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/adbtp/internal/protocol/deadline"
)

var (
	ErrTransport = errors.New("transport: error")
	ErrClosed    = fmt.Errorf("%w: closed", ErrTransport)
)

// Transport reads and writes raw bytes. A Timeout of deadline.Undefined means the
// transport's own default; deadline.Infinite means no limit.
type Transport interface {
	Read(n int, t deadline.Timeout) ([]byte, error)
	Write(b []byte, t deadline.Timeout) error
	Close() error
	Closed() bool
}

// ContextTransport is a Transport whose calls also end when ctx is done.
type ContextTransport interface {
	Transport
	ReadContext(ctx context.Context, n int, t deadline.Timeout) ([]byte, error)
	WriteContext(ctx context.Context, b []byte, t deadline.Timeout) error
}

// OpError is a non-timeout transport failure.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func (e *OpError) Is(target error) bool { return target == ErrTransport }

// TimeoutError reports that a transport call ran out of time.
type TimeoutError struct {
	Op      string
	Timeout deadline.Timeout
	Err     error
}

func (e *TimeoutError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport: %s exceeded timeout %s", e.Op, e.Timeout)
	}
	return fmt.Sprintf("transport: %s exceeded timeout %s: %v", e.Op, e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Is(target error) bool { return target == ErrTransport }

func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
