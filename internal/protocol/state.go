package protocol

import (
	"sync"

	"github.com/danmuck/adbtp/internal/protocol/transport"
)

type State int

const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	if s == StateClosed {
		return "closed"
	}
	return "open"
}

// owner holds the one transport a protocol owns. The protocol is closed iff the
// transport has been detached or reports itself closed; once closed it never reopens.
type owner[T transport.Transport] struct {
	mu       sync.Mutex
	t        T
	detached bool
}

func newOwner[T transport.Transport](t T) *owner[T] {
	return &owner[T]{t: t}
}

func (o *owner[T]) state() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.detached || o.t.Closed() {
		return StateClosed
	}
	return StateOpen
}

// acquire is the closed-protocol guard: it returns the transport or ErrClosed
// without touching the transport's I/O.
func (o *owner[T]) acquire() (T, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var zero T
	if o.detached || o.t.Closed() {
		return zero, ErrClosed
	}
	return o.t, nil
}

// detach releases ownership exactly once.
func (o *owner[T]) detach() (T, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var zero T
	if o.detached || o.t.Closed() {
		o.detached = true
		return zero, ErrClosed
	}
	t := o.t
	o.t = zero
	o.detached = true
	return t, nil
}
