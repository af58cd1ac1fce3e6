package deadline

import (
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/adbtp/internal/protocol/protoerr"
)

// ErrNotStarted is returned by accessors used before Start. It also matches
// protoerr.ErrProtocol.
var ErrNotStarted error = notStartedError{}

type notStartedError struct{}

func (notStartedError) Error() string { return "deadline: not started" }

func (notStartedError) Is(target error) bool { return target == protoerr.ErrProtocol }

// Budget is either a Timeout or a *Deadline. Wrap turns any Budget into a Deadline.
type Budget interface {
	budget()
}

type Option func(*Deadline)

// WithClock replaces time.Now as the deadline time source.
func WithClock(now func() time.Time) Option {
	return func(d *Deadline) {
		if now != nil {
			d.now = now
		}
	}
}

// Deadline tracks elapsed and remaining time for one logical operation that spans
// several sequential I/O calls.
type Deadline struct {
	mu        sync.Mutex
	period    Timeout
	now       func() time.Time
	startedAt time.Time
	stoppedAt time.Time
	started   bool
	stopped   bool
}

func New(period Timeout, opts ...Option) *Deadline {
	d := &Deadline{period: period, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Wrap returns b unchanged when it is already a *Deadline so that one budget can be
// threaded through an enclosing scope. A Timeout builds a new Deadline with its
// period truncated to whole milliseconds.
func Wrap(b Budget, opts ...Option) *Deadline {
	switch v := b.(type) {
	case *Deadline:
		if v != nil {
			return v
		}
	case Timeout:
		return New(v.truncate(), opts...)
	}
	return New(Undefined, opts...)
}

func (*Deadline) budget() {}

func (d *Deadline) Period() Timeout {
	return d.period
}

func (d *Deadline) Undefined() bool {
	return d.period.IsUndefined()
}

func (d *Deadline) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

func (d *Deadline) Stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// Start records the current time as the start. Calling it again overwrites the start.
func (d *Deadline) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startedAt = d.now()
	d.started = true
}

func (d *Deadline) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return notStarted("stop")
	}
	d.stoppedAt = d.now()
	d.stopped = true
	return nil
}

// Scope enters the deadline for one operation. It starts the deadline unless it is
// already running and returns a func that stops it only if this call started it.
func (d *Deadline) Scope() (end func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return func() {}
	}
	d.startedAt = d.now()
	d.started = true
	return func() { _ = d.Stop() }
}

// Elapsed is the time since Start, frozen at Stop, floored to whole milliseconds.
func (d *Deadline) Elapsed() (time.Duration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return 0, notStarted("elapsed")
	}
	return d.elapsedLocked(), nil
}

// Remaining returns the period itself when it is undefined or infinite, otherwise
// the unspent part of the period floored at zero.
func (d *Deadline) Remaining() (Timeout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return Undefined, notStarted("remaining")
	}
	return d.remainingLocked(), nil
}

func (d *Deadline) Exceeded() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return false, notStarted("exceeded")
	}
	rem, ok := d.remainingLocked().Duration()
	return ok && rem <= 0, nil
}

func (d *Deadline) String() string {
	return d.period.String()
}

func (d *Deadline) elapsedLocked() time.Duration {
	end := d.now()
	if d.stopped {
		end = d.stoppedAt
	}
	el := end.Sub(d.startedAt)
	if el < 0 {
		return 0
	}
	return el.Truncate(time.Millisecond)
}

func (d *Deadline) remainingLocked() Timeout {
	period, ok := d.period.Duration()
	if !ok {
		return d.period
	}
	return After(period - d.elapsedLocked())
}

func notStarted(op string) error {
	return fmt.Errorf("%w: %s requires a started deadline", ErrNotStarted, op)
}
