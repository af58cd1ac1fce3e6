package protocol

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/adbtp/internal/protocol/deadline"
	"github.com/danmuck/adbtp/internal/protocol/transport"
	"github.com/danmuck/adbtp/internal/protocol/wire"
)

// chanLock is a mutex whose Lock parks the caller until release or until ctx ends.
type chanLock chan struct{}

func newChanLock() chanLock {
	return make(chanLock, 1)
}

func (l chanLock) Lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l chanLock) Unlock() {
	<-l
}

// Cooperative is the context-driven protocol. Every transport step is a suspension
// point that ends when the transport completes or ctx is done. Direction locks
// follow the same rules as Blocking.
type Cooperative struct {
	core
	owner *owner[transport.ContextTransport]

	readLock  chanLock
	writeLock chanLock
}

func OpenCooperative(t transport.ContextTransport, opts ...Option) (*Cooperative, error) {
	if t == nil || t.Closed() {
		return nil, ErrClosed
	}
	p := &Cooperative{
		core:      newCore("cooperative", opts),
		owner:     newOwner(t),
		readLock:  newChanLock(),
		writeLock: newChanLock(),
	}
	p.log.Debug().Msg("protocol_opened")
	return p, nil
}

func (p *Cooperative) Closed() bool {
	return p.owner.state() == StateClosed
}

func (p *Cooperative) State() State {
	return p.owner.state()
}

// Read reads one message. A cancelled ctx while waiting for the read lock returns
// ctx.Err() as is.
func (p *Cooperative) Read(ctx context.Context, b deadline.Budget) (wire.Message, error) {
	if p.Closed() {
		return wire.Message{}, ErrClosed
	}
	if err := p.readLock.Lock(ctx); err != nil {
		return wire.Message{}, err
	}
	defer p.readLock.Unlock()

	t, err := p.owner.acquire()
	if err != nil {
		return wire.Message{}, err
	}
	started := time.Now()
	d := deadline.Wrap(b)
	end := d.Scope()
	msg, err := p.pipeline(contextIO{ctx: ctx, t: t}).read(d)
	end()
	p.record(directionRead, msg, started, err)
	return msg, err
}

func (p *Cooperative) Write(ctx context.Context, msg wire.Message, b deadline.Budget) error {
	if p.Closed() {
		return ErrClosed
	}
	if err := p.writeLock.Lock(ctx); err != nil {
		return err
	}
	defer p.writeLock.Unlock()

	t, err := p.owner.acquire()
	if err != nil {
		return err
	}
	started := time.Now()
	d := deadline.Wrap(b)
	end := d.Scope()
	err = p.pipeline(contextIO{ctx: ctx, t: t}).write(msg, d)
	end()
	p.record(directionWrite, msg, started, err)
	return err
}

// Close detaches and closes the transport. It does not wait for the direction locks.
func (p *Cooperative) Close() error {
	t, err := p.owner.detach()
	if err != nil {
		return err
	}
	err = translate(string(directionClose), deadline.Undefined, t.Close())
	p.record(directionClose, wire.Message{}, time.Now(), err)
	return err
}

func (p *Cooperative) String() string {
	t, err := p.owner.acquire()
	if err != nil {
		return fmt.Sprintf("<Cooperative(%s closed)>", p.id)
	}
	return fmt.Sprintf("<Cooperative(%s %v)>", p.id, t)
}

// contextIO binds ctx to a ContextTransport so the shared pipeline can drive it.
type contextIO struct {
	ctx context.Context
	t   transport.ContextTransport
}

func (c contextIO) Read(n int, t deadline.Timeout) ([]byte, error) {
	return c.t.ReadContext(c.ctx, n, t)
}

func (c contextIO) Write(b []byte, t deadline.Timeout) error {
	return c.t.WriteContext(c.ctx, b, t)
}
