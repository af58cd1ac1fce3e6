package protocol

import (
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/adbtp/internal/protocol/deadline"
	"github.com/danmuck/adbtp/internal/protocol/transport"
	"github.com/danmuck/adbtp/internal/protocol/wire"
)

// Blocking is the synchronous protocol. Reads and writes may run concurrently with
// each other; two reads (or two writes) never interleave their header and payload.
type Blocking struct {
	core
	owner *owner[transport.Transport]

	readMu  sync.Mutex
	writeMu sync.Mutex
	closeMu sync.Mutex
}

// Open takes ownership of an already open transport.
func Open(t transport.Transport, opts ...Option) (*Blocking, error) {
	if t == nil || t.Closed() {
		return nil, ErrClosed
	}
	p := &Blocking{
		core:  newCore("blocking", opts),
		owner: newOwner(t),
	}
	p.log.Debug().Msg("protocol_opened")
	return p, nil
}

func (p *Blocking) Closed() bool {
	return p.owner.state() == StateClosed
}

func (p *Blocking) State() State {
	return p.owner.state()
}

// Read reads one message. The budget covers the header and payload together.
func (p *Blocking) Read(b deadline.Budget) (wire.Message, error) {
	if p.Closed() {
		return wire.Message{}, ErrClosed
	}
	p.readMu.Lock()
	defer p.readMu.Unlock()

	t, err := p.owner.acquire()
	if err != nil {
		return wire.Message{}, err
	}
	started := time.Now()
	d := deadline.Wrap(b)
	end := d.Scope()
	msg, err := p.pipeline(t).read(d)
	end()
	p.record(directionRead, msg, started, err)
	return msg, err
}

// Write writes one message. The budget covers the header and payload together.
func (p *Blocking) Write(msg wire.Message, b deadline.Budget) error {
	if p.Closed() {
		return ErrClosed
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	t, err := p.owner.acquire()
	if err != nil {
		return err
	}
	started := time.Now()
	d := deadline.Wrap(b)
	end := d.Scope()
	err = p.pipeline(t).write(msg, d)
	end()
	p.record(directionWrite, msg, started, err)
	return err
}

// Close closes and releases the transport. Closing a closed protocol returns ErrClosed.
func (p *Blocking) Close() error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()

	t, err := p.owner.detach()
	if err != nil {
		return err
	}
	err = translate(string(directionClose), deadline.Undefined, t.Close())
	p.record(directionClose, wire.Message{}, time.Now(), err)
	return err
}

func (p *Blocking) String() string {
	t, err := p.owner.acquire()
	if err != nil {
		return fmt.Sprintf("<Blocking(%s closed)>", p.id)
	}
	return fmt.Sprintf("<Blocking(%s %v)>", p.id, t)
}
