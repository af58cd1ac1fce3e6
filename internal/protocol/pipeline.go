package protocol

import (
	"fmt"
	"time"

	"github.com/danmuck/adbtp/internal/observability"
	"github.com/danmuck/adbtp/internal/protocol/deadline"
	"github.com/danmuck/adbtp/internal/protocol/wire"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// OpReadHeader names the header read step in *Error and *TimeoutError.
const OpReadHeader = "read header"

// GraceOverage is spent on the payload step when the budget ran out between
// the header and the payload.
const GraceOverage = 100 * time.Millisecond

// IO is the minimal transport capability the pipeline needs.
type IO interface {
	Read(n int, t deadline.Timeout) ([]byte, error)
	Write(b []byte, t deadline.Timeout) error
}

// Codec is the wire format collaborator. wire.Codec is the default.
type Codec interface {
	HeaderBytes() int
	EncodeHeader(h wire.Header) []byte
	DecodeHeader(b []byte) (wire.Header, error)
	BuildMessage(h wire.Header, data []byte) (wire.Message, error)
}

// ReadMessage reads one header and its payload from rw under one budget. It takes
// no locks; callers that share rw must serialize reads themselves.
func ReadMessage(rw IO, codec Codec, b deadline.Budget) (wire.Message, error) {
	d := deadline.Wrap(b)
	defer d.Scope()()
	return newPipeline(rw, codec, log.Logger, true).read(d)
}

// WriteMessage writes msg's header then its payload to rw under one budget.
func WriteMessage(rw IO, codec Codec, msg wire.Message, b deadline.Budget) error {
	d := deadline.Wrap(b)
	defer d.Scope()()
	return newPipeline(rw, codec, log.Logger, true).write(msg, d)
}

type pipeline struct {
	io      IO
	codec   Codec
	log     zerolog.Logger
	metrics bool
}

func newPipeline(rw IO, codec Codec, logger zerolog.Logger, metrics bool) pipeline {
	if codec == nil {
		codec = wire.Codec{}
	}
	return pipeline{io: rw, codec: codec, log: logger, metrics: metrics}
}

func (p pipeline) read(d *deadline.Deadline) (wire.Message, error) {
	h, err := p.readHeader(d)
	if err != nil {
		return wire.Message{}, err
	}
	return p.readPayload(h, d)
}

func (p pipeline) write(msg wire.Message, d *deadline.Deadline) error {
	if n := uint32(len(msg.Data)); n != msg.Header.DataLength {
		return &Error{
			Op:  "write header",
			Err: fmt.Errorf("%w: header=%d data=%d", wire.ErrDataLength, msg.Header.DataLength, n),
		}
	}
	if err := p.writeHeader(msg.Header, d); err != nil {
		return err
	}
	return p.writePayload(msg, d)
}

func (p pipeline) readHeader(d *deadline.Deadline) (wire.Header, error) {
	const op = OpReadHeader
	t, err := d.Remaining()
	if err != nil {
		return wire.Header{}, err
	}
	b, err := p.io.Read(p.codec.HeaderBytes(), t)
	if err != nil {
		return wire.Header{}, translate(op, t, err)
	}
	h, err := p.codec.DecodeHeader(b)
	if err != nil {
		return wire.Header{}, translate(op, t, err)
	}
	return h, nil
}

func (p pipeline) readPayload(h wire.Header, d *deadline.Deadline) (wire.Message, error) {
	const op = "read payload"
	t := deadline.Undefined
	var data []byte
	if h.DataLength > 0 {
		var err error
		if t, err = p.payloadTimeout(directionRead, d); err != nil {
			return wire.Message{}, err
		}
		if data, err = p.io.Read(int(h.DataLength), t); err != nil {
			return wire.Message{}, translate(op, t, err)
		}
	}
	msg, err := p.codec.BuildMessage(h, data)
	if err != nil {
		return wire.Message{}, translate(op, t, err)
	}
	return msg, nil
}

func (p pipeline) writeHeader(h wire.Header, d *deadline.Deadline) error {
	const op = "write header"
	t, err := d.Remaining()
	if err != nil {
		return err
	}
	if err := p.io.Write(p.codec.EncodeHeader(h), t); err != nil {
		return translate(op, t, err)
	}
	return nil
}

func (p pipeline) writePayload(msg wire.Message, d *deadline.Deadline) error {
	const op = "write payload"
	if len(msg.Data) == 0 {
		return nil
	}
	t, err := p.payloadTimeout(directionWrite, d)
	if err != nil {
		return err
	}
	if err := p.io.Write(msg.Data, t); err != nil {
		return translate(op, t, err)
	}
	return nil
}

// payloadTimeout is the remaining budget, or GraceOverage when a bounded budget
// is exhausted at the header/payload boundary.
func (p pipeline) payloadTimeout(dir direction, d *deadline.Deadline) (deadline.Timeout, error) {
	t, err := d.Remaining()
	if err != nil {
		return t, err
	}
	if rem, ok := t.Duration(); ok && rem <= 0 {
		if p.metrics {
			observability.RecordGraceOverage(string(dir))
		}
		p.log.Debug().
			Str("op", string(dir)).
			Str("period", d.String()).
			Dur("overage", GraceOverage).
			Msg("budget exhausted before payload, applying grace overage")
		return deadline.After(GraceOverage), nil
	}
	return t, nil
}
