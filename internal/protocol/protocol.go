package protocol

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/danmuck/adbtp/internal/observability"
	"github.com/danmuck/adbtp/internal/protocol/deadline"
	"github.com/danmuck/adbtp/internal/protocol/wire"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Protocol is the lifecycle contract shared by both variants.
type Protocol interface {
	io.Closer
	Closed() bool
	ID() string
}

// MessageReadWriter is the blocking message contract.
type MessageReadWriter interface {
	Protocol
	Read(b deadline.Budget) (wire.Message, error)
	Write(msg wire.Message, b deadline.Budget) error
}

// ContextMessageReadWriter is the cooperative message contract.
type ContextMessageReadWriter interface {
	Protocol
	Read(ctx context.Context, b deadline.Budget) (wire.Message, error)
	Write(ctx context.Context, msg wire.Message, b deadline.Budget) error
}

var (
	_ MessageReadWriter        = (*Blocking)(nil)
	_ ContextMessageReadWriter = (*Cooperative)(nil)
)

type direction string

const (
	directionRead  direction = "read"
	directionWrite direction = "write"
	directionClose direction = "close"
)

type Option func(*core)

func WithCodec(c Codec) Option {
	return func(o *core) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithLogger sets the base logger; protocol and variant fields are added to it.
func WithLogger(l zerolog.Logger) Option {
	return func(o *core) {
		o.log = l
	}
}

// WithMetrics turns Prometheus recording on or off. It is on by default.
func WithMetrics(enabled bool) Option {
	return func(o *core) {
		o.metrics = enabled
	}
}

func WithID(id string) Option {
	return func(o *core) {
		if id != "" {
			o.id = id
		}
	}
}

// core is the variant-independent part of a protocol: identity, codec, logging
// and metrics.
type core struct {
	id      string
	variant string
	codec   Codec
	log     zerolog.Logger
	metrics bool
}

func newCore(variant string, opts []Option) core {
	c := core{
		id:      uuid.NewString(),
		variant: variant,
		codec:   wire.Codec{},
		log:     log.Logger,
		metrics: true,
	}
	for _, opt := range opts {
		opt(&c)
	}
	c.log = c.log.With().Str("protocol", c.id).Str("variant", variant).Logger()
	return c
}

func (c *core) ID() string {
	return c.id
}

func (c *core) pipeline(rw IO) pipeline {
	return newPipeline(rw, c.codec, c.log, c.metrics)
}

// record reports the outcome of one read or write.
func (c *core) record(dir direction, msg wire.Message, started time.Time, err error) {
	elapsed := time.Since(started)
	if err != nil {
		kind := errorKind(err)
		if c.metrics {
			observability.RecordProtocolError(c.variant, string(dir), kind)
		}
		ev := c.log.Warn()
		if IsIdleTimeout(err) {
			ev = c.log.Debug()
		}
		ev.
			Err(err).
			Str("op", string(dir)).
			Str("kind", kind).
			Dur("elapsed", elapsed).
			Msg("protocol_error")
		return
	}
	if dir == directionClose {
		c.log.Debug().Msg("protocol_closed")
		return
	}
	size := c.codec.HeaderBytes() + len(msg.Data)
	if c.metrics {
		observability.RecordProtocolMessage(c.variant, string(dir), size, elapsed)
	}
	c.log.Debug().
		Str("op", string(dir)).
		Str("command", wire.CommandName(msg.Header.Command)).
		Uint32("data_length", msg.Header.DataLength).
		Dur("elapsed", elapsed).
		Msg("protocol_message")
}

// IsIdleTimeout reports a timeout on the header read step, the usual result of
// reading from a peer that has nothing to send.
func IsIdleTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te) && te.Op == OpReadHeader
}
