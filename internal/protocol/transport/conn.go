package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/danmuck/adbtp/internal/protocol/deadline"
)

// DefaultTimeout is applied when a caller passes deadline.Undefined.
const DefaultTimeout = 10 * time.Second

type Option func(*Conn)

// WithDefaultTimeout replaces the timeout used for deadline.Undefined.
// Passing deadline.Undefined itself disables the default (no I/O deadline).
func WithDefaultTimeout(t deadline.Timeout) Option {
	return func(c *Conn) {
		c.defaultTimeout = t
	}
}

// Conn is a Transport over one net.Conn.
type Conn struct {
	conn           net.Conn
	defaultTimeout deadline.Timeout
	closed         atomic.Bool
}

var _ ContextTransport = (*Conn)(nil)

func NewConn(c net.Conn, opts ...Option) *Conn {
	out := &Conn{conn: c, defaultTimeout: deadline.After(DefaultTimeout)}
	for _, opt := range opts {
		opt(out)
	}
	return out
}

// Pipe returns two connected in-memory transports.
func Pipe(opts ...Option) (*Conn, *Conn) {
	a, b := net.Pipe()
	return NewConn(a, opts...), NewConn(b, opts...)
}

func (c *Conn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *Conn) String() string {
	return "conn " + c.conn.LocalAddr().String() + "->" + c.conn.RemoteAddr().String()
}

func (c *Conn) Closed() bool {
	return c.closed.Load()
}

func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return &OpError{Op: "close", Err: ErrClosed}
	}
	if err := c.conn.Close(); err != nil {
		return &OpError{Op: "close", Err: err}
	}
	return nil
}

func (c *Conn) Read(n int, t deadline.Timeout) ([]byte, error) {
	return c.ReadContext(context.Background(), n, t)
}

func (c *Conn) Write(b []byte, t deadline.Timeout) error {
	return c.WriteContext(context.Background(), b, t)
}

// ReadContext reads exactly n bytes.
func (c *Conn) ReadContext(ctx context.Context, n int, t deadline.Timeout) ([]byte, error) {
	const op = "read"
	t, err := c.begin(ctx, op, t, c.conn.SetReadDeadline)
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()

	buf := make([]byte, n)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return nil, c.fail(ctx, op, t, err)
	}
	return buf, nil
}

// WriteContext writes all of b.
func (c *Conn) WriteContext(ctx context.Context, b []byte, t deadline.Timeout) error {
	const op = "write"
	t, err := c.begin(ctx, op, t, c.conn.SetWriteDeadline)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetWriteDeadline(time.Now()) })
	defer stop()

	if _, err := c.conn.Write(b); err != nil {
		return c.fail(ctx, op, t, err)
	}
	return nil
}

// begin resolves t and arms the conn deadline for one call.
func (c *Conn) begin(ctx context.Context, op string, t deadline.Timeout, set func(time.Time) error) (deadline.Timeout, error) {
	if c.closed.Load() {
		return t, &OpError{Op: op, Err: ErrClosed}
	}
	if err := ctx.Err(); err != nil {
		return t, &OpError{Op: op, Err: err}
	}
	t = t.OrDefault(c.defaultTimeout)

	var at time.Time
	if d, ok := t.Duration(); ok {
		if d <= 0 {
			return t, &TimeoutError{Op: op, Timeout: t}
		}
		at = time.Now().Add(d)
	}
	if err := set(at); err != nil {
		return t, &OpError{Op: op, Err: err}
	}
	return t, nil
}

func (c *Conn) fail(ctx context.Context, op string, t deadline.Timeout, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &OpError{Op: op, Err: ctxErr}
	}
	if isNetTimeout(err) {
		return &TimeoutError{Op: op, Timeout: t, Err: err}
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return &OpError{Op: op, Err: errors.Join(ErrClosed, err)}
	}
	return &OpError{Op: op, Err: err}
}

func isNetTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
