package protocol

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/danmuck/adbtp/internal/protocol/deadline"
	"github.com/danmuck/adbtp/internal/protocol/transport"
	"github.com/danmuck/adbtp/internal/protocol/wire"
)

type ioCall struct {
	op      string
	n       int
	timeout deadline.Timeout
}

// fakeTransport records every call and delegates I/O to the configured funcs.
type fakeTransport struct {
	mu       sync.Mutex
	calls    []ioCall
	closed   bool
	closeErr error
	read     func(n int, t deadline.Timeout) ([]byte, error)
	write    func(b []byte, t deadline.Timeout) error
}

var _ transport.ContextTransport = (*fakeTransport)(nil)

func (f *fakeTransport) Read(n int, t deadline.Timeout) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ioCall{op: "read", n: n, timeout: t})
	fn := f.read
	f.mu.Unlock()
	if fn == nil {
		return nil, &transport.OpError{Op: "read", Err: io.EOF}
	}
	return fn(n, t)
}

func (f *fakeTransport) Write(b []byte, t deadline.Timeout) error {
	f.mu.Lock()
	f.calls = append(f.calls, ioCall{op: "write", n: len(b), timeout: t})
	fn := f.write
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(b, t)
}

func (f *fakeTransport) ReadContext(ctx context.Context, n int, t deadline.Timeout) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &transport.OpError{Op: "read", Err: err}
	}
	return f.Read(n, t)
}

func (f *fakeTransport) WriteContext(ctx context.Context, b []byte, t deadline.Timeout) error {
	if err := ctx.Err(); err != nil {
		return &transport.OpError{Op: "write", Err: err}
	}
	return f.Write(b, t)
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return &transport.OpError{Op: "close", Err: transport.ErrClosed}
	}
	f.closed = true
	return f.closeErr
}

func (f *fakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) String() string {
	return "fake transport"
}

func (f *fakeTransport) snapshot() []ioCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ioCall(nil), f.calls...)
}

// feed serves the encoded messages as one byte stream.
func feed(msgs ...wire.Message) func(n int, t deadline.Timeout) ([]byte, error) {
	var mu sync.Mutex
	var stream bytes.Buffer
	for _, msg := range msgs {
		stream.Write(wire.EncodeHeader(msg.Header))
		stream.Write(msg.Data)
	}
	return func(n int, _ deadline.Timeout) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		out := make([]byte, n)
		if _, err := io.ReadFull(&stream, out); err != nil {
			return nil, &transport.OpError{Op: "read", Err: err}
		}
		return out, nil
	}
}

// bufferIO is an IO over an in-memory byte stream.
type bufferIO struct {
	buf *bytes.Buffer
}

func (b bufferIO) Read(n int, _ deadline.Timeout) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(b.buf, out); err != nil {
		return nil, &transport.OpError{Op: "read", Err: err}
	}
	return out, nil
}

func (b bufferIO) Write(p []byte, _ deadline.Timeout) error {
	b.buf.Write(p)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sameMessage(a, b wire.Message) bool {
	return a.Header == b.Header && bytes.Equal(a.Data, b.Data)
}
