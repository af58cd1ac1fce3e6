package transport

import (
	"context"
	"net"
)

// Dial opens a TCP transport to addr.
func Dial(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &OpError{Op: "dial", Err: err}
	}
	return NewConn(c, opts...), nil
}

// Listener accepts TCP transports.
type Listener struct {
	ln   net.Listener
	opts []Option
}

func Listen(addr string, opts ...Option) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &OpError{Op: "listen", Err: err}
	}
	return &Listener{ln: ln, opts: opts}, nil
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Accept blocks until a peer connects. When ctx ends the listener is closed.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	stop := context.AfterFunc(ctx, func() { _ = l.ln.Close() })
	defer stop()

	c, err := l.ln.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &OpError{Op: "accept", Err: err}
	}
	return NewConn(c, l.opts...), nil
}

func (l *Listener) Close() error {
	return l.ln.Close()
}
