package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/danmuck/adbtp/internal/protocol/deadline"
)

var (
	ErrTLSRequired             = errors.New("transport: tls required")
	ErrTLSCertFileRequired     = errors.New("transport: tls cert file required")
	ErrTLSKeyFileRequired      = errors.New("transport: tls key file required")
	ErrTLSCAFileRequired       = errors.New("transport: tls ca file required")
	ErrTLSInsecureSkipNotAllow = errors.New("transport: insecure skip verify not allowed with mutual tls")
)

// TLSConfig selects TLS for Dial and Listen. The zero value is plain TCP.
type TLSConfig struct {
	Enabled            bool   `toml:"enabled"`
	Mutual             bool   `toml:"mutual"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

func (c TLSConfig) ValidateClient() error {
	if c.Mutual && !c.Enabled {
		return ErrTLSRequired
	}
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.CAFile) == "" && !c.InsecureSkipVerify {
		return ErrTLSCAFileRequired
	}
	if c.Mutual {
		if c.InsecureSkipVerify {
			return ErrTLSInsecureSkipNotAllow
		}
		if strings.TrimSpace(c.CertFile) == "" {
			return ErrTLSCertFileRequired
		}
		if strings.TrimSpace(c.KeyFile) == "" {
			return ErrTLSKeyFileRequired
		}
	}
	return nil
}

func (c TLSConfig) ValidateServer() error {
	if c.Mutual && !c.Enabled {
		return ErrTLSRequired
	}
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.CertFile) == "" {
		return ErrTLSCertFileRequired
	}
	if strings.TrimSpace(c.KeyFile) == "" {
		return ErrTLSKeyFileRequired
	}
	if c.Mutual && strings.TrimSpace(c.CAFile) == "" {
		return ErrTLSCAFileRequired
	}
	return nil
}

// clientConfig builds the client side; the server name defaults to addr's host.
func (c TLSConfig) clientConfig(addr string) (*tls.Config, error) {
	if err := c.ValidateClient(); err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
	serverName := strings.TrimSpace(c.ServerName)
	if serverName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		serverName = host
	}
	cfg.ServerName = serverName

	if caPath := strings.TrimSpace(c.CAFile); caPath != "" {
		pool, err := loadPool(caPath)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	if c.Mutual {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func (c TLSConfig) serverConfig() (*tls.Config, error) {
	if err := c.ValidateServer(); err != nil {
		return nil, err
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.NoClientCert,
	}
	if c.Mutual {
		pool, err := loadPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
		cfg.ClientCAs = pool
	}
	return cfg, nil
}

func loadPool(path string) (*x509.CertPool, error) {
	caPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("transport: parse tls ca bundle: %s", path)
	}
	return pool, nil
}

// DialTLS opens a TCP transport and completes the TLS handshake before returning.
// A disabled cfg behaves like Dial.
func DialTLS(ctx context.Context, addr string, cfg TLSConfig, opts ...Option) (*Conn, error) {
	if !cfg.Enabled {
		return Dial(ctx, addr, opts...)
	}
	tlsCfg, err := cfg.clientConfig(addr)
	if err != nil {
		return nil, &OpError{Op: "dial", Err: err}
	}
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &OpError{Op: "dial", Err: err}
	}
	conn := tls.Client(raw, tlsCfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, &OpError{Op: "handshake", Err: err}
	}
	return NewConn(conn, opts...), nil
}

// ListenTLS accepts TLS transports. The handshake runs on Handshake or on the
// first read or write, bounded by that call's timeout. A disabled cfg behaves
// like Listen.
func ListenTLS(addr string, cfg TLSConfig, opts ...Option) (*Listener, error) {
	if !cfg.Enabled {
		return Listen(addr, opts...)
	}
	tlsCfg, err := cfg.serverConfig()
	if err != nil {
		return nil, &OpError{Op: "listen", Err: err}
	}
	ln, err := tls.Listen("tcp", addr, tlsCfg)
	if err != nil {
		return nil, &OpError{Op: "listen", Err: err}
	}
	return &Listener{ln: ln, opts: opts}, nil
}

// Handshake completes the TLS handshake within t. It is a no-op on plain
// transports. A failed handshake is permanent for the connection.
func (c *Conn) Handshake(ctx context.Context, t deadline.Timeout) error {
	const op = "handshake"
	tc, ok := c.conn.(*tls.Conn)
	if !ok {
		return nil
	}
	t, err := c.begin(ctx, op, t, c.conn.SetDeadline)
	if err != nil {
		return err
	}
	if err := tc.HandshakeContext(ctx); err != nil {
		return c.fail(ctx, op, t, err)
	}
	if err := c.conn.SetDeadline(time.Time{}); err != nil {
		return &OpError{Op: op, Err: err}
	}
	return nil
}
