package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/adbtp/internal/protocol/deadline"
	"github.com/danmuck/adbtp/internal/testutil/testlog"
	"github.com/danmuck/adbtp/internal/testutil/tlstest"
)

func TestValidateTLSConfig(t *testing.T) {
	testlog.Start(t)
	if err := (TLSConfig{}).ValidateClient(); err != nil {
		t.Fatalf("plain client should validate: %v", err)
	}
	if err := (TLSConfig{Mutual: true}).ValidateServer(); !errors.Is(err, ErrTLSRequired) {
		t.Fatalf("mutual without tls: %v", err)
	}
	if err := (TLSConfig{Enabled: true}).ValidateClient(); !errors.Is(err, ErrTLSCAFileRequired) {
		t.Fatalf("client without ca: %v", err)
	}
	if err := (TLSConfig{Enabled: true, InsecureSkipVerify: true}).ValidateClient(); err != nil {
		t.Fatalf("insecure client: %v", err)
	}
	if err := (TLSConfig{Enabled: true, Mutual: true, InsecureSkipVerify: true}).ValidateClient(); !errors.Is(err, ErrTLSInsecureSkipNotAllow) {
		t.Fatalf("mutual insecure client: %v", err)
	}
	if err := (TLSConfig{Enabled: true, CAFile: "ca.crt", Mutual: true}).ValidateClient(); !errors.Is(err, ErrTLSCertFileRequired) {
		t.Fatalf("mutual client without cert: %v", err)
	}
	if err := (TLSConfig{Enabled: true, CertFile: "s.crt"}).ValidateServer(); !errors.Is(err, ErrTLSKeyFileRequired) {
		t.Fatalf("server without key: %v", err)
	}
	if err := (TLSConfig{Enabled: true, CertFile: "s.crt", KeyFile: "s.key", Mutual: true}).ValidateServer(); !errors.Is(err, ErrTLSCAFileRequired) {
		t.Fatalf("mutual server without ca: %v", err)
	}
}

func tlsPair(t *testing.T) (TLSConfig, TLSConfig) {
	t.Helper()
	ca := tlstest.NewAuthority(t, "adbtp-test-ca")
	serverCert, serverKey := ca.Server(t, "adbtpd")
	clientCert, clientKey := ca.Client(t, "adbtpctl")
	server := TLSConfig{Enabled: true, Mutual: true, CertFile: serverCert, KeyFile: serverKey, CAFile: ca.CAFile()}
	client := TLSConfig{Enabled: true, Mutual: true, CertFile: clientCert, KeyFile: clientKey, CAFile: ca.CAFile()}
	return server, client
}

func TestMutualTLSRoundTrip(t *testing.T) {
	testlog.Start(t)
	serverCfg, clientCfg := tlsPair(t)
	ln, err := ListenTLS("127.0.0.1:0", serverCfg)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		c, err := ln.Accept(ctx)
		if err != nil {
			errc <- err
			return
		}
		defer c.Close()
		if err := c.Handshake(ctx, deadline.Seconds(3)); err != nil {
			errc <- err
			return
		}
		b, err := c.Read(4, deadline.Seconds(3))
		if err != nil {
			errc <- err
			return
		}
		errc <- c.Write(b, deadline.Seconds(3))
	}()

	c, err := DialTLS(ctx, ln.Addr().String(), clientCfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	if err := c.Write([]byte("ping"), deadline.Seconds(3)); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := c.Read(4, deadline.Seconds(3))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "ping" {
		t.Fatalf("echo=%q", got)
	}
	if err := <-errc; err != nil {
		t.Fatalf("server: %v", err)
	}
}

func TestMutualTLSRejectsClientWithoutCert(t *testing.T) {
	testlog.Start(t)
	serverCfg, clientCfg := tlsPair(t)
	ln, err := ListenTLS("127.0.0.1:0", serverCfg)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() {
		c, err := ln.Accept(ctx)
		if err != nil {
			return
		}
		defer c.Close()
		_, _ = c.Read(1, deadline.Seconds(3))
	}()

	anonymous := TLSConfig{Enabled: true, CAFile: clientCfg.CAFile}
	c, err := DialTLS(ctx, ln.Addr().String(), anonymous)
	if err != nil {
		return
	}
	defer c.Close()
	if _, err := c.Read(1, deadline.Seconds(3)); err == nil {
		t.Fatalf("server accepted a client without a certificate")
	}
}

func TestDisabledTLSIsPlainTCP(t *testing.T) {
	testlog.Start(t)
	ln, err := ListenTLS("127.0.0.1:0", TLSConfig{})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() {
		if c, err := ln.Accept(ctx); err == nil {
			_ = c.Write([]byte("ok"), deadline.Seconds(2))
			_ = c.Close()
		}
	}()
	c, err := DialTLS(ctx, ln.Addr().String(), TLSConfig{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	if err := c.Handshake(ctx, deadline.Seconds(1)); err != nil {
		t.Fatalf("plain handshake should be a no-op: %v", err)
	}
	if got, err := c.Read(2, deadline.Seconds(2)); err != nil || string(got) != "ok" {
		t.Fatalf("read: %q %v", got, err)
	}
}

func TestHandshakeTimesOutOnSilentPeer(t *testing.T) {
	testlog.Start(t)
	serverCfg, _ := tlsPair(t)
	ln, err := ListenTLS("127.0.0.1:0", serverCfg)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// plain TCP client that never speaks TLS
	raw, err := Dial(ctx, ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer raw.Close()

	c, err := ln.Accept(ctx)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer c.Close()
	err = c.Handshake(ctx, deadline.Millis(50))
	var te *TimeoutError
	if !errors.As(err, &te) || te.Op != "handshake" || te.Timeout != deadline.Millis(50) {
		t.Fatalf("expected handshake timeout, got %v", err)
	}
}
