package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/danmuck/adbtp/internal/config"
	"github.com/danmuck/adbtp/internal/logging"
	"github.com/danmuck/adbtp/internal/observability"
	"github.com/danmuck/adbtp/internal/protocol"
	"github.com/danmuck/adbtp/internal/protocol/deadline"
	"github.com/danmuck/adbtp/internal/protocol/transport"
	"github.com/danmuck/adbtp/internal/protocol/wire"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// session is one dialed protocol with the variant hidden behind ctx-taking calls.
type session struct {
	protocol.Protocol
	exchange func(ctx context.Context, req wire.Message, b deadline.Budget) (wire.Message, error)
	read     func(ctx context.Context, b deadline.Budget) (wire.Message, error)
}

func clientConfig(c *cli.Context) (config.ClientConfig, error) {
	cfg := config.ClientConfig{
		Addr:             "127.0.0.1:5037",
		Variant:          config.VariantBlocking,
		Timeout:          deadline.Seconds(3),
		TransportTimeout: deadline.After(transport.DefaultTimeout),
	}
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadClientConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if v := strings.TrimSpace(c.String("addr")); v != "" {
		cfg.Addr = v
	}
	if v := c.String("timeout"); v != "" {
		t, err := deadline.Parse(v)
		if err != nil {
			return cfg, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = t
	}
	if v := c.String("variant"); v != "" {
		cfg.Variant = v
	}
	if err := config.ValidateClientConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func dial(ctx context.Context, cfg config.ClientConfig) (*session, error) {
	conn, err := transport.DialTLS(ctx, cfg.Addr, cfg.TLS, transport.WithDefaultTimeout(cfg.TransportTimeout))
	if err != nil {
		return nil, err
	}
	logger := log.Logger.With().Str("addr", cfg.Addr).Logger()
	if cfg.Variant == config.VariantCooperative {
		p, err := protocol.OpenCooperative(conn, protocol.WithLogger(logger))
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return &session{Protocol: p, exchange: p.Exchange, read: p.Read}, nil
	}
	p, err := protocol.Open(conn, protocol.WithLogger(logger))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &session{
		Protocol: p,
		exchange: func(_ context.Context, req wire.Message, b deadline.Budget) (wire.Message, error) {
			return p.Exchange(req, b)
		},
		read: func(_ context.Context, b deadline.Budget) (wire.Message, error) {
			return p.Read(b)
		},
	}, nil
}

// configureLogging rebuilds the global logger from a [log] table. An empty
// table keeps the logger main configured.
func configureLogging(l config.LogConfig) {
	if l == (config.LogConfig{}) {
		return
	}
	observability.InitLogger("adbtpctl", l.Apply(logging.Resolve(logging.ProfileRuntime)))
}

// withSession dials, runs fn under one deadline for the whole command, and closes.
func withSession(c *cli.Context, fn func(s *session, d *deadline.Deadline) error) error {
	cfg, err := clientConfig(c)
	if err != nil {
		return err
	}
	configureLogging(cfg.Log)
	s, err := dial(c.Context, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	d := deadline.Wrap(cfg.Timeout)
	defer d.Scope()()
	if err := fn(s, d); err != nil {
		return err
	}
	elapsed, _ := d.Elapsed()
	log.Debug().Str("session", s.ID()).Dur("elapsed", elapsed).Str("budget", d.String()).Msg("command_done")
	return nil
}

func connectCmd(c *cli.Context) error {
	return withSession(c, func(s *session, d *deadline.Deadline) error {
		reply, err := s.exchange(c.Context, wire.NewMessage(wire.CommandCNXN, 0x01000000, wire.MaxDataLength, []byte("host::\x00")), d)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s %s\n", wire.CommandName(reply.Header.Command), strings.TrimRight(string(reply.Data), "\x00"))
		return nil
	})
}

func sendCmd(c *cli.Context) error {
	payload := c.Args().First()
	local, remote := uint32(c.Uint("local")), uint32(c.Uint("remote"))
	return withSession(c, func(s *session, d *deadline.Deadline) error {
		ack, err := s.exchange(c.Context, wire.NewMessage(wire.CommandWRTE, local, remote, []byte(payload)), d)
		if err != nil {
			return err
		}
		if ack.Header.Command != wire.CommandOKAY {
			return fmt.Errorf("expected OKAY, got %s", wire.CommandName(ack.Header.Command))
		}
		echoed, err := s.read(c.Context, d)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s %d %d %s\n",
			wire.CommandName(echoed.Header.Command), echoed.Header.Arg0, echoed.Header.Arg1, echoed.Data)
		return nil
	})
}
