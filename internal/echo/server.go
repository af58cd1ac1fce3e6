package echo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/adbtp/internal/config"
	"github.com/danmuck/adbtp/internal/observability"
	"github.com/danmuck/adbtp/internal/protocol"
	"github.com/danmuck/adbtp/internal/protocol/deadline"
	"github.com/danmuck/adbtp/internal/protocol/transport"
	"github.com/danmuck/adbtp/internal/protocol/wire"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ServerConfig struct {
	ID       string
	Addr     string
	HTTPAddr string
	Variant  string
	// ReadTimeout bounds each inbound message. A header timeout keeps the
	// connection; anything else ends it.
	ReadTimeout  deadline.Timeout
	WriteTimeout deadline.Timeout
	// TransportTimeout is what deadline.Undefined resolves to on each connection.
	TransportTimeout deadline.Timeout
	TLS              transport.TLSConfig
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ID:               "adbtpd",
		Addr:             ":5037",
		HTTPAddr:         "127.0.0.1:9137",
		Variant:          config.VariantBlocking,
		ReadTimeout:      deadline.Infinite(),
		WriteTimeout:     deadline.Seconds(5),
		TransportTimeout: deadline.After(transport.DefaultTimeout),
	}
}

// Server answers every connection with a protocol of the configured variant and
// echoes what it reads.
type Server struct {
	cfg      ServerConfig
	router   *gin.Engine
	appeared time.Time
	log      zerolog.Logger

	mu       sync.Mutex
	ln       *transport.Listener
	sessions map[string]*session
	wg       sync.WaitGroup
}

type session struct {
	id       string
	remote   string
	opened   time.Time
	messages atomic.Uint64
	endpoint *endpoint
}

// endpoint hides the variant behind one read/write pair.
type endpoint struct {
	protocol.Protocol
	read  func(ctx context.Context) (wire.Message, error)
	write func(ctx context.Context, msg wire.Message) error
}

func NewServer(cfg ServerConfig) *Server {
	observability.RegisterMetrics()
	logger := log.Logger.With().Str("server", cfg.ID).Logger()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestObserver(cfg.ID, logger))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:      cfg,
		router:   r,
		appeared: time.Now(),
		log:      logger,
		sessions: make(map[string]*session),
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) Config() ServerConfig {
	return s.cfg
}

// Listen binds the protocol listener. Serve calls it when needed.
func (s *Server) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr(), nil
	}
	if err := config.ValidateVariant(s.cfg.Variant); err != nil {
		return nil, err
	}
	if err := config.ValidateReadTimeout(s.cfg.ReadTimeout); err != nil {
		return nil, err
	}
	ln, err := transport.ListenTLS(s.cfg.Addr, s.cfg.TLS, transport.WithDefaultTimeout(s.cfg.TransportTimeout))
	if err != nil {
		return nil, err
	}
	s.ln = ln
	return ln.Addr(), nil
}

// Serve accepts connections until ctx ends, then closes every session and waits
// for their handlers. The HTTP surface runs alongside when HTTPAddr is set.
func (s *Server) Serve(ctx context.Context) error {
	addr, err := s.Listen()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	s.log.Info().
		Str("addr", addr.String()).
		Str("variant", s.cfg.Variant).
		Bool("tls", s.cfg.TLS.Enabled).
		Bool("mutual_tls", s.cfg.TLS.Mutual).
		Str("read_timeout", s.cfg.ReadTimeout.String()).
		Str("write_timeout", s.cfg.WriteTimeout.String()).
		Msg("echo_listening")

	if s.cfg.HTTPAddr != "" {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.serveHTTP(ctx); err != nil {
				s.log.Error().Err(err).Str("addr", s.cfg.HTTPAddr).Msg("http_failed")
			}
		}()
	}
	defer s.shutdown()
	defer cancel()

	for {
		conn, err := s.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("echo accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) serveHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()
	s.log.Info().Str("addr", s.cfg.HTTPAddr).Msg("http_listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) shutdown() {
	s.mu.Lock()
	_ = s.ln.Close()
	for _, sess := range s.sessions {
		_ = sess.endpoint.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.log.Info().Msg("echo_stopped")
}

func (s *Server) handle(ctx context.Context, conn *transport.Conn) {
	remote := conn.RemoteAddr().String()
	if err := conn.Handshake(ctx, s.cfg.TransportTimeout); err != nil {
		s.log.Warn().Err(err).Str("remote", remote).Msg("session_handshake_failed")
		_ = conn.Close()
		return
	}
	ep, err := s.open(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", remote).Msg("session_open_failed")
		_ = conn.Close()
		return
	}
	sess := s.track(ep, remote)
	defer s.untrack(sess)

	logger := s.log.With().Str("session", sess.id).Str("remote", remote).Logger()
	logger.Info().Msg("session_opened")

	for ctx.Err() == nil {
		msg, err := ep.read(ctx)
		if err != nil {
			if protocol.IsIdleTimeout(err) {
				continue
			}
			if !ep.Closed() && !errors.Is(err, io.EOF) && !errors.Is(err, transport.ErrClosed) && ctx.Err() == nil {
				logger.Warn().Err(err).Msg("session_read_failed")
			}
			return
		}
		sess.messages.Add(1)
		for _, reply := range Reply(s.cfg.ID, msg) {
			if err := ep.write(ctx, reply); err != nil {
				logger.Warn().Err(err).Str("command", wire.CommandName(reply.Header.Command)).Msg("session_write_failed")
				return
			}
		}
	}
}

func (s *Server) open(conn *transport.Conn) (*endpoint, error) {
	opts := []protocol.Option{protocol.WithLogger(s.log)}
	if s.cfg.Variant == config.VariantCooperative {
		p, err := protocol.OpenCooperative(conn, opts...)
		if err != nil {
			return nil, err
		}
		return &endpoint{
			Protocol: p,
			read: func(ctx context.Context) (wire.Message, error) {
				return p.Read(ctx, s.cfg.ReadTimeout)
			},
			write: func(ctx context.Context, msg wire.Message) error {
				return p.Write(ctx, msg, s.cfg.WriteTimeout)
			},
		}, nil
	}
	p, err := protocol.Open(conn, opts...)
	if err != nil {
		return nil, err
	}
	return &endpoint{
		Protocol: p,
		read: func(context.Context) (wire.Message, error) {
			return p.Read(s.cfg.ReadTimeout)
		},
		write: func(_ context.Context, msg wire.Message) error {
			return p.Write(msg, s.cfg.WriteTimeout)
		},
	}, nil
}

func (s *Server) track(ep *endpoint, remote string) *session {
	sess := &session{id: ep.ID(), remote: remote, opened: time.Now(), endpoint: ep}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	if err := sess.endpoint.Close(); err != nil && !errors.Is(err, protocol.ErrClosed) {
		s.log.Warn().Err(err).Str("session", sess.id).Msg("session_close_failed")
	}
	s.log.Info().
		Str("session", sess.id).
		Uint64("messages", sess.messages.Load()).
		Dur("open_for", time.Since(sess.opened)).
		Msg("session_closed")
}

type SessionInfo struct {
	ID       string    `json:"id"`
	Remote   string    `json:"remote"`
	Opened   time.Time `json:"opened"`
	Messages uint64    `json:"messages"`
}

// Sessions lists open sessions, oldest first.
func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	list := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, SessionInfo{
			ID:       sess.id,
			Remote:   sess.remote,
			Opened:   sess.opened,
			Messages: sess.messages.Load(),
		})
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Opened.Before(list[j].Opened) })
	return list
}
