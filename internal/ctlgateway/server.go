// Package ctlgateway is the supervisor side of the control protocol: it
// authenticates each connection with the shared ctl secret, reads one
// command and dispatches it to the handler registered for its kind.
package ctlgateway

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/supctl/internal/auth"
	"github.com/danmuck/supctl/internal/observability"
	"github.com/danmuck/supctl/internal/protocol/frame"
	"github.com/danmuck/supctl/internal/protocol/srv"
	"github.com/rs/zerolog"
)

const DefaultHandshakeTimeout = 10 * time.Second

// Handler serves one command. Replies go through w and carry the command's
// txn. Returning a *srv.NetErr sends it verbatim; any other error is reported
// as Internal. A handler that sends nothing is answered with NetOk.
type Handler func(ctx context.Context, req srv.Message, w *ReplyWriter) error

type Config struct {
	Validator auth.Validator
	// HandshakeTimeout bounds the wait for the handshake and for the command.
	HandshakeTimeout time.Duration
	Limits           frame.Limits
}

type Server struct {
	cfg    Config
	logger zerolog.Logger

	mu       sync.RWMutex
	handlers map[srv.Kind]Handler

	active atomic.Int64
	wg     sync.WaitGroup
}

func NewServer(cfg Config) *Server {
	if cfg.Validator == nil {
		cfg.Validator = auth.StaticToken{}
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Limits.MaxPayloadBytes == 0 {
		cfg.Limits = frame.DefaultLimits()
	}
	observability.RegisterMetrics()
	return &Server{
		cfg:      cfg,
		logger:   observability.Component("ctlgateway"),
		handlers: make(map[srv.Kind]Handler),
	}
}

// Handle registers h for kind, replacing any previous handler.
func (s *Server) Handle(kind srv.Kind, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

func (s *Server) handler(kind srv.Kind) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[kind]
	return h, ok
}

// ActiveConns reports connections currently being served.
func (s *Server) ActiveConns() int64 {
	return s.active.Load()
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", strings.TrimSpace(addr))
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done. It closes ln and waits
// for in-flight connections before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("ctl gateway listening")

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()
	defer s.wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(ctx, conn)
		}()
	}
}

// ServeConn runs the handshake and one command exchange on conn, then closes it.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	remote := conn.RemoteAddr().String()
	active := s.active.Add(1)
	logger := s.logger.With().Str("remote", remote).Logger()
	logger.Debug().Int64("active_clients", active).Msg("ctl client connected")
	defer func() {
		remaining := s.active.Add(-1)
		logger.Debug().Int64("active_clients", remaining).Msg("ctl client disconnected")
	}()

	framed := srv.NewFramed(conn, s.cfg.Limits)
	if !s.handshake(conn, framed, logger) {
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	req, err := framed.Recv()
	if err != nil {
		logger.Debug().Err(err).Msg("ctl command read failed")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	kind := req.Kind.String()

	w := &ReplyWriter{framed: framed, txn: req.Txn}
	h, ok := s.handler(req.Kind)
	if !ok {
		observability.RecordGatewayRequest(kind, "unsupported")
		logger.Warn().Str("kind", kind).Msg("ctl command unsupported")
		_ = w.Send(srv.NewNetErr(srv.ErrCodeUnsupported, "unsupported command %s", kind))
		return
	}

	if err := h(ctx, req, w); err != nil {
		var netErr *srv.NetErr
		if !errors.As(err, &netErr) {
			netErr = srv.NewNetErr(srv.ErrCodeInternal, "%v", err)
		}
		observability.RecordGatewayRequest(kind, "error")
		logger.Warn().Str("kind", kind).Err(err).Msg("ctl command failed")
		_ = w.Send(netErr)
		return
	}
	if w.Sent() == 0 {
		_ = w.Send(srv.NetOk{})
	}
	observability.RecordGatewayRequest(kind, "ok")
	logger.Debug().Str("kind", kind).Int("replies", w.Sent()).Msg("ctl command served")
}

func (s *Server) handshake(conn net.Conn, framed *srv.Framed, logger zerolog.Logger) bool {
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	msg, err := framed.Recv()
	if err != nil {
		logger.Debug().Err(err).Msg("ctl handshake read failed")
		return false
	}
	_ = conn.SetReadDeadline(time.Time{})

	var hs srv.Handshake
	if err := msg.Parse(&hs); err != nil {
		observability.RecordGatewayRequest(srv.KindHandshake.String(), "invalid")
		s.reply(framed, msg.Txn, srv.NewNetErr(srv.ErrCodeInvalidPayload, "expected handshake: %v", err), logger)
		return false
	}
	if err := s.cfg.Validator.Validate(hs.SecretKey); err != nil {
		observability.RecordGatewayRequest(srv.KindHandshake.String(), "denied")
		logger.Warn().Msg("ctl handshake rejected")
		s.reply(framed, msg.Txn, srv.NewNetErr(srv.ErrCodeAccessDenied, "ctl secret rejected"), logger)
		return false
	}
	return s.reply(framed, msg.Txn, srv.NetOk{}, logger)
}

func (s *Server) reply(framed *srv.Framed, txn srv.Txn, p srv.Payload, logger zerolog.Logger) bool {
	m, err := srv.NewReply(txn, p)
	if err == nil {
		err = framed.Send(m)
	}
	if err != nil {
		logger.Debug().Err(err).Msg("ctl reply failed")
		return false
	}
	return true
}

// ReplyWriter sends replies tagged with the command's txn.
type ReplyWriter struct {
	framed *srv.Framed
	txn    srv.Txn
	sent   atomic.Int64
}

func (w *ReplyWriter) Txn() srv.Txn { return w.txn }

func (w *ReplyWriter) Send(p srv.Payload) error {
	m, err := srv.NewReply(w.txn, p)
	if err != nil {
		return err
	}
	if err := w.framed.Send(m); err != nil {
		return err
	}
	w.sent.Add(1)
	return nil
}

// Sent reports how many replies were written.
func (w *ReplyWriter) Sent() int {
	return int(w.sent.Load())
}
