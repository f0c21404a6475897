// Package ctlclient connects to a supervisor's control gateway, authenticates
// with the shared ctl secret, sends one command and streams the replies.
//
//	stream, err := ctlclient.Request(ctx, ctlclient.DefaultAddr, ctl.SvcStatus{})
//	if err != nil {
//		return err
//	}
//	defer stream.Close()
//	for reply, err := range stream.All(ctx) {
//		...
//	}
//
// One connection carries exactly one command; retries belong to the caller.
package ctlclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/danmuck/supctl/internal/auth"
	"github.com/danmuck/supctl/internal/config"
	"github.com/danmuck/supctl/internal/observability"
	"github.com/danmuck/supctl/internal/protocol/frame"
	"github.com/danmuck/supctl/internal/protocol/srv"
	"github.com/rs/zerolog/log"
)

// ReqTimeout bounds the wait for the handshake reply.
const ReqTimeout = 10_000 * time.Millisecond

var DefaultAddr = net.JoinHostPort("127.0.0.1", fmt.Sprint(config.DefaultCtlPort))

type Config struct {
	HandshakeTimeout time.Duration
	// ConnectTimeout of zero leaves connection establishment to ctx.
	ConnectTimeout time.Duration
	Secrets        auth.SecretSources
	Limits         frame.Limits
}

func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: ReqTimeout,
		Secrets:          auth.DefaultSecretSources(),
		Limits:           frame.DefaultLimits(),
	}
}

func (c Config) WithDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = ReqTimeout
	}
	if c.Limits.MaxPayloadBytes == 0 {
		c.Limits = frame.DefaultLimits()
	}
	return c
}

type Client struct {
	cfg    Config
	dialer net.Dialer
}

func New(cfg Config) *Client {
	cfg = cfg.WithDefaults()
	return &Client{
		cfg:    cfg,
		dialer: net.Dialer{Timeout: cfg.ConnectTimeout},
	}
}

// Request sends payload to the supervisor at addr using DefaultConfig.
func Request(ctx context.Context, addr string, payload srv.Payload) (*ReplyStream, error) {
	return New(DefaultConfig()).Request(ctx, addr, payload)
}

// Request connects to addr, performs the handshake, sends payload tagged with
// the next transaction id and returns the live reply stream.
func (c *Client) Request(ctx context.Context, addr string, payload srv.Payload) (*ReplyStream, error) {
	kind := payload.MessageKind().String()
	stream, err := c.request(ctx, strings.TrimSpace(addr), payload)
	if err != nil {
		observability.RecordCtlRequest(kind, KindOf(err).String())
		log.Debug().Str("addr", addr).Str("kind", kind).Err(err).Msg("ctl request failed")
		return nil, err
	}
	observability.RecordCtlRequest(kind, "sent")
	return stream, nil
}

func (c *Client) request(ctx context.Context, addr string, payload srv.Payload) (*ReplyStream, error) {
	start := time.Now()
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, FromError(err)
	}
	release := watchContext(ctx, conn.SetDeadline)
	defer release()

	framed := srv.NewFramed(conn, c.cfg.Limits)
	var txn srv.Txn
	if err := c.handshake(ctx, conn, framed, txn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	observability.RecordCtlHandshake(time.Since(start))

	txn.Increment()
	msg, err := srv.NewMessage(payload)
	if err != nil {
		_ = conn.Close()
		return nil, &Error{Kind: KindIO, Err: err}
	}
	msg.Txn = txn
	log.Trace().Str("addr", addr).Stringer("message", msg).Msg("sending ctl message")
	if err := framed.Send(msg); err != nil {
		_ = conn.Close()
		return nil, c.classify(ctx, err)
	}

	return &ReplyStream{conn: conn, framed: framed, txn: txn}, nil
}

// handshake sends the secret with txn 0 and waits for exactly one reply.
func (c *Client) handshake(ctx context.Context, conn net.Conn, framed *srv.Framed, txn srv.Txn) error {
	secret, err := auth.ResolveCtlSecret(c.cfg.Secrets)
	if err != nil {
		return FromError(err)
	}
	hs, err := srv.NewMessage(srv.Handshake{SecretKey: secret})
	if err != nil {
		return &Error{Kind: KindIO, Err: err}
	}
	hs.Txn = txn
	if err := framed.Send(hs); err != nil {
		return c.classify(ctx, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	reply, err := framed.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Error{Kind: KindConnectionClosed, Err: err}
		}
		return c.classify(ctx, err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	if err := reply.TryOK(); err != nil {
		return FromError(err)
	}
	return nil
}

// classify prefers the caller's cancellation over the deadline it triggers.
func (c *Client) classify(ctx context.Context, err error) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Error{Kind: KindIO, Err: ctxErr}
	}
	return FromError(err)
}
