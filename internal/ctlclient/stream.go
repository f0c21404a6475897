package ctlclient

import (
	"context"
	"errors"
	"io"
	"iter"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/supctl/internal/protocol/srv"
	"github.com/rs/zerolog/log"
)

// ReplyStream is the single-pass sequence of replies on one connection.
// Next returns io.EOF once the supervisor closes the connection cleanly.
type ReplyStream struct {
	conn   net.Conn
	framed *srv.Framed
	txn    srv.Txn

	mu     sync.Mutex
	done   bool
	final  error
	closed atomic.Bool
}

// Txn is the transaction id the command was sent with.
func (s *ReplyStream) Txn() srv.Txn { return s.txn }

// Next blocks until the next reply, a clean close (io.EOF), a failure, or ctx is done.
func (s *ReplyStream) Next(ctx context.Context) (srv.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return srv.Message{}, s.final
	}
	if s.closed.Load() {
		s.done, s.final = true, io.EOF
		return srv.Message{}, io.EOF
	}

	release := watchContext(ctx, s.conn.SetReadDeadline)
	m, err := s.framed.Recv()
	release()
	if err == nil {
		if m.Txn != s.txn {
			log.Debug().
				Uint32("txn", uint32(m.Txn)).
				Uint32("want", uint32(s.txn)).
				Stringer("message", m).
				Msg("ctl reply for another transaction")
		}
		return m, nil
	}

	s.done = true
	_ = s.conn.Close()
	switch {
	case errors.Is(err, io.EOF), s.closed.Load():
		s.final = io.EOF
	case ctx.Err() != nil:
		s.final = &Error{Kind: KindIO, Err: ctx.Err()}
	default:
		s.final = FromError(err)
	}
	return srv.Message{}, s.final
}

// All ranges over the remaining replies. A clean close ends the sequence
// without an error; any other failure is yielded once as the last element.
func (s *ReplyStream) All(ctx context.Context) iter.Seq2[srv.Message, error] {
	return func(yield func(srv.Message, error) bool) {
		for {
			m, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(srv.Message{}, err)
				return
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

// Close aborts the exchange, unblocking a pending Next. Subsequent Next calls
// return io.EOF.
func (s *ReplyStream) Close() error {
	s.closed.Store(true)
	err := s.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// watchContext applies a past deadline through set once ctx is done, which
// unblocks pending I/O. release removes the watch and clears any deadline the
// watch already applied, so later calls on the conn start clean.
func watchContext(ctx context.Context, set func(time.Time) error) (release func()) {
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = set(time.Now())
	})
	var once sync.Once
	return func() {
		once.Do(func() {
			if !stop() {
				<-fired
				_ = set(time.Time{})
			}
		})
	}
}
