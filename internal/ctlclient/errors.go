package ctlclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/danmuck/supctl/internal/auth"
	"github.com/danmuck/supctl/internal/protocol/srv"
	"github.com/danmuck/supctl/internal/ui"
)

// ErrorKind is the closed set of failures a Request can surface.
type ErrorKind int

const (
	KindIO ErrorKind = iota
	KindConnectionRefused
	KindConnectionClosed
	KindTimeout
	KindCliConfig
	KindCtlSecretNotFound
	KindDecode
	KindRemote
	KindParseColor
)

func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindConnectionRefused:
		return "connection_refused"
	case KindConnectionClosed:
		return "connection_closed"
	case KindTimeout:
		return "timeout"
	case KindCliConfig:
		return "cli_config"
	case KindCtlSecretNotFound:
		return "ctl_secret_not_found"
	case KindDecode:
		return "decode"
	case KindRemote:
		return "remote"
	case KindParseColor:
		return "parse_color"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the typed failure returned by Request and ReplyStream.
type Error struct {
	Kind ErrorKind
	// Path is the expected secret file for KindCtlSecretNotFound.
	Path string
	// Remote is the error reported by the supervisor for KindRemote.
	Remote *srv.NetErr
	Err    error
}

// Sentinels for errors.Is; any *Error of the same kind matches.
var (
	ErrConnectionRefused = &Error{Kind: KindConnectionRefused}
	ErrConnectionClosed  = &Error{Kind: KindConnectionClosed}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrCliConfig         = &Error{Kind: KindCliConfig}
	ErrCtlSecretNotFound = &Error{Kind: KindCtlSecretNotFound}
	ErrDecode            = &Error{Kind: KindDecode}
	ErrRemote            = &Error{Kind: KindRemote}
	ErrParseColor        = &Error{Kind: KindParseColor}
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindConnectionClosed:
		return "The connection was unexpectedly closed.\n\n" +
			"This may be because the given Supervisor is in the middle of an orderly shutdown,\n" +
			"and is no longer processing command requests."
	case KindConnectionRefused:
		return "Unable to contact the Supervisor.\n\n" +
			"If the Supervisor you are contacting is local, this probably means it is not running. " +
			"You can run a Supervisor in the foreground with:\n\nsupd\n\n" +
			"Or try restarting the Supervisor through your operating system's init process."
	case KindCtlSecretNotFound:
		return fmt.Sprintf("No Supervisor CtlGateway secret set in `cli.toml` or found at %s. "+
			"Run `supctl secret generate` or run the Supervisor for the first time before "+
			"attempting to command the Supervisor.", e.Path)
	case KindTimeout:
		if e.Err == nil {
			return "client timed out"
		}
		return fmt.Sprintf("client timed out: %v", e.Err)
	case KindRemote:
		if e.Remote != nil {
			return e.Remote.Error()
		}
	}
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	if e.Kind == KindRemote && e.Remote != nil {
		return e.Remote
	}
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Timeout reports whether the handshake deadline elapsed.
func (e *Error) Timeout() bool { return e.Kind == KindTimeout }

// KindOf returns the kind of err, or KindIO when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindIO
}

// FromError classifies err into the client taxonomy. Presentation failures
// such as *ui.ParseColorError keep their own kind.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var netErr *srv.NetErr
	var notFound *auth.SecretNotFoundError
	var cfgErr *auth.ConfigError
	var colorErr *ui.ParseColorError
	var ne net.Error
	switch {
	case errors.As(err, &netErr):
		return &Error{Kind: KindRemote, Remote: netErr, Err: err}
	case errors.As(err, &notFound):
		return &Error{Kind: KindCtlSecretNotFound, Path: notFound.Path, Err: err}
	case errors.As(err, &cfgErr):
		return &Error{Kind: KindCliConfig, Err: err}
	case errors.As(err, &colorErr):
		return &Error{Kind: KindParseColor, Err: err}
	case errors.Is(err, srv.ErrDecode):
		return &Error{Kind: KindDecode, Err: err}
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, syscall.ECONNRESET):
		return &Error{Kind: KindConnectionClosed, Err: err}
	case errors.Is(err, syscall.ECONNREFUSED):
		return &Error{Kind: KindConnectionRefused, Err: err}
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Err: err}
	case errors.As(err, &ne) && ne.Timeout():
		return &Error{Kind: KindTimeout, Err: err}
	default:
		return &Error{Kind: KindIO, Err: err}
	}
}
