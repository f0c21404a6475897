package srv

import (
	"fmt"

	"github.com/danmuck/supctl/internal/protocol/tlv"
)

// ErrCode classifies a remote failure reported through NetErr.
type ErrCode uint32

const (
	ErrCodeInternal ErrCode = iota
	ErrCodeTimeout
	ErrCodeRemoteRejected
	ErrCodeBadRemoteReply
	ErrCodeEntityNotFound
	ErrCodeAccessDenied
	ErrCodeEntityConflict
	ErrCodeInvalidPayload
	ErrCodeUnsupported
)

func (c ErrCode) String() string {
	switch c {
	case ErrCodeInternal:
		return "Internal"
	case ErrCodeTimeout:
		return "Timeout"
	case ErrCodeRemoteRejected:
		return "RemoteRejected"
	case ErrCodeBadRemoteReply:
		return "BadRemoteReply"
	case ErrCodeEntityNotFound:
		return "EntityNotFound"
	case ErrCodeAccessDenied:
		return "AccessDenied"
	case ErrCodeEntityConflict:
		return "EntityConflict"
	case ErrCodeInvalidPayload:
		return "InvalidPayload"
	case ErrCodeUnsupported:
		return "Unsupported"
	default:
		return fmt.Sprintf("ErrCode(%d)", uint32(c))
	}
}

const (
	fieldSecretKey uint16 = 1

	fieldErrCode uint16 = 1
	fieldErrMsg  uint16 = 2
)

// Handshake authenticates a connection. It is always sent with txn 0.
type Handshake struct {
	SecretKey string
}

func (Handshake) MessageKind() Kind { return KindHandshake }

func (h Handshake) MarshalPayload() ([]byte, error) {
	return tlv.EncodeFields([]tlv.Field{tlv.String(fieldSecretKey, h.SecretKey)}), nil
}

func (h *Handshake) UnmarshalPayload(b []byte) error {
	fs, err := tlv.DecodeFields(b)
	if err != nil {
		return err
	}
	h.SecretKey, err = fs.RequiredString(fieldSecretKey)
	return err
}

// NetOk is the affirmative reply for requests without a richer result.
type NetOk struct{}

func (NetOk) MessageKind() Kind { return KindNetOk }

func (NetOk) MarshalPayload() ([]byte, error) { return nil, nil }

func (*NetOk) UnmarshalPayload([]byte) error { return nil }

// NetErr is a structured error reported by the remote side.
type NetErr struct {
	Code ErrCode
	Msg  string
}

func NewNetErr(code ErrCode, format string, args ...any) *NetErr {
	return &NetErr{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func (*NetErr) MessageKind() Kind { return KindNetErr }

func (e *NetErr) MarshalPayload() ([]byte, error) {
	return tlv.EncodeFields([]tlv.Field{
		tlv.U32(fieldErrCode, uint32(e.Code)),
		tlv.String(fieldErrMsg, e.Msg),
	}), nil
}

func (e *NetErr) UnmarshalPayload(b []byte) error {
	fs, err := tlv.DecodeFields(b)
	if err != nil {
		return err
	}
	code, err := fs.U32(fieldErrCode)
	if err != nil {
		return err
	}
	msg, err := fs.String(fieldErrMsg)
	if err != nil {
		return err
	}
	e.Code, e.Msg = ErrCode(code), msg
	return nil
}

func (e *NetErr) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Msg)
}
