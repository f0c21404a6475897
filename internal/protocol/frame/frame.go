package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Magic    uint32 = 0x53555043
	Version  uint16 = 1
	HeaderLen       = 20

	FlagIsResponse uint16 = 0x01
	FlagIsError    uint16 = 0x02
)

var (
	ErrMalformed          = errors.New("frame: malformed")
	ErrInvalidMagic       = fmt.Errorf("%w: invalid magic", ErrMalformed)
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported version", ErrMalformed)
	ErrPayloadTooLarge    = fmt.Errorf("%w: payload too large", ErrMalformed)
)

// Header is the fixed wire header preceding every payload.
type Header struct {
	Magic      uint32
	Version    uint16
	Flags      uint16
	Txn        uint32
	Kind       uint32
	PayloadLen uint32
}

// Frame is one complete wire message.
type Frame struct {
	Header  Header
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 8 * 1024 * 1024}
}

// Encode renders f with magic, version and payload length filled in.
func Encode(f Frame, limits Limits) ([]byte, error) {
	if uint64(len(f.Payload)) > uint64(limits.MaxPayloadBytes) {
		return nil, ErrPayloadTooLarge
	}
	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.PayloadLen = uint32(len(f.Payload))

	buf := make([]byte, HeaderLen+len(f.Payload))
	putHeader(buf[:HeaderLen], h)
	copy(buf[HeaderLen:], f.Payload)
	return buf, nil
}

// Decode parses one frame from the front of buf and reports the bytes consumed.
// A zero count with a nil error means buf holds only part of a frame.
func Decode(buf []byte, limits Limits) (Frame, int, error) {
	if len(buf) < HeaderLen {
		return Frame{}, 0, nil
	}
	h, err := DecodeHeader(buf[:HeaderLen], limits)
	if err != nil {
		return Frame{}, 0, err
	}
	total := HeaderLen + int(h.PayloadLen)
	if len(buf) < total {
		return Frame{}, 0, nil
	}
	payload := make([]byte, h.PayloadLen)
	copy(payload, buf[HeaderLen:total])
	return Frame{Header: h, Payload: payload}, total, nil
}

// WriteFrame encodes f and writes it with a single Write call.
func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	buf, err := Encode(f, limits)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// DecodeHeader parses and validates a fixed header.
func DecodeHeader(b []byte, limits Limits) (Header, error) {
	if len(b) != HeaderLen {
		return Header{}, fmt.Errorf("%w: header length %d", ErrMalformed, len(b))
	}
	h := Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		Flags:      binary.BigEndian.Uint16(b[6:8]),
		Txn:        binary.BigEndian.Uint32(b[8:12]),
		Kind:       binary.BigEndian.Uint32(b[12:16]),
		PayloadLen: binary.BigEndian.Uint32(b[16:20]),
	}
	if h.Magic != Magic {
		return Header{}, ErrInvalidMagic
	}
	if h.Version != Version {
		return Header{}, ErrUnsupportedVersion
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Header{}, ErrPayloadTooLarge
	}
	return h, nil
}

func putHeader(buf []byte, h Header) {
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.Flags)
	binary.BigEndian.PutUint32(buf[8:12], h.Txn)
	binary.BigEndian.PutUint32(buf[12:16], h.Kind)
	binary.BigEndian.PutUint32(buf[16:20], h.PayloadLen)
}
