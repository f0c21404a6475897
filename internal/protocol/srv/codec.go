package srv

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/danmuck/supctl/internal/protocol/frame"
)

const readChunkSize = 4 * 1024

func toFrame(m Message) frame.Frame {
	var flags uint16
	if m.Reply {
		flags |= frame.FlagIsResponse
	}
	if m.IsErr() {
		flags |= frame.FlagIsError
	}
	return frame.Frame{
		Header:  frame.Header{Flags: flags, Txn: uint32(m.Txn), Kind: uint32(m.Kind)},
		Payload: m.Payload,
	}
}

// Encode renders m as one frame.
func Encode(m Message, limits frame.Limits) ([]byte, error) {
	return frame.Encode(toFrame(m), limits)
}

// Decode parses one message from the front of buf. A zero count with a nil
// error means more bytes are needed. An empty payload decodes as nil.
func Decode(buf []byte, limits frame.Limits) (Message, int, error) {
	f, n, err := frame.Decode(buf, limits)
	if err != nil {
		return Message{}, 0, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if n == 0 {
		return Message{}, 0, nil
	}
	m := Message{
		Kind:  Kind(f.Header.Kind),
		Txn:   Txn(f.Header.Txn),
		Reply: f.Header.Flags&frame.FlagIsResponse != 0,
	}
	if len(f.Payload) > 0 {
		m.Payload = f.Payload
	}
	return m, n, nil
}

// Framed carries Messages over one byte stream. It buffers partial frames
// between reads and must not be shared across connections.
type Framed struct {
	rw     io.ReadWriter
	limits frame.Limits
	buf    []byte
	chunk  []byte
	eof    bool
	wmu    sync.Mutex
}

func NewFramed(rw io.ReadWriter, limits frame.Limits) *Framed {
	return &Framed{
		rw:     rw,
		limits: limits,
		chunk:  make([]byte, readChunkSize),
	}
}

func (f *Framed) Send(m Message) error {
	f.wmu.Lock()
	defer f.wmu.Unlock()
	return frame.WriteFrame(f.rw, toFrame(m), f.limits)
}

// Recv returns the next message. A close at a frame boundary yields io.EOF;
// a close inside a frame yields io.ErrUnexpectedEOF.
func (f *Framed) Recv() (Message, error) {
	for {
		m, n, err := Decode(f.buf, f.limits)
		if err != nil {
			return Message{}, err
		}
		if n > 0 {
			f.buf = append(f.buf[:0], f.buf[n:]...)
			return m, nil
		}
		if f.eof {
			if len(f.buf) == 0 {
				return Message{}, io.EOF
			}
			return Message{}, io.ErrUnexpectedEOF
		}

		k, err := f.rw.Read(f.chunk)
		if k > 0 {
			f.buf = append(f.buf, f.chunk[:k]...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return Message{}, err
			}
			f.eof = true
		}
	}
}
