package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/danmuck/supctl/internal/protocol/tlv"
	"github.com/danmuck/supctl/internal/testutil/testlog"
)

func sampleFrame() Frame {
	payload := tlv.EncodeFields([]tlv.Field{tlv.String(1, "core/redis")})
	return Frame{
		Header:  Header{Txn: 1, Kind: 100, Flags: FlagIsResponse},
		Payload: payload,
	}
}

func TestWriteFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := sampleFrame()
	var buf bytes.Buffer
	if err := WriteFrame(&buf, in, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	out, n, err := Decode(buf.Bytes(), DefaultLimits())
	if err != nil || n != buf.Len() {
		t.Fatalf("decode written frame n=%d err=%v", n, err)
	}
	if out.Header.Txn != 1 || out.Header.Kind != 100 || out.Header.Flags != FlagIsResponse {
		t.Fatalf("header mismatch: got=%+v", out.Header)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestDecodeReportsPartialFrames(t *testing.T) {
	testlog.Start(t)
	wire, err := Encode(sampleFrame(), DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for cut := 0; cut < len(wire); cut++ {
		_, n, err := Decode(wire[:cut], DefaultLimits())
		if err != nil || n != 0 {
			t.Fatalf("cut=%d expected need-more, got n=%d err=%v", cut, n, err)
		}
	}
	f, n, err := Decode(wire, DefaultLimits())
	if err != nil || n != len(wire) {
		t.Fatalf("full decode n=%d err=%v", n, err)
	}
	if f.Header.Txn != 1 {
		t.Fatalf("txn got=%d", f.Header.Txn)
	}
}

func TestDecodeMultipleFramesInOneBuffer(t *testing.T) {
	testlog.Start(t)
	a, _ := Encode(Frame{Header: Header{Txn: 0, Kind: 1}}, DefaultLimits())
	b, _ := Encode(sampleFrame(), DefaultLimits())
	buf := append(append([]byte{}, a...), b...)

	first, n, err := Decode(buf, DefaultLimits())
	if err != nil || n != len(a) || first.Header.Kind != 1 {
		t.Fatalf("first decode n=%d err=%v frame=%+v", n, err, first.Header)
	}
	second, m, err := Decode(buf[n:], DefaultLimits())
	if err != nil || m != len(b) || second.Header.Kind != 100 {
		t.Fatalf("second decode n=%d err=%v frame=%+v", m, err, second.Header)
	}
}

func TestDecodeRejectsMalformedHeaders(t *testing.T) {
	testlog.Start(t)
	wire, _ := Encode(sampleFrame(), DefaultLimits())

	badMagic := append([]byte{}, wire...)
	binary.BigEndian.PutUint32(badMagic[0:4], 0xdeadbeef)
	if _, _, err := Decode(badMagic, DefaultLimits()); !errors.Is(err, ErrInvalidMagic) || !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}

	badVersion := append([]byte{}, wire...)
	binary.BigEndian.PutUint16(badVersion[4:6], 9)
	if _, _, err := Decode(badVersion, DefaultLimits()); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}

	if _, _, err := Decode(wire, Limits{MaxPayloadBytes: 2}); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	err := WriteFrame(&buf, sampleFrame(), Limits{MaxPayloadBytes: 2})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("nothing should be written, got %d bytes", buf.Len())
	}
}
