package srv

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
)

var (
	ErrDecode       = errors.New("srv: decode")
	ErrKindMismatch = errors.New("srv: message kind mismatch")
)

// Kind identifies a message in the catalog.
type Kind uint32

const (
	KindHandshake Kind = 1
	KindNetOk     Kind = 2
	KindNetErr    Kind = 3
)

var (
	kindMu    sync.RWMutex
	kindNames = map[Kind]string{
		KindHandshake: "Handshake",
		KindNetOk:     "NetOk",
		KindNetErr:    "NetErr",
	}
)

// RegisterKind names a catalog kind for logs and String output.
func RegisterKind(k Kind, name string) {
	kindMu.Lock()
	defer kindMu.Unlock()
	kindNames[k] = name
}

func (k Kind) String() string {
	kindMu.RLock()
	defer kindMu.RUnlock()
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Kind(" + strconv.FormatUint(uint64(k), 10) + ")"
}

// Txn is the per-connection transaction counter. Zero belongs to the handshake.
type Txn uint32

func (t *Txn) Increment() {
	*t++
	if *t == 0 {
		*t = 1
	}
}

// Payload is a catalog value that can be sent.
type Payload interface {
	MessageKind() Kind
	MarshalPayload() ([]byte, error)
}

// Unmarshaler is a catalog value that can be parsed out of a Message.
type Unmarshaler interface {
	MessageKind() Kind
	UnmarshalPayload([]byte) error
}

// Message is the wire envelope: a kind, a transaction id and an encoded payload.
type Message struct {
	Kind    Kind
	Txn     Txn
	Reply   bool
	Payload []byte
}

func NewMessage(p Payload) (Message, error) {
	payload, err := p.MarshalPayload()
	if err != nil {
		return Message{}, fmt.Errorf("srv: encode %s: %w", p.MessageKind(), err)
	}
	return Message{Kind: p.MessageKind(), Payload: payload}, nil
}

// NewReply builds a reply to the request carrying txn.
func NewReply(txn Txn, p Payload) (Message, error) {
	m, err := NewMessage(p)
	if err != nil {
		return Message{}, err
	}
	m.Txn = txn
	m.Reply = true
	return m, nil
}

// Parse decodes the payload into into, which must be of the message's kind.
func (m Message) Parse(into Unmarshaler) error {
	if into.MessageKind() != m.Kind {
		return fmt.Errorf("%w: got %s want %s", ErrKindMismatch, m.Kind, into.MessageKind())
	}
	if err := into.UnmarshalPayload(m.Payload); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDecode, m.Kind, err)
	}
	return nil
}

func (m Message) IsErr() bool {
	return m.Kind == KindNetErr
}

// TryOK returns the embedded *NetErr when m is an error reply.
func (m Message) TryOK() error {
	if !m.IsErr() {
		return nil
	}
	var netErr NetErr
	if err := m.Parse(&netErr); err != nil {
		return err
	}
	return &netErr
}

func (m Message) String() string {
	return fmt.Sprintf("%s(txn=%d reply=%t len=%d)", m.Kind, m.Txn, m.Reply, len(m.Payload))
}
