// Package ctl is the service-level message catalog spoken over the control gateway.
//
// Network-level messages (handshake, NetOk, NetErr) live in package srv; every
// value here travels as the payload of an srv.Message.
package ctl

import (
	"github.com/danmuck/supctl/internal/protocol/srv"
	"github.com/danmuck/supctl/internal/protocol/tlv"
)

const (
	KindSvcStatus        srv.Kind = 100
	KindServiceStatus    srv.Kind = 101
	KindSvcGetDefaultCfg srv.Kind = 102
	KindServiceCfg       srv.Kind = 103
	KindSvcStart         srv.Kind = 104
	KindSvcStop          srv.Kind = 105
	KindSupDepart        srv.Kind = 106
)

func init() {
	srv.RegisterKind(KindSvcStatus, "SvcStatus")
	srv.RegisterKind(KindServiceStatus, "ServiceStatus")
	srv.RegisterKind(KindSvcGetDefaultCfg, "SvcGetDefaultCfg")
	srv.RegisterKind(KindServiceCfg, "ServiceCfg")
	srv.RegisterKind(KindSvcStart, "SvcStart")
	srv.RegisterKind(KindSvcStop, "SvcStop")
	srv.RegisterKind(KindSupDepart, "SupDepart")
}

const (
	fieldIdent    uint16 = 1
	fieldState    uint16 = 2
	fieldDesired  uint16 = 3
	fieldPid      uint16 = 4
	fieldElapsed  uint16 = 5
	fieldDefault  uint16 = 6
	fieldMemberID uint16 = 7
)

// SvcStatus asks for the status of one service, or of all services when Ident is empty.
type SvcStatus struct {
	Ident string
}

func (SvcStatus) MessageKind() srv.Kind { return KindSvcStatus }

func (m SvcStatus) MarshalPayload() ([]byte, error) {
	return encodeIdent(m.Ident), nil
}

func (m *SvcStatus) UnmarshalPayload(b []byte) (err error) {
	m.Ident, err = decodeIdent(b, false)
	return err
}

// ServiceStatus is one streamed status row.
type ServiceStatus struct {
	Ident        string
	State        string
	DesiredState string
	Pid          uint32
	ElapsedSecs  uint64
}

func (ServiceStatus) MessageKind() srv.Kind { return KindServiceStatus }

func (m ServiceStatus) MarshalPayload() ([]byte, error) {
	return tlv.EncodeFields([]tlv.Field{
		tlv.String(fieldIdent, m.Ident),
		tlv.String(fieldState, m.State),
		tlv.String(fieldDesired, m.DesiredState),
		tlv.U32(fieldPid, m.Pid),
		tlv.U64(fieldElapsed, m.ElapsedSecs),
	}), nil
}

func (m *ServiceStatus) UnmarshalPayload(b []byte) error {
	fs, err := tlv.DecodeFields(b)
	if err != nil {
		return err
	}
	if m.Ident, err = fs.RequiredString(fieldIdent); err != nil {
		return err
	}
	if m.State, err = fs.String(fieldState); err != nil {
		return err
	}
	if m.DesiredState, err = fs.String(fieldDesired); err != nil {
		return err
	}
	if m.Pid, err = fs.U32(fieldPid); err != nil {
		return err
	}
	m.ElapsedSecs, err = fs.U64(fieldElapsed)
	return err
}

// SvcGetDefaultCfg asks for the default configuration of a loaded service.
type SvcGetDefaultCfg struct {
	Ident string
}

func (SvcGetDefaultCfg) MessageKind() srv.Kind { return KindSvcGetDefaultCfg }

func (m SvcGetDefaultCfg) MarshalPayload() ([]byte, error) {
	return encodeIdent(m.Ident), nil
}

func (m *SvcGetDefaultCfg) UnmarshalPayload(b []byte) (err error) {
	m.Ident, err = decodeIdent(b, true)
	return err
}

// ServiceCfg carries a rendered TOML configuration.
type ServiceCfg struct {
	Default []byte
}

func (ServiceCfg) MessageKind() srv.Kind { return KindServiceCfg }

func (m ServiceCfg) MarshalPayload() ([]byte, error) {
	return tlv.EncodeFields([]tlv.Field{tlv.Bytes(fieldDefault, m.Default)}), nil
}

func (m *ServiceCfg) UnmarshalPayload(b []byte) error {
	fs, err := tlv.DecodeFields(b)
	if err != nil {
		return err
	}
	m.Default, err = fs.Bytes(fieldDefault)
	return err
}

type SvcStart struct {
	Ident string
}

func (SvcStart) MessageKind() srv.Kind { return KindSvcStart }

func (m SvcStart) MarshalPayload() ([]byte, error) {
	return encodeIdent(m.Ident), nil
}

func (m *SvcStart) UnmarshalPayload(b []byte) (err error) {
	m.Ident, err = decodeIdent(b, true)
	return err
}

type SvcStop struct {
	Ident string
}

func (SvcStop) MessageKind() srv.Kind { return KindSvcStop }

func (m SvcStop) MarshalPayload() ([]byte, error) {
	return encodeIdent(m.Ident), nil
}

func (m *SvcStop) UnmarshalPayload(b []byte) (err error) {
	m.Ident, err = decodeIdent(b, true)
	return err
}

// SupDepart asks the supervisor to mark a member as permanently departed.
type SupDepart struct {
	MemberID string
}

func (SupDepart) MessageKind() srv.Kind { return KindSupDepart }

func (m SupDepart) MarshalPayload() ([]byte, error) {
	return tlv.EncodeFields([]tlv.Field{tlv.String(fieldMemberID, m.MemberID)}), nil
}

func (m *SupDepart) UnmarshalPayload(b []byte) error {
	fs, err := tlv.DecodeFields(b)
	if err != nil {
		return err
	}
	m.MemberID, err = fs.RequiredString(fieldMemberID)
	return err
}

func encodeIdent(ident string) []byte {
	if ident == "" {
		return nil
	}
	return tlv.EncodeFields([]tlv.Field{tlv.String(fieldIdent, ident)})
}

func decodeIdent(b []byte, required bool) (string, error) {
	fs, err := tlv.DecodeFields(b)
	if err != nil {
		return "", err
	}
	if required {
		return fs.RequiredString(fieldIdent)
	}
	return fs.String(fieldIdent)
}
