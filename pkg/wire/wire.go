// Package wire implements the bit-exact mesh frame formats: the 8-byte mesh
// header, the 39-byte FULL_REPORT frame and the 16-byte BEACON frame.
// Multi-byte payload fields are little-endian on the wire.
package wire

import "errors"

// ProtocolVersion is stamped into every encoded header. A mismatched version
// on receive is a warning, not a decode failure.
const ProtocolVersion = 1

// MessageType identifies the payload that follows the mesh header.
type MessageType uint8

// Mesh message types. The legacy values are still seen on air from old
// firmware; the pipeline counts and drops them.
const (
	MsgFullReport MessageType = 0x01
	MsgRoutedData MessageType = 0x02
	MsgAck        MessageType = 0x03
	MsgHeartbeat  MessageType = 0x04 // legacy
	MsgSensorData MessageType = 0x05 // legacy
	MsgGPSData    MessageType = 0x06 // legacy
	MsgStatus     MessageType = 0x07 // legacy
	MsgText       MessageType = 0x08 // legacy
	MsgAlert      MessageType = 0x09 // legacy
	MsgBeacon     MessageType = 0x0A
)

// String returns the protocol name of the message type.
func (t MessageType) String() string {
	switch t {
	case MsgFullReport:
		return "FULL_REPORT"
	case MsgRoutedData:
		return "ROUTED_DATA"
	case MsgAck:
		return "ACK"
	case MsgBeacon:
		return "BEACON"
	case MsgHeartbeat, MsgSensorData, MsgGPSData, MsgStatus, MsgText, MsgAlert:
		return "LEGACY"
	default:
		return "UNKNOWN"
	}
}

// Legacy reports true for message types that predate the current protocol
// and are ignored by the mesh core.
func (t MessageType) Legacy() bool {
	return t >= MsgHeartbeat && t <= MsgAlert
}

// Special addresses.
const (
	AddrBroadcast = 0xFF // destId: deliver to every node
	AddrGateway   = 0x00 // logical gateway address
)

// Header flag bits.
const (
	FlagNeedsAck    = 0x01 // reserved, unused by the core
	FlagIsForwarded = 0x02 // set on first forward, preserved after
)

// FULL_REPORT status flag bits (payload statusFlags field, not header flags).
const (
	StatusGPSValid   = 0x01
	StatusSensorsOK  = 0x02
	StatusLowBattery = 0x04
	StatusAlert      = 0x08

	// Time source occupies bits 4-5.
	StatusTimeSrcMask = 0x30
	StatusTimeSrcNone = 0x00
	StatusTimeSrcGPS  = 0x10
	StatusTimeSrcNet  = 0x20
)

// Frame sizes.
const (
	HeaderSize            = 8
	ReportFrameSize       = 39 // header + 31-byte payload
	BeaconFrameSize       = 16 // header + 8-byte payload
	BeaconFrameSizeLegacy = 12 // header + 4-byte routing-only payload
)

var (
	// ErrLength indicates a frame whose total length does not match the
	// expected size for its message type.
	ErrLength = errors.New("frame length mismatch")

	// ErrWrongType indicates a decode attempt against the wrong message type.
	ErrWrongType = errors.New("wrong message type")

	// ErrVersionMismatch flags a header carrying a different protocol
	// version. Decoders do not fail on it; CheckVersion surfaces it so the
	// caller can log and continue.
	ErrVersionMismatch = errors.New("protocol version mismatch")
)

// Header is the 8-byte mesh routing header. Field order matches the wire.
type Header struct {
	Version   uint8
	Type      MessageType
	SourceID  uint8 // originator, never rewritten while forwarding
	DestID    uint8 // final destination, never rewritten while forwarding
	SenderID  uint8 // immediate sender, rewritten on every hop
	MessageID uint8 // per-source sequence, wraps at 256
	TTL       uint8
	Flags     uint8
}

// Forwarded reports whether the frame has been relayed at least once.
func (h Header) Forwarded() bool { return h.Flags&FlagIsForwarded != 0 }

func putHeader(b []byte, h Header) {
	b[0] = h.Version
	b[1] = uint8(h.Type)
	b[2] = h.SourceID
	b[3] = h.DestID
	b[4] = h.SenderID
	b[5] = h.MessageID
	b[6] = h.TTL
	b[7] = h.Flags
}

func parseHeader(b []byte) Header {
	return Header{
		Version:   b[0],
		Type:      MessageType(b[1]),
		SourceID:  b[2],
		DestID:    b[3],
		SenderID:  b[4],
		MessageID: b[5],
		TTL:       b[6],
		Flags:     b[7],
	}
}

// Classify reads the message type from a raw frame without decoding it.
// Frames too short to carry a type byte default to FULL_REPORT, which the
// subsequent decode rejects on length.
func Classify(b []byte) MessageType {
	if len(b) < 2 {
		return MsgFullReport
	}
	return MessageType(b[1])
}

// CheckVersion returns ErrVersionMismatch when the header was produced by a
// different protocol version. The frame is still usable; callers log and
// proceed.
func CheckVersion(h Header) error {
	if h.Version != ProtocolVersion {
		return ErrVersionMismatch
	}
	return nil
}
