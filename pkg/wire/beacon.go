package wire

import "encoding/binary"

// Beacon is a gradient-routing beacon: the sender's current distance to the
// gateway plus an optional wall-clock for network time relay.
type Beacon struct {
	Header Header

	DistanceToGateway uint8 // 0 = gateway itself, 255 = unknown
	GatewayID         uint8
	SequenceNumber    uint16

	// Time relay block. TimeValid is 1 when the clock fields carry a live
	// GPS-derived time.
	Hour      uint8
	Minute    uint8
	Second    uint8
	TimeValid uint8
}

// DistanceUnknown marks a node with no route to the gateway.
const DistanceUnknown = 255

// MarshalBeacon serializes a BEACON frame, header included as-is. Most
// callers want Codec.EncodeBeacon, which stamps the sender header fields.
func MarshalBeacon(bc *Beacon) []byte {
	b := make([]byte, BeaconFrameSize)
	putHeader(b, bc.Header)

	b[8] = bc.DistanceToGateway
	b[9] = bc.GatewayID
	binary.LittleEndian.PutUint16(b[10:], bc.SequenceNumber)

	b[12] = bc.Hour
	b[13] = bc.Minute
	b[14] = bc.Second
	b[15] = bc.TimeValid
	return b
}

// DecodeBeacon parses a BEACON frame. Legacy 12-byte beacons (routing block
// only, no time relay) still decode; their time block comes back invalid.
func DecodeBeacon(b []byte) (*Beacon, error) {
	if len(b) < BeaconFrameSizeLegacy || len(b) > BeaconFrameSize {
		return nil, ErrLength
	}

	bc := &Beacon{Header: parseHeader(b)}
	if bc.Header.Type != MsgBeacon {
		return nil, ErrWrongType
	}

	bc.DistanceToGateway = b[8]
	bc.GatewayID = b[9]
	bc.SequenceNumber = binary.LittleEndian.Uint16(b[10:])

	if len(b) >= BeaconFrameSize {
		bc.Hour = b[12]
		bc.Minute = b[13]
		bc.Second = b[14]
		bc.TimeValid = b[15]
	} else {
		bc.TimeValid = 0
	}
	return bc, nil
}
