package wire

// Codec stamps originator fields into outgoing frames. It owns the two
// per-process sequence counters: an 8-bit one for data frames and a 16-bit
// one for beacons (the beacon header messageId carries its low byte). Both
// wrap naturally.
//
// Forwarded frames never pass through the Codec; the pipeline mutates the
// raw bytes in place so the source fields survive untouched.
type Codec struct {
	deviceID  uint8
	dataSeq   uint8
	beaconSeq uint16
}

// NewCodec returns a codec stamping frames for the given device id.
func NewCodec(deviceID uint8) *Codec {
	return &Codec{deviceID: deviceID}
}

// DeviceID returns the id stamped into outgoing frames.
func (c *Codec) DeviceID() uint8 { return c.deviceID }

// NextDataSeq returns the messageId the next FULL_REPORT will carry.
func (c *Codec) NextDataSeq() uint8 { return c.dataSeq }

// EncodeFullReport stamps version, source, sender and a fresh messageId into
// the report header, then serializes the 39-byte frame. DestID, TTL and the
// header flags are taken from the report so the caller controls addressing.
func (c *Codec) EncodeFullReport(r *FullReport) []byte {
	r.Header.Version = ProtocolVersion
	r.Header.Type = MsgFullReport
	r.Header.SourceID = c.deviceID
	r.Header.SenderID = c.deviceID
	r.Header.MessageID = c.dataSeq
	c.dataSeq++
	return MarshalReport(r)
}

// EncodeBeacon stamps version, sender and a fresh messageId (low byte of the
// beacon sequence counter) into the beacon header, then serializes the
// 16-byte frame. SourceID and TTL are taken from the beacon: origination
// sets them to the local node and the hop budget, a rebroadcast preserves
// the originator and the decremented TTL.
func (c *Codec) EncodeBeacon(bc *Beacon) []byte {
	bc.Header.Version = ProtocolVersion
	bc.Header.Type = MsgBeacon
	bc.Header.SenderID = c.deviceID
	bc.Header.MessageID = uint8(c.beaconSeq & 0xFF)
	c.beaconSeq++
	return MarshalBeacon(bc)
}
