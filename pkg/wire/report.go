package wire

import "encoding/binary"

// FullReport is the decoded form of a FULL_REPORT frame: the complete
// sensor/GPS/status snapshot a node broadcasts during its slot.
type FullReport struct {
	Header Header

	// Environmental block.
	TempF10     int16 // °F × 10
	Humidity10  uint16
	PressureHPa uint16
	AltitudeM   int16 // barometric

	// GPS block.
	LatE6        int32
	LonE6        int32
	GPSAltitudeM int16
	Satellites   uint8
	HDOP10       uint8

	// Status block.
	UptimeSec     uint32
	TxCount       uint16
	RxCount       uint16
	BatteryPct    uint8
	NeighborCount uint8

	StatusFlags uint8
}

// TimeSourceFlag extracts the TIME_SRC bits from the status flags.
func (r *FullReport) TimeSourceFlag() uint8 { return r.StatusFlags & StatusTimeSrcMask }

// MarshalReport serializes a FULL_REPORT frame from the given report,
// header included as-is. Most callers want Codec.EncodeFullReport, which
// stamps the originator header fields first.
func MarshalReport(r *FullReport) []byte {
	b := make([]byte, ReportFrameSize)
	putHeader(b, r.Header)

	binary.LittleEndian.PutUint16(b[8:], uint16(r.TempF10))
	binary.LittleEndian.PutUint16(b[10:], r.Humidity10)
	binary.LittleEndian.PutUint16(b[12:], r.PressureHPa)
	binary.LittleEndian.PutUint16(b[14:], uint16(r.AltitudeM))

	binary.LittleEndian.PutUint32(b[16:], uint32(r.LatE6))
	binary.LittleEndian.PutUint32(b[20:], uint32(r.LonE6))
	binary.LittleEndian.PutUint16(b[24:], uint16(r.GPSAltitudeM))
	b[26] = r.Satellites
	b[27] = r.HDOP10

	binary.LittleEndian.PutUint32(b[28:], r.UptimeSec)
	binary.LittleEndian.PutUint16(b[32:], r.TxCount)
	binary.LittleEndian.PutUint16(b[34:], r.RxCount)
	b[36] = r.BatteryPct
	b[37] = r.NeighborCount

	b[38] = r.StatusFlags
	return b
}

// DecodeFullReport parses a FULL_REPORT frame. The frame must be exactly
// ReportFrameSize bytes and carry the FULL_REPORT type; a foreign protocol
// version alone does not fail the decode.
func DecodeFullReport(b []byte) (*FullReport, error) {
	if len(b) != ReportFrameSize {
		return nil, ErrLength
	}

	r := &FullReport{Header: parseHeader(b)}
	if r.Header.Type != MsgFullReport {
		return nil, ErrWrongType
	}

	r.TempF10 = int16(binary.LittleEndian.Uint16(b[8:]))
	r.Humidity10 = binary.LittleEndian.Uint16(b[10:])
	r.PressureHPa = binary.LittleEndian.Uint16(b[12:])
	r.AltitudeM = int16(binary.LittleEndian.Uint16(b[14:]))

	r.LatE6 = int32(binary.LittleEndian.Uint32(b[16:]))
	r.LonE6 = int32(binary.LittleEndian.Uint32(b[20:]))
	r.GPSAltitudeM = int16(binary.LittleEndian.Uint16(b[24:]))
	r.Satellites = b[26]
	r.HDOP10 = b[27]

	r.UptimeSec = binary.LittleEndian.Uint32(b[28:])
	r.TxCount = binary.LittleEndian.Uint16(b[32:])
	r.RxCount = binary.LittleEndian.Uint16(b[34:])
	r.BatteryPct = b[36]
	r.NeighborCount = b[37]

	r.StatusFlags = b[38]
	return r, nil
}
