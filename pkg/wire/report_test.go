package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func sampleReport() *FullReport {
	return &FullReport{
		Header: Header{
			DestID: AddrBroadcast,
			TTL:    3,
		},
		TempF10:       725,
		Humidity10:    453,
		PressureHPa:   1013,
		AltitudeM:     -12,
		LatE6:         33768200,
		LonE6:         -118195600,
		GPSAltitudeM:  31,
		Satellites:    7,
		HDOP10:        11,
		UptimeSec:     3601,
		TxCount:       42,
		RxCount:       99,
		BatteryPct:    87,
		NeighborCount: 2,
		StatusFlags:   StatusGPSValid | StatusSensorsOK | StatusTimeSrcGPS,
	}
}

func TestEncodeFullReportLayout(t *testing.T) {
	c := NewCodec(3)
	frame := c.EncodeFullReport(sampleReport())
	require.Len(t, frame, ReportFrameSize)

	// Header byte order: version, type, source, dest, sender, msgId, ttl, flags.
	assert.Equal(t, byte(ProtocolVersion), frame[0])
	assert.Equal(t, byte(MsgFullReport), frame[1])
	assert.Equal(t, byte(3), frame[2])
	assert.Equal(t, byte(AddrBroadcast), frame[3])
	assert.Equal(t, byte(3), frame[4])
	assert.Equal(t, byte(0), frame[5])
	assert.Equal(t, byte(3), frame[6])
	assert.Equal(t, byte(0), frame[7])

	// tempF_x10 = 725 = 0x02D5, little-endian.
	assert.Equal(t, byte(0xD5), frame[8])
	assert.Equal(t, byte(0x02), frame[9])

	// statusFlags is the final byte.
	assert.Equal(t, byte(StatusGPSValid|StatusSensorsOK|StatusTimeSrcGPS), frame[38])
}

func TestEncodeFullReportSequenceWraps(t *testing.T) {
	c := NewCodec(2)
	for i := 0; i < 256; i++ {
		c.EncodeFullReport(sampleReport())
	}
	frame := c.EncodeFullReport(sampleReport())
	assert.Equal(t, byte(0), frame[5], "messageId wraps at 256")
}

func TestFullReportRoundTrip(t *testing.T) {
	c := NewCodec(3)
	want := sampleReport()
	frame := c.EncodeFullReport(want)

	got, err := DecodeFullReport(frame)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeFullReportErrors(t *testing.T) {
	c := NewCodec(3)
	frame := c.EncodeFullReport(sampleReport())

	_, err := DecodeFullReport(frame[:38])
	assert.ErrorIs(t, err, ErrLength)

	_, err = DecodeFullReport(append(frame, 0))
	assert.ErrorIs(t, err, ErrLength)

	wrong := make([]byte, ReportFrameSize)
	copy(wrong, frame)
	wrong[1] = byte(MsgBeacon)
	_, err = DecodeFullReport(wrong)
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestDecodeFullReportForeignVersion(t *testing.T) {
	c := NewCodec(3)
	frame := c.EncodeFullReport(sampleReport())
	frame[0] = 9

	got, err := DecodeFullReport(frame)
	require.NoError(t, err, "foreign version still decodes")
	assert.ErrorIs(t, CheckVersion(got.Header), ErrVersionMismatch)
}

func TestFullReportRoundTripRapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := &FullReport{
			Header: Header{
				Version:   ProtocolVersion,
				Type:      MsgFullReport,
				SourceID:  rapid.Uint8().Draw(t, "source"),
				DestID:    rapid.Uint8().Draw(t, "dest"),
				SenderID:  rapid.Uint8().Draw(t, "sender"),
				MessageID: rapid.Uint8().Draw(t, "msgId"),
				TTL:       rapid.Uint8().Draw(t, "ttl"),
				Flags:     rapid.Uint8().Draw(t, "flags"),
			},
			TempF10:       rapid.Int16().Draw(t, "temp"),
			Humidity10:    rapid.Uint16().Draw(t, "hum"),
			PressureHPa:   rapid.Uint16().Draw(t, "pres"),
			AltitudeM:     rapid.Int16().Draw(t, "alt"),
			LatE6:         rapid.Int32().Draw(t, "lat"),
			LonE6:         rapid.Int32().Draw(t, "lon"),
			GPSAltitudeM:  rapid.Int16().Draw(t, "galt"),
			Satellites:    rapid.Uint8().Draw(t, "sats"),
			HDOP10:        rapid.Uint8().Draw(t, "hdop"),
			UptimeSec:     rapid.Uint32().Draw(t, "up"),
			TxCount:       rapid.Uint16().Draw(t, "tx"),
			RxCount:       rapid.Uint16().Draw(t, "rx"),
			BatteryPct:    rapid.Uint8().Draw(t, "batt"),
			NeighborCount: rapid.Uint8().Draw(t, "nbrs"),
			StatusFlags:   rapid.Uint8().Draw(t, "status"),
		}

		got, err := DecodeFullReport(MarshalReport(r))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if *got != *r {
			t.Fatalf("round trip mismatch: %+v != %+v", got, r)
		}
	})
}
