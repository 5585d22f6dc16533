package wire

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"math"

	"github.com/mathasilv/AgroSat-IoT-sub000/internal/model"
)

// Wire layout (all multi-byte fields little-endian, CRC32-IEEE trailer):
//
// Ground-node report (binary): Marker(1)=0xA7 | NodeID(1) | Seq(2) |
//   Soil(2, tenths %) | Temp(2, tenths degC) | Humidity(2, tenths %) |
//   Flags(1) | CRC32(4) = 15 bytes.
// Satellite section: Marker(1)=0xA5 | FrameType(1) | UnixTime(4) |
//   Lat(4, 1e-6 deg) | Lon(4, 1e-6 deg) | Alt(4, m) | Battery(2, mV) |
//   InternalTemp(2, tenths degC) | Pressure(2, tenths hPa) |
//   StatusBits(1) | ErrorCount(1) = 26 bytes.
// Satellite frame: section(type 1) + CRC32 = 30 bytes.
// Relay frame: section(type 2) + NodeCount(1) + N*summary(13) + CRC32.
// Node summary: NodeID(1) | Seq(2) | Soil(2) | Temp(2) | Humidity(2) |
//   Flags(1) | RSSI(2, dBm) | SNR(1, quarter-dB).

const (
	MarkerReport byte = 0xA7
	MarkerFrame  byte = 0xA5

	FrameTypeSatellite byte = 1
	FrameTypeRelay     byte = 2

	flagIrrigation  byte = 0x01
	tierShift            = 4
	tierMask        byte = 0x30
	quarterDBPerSNR      = 4

	crcSize         = 4
	reportSize      = 15
	satSectionSize  = 26
	nodeSummarySize = 13

	// SatelliteFrameSize is the fixed on-air length of a type-1 frame.
	SatelliteFrameSize = satSectionSize + crcSize
)

var (
	ErrChecksum   = errors.New("wire: checksum mismatch")
	ErrFieldRange = errors.New("wire: field out of range")
	ErrMarker     = errors.New("wire: unknown frame marker")
	ErrTruncated  = errors.New("wire: truncated frame")
	ErrOversize   = errors.New("wire: frame exceeds size limit")
)

// AppendCRC appends the CRC32-IEEE of b to b.
func AppendCRC(b []byte) []byte {
	var tail [crcSize]byte
	binary.LittleEndian.PutUint32(tail[:], crc32.ChecksumIEEE(b))
	return append(b, tail[:]...)
}

// VerifyCRC reports whether the trailing CRC32 of b matches its contents.
func VerifyCRC(b []byte) bool {
	if len(b) <= crcSize {
		return false
	}
	want := binary.LittleEndian.Uint32(b[len(b)-crcSize:])
	return crc32.ChecksumIEEE(b[:len(b)-crcSize]) == want
}

// EncodeSatellite builds a type-1 frame from the platform snapshot.
// Returns ErrOversize when the result would exceed limit bytes.
func EncodeSatellite(snap model.SatelliteSnapshot, limit int) ([]byte, error) {
	if limit > 0 && SatelliteFrameSize > limit {
		return nil, ErrOversize
	}
	return AppendCRC(satelliteSection(snap, FrameTypeSatellite)), nil
}

// EncodeRelay builds a type-2 frame carrying the platform snapshot plus a
// summary per selected ground-node record. Returns ErrOversize when the
// result would exceed limit bytes; the caller must shrink the selection and
// retry, never truncate.
func EncodeRelay(snap model.SatelliteSnapshot, records []model.GroundNodeRecord, limit int) ([]byte, []uint8, error) {
	total := satSectionSize + 1 + len(records)*nodeSummarySize + crcSize
	if limit > 0 && total > limit {
		return nil, nil, ErrOversize
	}
	if len(records) > math.MaxUint8 {
		return nil, nil, ErrOversize
	}

	buf := satelliteSection(snap, FrameTypeRelay)
	buf = append(buf, byte(len(records)))
	ids := make([]uint8, 0, len(records))
	for _, rec := range records {
		buf = appendNodeSummary(buf, rec)
		ids = append(ids, rec.NodeID)
	}
	return AppendCRC(buf), ids, nil
}

// MaxRelayNodes returns how many node summaries fit in a relay frame of at
// most limit bytes.
func MaxRelayNodes(limit int) int {
	n := (limit - satSectionSize - 1 - crcSize) / nodeSummarySize
	if n < 0 {
		return 0
	}
	return n
}

func satelliteSection(snap model.SatelliteSnapshot, frameType byte) []byte {
	buf := make([]byte, 0, satSectionSize+1+crcSize)
	buf = append(buf, MarkerFrame, frameType)
	buf = appendUint32(buf, uint32(snap.Timestamp.Unix()))
	buf = appendInt32(buf, int32(math.Round(snap.Position.LatDeg*1e6)))
	buf = appendInt32(buf, int32(math.Round(snap.Position.LonDeg*1e6)))
	buf = appendInt32(buf, int32(math.Round(snap.Position.AltMeters)))
	buf = appendUint16(buf, uint16(clamp(math.Round(snap.BatteryVolts*1000), 0, math.MaxUint16)))
	buf = appendInt16(buf, int16(math.Round(snap.InternalTempC*10)))
	buf = appendUint16(buf, uint16(clamp(math.Round(snap.PressureHPa*10), 0, math.MaxUint16)))
	buf = append(buf, snap.StatusBits, snap.ErrorCount)
	return buf
}

func appendNodeSummary(buf []byte, rec model.GroundNodeRecord) []byte {
	buf = append(buf, rec.NodeID)
	buf = appendUint16(buf, rec.Seq)
	buf = appendUint16(buf, uint16(math.Round(rec.SoilMoisturePct*10)))
	buf = appendInt16(buf, int16(math.Round(rec.AmbientTempC*10)))
	buf = appendUint16(buf, uint16(math.Round(rec.HumidityPct*10)))
	flags := byte(rec.Tier) << tierShift & tierMask
	if rec.IrrigationActive {
		flags |= flagIrrigation
	}
	buf = append(buf, flags)
	buf = appendInt16(buf, int16(clamp(float64(rec.Quality.RSSIDbm), math.MinInt16, math.MaxInt16)))
	buf = append(buf, byte(int8(clamp(math.Round(rec.Quality.SNRDb*quarterDBPerSNR), math.MinInt8, math.MaxInt8))))
	return buf
}

func appendUint16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

func appendInt16(b []byte, v int16) []byte {
	return binary.LittleEndian.AppendUint16(b, uint16(v))
}

func appendUint32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

func appendInt32(b []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(b, uint32(v))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
