package wire

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"strconv"
	"strings"

	"github.com/mathasilv/AgroSat-IoT-sub000/internal/model"
)

// ASCII fallback form of a ground-node report:
//   $AGN,<id>,<seq>,<soil>,<temp>,<hum>,<irr>*XXXXXXXX
// soil/temp/hum in decimal tenths, trailing 8 uppercase hex chars of the
// CRC32 over everything before the '*'.

const asciiPrefix = "$AGN"

// EncodeReport builds the binary wire form of a ground-node report.
func EncodeReport(r model.NodeReport) ([]byte, error) {
	if err := validateReport(r); err != nil {
		return nil, err
	}
	buf := make([]byte, 0, reportSize)
	buf = append(buf, MarkerReport, r.NodeID)
	buf = appendUint16(buf, r.Seq)
	buf = appendUint16(buf, uint16(math.Round(r.SoilMoisturePct*10)))
	buf = appendInt16(buf, int16(math.Round(r.AmbientTempC*10)))
	buf = appendUint16(buf, uint16(math.Round(r.HumidityPct*10)))
	flags := byte(0)
	if r.IrrigationActive {
		flags |= flagIrrigation
	}
	buf = append(buf, flags)
	return AppendCRC(buf), nil
}

// EncodeReportASCII builds the human-readable fallback form.
func EncodeReportASCII(r model.NodeReport) ([]byte, error) {
	if err := validateReport(r); err != nil {
		return nil, err
	}
	irr := 0
	if r.IrrigationActive {
		irr = 1
	}
	body := fmt.Sprintf("%s,%d,%d,%d,%d,%d,%d",
		asciiPrefix, r.NodeID, r.Seq,
		int(math.Round(r.SoilMoisturePct*10)),
		int(math.Round(r.AmbientTempC*10)),
		int(math.Round(r.HumidityPct*10)),
		irr)
	return []byte(fmt.Sprintf("%s*%08X", body, crc32.ChecksumIEEE([]byte(body)))), nil
}

// DecodeReport parses a received ground-node report, dispatching on the
// leading byte between the binary and ASCII wire forms. The checksum is
// validated before any field is trusted; on mismatch no partial result is
// returned.
func DecodeReport(raw []byte) (model.NodeReport, error) {
	if len(raw) == 0 {
		return model.NodeReport{}, ErrTruncated
	}
	switch raw[0] {
	case MarkerReport:
		return decodeBinaryReport(raw)
	case '$':
		return decodeASCIIReport(raw)
	}
	return model.NodeReport{}, fmt.Errorf("%w: 0x%02x", ErrMarker, raw[0])
}

func decodeBinaryReport(raw []byte) (model.NodeReport, error) {
	if len(raw) != reportSize {
		return model.NodeReport{}, ErrTruncated
	}
	if !VerifyCRC(raw) {
		return model.NodeReport{}, ErrChecksum
	}
	r := model.NodeReport{
		NodeID:           raw[1],
		Seq:              binary.LittleEndian.Uint16(raw[2:4]),
		SoilMoisturePct:  float64(binary.LittleEndian.Uint16(raw[4:6])) / 10,
		AmbientTempC:     float64(int16(binary.LittleEndian.Uint16(raw[6:8]))) / 10,
		HumidityPct:      float64(binary.LittleEndian.Uint16(raw[8:10])) / 10,
		IrrigationActive: raw[10]&flagIrrigation != 0,
	}
	if err := validateReport(r); err != nil {
		return model.NodeReport{}, err
	}
	return r, nil
}

func decodeASCIIReport(raw []byte) (model.NodeReport, error) {
	text := string(raw)
	star := strings.LastIndexByte(text, '*')
	if star < 0 || len(text)-star-1 != 8 {
		return model.NodeReport{}, ErrTruncated
	}
	sum, err := strconv.ParseUint(text[star+1:], 16, 32)
	if err != nil {
		return model.NodeReport{}, ErrChecksum
	}
	if crc32.ChecksumIEEE([]byte(text[:star])) != uint32(sum) {
		return model.NodeReport{}, ErrChecksum
	}

	fields := strings.Split(text[:star], ",")
	if len(fields) != 7 || fields[0] != asciiPrefix {
		return model.NodeReport{}, ErrTruncated
	}
	vals := make([]int, 6)
	for i, f := range fields[1:] {
		v, err := strconv.Atoi(f)
		if err != nil {
			return model.NodeReport{}, fmt.Errorf("%w: field %d", ErrFieldRange, i+1)
		}
		vals[i] = v
	}
	if vals[0] < 0 || vals[0] > math.MaxUint8 || vals[1] < 0 || vals[1] > math.MaxUint16 {
		return model.NodeReport{}, ErrFieldRange
	}
	r := model.NodeReport{
		NodeID:           uint8(vals[0]),
		Seq:              uint16(vals[1]),
		SoilMoisturePct:  float64(vals[2]) / 10,
		AmbientTempC:     float64(vals[3]) / 10,
		HumidityPct:      float64(vals[4]) / 10,
		IrrigationActive: vals[5] != 0,
	}
	if err := validateReport(r); err != nil {
		return model.NodeReport{}, err
	}
	return r, nil
}

// validateReport enforces the physical bounds of the report fields.
func validateReport(r model.NodeReport) error {
	if r.NodeID == 0 {
		return fmt.Errorf("%w: node_id=0", ErrFieldRange)
	}
	if r.SoilMoisturePct < 0 || r.SoilMoisturePct > 100 {
		return fmt.Errorf("%w: soil=%.1f", ErrFieldRange, r.SoilMoisturePct)
	}
	if r.HumidityPct < 0 || r.HumidityPct > 100 {
		return fmt.Errorf("%w: humidity=%.1f", ErrFieldRange, r.HumidityPct)
	}
	if r.AmbientTempC < -40 || r.AmbientTempC > 85 {
		return fmt.Errorf("%w: temp=%.1f", ErrFieldRange, r.AmbientTempC)
	}
	return nil
}
