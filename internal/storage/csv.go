package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// SatelliteRow is one persisted telemetry cycle.
type SatelliteRow struct {
	Timestamp      time.Time
	SessionID      string
	LatDeg         float64
	LonDeg         float64
	AltMeters      float64
	BatteryVolts   float64
	InternalTempC  float64
	PressureHPa    float64
	StatusBits     uint8
	ErrorCount     uint8
	ActiveNodes    int
	TotalCollected uint64
	DutyUsedMs     int64
}

// NodeRow is one persisted accepted ground-node update, ending in the
// per-node link statistics.
type NodeRow struct {
	Timestamp        time.Time
	SessionID        string
	NodeID           uint8
	Seq              uint16
	SoilMoisturePct  float64
	AmbientTempC     float64
	HumidityPct      float64
	IrrigationActive bool
	RSSIDbm          int
	SNRDb            float64
	PacketsReceived  uint32
	PacketsLost      uint32
	Tier             string
}

var satelliteHeader = []string{
	"timestamp", "session_id", "lat_deg", "lon_deg", "alt_m",
	"battery_v", "internal_temp_c", "pressure_hpa", "status_bits",
	"error_count", "active_nodes", "total_collected", "duty_used_ms",
}

var nodeHeader = []string{
	"timestamp", "session_id", "node_id", "seq", "soil_pct", "temp_c",
	"humidity_pct", "irrigation", "rssi_dbm", "snr_db",
	"packets_received", "packets_lost", "tier",
}

// Recorder binds the two CSV files into the scheduler's persistence
// collaborator.
type Recorder struct {
	SatellitePath string
	NodesPath     string
}

func (r Recorder) AppendSatellite(row SatelliteRow) error {
	return AppendSatelliteCSV(r.SatellitePath, []SatelliteRow{row})
}

func (r Recorder) AppendNode(row NodeRow) error {
	return AppendNodeCSV(r.NodesPath, []NodeRow{row})
}

// AppendSatelliteCSV appends rows, writing the header only when the file is
// new or empty. Not safe for concurrent use across processes; the scheduler
// is the single writer.
func AppendSatelliteCSV(path string, rows []SatelliteRow) error {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{
			r.Timestamp.UTC().Format(time.RFC3339Nano),
			r.SessionID,
			strconv.FormatFloat(r.LatDeg, 'f', 6, 64),
			strconv.FormatFloat(r.LonDeg, 'f', 6, 64),
			strconv.FormatFloat(r.AltMeters, 'f', 1, 64),
			strconv.FormatFloat(r.BatteryVolts, 'f', 3, 64),
			strconv.FormatFloat(r.InternalTempC, 'f', 1, 64),
			strconv.FormatFloat(r.PressureHPa, 'f', 1, 64),
			strconv.Itoa(int(r.StatusBits)),
			strconv.Itoa(int(r.ErrorCount)),
			strconv.Itoa(r.ActiveNodes),
			strconv.FormatUint(r.TotalCollected, 10),
			strconv.FormatInt(r.DutyUsedMs, 10),
		})
	}
	return appendCSV(path, satelliteHeader, records)
}

// AppendNodeCSV appends rows, writing the header only once.
func AppendNodeCSV(path string, rows []NodeRow) error {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		irr := "0"
		if r.IrrigationActive {
			irr = "1"
		}
		records = append(records, []string{
			r.Timestamp.UTC().Format(time.RFC3339Nano),
			r.SessionID,
			strconv.Itoa(int(r.NodeID)),
			strconv.Itoa(int(r.Seq)),
			strconv.FormatFloat(r.SoilMoisturePct, 'f', 1, 64),
			strconv.FormatFloat(r.AmbientTempC, 'f', 1, 64),
			strconv.FormatFloat(r.HumidityPct, 'f', 1, 64),
			irr,
			strconv.Itoa(r.RSSIDbm),
			strconv.FormatFloat(r.SNRDb, 'f', 2, 64),
			strconv.FormatUint(uint64(r.PacketsReceived), 10),
			strconv.FormatUint(uint64(r.PacketsLost), 10),
			r.Tier,
		})
	}
	return appendCSV(path, nodeHeader, records)
}

func appendCSV(path string, header []string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writer.Write(header); err != nil {
			return err
		}
	}
	for _, rec := range records {
		if err := writer.Write(rec); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
