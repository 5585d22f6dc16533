package uplink

import (
	"time"

	"github.com/mathasilv/AgroSat-IoT-sub000/internal/model"
)

// NodeEntry mirrors one GroundNodeRecord in the uplink JSON.
type NodeEntry struct {
	NodeID           uint8   `json:"node_id"`
	Seq              uint16  `json:"seq"`
	SoilMoisturePct  float64 `json:"soil_pct"`
	AmbientTempC     float64 `json:"temp_c"`
	HumidityPct      float64 `json:"humidity_pct"`
	IrrigationActive bool    `json:"irrigation"`
	RSSIDbm          int     `json:"rssi_dbm"`
	SNRDb            float64 `json:"snr_db"`
	PacketsReceived  uint32  `json:"packets_received"`
	PacketsLost      uint32  `json:"packets_lost"`
	Tier             string  `json:"tier"`
	Forwarded        bool    `json:"forwarded"`
}

// Report is one best-effort uplink object per telemetry cycle: the satellite
// snapshot fields plus the ground-node array.
type Report struct {
	SessionID     string      `json:"session_id"`
	Callsign      string      `json:"callsign"`
	Timestamp     time.Time   `json:"timestamp"`
	LatDeg        float64     `json:"lat_deg"`
	LonDeg        float64     `json:"lon_deg"`
	AltMeters     float64     `json:"alt_m"`
	BatteryVolts  float64     `json:"battery_v"`
	InternalTempC float64     `json:"internal_temp_c"`
	PressureHPa   float64     `json:"pressure_hpa"`
	StatusBits    uint8       `json:"status_bits"`
	ErrorCount    uint8       `json:"error_count"`
	PublicAddr    string      `json:"public_addr,omitempty"`
	Nodes         []NodeEntry `json:"nodes"`
}

// BuildReport assembles a Report from a snapshot and store copies.
func BuildReport(sessionID, callsign string, snap model.SatelliteSnapshot, records []model.GroundNodeRecord) Report {
	nodes := make([]NodeEntry, 0, len(records))
	for _, rec := range records {
		nodes = append(nodes, NodeEntry{
			NodeID:           rec.NodeID,
			Seq:              rec.Seq,
			SoilMoisturePct:  rec.SoilMoisturePct,
			AmbientTempC:     rec.AmbientTempC,
			HumidityPct:      rec.HumidityPct,
			IrrigationActive: rec.IrrigationActive,
			RSSIDbm:          rec.Quality.RSSIDbm,
			SNRDb:            rec.Quality.SNRDb,
			PacketsReceived:  rec.PacketsReceived,
			PacketsLost:      rec.PacketsLost,
			Tier:             rec.Tier.String(),
			Forwarded:        rec.Forwarded,
		})
	}
	return Report{
		SessionID:     sessionID,
		Callsign:      callsign,
		Timestamp:     snap.Timestamp,
		LatDeg:        snap.Position.LatDeg,
		LonDeg:        snap.Position.LonDeg,
		AltMeters:     snap.Position.AltMeters,
		BatteryVolts:  snap.BatteryVolts,
		InternalTempC: snap.InternalTempC,
		PressureHPa:   snap.PressureHPa,
		StatusBits:    snap.StatusBits,
		ErrorCount:    snap.ErrorCount,
		Nodes:         nodes,
	}
}
