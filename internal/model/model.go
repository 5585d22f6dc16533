package model

import "time"

// Priority orders ground-node records for relay selection and eviction.
// Lower numeric value means higher urgency.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	}
	return "unknown"
}

// GeoPoint is a geodetic position.
type GeoPoint struct {
	LatDeg    float64
	LonDeg    float64
	AltMeters float64
}

// SignalQuality captures per-packet link quality at reception.
type SignalQuality struct {
	RSSIDbm int
	SNRDb   float64
}

// NodeReport is one decoded broadcast from a ground sensor node.
type NodeReport struct {
	NodeID           uint8
	Seq              uint16
	SoilMoisturePct  float64
	AmbientTempC     float64
	HumidityPct      float64
	IrrigationActive bool
}

// GroundNodeRecord is the freshest known state of one ground node,
// plus the per-node bookkeeping the relay keeps alongside it.
type GroundNodeRecord struct {
	NodeReport
	Quality         SignalQuality
	PacketsReceived uint32
	PacketsLost     uint32
	LastReceiveAt   time.Time
	Tier            Priority
	Forwarded       bool
	LastForwardAt   time.Time
}

// SatelliteSnapshot is the platform's own most recent telemetry.
// It is produced by the external telemetry collector and consumed read-only.
type SatelliteSnapshot struct {
	Timestamp     time.Time
	Position      GeoPoint
	BatteryVolts  float64
	InternalTempC float64
	PressureHPa   float64
	StatusBits    uint8
	ErrorCount    uint8
}
