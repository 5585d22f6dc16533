package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAppendNodeCSV_WritesHeaderOnce(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "nodes.csv")

	r1 := NodeRow{Timestamp: time.Unix(1, 0).UTC(), SessionID: "s1", NodeID: 1, Seq: 1, Tier: "normal"}
	r2 := NodeRow{Timestamp: time.Unix(2, 0).UTC(), SessionID: "s1", NodeID: 2, Seq: 1, Tier: "high"}

	if err := AppendNodeCSV(path, []NodeRow{r1}); err != nil {
		t.Fatalf("AppendNodeCSV #1: %v", err)
	}
	if err := AppendNodeCSV(path, []NodeRow{r2}); err != nil {
		t.Fatalf("AppendNodeCSV #2: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines=%d\n%s", len(lines), string(data))
	}
	if !strings.HasPrefix(lines[0], "timestamp,") {
		t.Fatalf("missing header: %q", lines[0])
	}
}

func TestAppendSatelliteCSV_ThenRead(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "satellite.csv")

	row := SatelliteRow{
		Timestamp:      time.Unix(100, 0).UTC(),
		SessionID:      "s1",
		LatDeg:         -15.79,
		LonDeg:         -47.88,
		AltMeters:      550000,
		BatteryVolts:   3.9,
		InternalTempC:  21.5,
		PressureHPa:    1013.2,
		ActiveNodes:    3,
		TotalCollected: 42,
		DutyUsedMs:     1200,
	}
	if err := AppendSatelliteCSV(path, []SatelliteRow{row}); err != nil {
		t.Fatalf("AppendSatelliteCSV: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), ",42,1200") {
		t.Fatalf("row not persisted:\n%s", string(data))
	}
}

func TestReadNodeCSV_RoundTrip(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "nodes.csv")

	want := NodeRow{
		Timestamp:        time.Unix(50, 0).UTC(),
		SessionID:        "s9",
		NodeID:           7,
		Seq:              12,
		SoilMoisturePct:  45.5,
		AmbientTempC:     -3.5,
		HumidityPct:      80,
		IrrigationActive: true,
		RSSIDbm:          -88,
		SNRDb:            6.25,
		PacketsReceived:  10,
		PacketsLost:      2,
		Tier:             "high",
	}
	if err := AppendNodeCSV(path, []NodeRow{want}); err != nil {
		t.Fatalf("AppendNodeCSV: %v", err)
	}
	rows, err := ReadNodeCSV(path)
	if err != nil {
		t.Fatalf("ReadNodeCSV: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows=%d", len(rows))
	}
	if rows[0] != want {
		t.Fatalf("got=%+v want=%+v", rows[0], want)
	}
}
