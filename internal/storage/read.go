package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// ReadNodeCSV loads persisted node rows from a CSV file.
func ReadNodeCSV(path string) ([]NodeRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return readNodeCSV(file)
}

func readNodeCSV(r io.Reader) ([]NodeRow, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	start := 0
	if len(records[0]) > 0 && records[0][0] == "timestamp" {
		start = 1
	}

	rows := make([]NodeRow, 0, len(records)-start)
	for i := start; i < len(records); i++ {
		rec := records[i]
		if len(rec) < 13 {
			return nil, fmt.Errorf("invalid record at line %d", i+1)
		}
		ts, err := time.Parse(time.RFC3339Nano, rec[0])
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp at line %d: %w", i+1, err)
		}
		nodeID, _ := strconv.Atoi(rec[2])
		seq, _ := strconv.Atoi(rec[3])
		soil, _ := strconv.ParseFloat(rec[4], 64)
		temp, _ := strconv.ParseFloat(rec[5], 64)
		hum, _ := strconv.ParseFloat(rec[6], 64)
		rssi, _ := strconv.Atoi(rec[8])
		snr, _ := strconv.ParseFloat(rec[9], 64)
		received, _ := strconv.ParseUint(rec[10], 10, 32)
		lost, _ := strconv.ParseUint(rec[11], 10, 32)
		rows = append(rows, NodeRow{
			Timestamp:        ts,
			SessionID:        rec[1],
			NodeID:           uint8(nodeID),
			Seq:              uint16(seq),
			SoilMoisturePct:  soil,
			AmbientTempC:     temp,
			HumidityPct:      hum,
			IrrigationActive: rec[7] == "1",
			RSSIDbm:          rssi,
			SNRDb:            snr,
			PacketsReceived:  uint32(received),
			PacketsLost:      uint32(lost),
			Tier:             rec[12],
		})
	}

	return rows, nil
}
