package storage

import (
	"math"
	"time"
)

// Summary is a windowed link-statistics snapshot over persisted node rows.
type Summary struct {
	Count       int
	From        time.Time
	To          time.Time
	AvgRSSIDbm  float64
	MinRSSIDbm  float64
	MaxRSSIDbm  float64
	AvgSNRDb    float64
	LossPct     float64
	RowsPerNode map[uint8]int
}

// Summarize computes link statistics for rows in a time window. The loss
// percentage uses each node's latest cumulative counters inside the window.
func Summarize(rows []NodeRow, since time.Time) Summary {
	filtered := make([]NodeRow, 0, len(rows))
	for _, r := range rows {
		if r.Timestamp.After(since) || r.Timestamp.Equal(since) {
			filtered = append(filtered, r)
		}
	}

	if len(filtered) == 0 {
		return Summary{Count: 0}
	}

	var sumRSSI, sumSNR float64
	minRSSI := math.MaxFloat64
	maxRSSI := -math.MaxFloat64
	from := filtered[0].Timestamp
	to := filtered[0].Timestamp
	perNode := map[uint8]int{}
	latest := map[uint8]NodeRow{}

	for _, r := range filtered {
		sumRSSI += float64(r.RSSIDbm)
		sumSNR += r.SNRDb
		if float64(r.RSSIDbm) < minRSSI {
			minRSSI = float64(r.RSSIDbm)
		}
		if float64(r.RSSIDbm) > maxRSSI {
			maxRSSI = float64(r.RSSIDbm)
		}
		if r.Timestamp.Before(from) {
			from = r.Timestamp
		}
		if r.Timestamp.After(to) {
			to = r.Timestamp
		}
		perNode[r.NodeID]++
		if prev, ok := latest[r.NodeID]; !ok || r.Timestamp.After(prev.Timestamp) {
			latest[r.NodeID] = r
		}
	}

	var received, lost uint64
	for _, r := range latest {
		received += uint64(r.PacketsReceived)
		lost += uint64(r.PacketsLost)
	}
	lossPct := 0.0
	if received+lost > 0 {
		lossPct = 100 * float64(lost) / float64(received+lost)
	}

	count := float64(len(filtered))
	return Summary{
		Count:       len(filtered),
		From:        from,
		To:          to,
		AvgRSSIDbm:  sumRSSI / count,
		MinRSSIDbm:  minRSSI,
		MaxRSSIDbm:  maxRSSI,
		AvgSNRDb:    sumSNR / count,
		LossPct:     lossPct,
		RowsPerNode: perNode,
	}
}
