package nodestore

import (
	"sort"
	"sync"
	"time"

	"github.com/mathasilv/AgroSat-IoT-sub000/internal/model"
)

const DefaultCapacity = 12

// Thresholds configure priority scoring. They are operational tuning, not
// protocol.
type Thresholds struct {
	SoilCriticalLowPct  float64
	SoilCriticalHighPct float64
	TempCriticalLowC    float64
	TempCriticalHighC   float64
	LossRatioHigh       float64
	StaleAfter          time.Duration
}

// DefaultThresholds returns the scoring defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SoilCriticalLowPct:  10,
		SoilCriticalHighPct: 90,
		TempCriticalLowC:    0,
		TempCriticalHighC:   45,
		LossRatioHigh:       0.5,
		StaleAfter:          5 * time.Minute,
	}
}

// UpdateResult classifies the outcome of a Store.Update call.
type UpdateResult int

const (
	ResultAccepted UpdateResult = iota
	ResultDuplicate
	ResultStale
)

// Store is a fixed-capacity priority buffer of per-node latest reports.
// All methods are safe for concurrent use.
type Store struct {
	mu             sync.Mutex
	records        []model.GroundNodeRecord
	capacity       int
	totalCollected uint64
	th             Thresholds
}

// New creates a store holding at most capacity records.
func New(capacity int, th Thresholds) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		records:  make([]model.GroundNodeRecord, 0, capacity),
		capacity: capacity,
		th:       th,
	}
}

// Update applies a decoded report to the store following the sequence
// acceptance rules: newer sequence replaces, equal is a duplicate, older is
// stale. A full store evicts the least urgent record to admit a new node.
func (s *Store) Update(report model.NodeReport, quality model.SignalQuality, now time.Time) UpdateResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		rec := &s.records[i]
		if rec.NodeID != report.NodeID {
			continue
		}
		switch {
		case report.Seq == rec.Seq:
			return ResultDuplicate
		case report.Seq < rec.Seq:
			return ResultStale
		}
		// Gaps beyond +1 are attributable to packets lost from this node.
		if gap := uint32(report.Seq - rec.Seq); gap > 1 {
			rec.PacketsLost += gap - 1
		}
		rec.NodeReport = report
		rec.Quality = quality
		rec.PacketsReceived++
		rec.LastReceiveAt = now
		rec.Forwarded = false
		rec.Tier = s.scoreTier(*rec)
		s.totalCollected++
		return ResultAccepted
	}

	fresh := model.GroundNodeRecord{
		NodeReport:      report,
		Quality:         quality,
		PacketsReceived: 1,
		LastReceiveAt:   now,
	}
	fresh.Tier = s.scoreTier(fresh)

	if len(s.records) < s.capacity {
		s.records = append(s.records, fresh)
	} else {
		s.records[s.evictIndex(now)] = fresh
	}
	s.totalCollected++
	return ResultAccepted
}

// evictIndex picks the slot with the least urgent effective priority,
// breaking ties by oldest reception. Caller holds the lock.
func (s *Store) evictIndex(now time.Time) int {
	victim := 0
	for i := 1; i < len(s.records); i++ {
		vt := s.effectiveTier(s.records[victim], now)
		it := s.effectiveTier(s.records[i], now)
		if it > vt || (it == vt && s.records[i].LastReceiveAt.Before(s.records[victim].LastReceiveAt)) {
			victim = i
		}
	}
	return victim
}

// effectiveTier demotes a record to LOW once it has gone unheard for longer
// than the staleness threshold, regardless of its stored tier.
func (s *Store) effectiveTier(rec model.GroundNodeRecord, now time.Time) model.Priority {
	if s.th.StaleAfter > 0 && now.Sub(rec.LastReceiveAt) > s.th.StaleAfter {
		return model.PriorityLow
	}
	return rec.Tier
}

func (s *Store) scoreTier(rec model.GroundNodeRecord) model.Priority {
	if rec.SoilMoisturePct < s.th.SoilCriticalLowPct || rec.SoilMoisturePct > s.th.SoilCriticalHighPct {
		return model.PriorityCritical
	}
	if rec.AmbientTempC < s.th.TempCriticalLowC || rec.AmbientTempC > s.th.TempCriticalHighC {
		return model.PriorityCritical
	}
	if rec.IrrigationActive {
		return model.PriorityHigh
	}
	total := rec.PacketsReceived + rec.PacketsLost
	if total > 0 && float64(rec.PacketsLost)/float64(total) > s.th.LossRatioHigh {
		return model.PriorityHigh
	}
	return model.PriorityNormal
}

// Cleanup removes every record older than maxAge and compacts the slice.
// Returns how many records were removed.
func (s *Store) Cleanup(now time.Time, maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	for _, rec := range s.records {
		if now.Sub(rec.LastReceiveAt) <= maxAge {
			kept = append(kept, rec)
		}
	}
	removed := len(s.records) - len(kept)
	s.records = kept
	return removed
}

// ResetForwardFlags clears the forwarded marker on every record, making
// already-relayed nodes eligible for periodic re-broadcast. Returns how many
// flags were reset.
func (s *Store) ResetForwardFlags() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for i := range s.records {
		if s.records[i].Forwarded {
			s.records[i].Forwarded = false
			count++
		}
	}
	return count
}

// SelectForRelay returns up to max record copies ordered by not-yet-forwarded
// first, then effective priority ascending, then most recent reception.
func (s *Store) SelectForRelay(max int, now time.Time) []model.GroundNodeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.GroundNodeRecord, len(s.records))
	copy(out, s.records)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Forwarded != out[j].Forwarded {
			return !out[i].Forwarded
		}
		ti, tj := s.effectiveTier(out[i], now), s.effectiveTier(out[j], now)
		if ti != tj {
			return ti < tj
		}
		return out[i].LastReceiveAt.After(out[j].LastReceiveAt)
	})
	if max >= 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

// MarkForwarded flags the given node ids as relayed and stamps the forward
// time. Called by the scheduler after a successful relay transmission.
func (s *Store) MarkForwarded(ids []uint8, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		for i := range s.records {
			if s.records[i].NodeID == id {
				s.records[i].Forwarded = true
				s.records[i].LastForwardAt = now
				break
			}
		}
	}
}

// Snapshot returns a copy of every live record, for read-only consumers.
func (s *Store) Snapshot() []model.GroundNodeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.GroundNodeRecord, len(s.records))
	copy(out, s.records)
	return out
}

// ActiveCount reports the number of live records.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// TotalCollected reports the lifetime count of accepted updates. It survives
// evictions and cleanup.
func (s *Store) TotalCollected() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalCollected
}
