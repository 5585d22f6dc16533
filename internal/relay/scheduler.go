package relay

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/mathasilv/AgroSat-IoT-sub000/internal/config"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/dutycycle"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/linkbudget"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/model"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/nodestore"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/radio"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/session"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/storage"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/uplink"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/wire"
)

// SnapshotSource provides the platform's own most recent telemetry.
type SnapshotSource interface {
	Snapshot() model.SatelliteSnapshot
}

// Clock is the externally synchronized wall-clock collaborator.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the host clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Recorder is the external CSV storage collaborator.
type Recorder interface {
	AppendSatellite(row storage.SatelliteRow) error
	AppendNode(row storage.NodeRow) error
}

// Publisher offers reports to the secondary best-effort uplink.
type Publisher interface {
	TryEnqueue(report uplink.Report) bool
}

// Counters are the scheduler's per-session diagnostics.
type Counters struct {
	Cycles          uint64
	FramesSent      uint64
	RelayFramesSent uint64
	DutyDenied      uint64
	SendDeferred    uint64
	ChecksumErrors  uint64
	RangeErrors     uint64
	DecodeErrors    uint64
	Duplicates      uint64
	StaleDrops      uint64
	OversizeShrinks uint64
}

// Status is a read-only snapshot for the diagnostics endpoint.
type Status struct {
	SessionID        string      `json:"session_id"`
	Active           bool        `json:"active"`
	UptimeSec        float64     `json:"uptime_sec"`
	Counters         Counters    `json:"counters"`
	Link             radio.Stats `json:"link"`
	DutyUsedMs       int64       `json:"duty_used_ms"`
	DutyCapacityMs   int64       `json:"duty_capacity_ms"`
	DutyWindowRemSec float64     `json:"duty_window_remaining_sec"`
	ActiveNodes      int         `json:"active_nodes"`
	TotalCollected   uint64      `json:"total_collected"`
	SpreadingFactor  int         `json:"spreading_factor"`
}

// Options carry the optional collaborators and the link-budget geometry.
type Options struct {
	Budget    linkbudget.Params
	Collector model.GeoPoint
	AdaptSF   bool
	Recorder  Recorder
	Publisher Publisher
}

// Scheduler drives the relay: a single periodic control loop that polls the
// receive path, maintains the node store, and emits telemetry and relay
// frames within the duty-cycle budget. It exclusively owns the node store
// and the mission session; collaborators only ever see copies.
type Scheduler struct {
	cfg       config.RelayConfig
	link      *radio.Link
	store     *nodestore.Store
	guard     *dutycycle.Guard
	sess      *session.Session
	snapshots SnapshotSource
	clock     Clock
	opts      Options

	mu       sync.Mutex
	counters Counters
}

// New wires a scheduler. link, store, guard, sess, snapshots and clock are
// required; Options collaborators may be nil.
func New(cfg config.RelayConfig, link *radio.Link, store *nodestore.Store, guard *dutycycle.Guard, sess *session.Session, snapshots SnapshotSource, clock Clock, opts Options) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		link:      link,
		store:     store,
		guard:     guard,
		sess:      sess,
		snapshots: snapshots,
		clock:     clock,
		opts:      opts,
	}
}

// Run starts the control loop and blocks until ctx is cancelled. Receive
// and send share the loop, so store mutations are naturally sequential; the
// store's own mutex covers the diagnostics readers.
func (s *Scheduler) Run(ctx context.Context) error {
	id := s.sess.Start(time.Now(), s.clock.Now())
	log.Printf("relay session start id=%s callsign=%s", id, s.cfg.Callsign)

	pollTicker := time.NewTicker(time.Duration(s.cfg.PollIntervalMs) * time.Millisecond)
	defer pollTicker.Stop()
	telemetryTicker := time.NewTicker(time.Duration(s.cfg.TelemetryIntervalSec) * time.Second)
	defer telemetryTicker.Stop()
	maintenanceTicker := time.NewTicker(time.Duration(s.cfg.MaintenanceIntervalSec) * time.Second)
	defer maintenanceTicker.Stop()
	forwardTicker := time.NewTicker(time.Duration(s.cfg.ForwardResetIntervalSec) * time.Second)
	defer forwardTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			sum, ok := s.sess.Stop(time.Now(), s.link.Stats())
			if ok {
				log.Printf("relay session stop id=%s duration=%s sent=%d received=%d rejected=%d airtime=%s",
					sum.ID, sum.Duration.Round(time.Second), sum.Link.Sent, sum.Link.Received, sum.Link.Rejected, sum.Link.AirtimeTotal.Round(time.Millisecond))
			}
			return ctx.Err()
		case <-pollTicker.C:
			s.pollOnce(time.Now())
		case <-telemetryTicker.C:
			s.telemetryCycle(ctx, time.Now())
		case <-maintenanceTicker.C:
			if removed := s.store.Cleanup(time.Now(), time.Duration(s.cfg.NodeTTLSec)*time.Second); removed > 0 {
				log.Printf("node store cleanup removed=%d active=%d", removed, s.store.ActiveCount())
			}
		case <-forwardTicker.C:
			if n := s.store.ResetForwardFlags(); n > 0 {
				log.Printf("forward flags reset count=%d", n)
			}
		}
	}
}

// pollOnce drains at most one received packet: quality filtering happened in
// the link; here the frame is decoded and applied to the store.
func (s *Scheduler) pollOnce(now time.Time) {
	raw, quality, ok := s.link.Poll()
	if !ok {
		return
	}

	report, err := wire.DecodeReport(raw)
	if err != nil {
		switch {
		case errors.Is(err, wire.ErrChecksum):
			s.count(func(c *Counters) { c.ChecksumErrors++ })
		case errors.Is(err, wire.ErrFieldRange):
			s.count(func(c *Counters) { c.RangeErrors++ })
		default:
			s.count(func(c *Counters) { c.DecodeErrors++ })
		}
		log.Printf("packet discarded: %v", err)
		return
	}

	switch s.store.Update(report, quality, now) {
	case nodestore.ResultAccepted:
		log.Printf("node update node=%d seq=%d rssi=%d snr=%.1f", report.NodeID, report.Seq, quality.RSSIDbm, quality.SNRDb)
		s.recordNode(report, quality)
	case nodestore.ResultDuplicate:
		s.count(func(c *Counters) { c.Duplicates++ })
	case nodestore.ResultStale:
		s.count(func(c *Counters) { c.StaleDrops++ })
	}
}

// telemetryCycle builds and transmits the satellite frame, then the relay
// frame if any candidates fit. Admission for both frames is decided up
// front: a denied budget skips the whole cycle with no partial send and no
// queuing.
func (s *Scheduler) telemetryCycle(ctx context.Context, now time.Time) {
	s.count(func(c *Counters) { c.Cycles++ })

	snap := s.snapshots.Snapshot()
	s.link.NoteBattery(snap.BatteryVolts)
	s.adaptSpreadingFactor(snap)

	satFrame, err := wire.EncodeSatellite(snap, s.cfg.MaxFrameBytes)
	if err != nil {
		log.Printf("satellite frame encode failed: %v", err)
		return
	}

	relayFrame, ids := s.buildRelayFrame(snap, now)

	totalAir, err := s.link.Airtime(len(satFrame))
	if err != nil {
		log.Printf("airtime estimate failed: %v", err)
		return
	}
	if relayFrame != nil {
		relayAir, err := s.link.Airtime(len(relayFrame))
		if err != nil {
			log.Printf("airtime estimate failed: %v", err)
			return
		}
		totalAir += relayAir
	}

	if !s.guard.CanTransmit(totalAir, now) {
		s.count(func(c *Counters) { c.DutyDenied++ })
		log.Printf("duty cycle denied airtime=%s used=%s window_rem=%s",
			totalAir.Round(time.Millisecond), s.guard.Used().Round(time.Millisecond), s.guard.WindowRemaining(now).Round(time.Second))
		return
	}

	// The cycle is persisted and published whatever the send outcome: one
	// row and one report per telemetry cycle.
	onAir, err := s.link.Send(satFrame)
	if err != nil {
		// Relay records stay unforwarded and are retried next cycle.
		s.count(func(c *Counters) { c.SendDeferred++ })
		log.Printf("satellite frame deferred: %v", err)
	} else {
		s.guard.RecordTransmission(onAir, time.Now())
		s.count(func(c *Counters) { c.FramesSent++ })

		if relayFrame != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(s.cfg.FrameSpacingMs) * time.Millisecond):
			}
			onAir, err := s.link.Send(relayFrame)
			if err != nil {
				s.count(func(c *Counters) { c.SendDeferred++ })
				log.Printf("relay frame deferred: %v", err)
			} else {
				s.guard.RecordTransmission(onAir, time.Now())
				s.store.MarkForwarded(ids, time.Now())
				s.count(func(c *Counters) { c.RelayFramesSent++ })
				log.Printf("relay frame sent nodes=%d airtime=%s", len(ids), onAir.Round(time.Millisecond))
			}
		}
	}

	s.recordCycle(snap)
	s.publish(snap)
}

// buildRelayFrame selects not-yet-forwarded records in priority order and
// shrinks the selection until the frame fits the size limit.
func (s *Scheduler) buildRelayFrame(snap model.SatelliteSnapshot, now time.Time) ([]byte, []uint8) {
	selected := s.store.SelectForRelay(s.cfg.MaxNodes, now)
	candidates := selected[:0]
	for _, rec := range selected {
		if !rec.Forwarded {
			candidates = append(candidates, rec)
		}
	}

	for len(candidates) > 0 {
		frame, ids, err := wire.EncodeRelay(snap, candidates, s.cfg.MaxFrameBytes)
		if errors.Is(err, wire.ErrOversize) {
			candidates = candidates[:len(candidates)-1]
			s.count(func(c *Counters) { c.OversizeShrinks++ })
			continue
		}
		if err != nil {
			log.Printf("relay frame encode failed: %v", err)
			return nil, nil
		}
		return frame, ids
	}
	return nil, nil
}

// adaptSpreadingFactor consults the link budget for the current geometry
// before encoding, when a collector position is configured.
func (s *Scheduler) adaptSpreadingFactor(snap model.SatelliteSnapshot) {
	if !s.opts.AdaptSF {
		return
	}
	p := s.opts.Budget
	p.SpreadingFactor = s.link.SpreadingFactor()
	res := linkbudget.Calculate(snap.Position, s.opts.Collector, p)
	if !res.Viable {
		log.Printf("link budget marginal distance=%.0fkm margin=%.1fdB sf=%d", res.DistanceKm, res.MarginDb, res.RecommendedSF)
	}
	if res.RecommendedSF != s.link.SpreadingFactor() {
		if err := s.link.SetSpreadingFactor(res.RecommendedSF); err != nil {
			// Modem keeps its current modulation; airtime math must follow it.
			log.Printf("spreading factor change refused: %v", err)
			return
		}
		log.Printf("spreading factor -> %d distance=%.0fkm", res.RecommendedSF, res.DistanceKm)
	}
}

func (s *Scheduler) recordNode(report model.NodeReport, quality model.SignalQuality) {
	if s.opts.Recorder == nil {
		return
	}
	var rec model.GroundNodeRecord
	for _, r := range s.store.Snapshot() {
		if r.NodeID == report.NodeID {
			rec = r
			break
		}
	}
	row := storage.NodeRow{
		Timestamp:        s.clock.Now(),
		SessionID:        s.sess.ID(),
		NodeID:           report.NodeID,
		Seq:              report.Seq,
		SoilMoisturePct:  report.SoilMoisturePct,
		AmbientTempC:     report.AmbientTempC,
		HumidityPct:      report.HumidityPct,
		IrrigationActive: report.IrrigationActive,
		RSSIDbm:          quality.RSSIDbm,
		SNRDb:            quality.SNRDb,
		PacketsReceived:  rec.PacketsReceived,
		PacketsLost:      rec.PacketsLost,
		Tier:             rec.Tier.String(),
	}
	if err := s.opts.Recorder.AppendNode(row); err != nil {
		log.Printf("append node row failed: %v", err)
	}
}

func (s *Scheduler) recordCycle(snap model.SatelliteSnapshot) {
	if s.opts.Recorder == nil {
		return
	}
	row := storage.SatelliteRow{
		Timestamp:      s.clock.Now(),
		SessionID:      s.sess.ID(),
		LatDeg:         snap.Position.LatDeg,
		LonDeg:         snap.Position.LonDeg,
		AltMeters:      snap.Position.AltMeters,
		BatteryVolts:   snap.BatteryVolts,
		InternalTempC:  snap.InternalTempC,
		PressureHPa:    snap.PressureHPa,
		StatusBits:     snap.StatusBits,
		ErrorCount:     snap.ErrorCount,
		ActiveNodes:    s.store.ActiveCount(),
		TotalCollected: s.store.TotalCollected(),
		DutyUsedMs:     s.guard.Used().Milliseconds(),
	}
	if err := s.opts.Recorder.AppendSatellite(row); err != nil {
		log.Printf("append satellite row failed: %v", err)
	}
}

func (s *Scheduler) publish(snap model.SatelliteSnapshot) {
	if s.opts.Publisher == nil {
		return
	}
	report := uplink.BuildReport(s.sess.ID(), s.cfg.Callsign, snap, s.store.Snapshot())
	s.opts.Publisher.TryEnqueue(report)
}

// Status returns a read-only snapshot for diagnostics.
func (s *Scheduler) Status() Status {
	now := time.Now()
	s.mu.Lock()
	counters := s.counters
	s.mu.Unlock()
	return Status{
		SessionID:        s.sess.ID(),
		Active:           s.sess.Active(),
		UptimeSec:        s.sess.Duration(now).Seconds(),
		Counters:         counters,
		Link:             s.link.Stats(),
		DutyUsedMs:       s.guard.Used().Milliseconds(),
		DutyCapacityMs:   s.guard.Capacity().Milliseconds(),
		DutyWindowRemSec: s.guard.WindowRemaining(now).Seconds(),
		ActiveNodes:      s.store.ActiveCount(),
		TotalCollected:   s.store.TotalCollected(),
		SpreadingFactor:  s.link.SpreadingFactor(),
	}
}

// Nodes returns copies of the live store records for diagnostics.
func (s *Scheduler) Nodes() []model.GroundNodeRecord {
	return s.store.Snapshot()
}

func (s *Scheduler) count(fn func(*Counters)) {
	s.mu.Lock()
	fn(&s.counters)
	s.mu.Unlock()
}
