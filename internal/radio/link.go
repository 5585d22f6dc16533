package radio

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/brocaar/lorawan/airtime"

	"github.com/mathasilv/AgroSat-IoT-sub000/internal/model"
)

// Config holds the radio link parameters. They are configuration, not
// protocol, but must match the receiving collector.
type Config struct {
	FrequencyHz     int
	SpreadingFactor int
	BandwidthHz     int
	CodingRate      int // denominator of 4/x: 5..8
	PreambleLength  int
	SyncWord        int
	CRCEnabled      bool
	TxPowerDbm      int

	CCARSSIDbm           int // channel treated busy at or above this level
	TxAttempts           int
	BackoffMin           time.Duration
	BackoffMax           time.Duration
	MinRSSIDbm           int // receive quality floor
	MinSNRDb             float64
	LowBatteryVolts      float64
	LowBatteryTxPowerDbm int
}

// Stats are per-direction link counters.
type Stats struct {
	Sent          uint64
	SendFailures  uint64
	BusyBackoffs  uint64
	Received      uint64
	Rejected      uint64
	ReceiveErrors uint64
	AirtimeTotal  time.Duration
}

// Link drives the transceiver: channel-sensing transmit with retry/backoff
// and a polled receive path with signal-quality filtering.
type Link struct {
	mu     sync.Mutex
	drv    Driver
	cfg    Config
	cipher FrameCipher
	stats  Stats

	lowPower bool
	sleep    func(time.Duration) // overridable in tests
}

// NewLink wraps a driver. cipher may be nil when payload confidentiality is
// disabled.
func NewLink(drv Driver, cfg Config, cipher FrameCipher) *Link {
	if cfg.TxAttempts <= 0 {
		cfg.TxAttempts = 3
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin
	}
	return &Link{drv: drv, cfg: cfg, cipher: cipher, sleep: time.Sleep}
}

// Configure pushes the current modulation parameters to the modem. Must be
// called once after NewLink before any transmission; a failure here is a
// hardware fault.
func (l *Link) Configure() error {
	l.mu.Lock()
	cfg := l.cfg
	l.mu.Unlock()
	if err := l.drv.Configure(modemParams(cfg)); err != nil {
		return fmt.Errorf("configure modem: %w", err)
	}
	return nil
}

// Send transmits one frame with clear-channel checks and bounded randomized
// backoff. On success it returns the computed on-air time for duty-cycle
// accounting. All failures are transient: the caller retries next cycle.
func (l *Link) Send(frame []byte) (time.Duration, error) {
	l.mu.Lock()
	cfg := l.cfg
	power := cfg.TxPowerDbm
	if l.lowPower && cfg.LowBatteryTxPowerDbm > 0 {
		power = cfg.LowBatteryTxPowerDbm
	}
	l.mu.Unlock()

	payload := frame
	if l.cipher != nil {
		payload = l.cipher.Encrypt(frame)
	}

	if err := l.drv.SetTxPower(power); err != nil {
		l.count(func(s *Stats) { s.SendFailures++ })
		return 0, fmt.Errorf("set tx power: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < cfg.TxAttempts; attempt++ {
		if attempt > 0 {
			l.sleep(l.backoff(cfg))
		}
		// A failed channel sense is treated as busy: never transmit blind.
		rssi, err := l.drv.ChannelRSSI()
		if err != nil {
			l.count(func(s *Stats) { s.BusyBackoffs++ })
			lastErr = fmt.Errorf("%w: rssi: %v", ErrChannelBusy, err)
			continue
		}
		if rssi >= cfg.CCARSSIDbm {
			l.count(func(s *Stats) { s.BusyBackoffs++ })
			lastErr = ErrChannelBusy
			continue
		}
		if err := l.drv.Transmit(payload); err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrTransmitFailed, err)
			continue
		}
		onAir, err := l.Airtime(len(payload))
		if err != nil {
			return 0, err
		}
		l.count(func(s *Stats) {
			s.Sent++
			s.AirtimeTotal += onAir
		})
		return onAir, nil
	}

	l.count(func(s *Stats) { s.SendFailures++ })
	if lastErr == nil {
		lastErr = ErrTransmitFailed
	}
	return 0, lastErr
}

// Poll checks the receive path once without blocking. Frames below the
// quality floor are rejected before decode and only counted.
func (l *Link) Poll() ([]byte, model.SignalQuality, bool) {
	raw, q, ok, err := l.drv.Receive()
	if err != nil {
		l.count(func(s *Stats) { s.ReceiveErrors++ })
		return nil, q, false
	}
	if !ok {
		return nil, q, false
	}

	l.mu.Lock()
	minRSSI, minSNR := l.cfg.MinRSSIDbm, l.cfg.MinSNRDb
	l.mu.Unlock()
	if q.RSSIDbm < minRSSI || q.SNRDb < minSNR {
		l.count(func(s *Stats) { s.Rejected++ })
		return nil, q, false
	}

	if l.cipher != nil {
		dec, ok := l.cipher.Decrypt(raw)
		if !ok {
			l.count(func(s *Stats) { s.Rejected++ })
			return nil, q, false
		}
		raw = dec
	}
	l.count(func(s *Stats) { s.Received++ })
	return raw, q, true
}

// Airtime computes the LoRa time-on-air of a payload at the current
// modulation parameters.
func (l *Link) Airtime(payloadLen int) (time.Duration, error) {
	l.mu.Lock()
	cfg := l.cfg
	l.mu.Unlock()

	cr, err := codingRate(cfg.CodingRate)
	if err != nil {
		return 0, err
	}
	// Low data-rate optimization is mandatory at SF11/SF12 on 125 kHz.
	ldro := cfg.SpreadingFactor >= 11 && cfg.BandwidthHz <= 125000
	return airtime.CalculateLoRaAirtime(payloadLen, cfg.SpreadingFactor, cfg.BandwidthHz, cfg.PreambleLength, cr, true, ldro)
}

// SetSpreadingFactor adapts the modulation robustness, clamped to SF7..SF12.
// The new factor is pushed to the modem first and committed only on success,
// so airtime accounting always matches what is actually on the air.
func (l *Link) SetSpreadingFactor(sf int) error {
	if sf < 7 {
		sf = 7
	}
	if sf > 12 {
		sf = 12
	}
	l.mu.Lock()
	cfg := l.cfg
	cfg.SpreadingFactor = sf
	l.mu.Unlock()

	if err := l.drv.Configure(modemParams(cfg)); err != nil {
		return fmt.Errorf("set spreading factor: %w", err)
	}
	l.mu.Lock()
	l.cfg.SpreadingFactor = sf
	l.mu.Unlock()
	return nil
}

// SpreadingFactor reports the current spreading factor.
func (l *Link) SpreadingFactor() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg.SpreadingFactor
}

// NoteBattery records the platform battery level. A critically low battery
// clamps transmit power independent of link budget, checked before every
// transmission.
func (l *Link) NoteBattery(volts float64) {
	l.mu.Lock()
	l.lowPower = l.cfg.LowBatteryVolts > 0 && volts <= l.cfg.LowBatteryVolts
	l.mu.Unlock()
}

// Stats returns a copy of the per-direction counters.
func (l *Link) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Close releases the transceiver.
func (l *Link) Close() error {
	return l.drv.Close()
}

func (l *Link) backoff(cfg Config) time.Duration {
	if cfg.BackoffMax <= cfg.BackoffMin {
		return cfg.BackoffMin
	}
	return cfg.BackoffMin + time.Duration(rand.Int63n(int64(cfg.BackoffMax-cfg.BackoffMin)))
}

func (l *Link) count(fn func(*Stats)) {
	l.mu.Lock()
	fn(&l.stats)
	l.mu.Unlock()
}

func modemParams(cfg Config) ModemParams {
	return ModemParams{
		FrequencyHz:     cfg.FrequencyHz,
		BandwidthHz:     cfg.BandwidthHz,
		SpreadingFactor: cfg.SpreadingFactor,
		CodingRate:      cfg.CodingRate,
		PreambleLength:  cfg.PreambleLength,
		SyncWord:        cfg.SyncWord,
		CRCEnabled:      cfg.CRCEnabled,
	}
}

func codingRate(cr int) (airtime.CodingRate, error) {
	switch cr {
	case 5:
		return airtime.CodingRate45, nil
	case 6:
		return airtime.CodingRate46, nil
	case 7:
		return airtime.CodingRate47, nil
	case 8:
		return airtime.CodingRate48, nil
	}
	return 0, fmt.Errorf("radio: unsupported coding rate 4/%d", cr)
}
