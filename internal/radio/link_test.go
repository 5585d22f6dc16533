package radio

import (
	"errors"
	"testing"
	"time"

	"github.com/mathasilv/AgroSat-IoT-sub000/internal/model"
)

func linkConfig() Config {
	return Config{
		FrequencyHz:          868100000,
		SpreadingFactor:      9,
		BandwidthHz:          125000,
		CodingRate:           5,
		PreambleLength:       8,
		SyncWord:             0x34,
		CRCEnabled:           true,
		TxPowerDbm:           14,
		CCARSSIDbm:           -90,
		TxAttempts:           3,
		BackoffMin:           time.Millisecond,
		BackoffMax:           2 * time.Millisecond,
		MinRSSIDbm:           -120,
		MinSNRDb:             -12,
		LowBatteryVolts:      3.5,
		LowBatteryTxPowerDbm: 10,
	}
}

func newTestLink(drv Driver, cfg Config, cipher FrameCipher) *Link {
	l := NewLink(drv, cfg, cipher)
	l.sleep = func(time.Duration) {}
	return l
}

func TestSend_RecordsAirtime(t *testing.T) {
	t.Parallel()

	drv := NewLoopback()
	l := newTestLink(drv, linkConfig(), nil)

	onAir, err := l.Send([]byte("hello relay"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if onAir <= 0 {
		t.Fatalf("airtime=%v", onAir)
	}
	if got := l.Stats(); got.Sent != 1 || got.AirtimeTotal != onAir {
		t.Fatalf("stats=%+v", got)
	}
	if sent := drv.Sent(); len(sent) != 1 || string(sent[0]) != "hello relay" {
		t.Fatalf("sent=%q", sent)
	}
	if drv.TxPower() != 14 {
		t.Fatalf("tx_power=%d", drv.TxPower())
	}
}

func TestSend_BusyChannelRetriesThenFails(t *testing.T) {
	t.Parallel()

	drv := NewLoopback()
	l := newTestLink(drv, linkConfig(), nil)

	drv.SetBusyPolls(2)
	if _, err := l.Send([]byte("x")); err != nil {
		t.Fatalf("third attempt should clear: %v", err)
	}

	drv.SetBusyPolls(10)
	if _, err := l.Send([]byte("x")); !errors.Is(err, ErrChannelBusy) {
		t.Fatalf("err=%v", err)
	}
	stats := l.Stats()
	if stats.SendFailures != 1 {
		t.Fatalf("failures=%d", stats.SendFailures)
	}
	if stats.BusyBackoffs != 5 {
		t.Fatalf("busy=%d", stats.BusyBackoffs)
	}
}

func TestSend_TransmitFailureIsTransient(t *testing.T) {
	t.Parallel()

	drv := NewLoopback()
	l := newTestLink(drv, linkConfig(), nil)
	drv.FailTransmits(errors.New("modem nak"))

	if _, err := l.Send([]byte("x")); !errors.Is(err, ErrTransmitFailed) {
		t.Fatalf("err=%v", err)
	}
	drv.FailTransmits(nil)
	if _, err := l.Send([]byte("x")); err != nil {
		t.Fatalf("recovered send: %v", err)
	}
}

func TestSend_LowBatteryClampsPower(t *testing.T) {
	t.Parallel()

	drv := NewLoopback()
	l := newTestLink(drv, linkConfig(), nil)

	l.NoteBattery(3.2)
	if _, err := l.Send([]byte("x")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if drv.TxPower() != 10 {
		t.Fatalf("tx_power=%d", drv.TxPower())
	}

	l.NoteBattery(3.9)
	if _, err := l.Send([]byte("x")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if drv.TxPower() != 14 {
		t.Fatalf("tx_power=%d", drv.TxPower())
	}
}

func TestPoll_QualityFloor(t *testing.T) {
	t.Parallel()

	drv := NewLoopback()
	l := newTestLink(drv, linkConfig(), nil)

	drv.Inject([]byte("weak"), model.SignalQuality{RSSIDbm: -125, SNRDb: 3})
	drv.Inject([]byte("noisy"), model.SignalQuality{RSSIDbm: -80, SNRDb: -15})
	drv.Inject([]byte("good"), model.SignalQuality{RSSIDbm: -80, SNRDb: 8})

	if _, _, ok := l.Poll(); ok {
		t.Fatalf("weak packet accepted")
	}
	if _, _, ok := l.Poll(); ok {
		t.Fatalf("noisy packet accepted")
	}
	raw, q, ok := l.Poll()
	if !ok || string(raw) != "good" {
		t.Fatalf("ok=%v raw=%q", ok, raw)
	}
	if q.RSSIDbm != -80 {
		t.Fatalf("rssi=%d", q.RSSIDbm)
	}
	stats := l.Stats()
	if stats.Received != 1 || stats.Rejected != 2 {
		t.Fatalf("stats=%+v", stats)
	}
	if _, _, ok := l.Poll(); ok {
		t.Fatalf("empty queue returned a packet")
	}
}

// xorCipher is a stand-in for the external fixed-key frame cipher.
type xorCipher struct{ key byte }

func (c xorCipher) Encrypt(frame []byte) []byte {
	out := make([]byte, len(frame))
	for i, b := range frame {
		out[i] = b ^ c.key
	}
	return out
}

func (c xorCipher) Decrypt(frame []byte) ([]byte, bool) {
	return c.Encrypt(frame), true
}

func TestCipherHook_AppliedToFramedBytes(t *testing.T) {
	t.Parallel()

	drv := NewLoopback()
	l := newTestLink(drv, linkConfig(), xorCipher{key: 0x5a})

	if _, err := l.Send([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	sent := drv.Sent()
	if sent[0][0] != 0x5b || sent[0][1] != 0x58 {
		t.Fatalf("ciphertext=% x", sent[0])
	}

	drv.Inject([]byte{0x5b, 0x58}, model.SignalQuality{RSSIDbm: -70, SNRDb: 9})
	raw, _, ok := l.Poll()
	if !ok || raw[0] != 0x01 || raw[1] != 0x02 {
		t.Fatalf("plaintext=% x ok=%v", raw, ok)
	}
}

func TestAirtime_GrowsWithSpreadingFactor(t *testing.T) {
	t.Parallel()

	l := newTestLink(NewLoopback(), linkConfig(), nil)

	if err := l.SetSpreadingFactor(7); err != nil {
		t.Fatalf("SetSpreadingFactor: %v", err)
	}
	fast, err := l.Airtime(30)
	if err != nil {
		t.Fatalf("Airtime sf7: %v", err)
	}
	if err := l.SetSpreadingFactor(12); err != nil {
		t.Fatalf("SetSpreadingFactor: %v", err)
	}
	slow, err := l.Airtime(30)
	if err != nil {
		t.Fatalf("Airtime sf12: %v", err)
	}
	if slow <= fast {
		t.Fatalf("sf7=%v sf12=%v", fast, slow)
	}
}

func TestSetSpreadingFactor_Clamps(t *testing.T) {
	t.Parallel()

	l := newTestLink(NewLoopback(), linkConfig(), nil)
	if err := l.SetSpreadingFactor(1); err != nil {
		t.Fatalf("SetSpreadingFactor: %v", err)
	}
	if got := l.SpreadingFactor(); got != 7 {
		t.Fatalf("sf=%d", got)
	}
	if err := l.SetSpreadingFactor(99); err != nil {
		t.Fatalf("SetSpreadingFactor: %v", err)
	}
	if got := l.SpreadingFactor(); got != 12 {
		t.Fatalf("sf=%d", got)
	}
}

func TestConfigure_PushesModemParams(t *testing.T) {
	t.Parallel()

	drv := NewLoopback()
	l := newTestLink(drv, linkConfig(), nil)

	if err := l.Configure(); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	p := drv.Params()
	if p.FrequencyHz != 868100000 || p.BandwidthHz != 125000 {
		t.Fatalf("params=%+v", p)
	}
	if p.SpreadingFactor != 9 || p.CodingRate != 5 || p.PreambleLength != 8 {
		t.Fatalf("params=%+v", p)
	}
	if p.SyncWord != 0x34 || !p.CRCEnabled {
		t.Fatalf("params=%+v", p)
	}
}

func TestSetSpreadingFactor_ReprogramsModem(t *testing.T) {
	t.Parallel()

	drv := NewLoopback()
	l := newTestLink(drv, linkConfig(), nil)

	if err := l.SetSpreadingFactor(11); err != nil {
		t.Fatalf("SetSpreadingFactor: %v", err)
	}
	if got := drv.Params().SpreadingFactor; got != 11 {
		t.Fatalf("modem sf=%d", got)
	}
	if got := l.SpreadingFactor(); got != 11 {
		t.Fatalf("link sf=%d", got)
	}
}

func TestSetSpreadingFactor_RefusedKeepsCurrent(t *testing.T) {
	t.Parallel()

	drv := NewLoopback()
	l := newTestLink(drv, linkConfig(), nil)
	drv.FailConfigure(errors.New("modem nak"))

	if err := l.SetSpreadingFactor(12); err == nil {
		t.Fatalf("expected configure failure")
	}
	// Airtime accounting must keep following the modem's actual modulation.
	if got := l.SpreadingFactor(); got != 9 {
		t.Fatalf("sf=%d", got)
	}
}

func TestSend_SenseFailureTreatedAsBusy(t *testing.T) {
	t.Parallel()

	drv := NewLoopback()
	l := newTestLink(drv, linkConfig(), nil)
	drv.FailRSSI(errors.New("modem dead"))

	if _, err := l.Send([]byte("x")); !errors.Is(err, ErrChannelBusy) {
		t.Fatalf("err=%v", err)
	}
	stats := l.Stats()
	if stats.BusyBackoffs != 3 || stats.SendFailures != 1 {
		t.Fatalf("stats=%+v", stats)
	}
	if len(drv.Sent()) != 0 {
		t.Fatalf("transmitted with channel sense down")
	}
}
