package radio

import (
	"sync"

	"github.com/mathasilv/AgroSat-IoT-sub000/internal/model"
)

// Loopback is an in-memory Driver for tests and dry runs. Injected frames
// come back out of Receive; transmitted frames are retained for inspection.
type Loopback struct {
	mu           sync.Mutex
	channelRSSI  int
	busyPolls    int // remaining ChannelRSSI calls that report a busy channel
	sent         [][]byte
	rxq          []rxPacket
	txPower      int
	params       ModemParams
	transmitErr  error
	rssiErr      error
	configureErr error
}

// NewLoopback returns a driver with a quiet channel.
func NewLoopback() *Loopback {
	return &Loopback{channelRSSI: -120}
}

func (d *Loopback) Configure(p ModemParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.configureErr != nil {
		return d.configureErr
	}
	d.params = p
	return nil
}

func (d *Loopback) Transmit(frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transmitErr != nil {
		return d.transmitErr
	}
	d.sent = append(d.sent, append([]byte(nil), frame...))
	return nil
}

func (d *Loopback) Receive() ([]byte, model.SignalQuality, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rxq) == 0 {
		return nil, model.SignalQuality{}, false, nil
	}
	pkt := d.rxq[0]
	d.rxq = d.rxq[1:]
	return pkt.frame, pkt.quality, true, nil
}

func (d *Loopback) ChannelRSSI() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rssiErr != nil {
		return 0, d.rssiErr
	}
	if d.busyPolls > 0 {
		d.busyPolls--
		return -40, nil
	}
	return d.channelRSSI, nil
}

func (d *Loopback) SetTxPower(dbm int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txPower = dbm
	return nil
}

func (d *Loopback) Close() error { return nil }

// Inject queues a frame for the receive path.
func (d *Loopback) Inject(frame []byte, q model.SignalQuality) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rxq = append(d.rxq, rxPacket{frame: append([]byte(nil), frame...), quality: q})
}

// SetBusyPolls makes the next n clear-channel checks report a busy channel.
func (d *Loopback) SetBusyPolls(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.busyPolls = n
}

// FailTransmits makes Transmit return err until cleared with nil.
func (d *Loopback) FailTransmits(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transmitErr = err
}

// FailRSSI makes ChannelRSSI return err until cleared with nil.
func (d *Loopback) FailRSSI(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rssiErr = err
}

// FailConfigure makes Configure return err until cleared with nil.
func (d *Loopback) FailConfigure(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configureErr = err
}

// Params reports the last modulation settings pushed by Configure.
func (d *Loopback) Params() ModemParams {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params
}

// Sent returns copies of the transmitted frames in order.
func (d *Loopback) Sent() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.sent))
	for i, f := range d.sent {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// TxPower reports the last power ceiling applied.
func (d *Loopback) TxPower() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.txPower
}
