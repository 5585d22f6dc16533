package radio

import (
	"errors"

	"github.com/mathasilv/AgroSat-IoT-sub000/internal/model"
)

var (
	ErrHardware       = errors.New("radio: hardware fault")
	ErrChannelBusy    = errors.New("radio: channel busy")
	ErrTransmitFailed = errors.New("radio: transmit failed")
)

// ModemParams are the modulation settings pushed to the transceiver. They
// must match the receiving collector.
type ModemParams struct {
	FrequencyHz     int
	BandwidthHz     int
	SpreadingFactor int
	CodingRate      int // denominator of 4/x: 5..8
	PreambleLength  int
	SyncWord        int
	CRCEnabled      bool
}

// Driver abstracts the radio transceiver hardware. The single transceiver is
// exclusively owned by one Link and never accessed concurrently from two
// logical paths.
type Driver interface {
	// Configure reprograms the modem's modulation. Called at link startup
	// and again whenever the spreading factor adapts.
	Configure(p ModemParams) error
	// Transmit sends one frame and blocks until the modem accepts it.
	Transmit(frame []byte) error
	// Receive polls for one pending frame without blocking. ok is false
	// when nothing is pending.
	Receive() (frame []byte, quality model.SignalQuality, ok bool, err error)
	// ChannelRSSI samples the instantaneous received signal strength in dBm.
	ChannelRSSI() (int, error)
	// SetTxPower sets the transmit power ceiling in dBm.
	SetTxPower(dbm int) error
	Close() error
}

// rxPacket pairs a received frame with its reception quality.
type rxPacket struct {
	frame   []byte
	quality model.SignalQuality
}

// FrameCipher is the optional external fixed-key block cipher applied to the
// already-framed bytes. Key management is outside this subsystem.
type FrameCipher interface {
	Encrypt(frame []byte) []byte
	// Decrypt reports ok=false when the frame cannot be deciphered; such
	// frames are discarded before decode.
	Decrypt(frame []byte) ([]byte, bool)
}
