package radio

import (
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/mathasilv/AgroSat-IoT-sub000/internal/model"
)

// SerialModem drives a UART-attached LoRa modem speaking an AT-style line
// protocol:
//
//	-> AT+BAND=<hz>                       <- +OK
//	-> AT+PARAMETER=<sf>,<bw>,<cr>,<pre>  <- +OK (bw/cr are modem indexes)
//	-> AT+SYNC=<hex>                      <- +OK
//	-> AT+CRC=<0|1>                       <- +OK
//	-> AT+SEND=<len>,<hex>                <- +OK | +ERR=<code>
//	-> AT+RSSI?                           <- +RSSI=<dbm>
//	-> AT+CRFOP=<dbm>                     <- +OK
//	unsolicited: +RCV=<len>,<hex>,<rssi>,<snr>
//
// Unsolicited +RCV lines can arrive while a command response is pending;
// they are queued and drained through Receive.
type SerialModem struct {
	mu      sync.Mutex
	port    serial.Port
	pending []rxPacket
	buf     []byte

	cmdTimeout time.Duration
}

// OpenSerialModem opens the modem port. A failure here is a hardware fault:
// the relay subsystem must report itself offline for the session.
func OpenSerialModem(portName string, baud int) (*SerialModem, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrHardware, portName, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: reset %s: %v", ErrHardware, portName, err)
	}
	log.Printf("serial modem open port=%s baud=%d", portName, baud)
	return &SerialModem{port: port, cmdTimeout: 2 * time.Second}, nil
}

// Configure reprograms the modem's modulation. The modem indexes bandwidth
// (7=125 kHz, 8=250 kHz, 9=500 kHz) and coding rate (1=4/5..4=4/8).
func (m *SerialModem) Configure(p ModemParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmds := []string{
		fmt.Sprintf("AT+BAND=%d\r\n", p.FrequencyHz),
		fmt.Sprintf("AT+PARAMETER=%d,%d,%d,%d\r\n",
			p.SpreadingFactor, bandwidthIndex(p.BandwidthHz), p.CodingRate-4, p.PreambleLength),
		fmt.Sprintf("AT+SYNC=%02X\r\n", p.SyncWord),
		fmt.Sprintf("AT+CRC=%d\r\n", boolBit(p.CRCEnabled)),
	}
	for _, cmd := range cmds {
		resp, err := m.command(cmd)
		if err != nil {
			return err
		}
		if resp != "+OK" {
			return fmt.Errorf("%w: %q rejected: %q", ErrHardware, strings.TrimSpace(cmd), resp)
		}
	}
	return nil
}

func bandwidthIndex(hz int) int {
	switch {
	case hz >= 500000:
		return 9
	case hz >= 250000:
		return 8
	default:
		return 7
	}
}

func boolBit(v bool) int {
	if v {
		return 1
	}
	return 0
}

func (m *SerialModem) Transmit(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := fmt.Sprintf("AT+SEND=%d,%s\r\n", len(frame), hex.EncodeToString(frame))
	resp, err := m.command(cmd)
	if err != nil {
		return err
	}
	if resp != "+OK" {
		return fmt.Errorf("%w: modem said %q", ErrTransmitFailed, resp)
	}
	return nil
}

func (m *SerialModem) Receive() ([]byte, model.SignalQuality, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Drain whatever the modem pushed since the last poll.
	if err := m.readLines(10 * time.Millisecond); err != nil {
		return nil, model.SignalQuality{}, false, err
	}
	if len(m.pending) == 0 {
		return nil, model.SignalQuality{}, false, nil
	}
	pkt := m.pending[0]
	m.pending = m.pending[1:]
	return pkt.frame, pkt.quality, true, nil
}

func (m *SerialModem) ChannelRSSI() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	resp, err := m.command("AT+RSSI?\r\n")
	if err != nil {
		return 0, err
	}
	value, ok := strings.CutPrefix(resp, "+RSSI=")
	if !ok {
		return 0, fmt.Errorf("radio: unexpected rssi response %q", resp)
	}
	return strconv.Atoi(value)
}

func (m *SerialModem) SetTxPower(dbm int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	resp, err := m.command(fmt.Sprintf("AT+CRFOP=%d\r\n", dbm))
	if err != nil {
		return err
	}
	if resp != "+OK" {
		return fmt.Errorf("radio: set power rejected: %q", resp)
	}
	return nil
}

func (m *SerialModem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port.Close()
}

// command writes one AT command and waits for its response line, queuing any
// unsolicited receive lines seen meanwhile. Caller holds the lock.
func (m *SerialModem) command(cmd string) (string, error) {
	if err := writeFull(m.port, []byte(cmd)); err != nil {
		return "", fmt.Errorf("radio: write: %w", err)
	}

	deadline := time.Now().Add(m.cmdTimeout)
	for time.Now().Before(deadline) {
		line, ok := m.nextLine()
		if !ok {
			if err := m.readLines(50 * time.Millisecond); err != nil {
				return "", err
			}
			continue
		}
		if strings.HasPrefix(line, "+RCV=") {
			m.queueReceived(line)
			continue
		}
		return line, nil
	}
	return "", fmt.Errorf("radio: command timeout: %q", strings.TrimSpace(cmd))
}

// readLines pulls available bytes off the port and queues complete +RCV
// lines. Non-RCV lines stay buffered for command to consume.
func (m *SerialModem) readLines(timeout time.Duration) error {
	if err := m.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("radio: set timeout: %w", err)
	}
	chunk := make([]byte, 512)
	n, err := m.port.Read(chunk)
	if err != nil {
		return fmt.Errorf("radio: read: %w", err)
	}
	m.buf = append(m.buf, chunk[:n]...)

	for {
		line, ok := m.peekLine()
		if !ok || !strings.HasPrefix(line, "+RCV=") {
			return nil
		}
		line, _ = m.nextLine()
		m.queueReceived(line)
	}
}

func (m *SerialModem) peekLine() (string, bool) {
	idx := strings.IndexByte(string(m.buf), '\n')
	if idx < 0 {
		return "", false
	}
	return strings.TrimRight(string(m.buf[:idx]), "\r"), true
}

func (m *SerialModem) nextLine() (string, bool) {
	idx := strings.IndexByte(string(m.buf), '\n')
	if idx < 0 {
		return "", false
	}
	line := strings.TrimRight(string(m.buf[:idx]), "\r")
	m.buf = m.buf[idx+1:]
	if line == "" {
		return m.nextLine()
	}
	return line, true
}

func (m *SerialModem) queueReceived(line string) {
	fields := strings.Split(strings.TrimPrefix(line, "+RCV="), ",")
	if len(fields) != 4 {
		log.Printf("serial modem: malformed rcv line %q", line)
		return
	}
	frame, err := hex.DecodeString(fields[1])
	if err != nil {
		log.Printf("serial modem: bad rcv payload %q", fields[1])
		return
	}
	rssi, err := strconv.Atoi(fields[2])
	if err != nil {
		log.Printf("serial modem: bad rcv rssi %q", fields[2])
		return
	}
	snr, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		log.Printf("serial modem: bad rcv snr %q", fields[3])
		return
	}
	m.pending = append(m.pending, rxPacket{
		frame:   frame,
		quality: model.SignalQuality{RSSIDbm: rssi, SNRDb: snr},
	})
}

func writeFull(port serial.Port, data []byte) error {
	for written := 0; written < len(data); {
		n, err := port.Write(data[written:])
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}
