package radio

import (
	"bytes"
	"testing"
)

func TestQueueReceived(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		line   string
		queued int
	}{
		{name: "valid", line: "+RCV=3,A70102,-87,5.25", queued: 1},
		{name: "missing fields", line: "+RCV=3,A70102,-87", queued: 0},
		{name: "extra field", line: "+RCV=3,A70102,-87,5.25,junk", queued: 0},
		{name: "bad hex payload", line: "+RCV=3,ZZ0102,-87,5.25", queued: 0},
		{name: "bad rssi", line: "+RCV=3,A70102,loud,5.25", queued: 0},
		{name: "bad snr", line: "+RCV=3,A70102,-87,quiet", queued: 0},
		{name: "empty", line: "+RCV=", queued: 0},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m := &SerialModem{}
			m.queueReceived(tc.line)
			if got := len(m.pending); got != tc.queued {
				t.Fatalf("queued=%d want %d", got, tc.queued)
			}
		})
	}
}

func TestQueueReceived_DecodesFrameAndQuality(t *testing.T) {
	t.Parallel()

	m := &SerialModem{}
	m.queueReceived("+RCV=3,A70102,-87,5.25")
	m.queueReceived("+RCV=2,BEEF,-101,-2.5")

	if len(m.pending) != 2 {
		t.Fatalf("queued=%d want 2", len(m.pending))
	}
	first := m.pending[0]
	if !bytes.Equal(first.frame, []byte{0xA7, 0x01, 0x02}) {
		t.Fatalf("frame=%x", first.frame)
	}
	if first.quality.RSSIDbm != -87 || first.quality.SNRDb != 5.25 {
		t.Fatalf("quality=%+v", first.quality)
	}
	second := m.pending[1]
	if !bytes.Equal(second.frame, []byte{0xBE, 0xEF}) || second.quality.RSSIDbm != -101 {
		t.Fatalf("second=%x %+v", second.frame, second.quality)
	}
}
