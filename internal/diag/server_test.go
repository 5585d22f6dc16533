package diag

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mathasilv/AgroSat-IoT-sub000/internal/model"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/relay"
)

type fakeSource struct {
	status relay.Status
	nodes  []model.GroundNodeRecord
}

func (f fakeSource) Status() relay.Status { return f.status }
func (f fakeSource) Nodes() []model.GroundNodeRecord { return f.nodes }

func TestHandleStatus(t *testing.T) {
	t.Parallel()

	src := fakeSource{status: relay.Status{
		SessionID:       "s-1",
		Active:          true,
		ActiveNodes:     3,
		TotalCollected:  42,
		SpreadingFactor: 9,
	}}
	ts := httptest.NewServer(NewServer("", src).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var got relay.Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SessionID != "s-1" || !got.Active || got.ActiveNodes != 3 {
		t.Fatalf("status=%+v", got)
	}
	if got.SpreadingFactor != 9 {
		t.Fatalf("sf=%d want 9", got.SpreadingFactor)
	}
}

func TestHandleNodes(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	src := fakeSource{nodes: []model.GroundNodeRecord{{
		NodeReport: model.NodeReport{
			NodeID: 7, Seq: 12, SoilMoisturePct: 8.5, AmbientTempC: 31, HumidityPct: 40,
		},
		Quality:         model.SignalQuality{RSSIDbm: -92, SNRDb: 3.5},
		PacketsReceived: 12,
		PacketsLost:     2,
		LastReceiveAt:   at,
		Tier:            model.PriorityCritical,
		Forwarded:       true,
	}}}
	ts := httptest.NewServer(NewServer("", src).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/nodes")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var got []nodeView
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("nodes=%d want 1", len(got))
	}
	n := got[0]
	if n.NodeID != 7 || n.Tier != "critical" || !n.Forwarded {
		t.Fatalf("node=%+v", n)
	}
	if n.RSSIDbm != -92 || n.PacketsLost != 2 {
		t.Fatalf("quality rssi=%d lost=%d", n.RSSIDbm, n.PacketsLost)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(NewServer("", fakeSource{}).Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/status", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want 405", resp.StatusCode)
	}
}
