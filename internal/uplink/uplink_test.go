package uplink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mathasilv/AgroSat-IoT-sub000/internal/model"
)

func TestTryEnqueue_DropsWhenFull(t *testing.T) {
	t.Parallel()

	u := New("http://unused", 2, time.Second, nil)
	if !u.TryEnqueue(Report{SessionID: "a"}) || !u.TryEnqueue(Report{SessionID: "b"}) {
		t.Fatalf("enqueue into empty queue failed")
	}
	if u.TryEnqueue(Report{SessionID: "c"}) {
		t.Fatalf("full queue accepted a report")
	}
	stats := u.Stats()
	if stats.Enqueued != 2 || stats.Dropped != 1 {
		t.Fatalf("stats=%+v", stats)
	}
}

func TestRun_PostsQueuedReports(t *testing.T) {
	t.Parallel()

	got := make(chan Report, 1)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type=%q", ct)
		}
		var report Report
		if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
			t.Errorf("decode: %v", err)
		}
		got <- report
	}))
	defer s.Close()

	u := New(s.URL, 4, time.Second, nil)
	snap := model.SatelliteSnapshot{
		Timestamp:    time.Unix(1700000000, 0).UTC(),
		Position:     model.GeoPoint{LatDeg: 1, LonDeg: 2, AltMeters: 3},
		BatteryVolts: 3.8,
	}
	records := []model.GroundNodeRecord{{
		NodeReport: model.NodeReport{NodeID: 5, Seq: 9, SoilMoisturePct: 45},
		Quality:    model.SignalQuality{RSSIDbm: -80, SNRDb: 6},
		Tier:       model.PriorityNormal,
	}}
	u.TryEnqueue(BuildReport("sess-1", "AGROSAT-1", snap, records))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go u.Run(ctx)

	select {
	case report := <-got:
		if report.SessionID != "sess-1" || report.Callsign != "AGROSAT-1" {
			t.Fatalf("report=%+v", report)
		}
		if len(report.Nodes) != 1 || report.Nodes[0].NodeID != 5 || report.Nodes[0].Tier != "normal" {
			t.Fatalf("nodes=%+v", report.Nodes)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("report never posted")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if u.Stats().Posted == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("stats=%+v", u.Stats())
}

func TestPost_FailureCounted(t *testing.T) {
	t.Parallel()

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"nope"}`, http.StatusBadRequest)
	}))
	defer s.Close()

	u := New(s.URL, 4, time.Second, nil)
	u.probe(context.Background())
	u.post(context.Background(), Report{SessionID: "x"})

	stats := u.Stats()
	if stats.PostFailures != 1 || stats.Posted != 0 {
		t.Fatalf("stats=%+v", stats)
	}
}
