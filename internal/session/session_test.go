package session

import (
	"testing"
	"time"

	"github.com/mathasilv/AgroSat-IoT-sub000/internal/radio"
)

func TestStartStop(t *testing.T) {
	t.Parallel()

	var s Session
	now := time.Now()
	wall := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	id := s.Start(now, wall)
	if id == "" || !s.Active() {
		t.Fatalf("id=%q active=%v", id, s.Active())
	}
	if again := s.Start(now.Add(time.Second), wall); again != id {
		t.Fatalf("restart changed id: %q != %q", again, id)
	}
	if got := s.Duration(now.Add(90 * time.Second)); got != 90*time.Second {
		t.Fatalf("duration=%v", got)
	}

	sum, ok := s.Stop(now.Add(2*time.Minute), radio.Stats{Sent: 7})
	if !ok {
		t.Fatalf("stop returned !ok")
	}
	if sum.ID != id || sum.Duration != 2*time.Minute || !sum.StartUTC.Equal(wall) {
		t.Fatalf("summary=%+v", sum)
	}
	if sum.Link.Sent != 7 {
		t.Fatalf("link stats=%+v", sum.Link)
	}
	if s.Active() || s.ID() != "" {
		t.Fatalf("session not cleared")
	}
}

func TestStop_Inactive(t *testing.T) {
	t.Parallel()

	var s Session
	if _, ok := s.Stop(time.Now(), radio.Stats{}); ok {
		t.Fatalf("stop of inactive session returned ok")
	}
	if got := s.Duration(time.Now()); got != 0 {
		t.Fatalf("duration=%v", got)
	}
}
