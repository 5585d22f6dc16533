package uplink

import (
	"context"
	"log"
	"sync"
	"time"
)

const probeInterval = 5 * time.Minute

// Stats are the uplink delivery counters.
type Stats struct {
	Enqueued     uint64
	Dropped      uint64
	Posted       uint64
	PostFailures uint64
	Available    bool
	PublicAddr   string
}

// Uplink is the secondary best-effort transport: a bounded queue feeding a
// worker goroutine that posts JSON reports when the bearer is available.
// Enqueue never blocks the radio loop; a full queue drops the report.
type Uplink struct {
	client      *Client
	queue       chan Report
	stunServers []string
	stunTimeout time.Duration

	mu         sync.Mutex
	available  bool
	publicAddr string
	enqueued   uint64
	dropped    uint64
	posted     uint64
	failures   uint64
}

// New creates an uplink posting to url with the given queue bound.
func New(url string, queueSize int, timeout time.Duration, stunServers []string) *Uplink {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Uplink{
		client:      NewClient(url, timeout),
		queue:       make(chan Report, queueSize),
		stunServers: stunServers,
		stunTimeout: 5 * time.Second,
	}
}

// TryEnqueue offers a report without blocking. Returns false when the queue
// is full and the report was dropped.
func (u *Uplink) TryEnqueue(report Report) bool {
	select {
	case u.queue <- report:
		u.mu.Lock()
		u.enqueued++
		u.mu.Unlock()
		return true
	default:
		u.mu.Lock()
		u.dropped++
		u.mu.Unlock()
		return false
	}
}

// Run drives the worker: periodic availability probes and queue draining.
// Blocks until ctx is cancelled.
func (u *Uplink) Run(ctx context.Context) {
	u.probe(ctx)

	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.probe(ctx)
		case report := <-u.queue:
			u.post(ctx, report)
		}
	}
}

func (u *Uplink) probe(ctx context.Context) {
	if len(u.stunServers) == 0 {
		// No probe configured: assume the bearer is up and let the
		// HTTP post itself be the availability check.
		u.mu.Lock()
		u.available = true
		u.mu.Unlock()
		return
	}
	addr, err := ProbePublicAddr(ctx, u.stunServers, u.stunTimeout)
	u.mu.Lock()
	defer u.mu.Unlock()
	if err != nil {
		if u.available {
			log.Printf("uplink unavailable: %v", err)
		}
		u.available = false
		u.publicAddr = ""
		return
	}
	if !u.available {
		log.Printf("uplink available public_addr=%s", addr)
	}
	u.available = true
	u.publicAddr = addr
}

func (u *Uplink) post(ctx context.Context, report Report) {
	u.mu.Lock()
	available := u.available
	report.PublicAddr = u.publicAddr
	u.mu.Unlock()

	if !available {
		u.mu.Lock()
		u.dropped++
		u.mu.Unlock()
		return
	}
	if err := u.client.Publish(ctx, report); err != nil {
		u.mu.Lock()
		u.failures++
		u.mu.Unlock()
		log.Printf("uplink publish failed: %v", err)
		return
	}
	u.mu.Lock()
	u.posted++
	u.mu.Unlock()
}

// Stats returns a copy of the delivery counters.
func (u *Uplink) Stats() Stats {
	u.mu.Lock()
	defer u.mu.Unlock()
	return Stats{
		Enqueued:     u.enqueued,
		Dropped:      u.dropped,
		Posted:       u.posted,
		PostFailures: u.failures,
		Available:    u.available,
		PublicAddr:   u.publicAddr,
	}
}
