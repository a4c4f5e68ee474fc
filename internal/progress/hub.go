// Package progress fans download progress out to every connected observer.
//
// There is a single process-wide Hub and no partitioning by download: every
// subscriber sees every event, so values from concurrent downloads interleave.
package progress

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
)

// EventTypeProgress is the only event type pushed today.
const EventTypeProgress = "progress"

// Complete is the terminal percentage of a single download.
const Complete = 100.0

// Event is the frame pushed to subscribers.
type Event struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// Subscriber receives events until a Send fails.
type Subscriber interface {
	Send(Event) error
	Close() error
}

// Hub owns the subscriber set. It is only reachable through Subscribe,
// Unsubscribe, Publish and Enqueue.
//
// Publish delivers to subscribers one after another on the Run goroutine, so
// a stalled peer holds up the others until its Send fails. Delivery is
// bounded by the subscriber's write deadline, not non-blocking.
type Hub struct {
	mu   sync.Mutex
	subs map[Subscriber]struct{}

	queue    chan float64
	stop     chan struct{}
	stopOnce sync.Once
	dropped  atomic.Int64
	logger   *slog.Logger
}

// NewHub creates a hub whose Enqueue buffer holds queueSize events.
func NewHub(queueSize int, logger *slog.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[Subscriber]struct{}),
		queue:  make(chan float64, queueSize),
		stop:   make(chan struct{}),
		logger: logger,
	}
}

// Subscribe registers s for all future events.
func (h *Hub) Subscribe(s Subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	h.logger.Debug("progress: subscriber connected", slog.Int("subscribers", n))
}

// Unsubscribe removes and closes s. Unknown subscribers are ignored.
func (h *Hub) Unsubscribe(s Subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s]
	delete(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()

	if ok {
		_ = s.Close()
		h.logger.Debug("progress: subscriber disconnected", slog.Int("subscribers", n))
	}
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many intermediate events were discarded because the
// queue was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Publish delivers percent to every subscriber. Subscribers whose delivery
// fails are removed in the same pass; nothing is retried.
func (h *Hub) Publish(percent float64) {
	ev := Event{Type: EventTypeProgress, Value: percent}

	h.mu.Lock()
	snapshot := make([]Subscriber, 0, len(h.subs))
	for s := range h.subs {
		snapshot = append(snapshot, s)
	}
	h.mu.Unlock()

	for _, s := range snapshot {
		if err := s.Send(ev); err != nil {
			h.logger.Debug("progress: dropping subscriber", slog.Any("error", err))
			h.Unsubscribe(s)
		}
	}
}

// Enqueue hands percent to the publishing goroutine without blocking the
// caller. It is safe to call from the extractor's progress callback.
func (h *Hub) Enqueue(percent float64) {
	select {
	case h.queue <- percent:
		return
	default:
	}

	if percent < Complete {
		h.dropped.Add(1)
		return
	}
	// The terminal event still lands behind everything already queued.
	go func() {
		select {
		case h.queue <- percent:
		case <-h.stop:
		}
	}()
}

// Run publishes queued events in order until ctx is done, then closes every
// subscriber.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case p := <-h.queue:
			h.Publish(p)
		}
	}
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() { close(h.stop) })

	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[Subscriber]struct{})
	h.mu.Unlock()

	h.logger.Info("progress: hub stopped",
		slog.Int("subscribers", len(subs)),
		slog.Int64("dropped", h.Dropped()),
	)

	for s := range subs {
		_ = s.Close()
	}
}

// Percent converts a byte count to a percentage rounded to two decimals.
func Percent(downloaded, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(downloaded)/float64(total)*100*100) / 100
}
