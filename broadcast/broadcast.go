// Package broadcast fans committed enrollment events out to connected
// dashboard observers. Delivery is at-most-once and best-effort: a failed
// observer is dropped, the admission that triggered the event is never
// affected, and observers that connect later see nothing.
package broadcast

import (
	"context"
	"sync"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"aems-api/domain"
)

const (
	// pendingBuf bounds events waiting for the dispatcher. The admission
	// path never blocks on fan-out; when the buffer is full the event is
	// dropped and logged.
	pendingBuf = 256
	// subscriberBuf is the per-observer channel depth. An observer that
	// falls this far behind is treated as failed and removed.
	subscriberBuf = 8
)

// Hub owns the observer registry. All broadcasts funnel through a single
// dispatch goroutine, so broadcast calls are processed one at a time; the
// fan-out order across observers within one broadcast is unspecified.
type Hub struct {
	logger *log.Logger

	pending chan []byte

	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

// NewHub creates a Hub. Run must be started for events to flow.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		logger:  logger,
		pending: make(chan []byte, pendingBuf),
		subs:    make(map[chan []byte]struct{}),
	}
}

// Run consumes pending broadcasts until the context is cancelled. It is
// meant to be started once, as a goroutine, at service startup.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-h.pending:
			h.deliver(data)
		}
	}
}

// Subscribe registers a new observer connection and returns its event
// channel. The channel is closed by the hub if the observer fails to keep
// up; otherwise the caller releases it with Unsubscribe.
func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, subscriberBuf)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.logger.WithField("connected_clients", n).Info("observer connected")
	return ch
}

// Unsubscribe removes an observer connection. Safe to call after the hub
// already dropped the channel.
func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	_, ok := h.subs[ch]
	if ok {
		delete(h.subs, ch)
		close(ch)
	}
	n := len(h.subs)
	h.mu.Unlock()
	if ok {
		h.logger.WithField("connected_clients", n).Info("observer disconnected")
	}
}

// ClientCount reports the number of currently connected observers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Broadcast serializes the event once and queues it for fan-out. It never
// blocks and never fails the caller: serialization errors and a saturated
// queue are logged and the event is dropped.
func (h *Hub) Broadcast(ev domain.EnrollmentEvent) {
	data, err := sonic.Marshal(ev)
	if err != nil {
		h.logger.Errorf("broadcast: marshal enrollment event: %v", err)
		return
	}
	select {
	case h.pending <- data:
	default:
		h.logger.WithField("enrollment_id", ev.EnrollmentID).Warn("broadcast buffer saturated, event dropped")
	}
}

func (h *Hub) deliver(data []byte) {
	h.mu.Lock()
	var dropped int
	for ch := range h.subs {
		select {
		case ch <- data:
		default:
			// Observer is not draining its channel; treat as a failed send
			// and remove it so the others are unaffected.
			delete(h.subs, ch)
			close(ch)
			dropped++
		}
	}
	h.mu.Unlock()
	if dropped > 0 {
		h.logger.WithField("dropped_observers", dropped).Warn("removed unresponsive observers")
	}
}
