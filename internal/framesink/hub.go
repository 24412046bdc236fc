package framesink

import (
	"errors"
	"sync"

	"github.com/camkit/mjpeg-streamer/pkg/types"
)

// ErrSubscriberLimit is returned by Subscribe when the hub's configured
// client limit is reached.
var ErrSubscriberLimit = errors.New("subscriber limit reached")

// Hub fans one Sink out to many independent subscribers. Subscribers never
// coordinate with each other: a slow subscriber only misses frames, it never
// delays another subscriber or the producer.
type Hub struct {
	sink *Sink

	mu     sync.Mutex
	active int
	limit  int // 0 = unlimited
}

// NewHub wraps a sink. maxSubscribers bounds concurrent subscriptions;
// 0 means unlimited.
func NewHub(sink *Sink, maxSubscribers int) *Hub {
	return &Hub{sink: sink, limit: maxSubscribers}
}

// Subscribe registers a new reader positioned at the latest published
// sequence: it observes only frames published after this call.
func (h *Hub) Subscribe() (*Subscription, error) {
	h.mu.Lock()
	if h.limit > 0 && h.active >= h.limit {
		h.mu.Unlock()
		return nil, ErrSubscriberLimit
	}
	h.active++
	h.mu.Unlock()

	return &Subscription{
		hub:  h,
		sink: h.sink,
		last: h.sink.Sequence(),
	}, nil
}

// Active returns the number of live subscriptions.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// Subscription is one reader's cursor into the frame stream.
// Next and Close may be called from different goroutines; everything else
// belongs to the reader.
type Subscription struct {
	hub  *Hub
	sink *Sink

	last      uint64
	delivered uint64
	skipped   uint64

	canceled bool // guarded by sink.mu
	release  sync.Once
}

// Next blocks until a frame newer than the cursor is available, then
// returns it and advances the cursor. Frames published while the reader was
// busy are skipped, not queued: Next always returns the latest frame.
// Returns ErrCanceled after Cancel and ErrClosed once the sink shuts down.
func (sub *Subscription) Next() (*types.Frame, error) {
	frame, err := sub.sink.waitNext(sub.last, &sub.canceled)
	if err != nil {
		return nil, err
	}
	if frame.Sequence > sub.last+1 {
		sub.skipped += frame.Sequence - sub.last - 1
	}
	sub.last = frame.Sequence
	sub.delivered++
	return frame, nil
}

// Cancel unparks a blocked Next. Safe to call from another goroutine; this
// is how a closed connection aborts a waiter stuck on a quiet producer.
func (sub *Subscription) Cancel() {
	sub.sink.mu.Lock()
	sub.canceled = true
	sub.sink.mu.Unlock()
	sub.sink.cond.Broadcast()
}

// Close cancels the subscription and releases its hub slot. Idempotent.
func (sub *Subscription) Close() {
	sub.Cancel()
	sub.release.Do(func() {
		sub.hub.mu.Lock()
		sub.hub.active--
		sub.hub.mu.Unlock()
	})
}

// Delivered returns how many frames this subscription has received.
func (sub *Subscription) Delivered() uint64 {
	return sub.delivered
}

// Skipped returns how many published frames this subscription missed
// because it was not reading fast enough.
func (sub *Subscription) Skipped() uint64 {
	return sub.skipped
}
