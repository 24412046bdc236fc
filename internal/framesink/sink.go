package framesink

import (
	"errors"
	"sync"
	"time"

	"github.com/camkit/mjpeg-streamer/pkg/types"
)

var (
	// ErrClosed is returned to readers when the sink is torn down.
	ErrClosed = errors.New("frame sink closed")
	// ErrCanceled is returned to a reader whose subscription was canceled
	// while it was waiting.
	ErrCanceled = errors.New("subscription canceled")
)

// Sink is a single-slot mailbox holding the most recently published frame.
// One producer publishes, any number of readers wait; a reader that falls
// behind skips straight to the latest frame. The producer never blocks on
// readers, however many there are or however slow.
type Sink struct {
	mu      sync.Mutex
	cond    *sync.Cond
	current *types.Frame
	seq     uint64
	closed  bool
}

// NewSink creates an empty sink. The sequence starts at 0; the first
// publish installs sequence 1.
func NewSink() *Sink {
	s := &Sink{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Publish installs data as the current frame, advances the sequence and
// wakes every waiting reader. It returns the new sequence number, or 0 if
// the sink is already closed.
//
// Publish always installs a new frame value; it never rewrites the previous
// one in place, so a reader still holding an older frame never sees its
// bytes change. The caller gives up ownership of data.
func (s *Sink) Publish(data []byte) uint64 {
	now := time.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	s.seq++
	seq := s.seq
	s.current = &types.Frame{Data: data, Timestamp: now, Sequence: seq}
	s.mu.Unlock()

	s.cond.Broadcast()
	return seq
}

// Sequence returns the sequence number of the latest publish (0 before any).
func (s *Sink) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Close releases every waiting reader with ErrClosed. Publishes after Close
// are dropped and further waits fail immediately. Safe to call more than
// once.
func (s *Sink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// waitNext blocks until the sequence exceeds since, then returns the current
// frame. The wait condition is re-checked in a loop; a wakeup alone proves
// nothing (spurious wakeups, missed frames). The canceled flag is owned by
// the subscription and read under the sink mutex.
func (s *Sink) waitNext(since uint64, canceled *bool) (*types.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.seq <= since && !s.closed && !*canceled {
		s.cond.Wait()
	}
	if *canceled {
		return nil, ErrCanceled
	}
	if s.closed {
		return nil, ErrClosed
	}
	return s.current, nil
}
