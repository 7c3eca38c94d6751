package navigation

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/navcore/internal/avoidance"
	"github.com/banshee-data/navcore/internal/monitoring"
)

// DefaultJournalBacklog is the number of journal events a JournalQueue holds
// while its writer is busy.
const DefaultJournalBacklog = 256

var (
	// ErrJournalFull is returned when the backlog is full and the event was
	// dropped.
	ErrJournalFull = errors.New("journal backlog full")
	// ErrJournalClosed is returned for events offered after Close.
	ErrJournalClosed = errors.New("journal closed")
)

// JournalQueue hands journal events to a single writer goroutine so a slow
// or locked store never holds up the control tick. Events are written in the
// order they were offered. When the backlog is full new events are dropped
// and counted.
type JournalQueue struct {
	next   Journal
	events chan func(Journal) error
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewJournalQueue starts a writer draining into next. backlog <= 0 uses
// DefaultJournalBacklog.
func NewJournalQueue(next Journal, backlog int) *JournalQueue {
	if backlog <= 0 {
		backlog = DefaultJournalBacklog
	}
	q := &JournalQueue{
		next:   next,
		events: make(chan func(Journal) error, backlog),
		done:   make(chan struct{}),
	}
	go q.drain()
	return q
}

func (q *JournalQueue) drain() {
	defer close(q.done)
	for fn := range q.events {
		if err := fn(q.next); err != nil {
			monitoring.Logf("[nav] journal write failed: %v", err)
		}
	}
}

func (q *JournalQueue) offer(fn func(Journal) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrJournalClosed
	}
	select {
	case q.events <- fn:
		return nil
	default:
		monitoring.RecordJournalDropped()
		return ErrJournalFull
	}
}

func (q *JournalQueue) RunStarted(r Run) error {
	return q.offer(func(j Journal) error { return j.RunStarted(r) })
}

func (q *JournalQueue) RunEnded(id uuid.UUID, final State, at time.Time) error {
	return q.offer(func(j Journal) error { return j.RunEnded(id, final, at) })
}

func (q *JournalQueue) Transition(t Transition) error {
	return q.offer(func(j Journal) error { return j.Transition(t) })
}

func (q *JournalQueue) Plan(p PlanEvent) error {
	return q.offer(func(j Journal) error { return j.Plan(p) })
}

func (q *JournalQueue) Maneuver(id uuid.UUID, m avoidance.Maneuver) error {
	return q.offer(func(j Journal) error { return j.Maneuver(id, m) })
}

// Backlog reports how many events are waiting for the writer.
func (q *JournalQueue) Backlog() int {
	return len(q.events)
}

// Close stops accepting events and waits up to timeout for the backlog to be
// written. Events still queued when the timeout expires are written later by
// the writer if the store recovers; Close does not wait for them.
func (q *JournalQueue) Close(timeout time.Duration) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	q.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-q.done:
		return nil
	case <-timer.C:
		return errors.New("timed out flushing journal")
	}
}
