package ranging

import (
	"sync"
	"time"
)

// Summary reduces one rangefinder frame to three directional distances.
// Front is the closest valid point ahead, Left and Right are mean clearances.
type Summary struct {
	Front Distance
	Left  Distance
	Right Distance
}

// Latest is a last-write-wins cell owned by exactly one polling loop.
// Readers never block on the writer for longer than a copy.
type Latest[T any] struct {
	mu      sync.RWMutex
	value   T
	updated time.Time
	writes  uint64
}

// Store replaces the held value.
func (l *Latest[T]) Store(v T, at time.Time) {
	l.mu.Lock()
	l.value = v
	l.updated = at
	l.writes++
	l.mu.Unlock()
}

// Load returns the most recent value, or the zero value if nothing has
// been stored yet.
func (l *Latest[T]) Load() T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.value
}

// Updated returns when the value was last stored and how many stores have
// happened. Staleness is left to the caller.
func (l *Latest[T]) Updated() (time.Time, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.updated, l.writes
}
