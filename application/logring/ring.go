// Package logring implements the bounded log ring (C6): a thread-safe
// FIFO of the most recent lines the supervised core wrote to stdout.
package logring

import "sync"

// DefaultCapacity is the recommended ring size from the spec (N=1000).
const DefaultCapacity = 1000

// Ring is a bounded, thread-safe FIFO of log lines. Lossiness is by
// design: once full, the oldest line is dropped on every append.
type Ring struct {
	mu       sync.Mutex
	lines    []string
	capacity int
}

// New creates a Ring that retains at most capacity lines. A non-positive
// capacity falls back to DefaultCapacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		lines:    make([]string, 0, capacity),
		capacity: capacity,
	}
}

// Append pushes a line to the tail, evicting the oldest line if the ring
// is at capacity.
func (r *Ring) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.lines) >= r.capacity {
		// Drop from the head; this is O(n) but N is small (≤ a few
		// thousand) and appends happen at core-log cadence, not hot-path.
		r.lines = append(r.lines[1:], line)
		return
	}
	r.lines = append(r.lines, line)
}

// Snapshot returns a copy of the ring's contents, oldest first.
func (r *Ring) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Clear empties the ring.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines = r.lines[:0]
}

// Len reports the number of lines currently retained.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.lines)
}
