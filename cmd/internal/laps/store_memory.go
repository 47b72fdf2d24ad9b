package laps

import (
	"context"
	"sync"
	"time"
)

const defaultMemoryCapacity = 1000

// InMemoryStore keeps the newest laps in a bounded ring.
type InMemoryStore struct {
	mu     sync.Mutex
	ring   []Lap
	next   int
	full   bool
	nextID int64
}

// NewInMemoryStore returns a store holding at most capacity laps
// (default 1000 when capacity <= 0).
func NewInMemoryStore(capacity int) *InMemoryStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &InMemoryStore{ring: make([]Lap, capacity)}
}

func (s *InMemoryStore) RecordLap(ctx context.Context, l Lap) (Lap, error) {
	if err := ctx.Err(); err != nil {
		return Lap{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	l.ID = s.nextID
	if l.RecordedAt.IsZero() {
		l.RecordedAt = time.Now().UTC()
	}
	s.ring[s.next] = l
	s.next = (s.next + 1) % len(s.ring)
	if s.next == 0 {
		s.full = true
	}
	return l, nil
}

func (s *InMemoryStore) RecentLaps(ctx context.Context, limit int) ([]Lap, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.next
	if s.full {
		n = len(s.ring)
	}
	if limit > n {
		limit = n
	}
	out := make([]Lap, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + len(s.ring)) % len(s.ring)
		out = append(out, s.ring[idx])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
