package metrics

import (
	"fmt"
	"sync"
)

// DefaultRingSize is the capacity of the store NewRecorder creates when none
// is given.
const DefaultRingSize = 100

// Store persists snapshots. Recent returns at most n snapshots, newest first;
// n <= 0 means all of them.
type Store interface {
	Save(s Snapshot) error
	Recent(n int) ([]Snapshot, error)
	Close() error
}

// RingStore keeps the last Capacity snapshots in memory.
type RingStore struct {
	buf   []Snapshot
	next  int
	count int
	mutex sync.RWMutex
}

// NewRingStore creates a ring store; capacity below 1 is raised to 1.
func NewRingStore(capacity int) *RingStore {
	if capacity < 1 {
		capacity = 1
	}
	return &RingStore{buf: make([]Snapshot, capacity)}
}

// Save overwrites the oldest snapshot once the store is full.
func (s *RingStore) Save(snapshot Snapshot) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.buf[s.next] = snapshot
	s.next = (s.next + 1) % len(s.buf)
	if s.count < len(s.buf) {
		s.count++
	}
	return nil
}

func (s *RingStore) Recent(n int) ([]Snapshot, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if n <= 0 || n > s.count {
		n = s.count
	}
	out := make([]Snapshot, 0, n)
	for i := 1; i <= n; i++ {
		idx := (s.next - i + len(s.buf)) % len(s.buf)
		out = append(out, s.buf[idx])
	}
	return out, nil
}

// Len returns the number of stored snapshots.
func (s *RingStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.count
}

func (s *RingStore) Close() error { return nil }

// Capacity returns the maximum number of snapshots kept.
func (s *RingStore) Capacity() int {
	return len(s.buf)
}

func (s *RingStore) String() string {
	return fmt.Sprintf("RingStore{%d/%d}", s.Len(), s.Capacity())
}
