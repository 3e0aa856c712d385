package ostate

import (
	"context"
	"sync"
	"time"
)

var _ Store = &MemoryStore{}

// MemoryStore keeps state records in process memory. It is used when no redis or mongo
// backend is configured and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*State
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryStore returns an empty store. When sweep is positive a goroutine drops expired
// records on that interval until Close is called.
func NewMemoryStore(sweep time.Duration) *MemoryStore {
	m := &MemoryStore{
		records: make(map[string]*State),
		stop:    make(chan struct{}),
	}
	if sweep > 0 {
		go m.sweepLoop(sweep)
	}
	return m
}

func (m *MemoryStore) Save(_ context.Context, s *State) error {
	cp := *s
	m.mu.Lock()
	m.records[s.State] = &cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Take(_ context.Context, state string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[state]
	if !ok {
		return nil, ErrInvalidState
	}
	delete(m.records, state)
	return rec, nil
}

// Len returns the number of pending records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Sweep removes every record expired at now.
func (m *MemoryStore) Sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, rec := range m.records {
		if rec.Expired(now) {
			delete(m.records, k)
		}
	}
}

// Close stops the sweep goroutine.
func (m *MemoryStore) Close() {
	m.once.Do(func() { close(m.stop) })
}

func (m *MemoryStore) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.Sweep(now.UTC())
		}
	}
}
