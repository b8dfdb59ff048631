package session

import (
	"context"
	"sync"
	"time"
)

type memoryRecord struct {
	data    []byte
	ttl     time.Duration
	expires time.Time
}

// MemoryStore keeps session records in process memory. Suitable for single
// instance deployments that can afford losing sessions on restart; bigger
// deployments bind a distributed store behind the same contract.
//
// Expired records are dropped lazily on Load and in bulk by Sweep.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*memoryRecord
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[string]*memoryRecord{},
		now:     time.Now,
	}
}

// WithClock overrides the time source.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Load implements Store. A hit refreshes the inactivity deadline.
func (s *MemoryStore) Load(_ context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	now := s.now()
	if now.After(rec.expires) {
		delete(s.records, id)
		return nil, nil
	}
	rec.expires = now.Add(rec.ttl)
	out := make([]byte, len(rec.data))
	copy(out, rec.data)
	return out, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, id string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	s.records[id] = &memoryRecord{
		data:    stored,
		ttl:     ttl,
		expires: s.now().Add(ttl),
	}
	return nil
}

// Invalidate implements Store.
func (s *MemoryStore) Invalidate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// RotateID implements Store.
func (s *MemoryStore) RotateID(_ context.Context, oldID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	newID := NewID()
	if rec, ok := s.records[oldID]; ok {
		delete(s.records, oldID)
		s.records[newID] = rec
	}
	return newID, nil
}

// Sweep removes every expired record and reports how many were dropped.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	dropped := 0
	for id, rec := range s.records {
		if now.After(rec.expires) {
			delete(s.records, id)
			dropped++
		}
	}
	return dropped
}

// StartSweeping runs Sweep every interval until the returned stop function
// is called. onSweep, when non-nil, receives the live record count after
// each pass.
func (s *MemoryStore) StartSweeping(interval time.Duration, onSweep func(live int)) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.Sweep()
				if onSweep != nil {
					onSweep(s.Len())
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// Len reports the number of stored records, including expired ones not yet
// swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
