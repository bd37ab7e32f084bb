package jobs

import (
	"sync"
	"time"
)

// memoryEntry carries its own lock so writes to one job never block
// writes to another.
type memoryEntry struct {
	mu  sync.Mutex
	job Job
}

// MemoryStore keeps job records in process memory. The map lock is held
// only for lookups and inserts; per-record mutation is serialized by the
// entry lock.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) Create(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[job.ID]; ok {
		return ErrDuplicateID
	}
	s.entries[job.ID] = &memoryEntry{job: *job}
	return nil
}

func (s *MemoryStore) lookup(id string) (*memoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) Get(id string) (*Job, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	snapshot := e.job
	return &snapshot, nil
}

func (s *MemoryStore) Update(id string, mutate func(*Job) error) (*Job, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	// Mutate a copy so a failed mutator leaves the record untouched.
	updated := e.job
	if err := mutate(&updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = time.Now().UTC()
	e.job = updated
	snapshot := updated
	return &snapshot, nil
}

func (s *MemoryStore) List() ([]*Job, error) {
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		snapshot := e.job
		e.mu.Unlock()
		out = append(out, &snapshot)
	}
	return out, nil
}

func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
