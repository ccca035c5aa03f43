package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/prompt-pruner/internal/compression"
)

// DefaultSweepInterval is how often expired runs are dropped.
const DefaultSweepInterval = 5 * time.Minute

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	runs     map[string]*Run // published snapshots, never mutated in place
	mu       sync.RWMutex
	locks    *keyedMutex
	ttl      time.Duration // 0 = keep forever
	now      func() time.Time
	stopChan chan struct{}
	stopped  bool
}

// NewMemoryStore creates a memory store. ttl of 0 keeps runs until Delete.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		runs:     make(map[string]*Run),
		locks:    newKeyedMutex(),
		ttl:      ttl,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	if ttl > 0 {
		go s.cleanup(min(ttl, DefaultSweepInterval))
	}
	return s
}

// CreateOrGet implements Store.
func (s *MemoryStore) CreateOrGet(ctx context.Context, runID, original string) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if runID != "" {
		return s.Get(ctx, runID)
	}

	r := newRun(original, s.now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, storeErr(nil, "store closed")
	}
	s.runs[r.RunID] = r
	return r.Clone(), nil
}

// PutCompressed implements Store.
func (s *MemoryStore) PutCompressed(ctx context.Context, runID, text string, entries []compression.IterationLogEntry, cfg compression.Config) error {
	return s.update(ctx, runID, func(r *Run, now time.Time) {
		applyCompressed(r, text, entries, cfg, now)
	})
}

// PutHybrid implements Store.
func (s *MemoryStore) PutHybrid(ctx context.Context, runID, text string, entries []compression.IterationLogEntry) error {
	return s.update(ctx, runID, func(r *Run, now time.Time) {
		applyHybrid(r, text, entries, now)
	})
}

// update clones the current run, applies fn and publishes the copy.
func (s *MemoryStore) update(ctx context.Context, runID string, fn func(*Run, time.Time)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.locks.Lock(runID)
	defer unlock()

	cur, err := s.get(runID)
	if err != nil {
		return err
	}
	next := cur.Clone()
	fn(next, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return notFound(runID)
	}
	s.runs[runID] = next
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, runID string) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := s.get(runID)
	if err != nil {
		return nil, err
	}
	return r.Clone(), nil
}

func (s *MemoryStore) get(runID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[runID]
	if !ok || s.expired(r, s.now()) {
		return nil, notFound(runID)
	}
	return r, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.locks.Lock(runID)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return notFound(runID)
	}
	delete(s.runs, runID)
	return nil
}

// Len returns the number of stored runs, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// Close stops the sweeper and clears data.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stopped {
		s.stopped = true
		close(s.stopChan)
		s.runs = make(map[string]*Run)
	}
	return nil
}

func (s *MemoryStore) expired(r *Run, now time.Time) bool {
	return s.ttl > 0 && now.Sub(r.UpdatedAt) > s.ttl
}

// Sweep drops expired runs and returns how many it removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for id, r := range s.runs {
		if s.expired(r, now) {
			delete(s.runs, id)
			n++
		}
	}
	return n
}

// cleanup periodically removes expired runs.
func (s *MemoryStore) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.Debug().Int("expired", n).Msg("run store sweep")
			}
		}
	}
}

var _ Store = (*MemoryStore)(nil)
