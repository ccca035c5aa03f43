package store

import "time"

// SetClock replaces the store clock in tests.
func (s *MemoryStore) SetClock(now func() time.Time) { s.now = now }
