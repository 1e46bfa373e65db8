package genstore

import (
	"context"
	"sync"
	"time"
)

type localGenEntry struct {
	Gen       uint64
	UpdatedAt time.Time
}

// LocalGenStore keeps generations in-process, with an optional cleanup loop that prunes
// entries not bumped for longer than retention. A pruned key reads as generation 0,
// which only matters for loads that straddle the prune; retention should be far longer
// than any loader runs.
type LocalGenStore struct {
	mu   sync.RWMutex
	gens map[string]localGenEntry

	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ GenStore = (*LocalGenStore)(nil)

func NewLocalGenStore(cleanupInterval, retention time.Duration) *LocalGenStore {
	s := &LocalGenStore{gens: make(map[string]localGenEntry)}
	if cleanupInterval > 0 && retention > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *LocalGenStore) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.RLock()
	e := s.gens[k]
	s.mu.RUnlock()
	return e.Gen, nil
}

func (s *LocalGenStore) Bump(_ context.Context, k string) (uint64, error) {
	now := time.Now()
	s.mu.Lock()
	e := s.gens[k]
	e.Gen++
	e.UpdatedAt = now
	s.gens[k] = e
	s.mu.Unlock()
	return e.Gen, nil
}

func (s *LocalGenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.gens)
}

func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)

	s.mu.Lock()
	for k, e := range s.gens {
		if e.UpdatedAt.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

func (s *LocalGenStore) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		if s.stopCh != nil {
			s.ticker.Stop()
			close(s.stopCh)
			s.wg.Wait()
		}
	})
	return nil
}
