package service

import (
	"sync"

	"scalper_go/internal/engine"
)

// StatusService keeps the latest engine snapshot for readers outside the trading loop.
type StatusService struct {
	mu      sync.RWMutex
	snap    engine.Snapshot
	updates uint64
}

// NewStatusService creates a new StatusService instance
func NewStatusService() *StatusService {
	return &StatusService{}
}

// Update stores snap. Passed to the sequencer as its state callback.
func (s *StatusService) Update(snap engine.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap = snap
	s.updates++
}

// Snapshot returns the latest snapshot and whether one was ever stored.
func (s *StatusService) Snapshot() (engine.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snap, s.updates > 0
}

// Updates returns how many snapshots have been stored.
func (s *StatusService) Updates() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.updates
}
