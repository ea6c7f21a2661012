// Package state owns the published snapshot and the derived status report.
// It is the single point of truth every reader consumes; the scrape engine
// is its only writer.
package state

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/marketglass/marketglass/internal/metrics"
	"github.com/marketglass/marketglass/internal/seller"
	"github.com/marketglass/marketglass/internal/status"
)

// Store holds the latest snapshot and status report and fans out wake
// signals to subscribers. Writers never block on slow readers: wakes are
// dropped once a subscriber already has one pending, and readers pull the
// latest state when they get around to it.
type Store struct {
	logger *zap.Logger

	mu     sync.RWMutex
	snap   *seller.Snapshot
	report status.Report
	subs   map[*Subscription]struct{}
}

// Subscription delivers wake signals on C, buffered one deep. Consecutive
// changes while a wake is pending coalesce into it; consumers read the
// latest snapshot and status when woken, so a coalesced wake never means
// missed state.
type Subscription struct {
	C     <-chan struct{}
	c     chan struct{}
	store *Store
}

// Close stops delivery and releases the subscription.
func (s *Subscription) Close() {
	s.store.unsubscribe(s)
}

// NewStore builds a store seeded with the empty version-zero snapshot.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		logger: logger,
		snap:   seller.EmptySnapshot(),
		subs:   make(map[*Subscription]struct{}),
	}
}

// Seed installs a snapshot recovered from disk. It only applies while the
// store is still empty at version zero, so a running engine can never be
// rolled back by a late load.
func (s *Store) Seed(snap *seller.Snapshot) bool {
	if snap == nil {
		return false
	}
	s.mu.Lock()
	if s.snap.Version != 0 || len(s.snap.Listings) > 0 {
		s.mu.Unlock()
		return false
	}
	s.snap = snap
	s.mu.Unlock()

	s.observeSnapshot(snap, "seeded")
	s.notify()
	return true
}

// Publish installs the next snapshot version. Versions must strictly
// increase; a non-advancing version is rejected because it means the
// single-writer discipline broke somewhere.
func (s *Store) Publish(snap *seller.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("publish nil snapshot")
	}
	s.mu.Lock()
	if snap.Version <= s.snap.Version {
		cur := s.snap.Version
		s.mu.Unlock()
		return fmt.Errorf("snapshot version %d does not advance current version %d", snap.Version, cur)
	}
	s.snap = snap
	s.mu.Unlock()

	s.observeSnapshot(snap, "published")
	s.notify()
	return nil
}

// Current returns the latest snapshot. Callers must treat it as read-only.
func (s *Store) Current() *seller.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// SetStatus implements status.ReportSink.
func (s *Store) SetStatus(rep status.Report) {
	s.mu.Lock()
	s.report = rep
	s.mu.Unlock()
	s.notify()
}

// Status returns the latest derived status report.
func (s *Store) Status() status.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report
}

// Subscribe registers for wake signals.
func (s *Store) Subscribe() *Subscription {
	sub := &Subscription{c: make(chan struct{}, 1), store: s}
	sub.C = sub.c
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

func (s *Store) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for sub := range s.subs {
		select {
		case sub.c <- struct{}{}:
		default:
		}
	}
}

func (s *Store) observeSnapshot(snap *seller.Snapshot, verb string) {
	var active, possiblyEnded, ended int
	for _, l := range snap.Listings {
		switch l.Status {
		case seller.StatusEnded:
			ended++
		case seller.StatusPossiblyEnded:
			possiblyEnded++
		default:
			active++
		}
	}
	metrics.SetSnapshot(snap.Version, active, possiblyEnded, ended)
	s.logger.Debug("snapshot "+verb,
		zap.Uint64("version", snap.Version),
		zap.Int("active", active),
		zap.Int("possibly_ended", possiblyEnded),
		zap.Int("ended", ended),
	)
}
