package persist

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/marketglass/marketglass/internal/state"
)

// Saver flushes published snapshots to the gateway on a debounce interval,
// so disk writes track the snapshot without amplifying every merge into an
// I/O burst.
type Saver struct {
	gw       *Gateway
	store    *state.Store
	interval time.Duration
	logger   *zap.Logger
}

// NewSaver builds a saver. Interval defaults to 30 seconds.
func NewSaver(gw *Gateway, store *state.Store, interval time.Duration, logger *zap.Logger) *Saver {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saver{gw: gw, store: store, interval: interval, logger: logger}
}

// Run persists the latest snapshot whenever its version advanced since the
// last save, at most once per interval, plus a final flush on shutdown. It
// returns when ctx is done.
func (s *Saver) Run(ctx context.Context) {
	sub := s.store.Subscribe()
	defer sub.Close()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var lastSaved uint64
	dirty := false
	for {
		select {
		case <-ctx.Done():
			s.flush(&lastSaved)
			return
		case <-sub.C:
			dirty = true
		case <-ticker.C:
			if !dirty {
				continue
			}
			if s.flush(&lastSaved) {
				dirty = false
			}
		}
	}
}

// flush saves the current snapshot if its version moved. It reports whether
// the store is in sync afterwards.
func (s *Saver) flush(lastSaved *uint64) bool {
	snap := s.store.Current()
	if snap.Version == *lastSaved {
		return true
	}
	if err := s.gw.Save(snap); err != nil {
		s.logger.Error("persist snapshot",
			zap.Uint64("version", snap.Version),
			zap.Error(err),
		)
		return false
	}
	*lastSaved = snap.Version
	return true
}
