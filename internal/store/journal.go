// Package store keeps a bounded in-memory history of engine events plus
// per-target tallies, serving the debug API a view of what the engine has
// been doing without touching the snapshot path.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/marketglass/marketglass/internal/progress"
)

// TargetTally aggregates lifecycle counts for one fetch target.
type TargetTally struct {
	Target    string        `json:"target"`
	Submitted int64         `json:"submitted"`
	Succeeded int64         `json:"succeeded"`
	Retried   int64         `json:"retried"`
	Failed    int64         `json:"failed"`
	Gated     int64         `json:"gated"`
	LastClass string        `json:"last_class,omitempty"`
	LastDur   time.Duration `json:"last_dur"`
	LastAt    time.Time     `json:"last_at"`
}

// Journal is a fixed-capacity event history. Oldest entries fall off once
// capacity is reached. All methods are safe for concurrent use.
type Journal struct {
	mu      sync.Mutex
	buf     []progress.Event
	next    int
	full    bool
	tallies map[string]*TargetTally
}

// NewJournal builds a journal holding up to capacity events.
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = 256
	}
	return &Journal{
		buf:     make([]progress.Event, capacity),
		tallies: make(map[string]*TargetTally),
	}
}

// Record appends events to the history and folds them into the tallies.
func (j *Journal) Record(batch ...progress.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, evt := range batch {
		j.buf[j.next] = evt
		j.next++
		if j.next == len(j.buf) {
			j.next = 0
			j.full = true
		}
		j.tally(evt)
	}
}

func (j *Journal) tally(evt progress.Event) {
	if evt.Target == "" {
		return
	}
	tt := j.tallies[evt.Target]
	if tt == nil {
		tt = &TargetTally{Target: evt.Target}
		j.tallies[evt.Target] = tt
	}
	switch evt.Stage {
	case progress.StageSubmitted:
		tt.Submitted++
	case progress.StageSettled:
		if evt.Class == "content" {
			tt.Succeeded++
		}
	case progress.StageRetrying:
		tt.Retried++
	case progress.StageFailed:
		tt.Failed++
	case progress.StageGated:
		tt.Gated++
	}
	if evt.Stage != progress.StageSubmitted {
		tt.LastClass = evt.Class
		tt.LastDur = evt.Dur
		tt.LastAt = evt.TS
	}
}

// Recent returns up to n events, newest first.
func (j *Journal) Recent(n int) []progress.Event {
	j.mu.Lock()
	defer j.mu.Unlock()

	stored := j.next
	if j.full {
		stored = len(j.buf)
	}
	if n <= 0 || n > stored {
		n = stored
	}

	out := make([]progress.Event, 0, n)
	idx := j.next
	for i := 0; i < n; i++ {
		idx--
		if idx < 0 {
			idx = len(j.buf) - 1
		}
		out = append(out, j.buf[idx])
	}
	return out
}

// Tallies returns per-target aggregates sorted by target label.
func (j *Journal) Tallies() []TargetTally {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]TargetTally, 0, len(j.tallies))
	for _, tt := range j.tallies {
		out = append(out, *tt)
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].Target < out[b].Target
	})
	return out
}
