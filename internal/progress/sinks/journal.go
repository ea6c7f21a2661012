package sinks

import (
	"context"

	"github.com/marketglass/marketglass/internal/progress"
	"github.com/marketglass/marketglass/internal/store"
)

// JournalSink feeds the in-memory event journal the debug API reads.
type JournalSink struct {
	journal *store.Journal
}

// NewJournalSink constructs a JournalSink over the journal.
func NewJournalSink(journal *store.Journal) *JournalSink {
	return &JournalSink{journal: journal}
}

// Consume records the batch. It never fails; the journal overwrites its
// oldest entries once full.
func (s *JournalSink) Consume(_ context.Context, batch []progress.Event) error {
	if s == nil || s.journal == nil {
		return nil
	}
	s.journal.Record(batch...)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *JournalSink) Close(context.Context) error {
	return nil
}
