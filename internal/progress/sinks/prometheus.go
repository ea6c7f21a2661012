package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marketglass/marketglass/internal/progress"
)

// PrometheusSink exports the event stream as counters: milestones by stage
// and quiescence batches by result. Fetch latency and outcome families live
// in the metrics package; this sink only counts the stream itself.
type PrometheusSink struct {
	events  *prometheus.CounterVec
	batches *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
// Collectors another sink already registered are adopted rather than
// duplicated, so construction is idempotent per registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketglass_engine_events_total",
			Help: "Engine lifecycle events partitioned by stage.",
		}, []string{"stage"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketglass_engine_batches_total",
			Help: "Quiescence batches partitioned by result.",
		}, []string{"result"}),
	}
	var err error
	if s.events, err = registerCounterVec(reg, s.events); err != nil {
		return nil, err
	}
	if s.batches, err = registerCounterVec(reg, s.batches); err != nil {
		return nil, err
	}
	return s, nil
}

func registerCounterVec(reg prometheus.Registerer, cv *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(cv); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register event collector: %w", err)
	}
	return cv, nil
}

// Consume updates the collectors from the batch. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if evt.Stage == progress.StageBatch {
			s.batches.WithLabelValues(evt.Note).Inc()
			continue
		}
		s.events.WithLabelValues(string(evt.Stage)).Inc()
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
