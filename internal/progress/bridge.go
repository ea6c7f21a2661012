package progress

import (
	"github.com/marketglass/marketglass/internal/scrape"
)

// EngineSink converts scheduler lifecycle signals into Events. It
// implements scrape.StatusSink, so it can ride the same fanout as the
// status monitor.
type EngineSink struct {
	emitter Emitter
	clock   scrape.Clock
}

// NewEngineSink builds the bridge. Both arguments are required.
func NewEngineSink(emitter Emitter, clock scrape.Clock) *EngineSink {
	return &EngineSink{emitter: emitter, clock: clock}
}

// JobSubmitted implements scrape.StatusSink.
func (s *EngineSink) JobSubmitted(job scrape.Job) {
	s.emitter.Emit(Event{
		JobID:   job.ID,
		TS:      s.clock.Now(),
		Stage:   StageSubmitted,
		Target:  job.Target.String(),
		Attempt: job.Attempt,
	})
}

// JobSettled implements scrape.StatusSink. The stage mirrors the state the
// scheduler left the job in.
func (s *EngineSink) JobSettled(job scrape.Job, out scrape.FetchOutcome) {
	evt := Event{
		JobID:   job.ID,
		TS:      s.clock.Now(),
		Target:  job.Target.String(),
		Attempt: job.Attempt,
		Class:   string(out.Class),
		Dur:     out.Duration,
	}
	switch job.State {
	case scrape.JobRetrying:
		evt.Stage = StageRetrying
	case scrape.JobCaptchaBlocked:
		evt.Stage = StageGated
	case scrape.JobFailed:
		evt.Stage = StageFailed
	default:
		evt.Stage = StageSettled
	}
	if out.Err != nil {
		evt.Note = out.Err.Error()
	}
	s.emitter.Emit(evt)
}

// BatchSettled implements scrape.StatusSink.
func (s *EngineSink) BatchSettled(clean bool) {
	note := "clean"
	if !clean {
		note = "dirty"
	}
	s.emitter.Emit(Event{
		TS:    s.clock.Now(),
		Stage: StageBatch,
		Note:  note,
	})
}
