package progress

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marketglass/marketglass/internal/scrape"
)

type captureEmitter struct {
	events []Event
}

func (c *captureEmitter) Emit(evt Event) {
	c.events = append(c.events, evt)
}

type fixedClock struct {
	at time.Time
}

func (f fixedClock) Now() time.Time {
	return f.at
}

func TestEngineSinkJobSubmitted(t *testing.T) {
	t.Parallel()

	emitter := &captureEmitter{}
	sink := NewEngineSink(emitter, fixedClock{at: time.Unix(100, 0)})

	sink.JobSubmitted(scrape.Job{ID: "job-1", Target: scrape.InventoryTarget()})

	require.Len(t, emitter.events, 1)
	evt := emitter.events[0]
	require.Equal(t, StageSubmitted, evt.Stage)
	require.Equal(t, "job-1", evt.JobID)
	require.Equal(t, "inventory", evt.Target)
	require.Equal(t, time.Unix(100, 0), evt.TS)
	require.NoError(t, evt.Validate())
}

func TestEngineSinkJobSettledStages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		state scrape.JobState
		class scrape.OutcomeClass
		err   error
		want  Stage
	}{
		{name: "success", state: scrape.JobSucceeded, class: scrape.OutcomeContent, want: StageSettled},
		{name: "retrying", state: scrape.JobRetrying, class: scrape.OutcomeTimeout, err: errors.New("deadline"), want: StageRetrying},
		{name: "gated", state: scrape.JobCaptchaBlocked, class: scrape.OutcomeCaptcha, want: StageGated},
		{name: "failed", state: scrape.JobFailed, class: scrape.OutcomeTransport, err: errors.New("refused"), want: StageFailed},
		{name: "cancelled", state: scrape.JobRunning, class: scrape.OutcomeCancelled, want: StageSettled},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			emitter := &captureEmitter{}
			sink := NewEngineSink(emitter, fixedClock{at: time.Unix(200, 0)})

			job := scrape.Job{ID: "job-2", Target: scrape.StatsTarget(), State: tt.state, Attempt: 2}
			out := scrape.FetchOutcome{Job: job, Class: tt.class, Err: tt.err, Duration: 120 * time.Millisecond}
			sink.JobSettled(job, out)

			require.Len(t, emitter.events, 1)
			evt := emitter.events[0]
			require.Equal(t, tt.want, evt.Stage)
			require.Equal(t, string(tt.class), evt.Class)
			require.Equal(t, 120*time.Millisecond, evt.Dur)
			require.Equal(t, 2, evt.Attempt)
			if tt.err != nil {
				require.Equal(t, tt.err.Error(), evt.Note)
			} else {
				require.Empty(t, evt.Note)
			}
			require.NoError(t, evt.Validate())
		})
	}
}

func TestEngineSinkBatchSettled(t *testing.T) {
	t.Parallel()

	emitter := &captureEmitter{}
	sink := NewEngineSink(emitter, fixedClock{at: time.Unix(300, 0)})

	sink.BatchSettled(true)
	sink.BatchSettled(false)

	require.Len(t, emitter.events, 2)
	require.Equal(t, StageBatch, emitter.events[0].Stage)
	require.Equal(t, "clean", emitter.events[0].Note)
	require.Equal(t, "dirty", emitter.events[1].Note)
	require.NoError(t, emitter.events[0].Validate())
}
