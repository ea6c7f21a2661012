// Package progress defines the event stream the engine publishes about its
// own activity, a non-blocking hub that batches it, and the sink interface
// consumers implement.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported event stages.
const (
	// StageSubmitted fires when a refresh job enters the queue.
	StageSubmitted Stage = "SUBMITTED"
	// StageSettled fires when an attempt lands content or is cancelled.
	StageSettled Stage = "SETTLED"
	// StageRetrying fires when an attempt failed but the budget allows
	// another try.
	StageRetrying Stage = "RETRYING"
	// StageGated fires when a challenge wall parks the job's target.
	StageGated Stage = "GATED"
	// StageFailed fires when the final attempt for a job fails.
	StageFailed Stage = "FAILED"
	// StageBatch fires when the engine goes quiescent.
	StageBatch Stage = "BATCH"
)

// Event captures one milestone of engine activity.
type Event struct {
	// JobID identifies the job lineage the milestone belongs to. Batch
	// events carry none.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Target labels what was being fetched, e.g. "inventory" or
	// "item:256012345".
	Target string
	// Attempt is the attempt count at the time of the milestone.
	Attempt int
	// Class carries the outcome class for settled stages.
	Class string
	// Dur is the attempt latency for settled stages.
	Dur time.Duration
	// Note attaches low-volume debug context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageBatch:
	case StageSubmitted, StageSettled, StageRetrying, StageGated, StageFailed:
		if e.JobID == "" {
			return errors.New("job id is required")
		}
		if e.Target == "" {
			return errors.New("target is required")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
