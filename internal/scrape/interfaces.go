package scrape

import (
	"context"
	"time"

	"github.com/marketglass/marketglass/internal/extract"
	"github.com/marketglass/marketglass/internal/seller"
)

// Page is a raw fetched payload plus the URL the transport settled on after
// redirects. The final URL matters for captcha detection.
type Page struct {
	URL  string
	Body []byte
}

// NavigateOption tunes a single navigation.
type NavigateOption func(*NavigateOptions)

// NavigateOptions is the resolved option set for one navigation. Session
// implementations read it; callers build it through the With functions.
type NavigateOptions struct {
	// ClickSelector, when set, is clicked after the page settles and the
	// resulting document is captured instead. Sessions without scripting
	// support ignore it.
	ClickSelector string
}

// WithClick asks the session to click the selector once the page has loaded
// and return the document that results.
func WithClick(selector string) NavigateOption {
	return func(o *NavigateOptions) {
		o.ClickSelector = selector
	}
}

// ResolveNavigateOptions folds option functions into a NavigateOptions.
func ResolveNavigateOptions(opts ...NavigateOption) NavigateOptions {
	var out NavigateOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&out)
		}
	}
	return out
}

// Session is the browser-automation collaborator. A session is a long-lived
// external resource: Open once, Navigate many times, Close once. Navigate
// must be safe for concurrent use up to the engine's concurrency cap.
type Session interface {
	Open(ctx context.Context) error
	Navigate(ctx context.Context, url string, opts ...NavigateOption) (Page, error)
	Close(ctx context.Context) error
}

// Fetcher runs one fetch attempt for a job and classifies the result. It
// never returns an error; failures are encoded in the outcome class.
type Fetcher interface {
	Run(ctx context.Context, job Job) FetchOutcome
}

// CaptchaDetector decides whether a payload is a challenge wall rather than
// content.
type CaptchaDetector interface {
	Detect(finalURL string, body []byte) bool
}

// Extractor parses raw payloads into structured records.
type Extractor interface {
	Inventory(body []byte) extract.InventoryResult
	Item(body []byte, itemID string) extract.ListingRecord
	Stats(body []byte) extract.StatsRecord
}

// Merger folds extracted records into the next snapshot version. Merges are
// pure with respect to the current snapshot; the coordinator serializes all
// calls.
type Merger interface {
	MergeInventory(cur *seller.Snapshot, res extract.InventoryResult, at time.Time) *seller.Snapshot
	MergeItem(cur *seller.Snapshot, rec extract.ListingRecord, at time.Time) *seller.Snapshot
	MergeStats(cur *seller.Snapshot, rec extract.StatsRecord, at time.Time) *seller.Snapshot
}

// Publisher is the state-store surface the coordinator writes through.
type Publisher interface {
	Current() *seller.Snapshot
	Publish(*seller.Snapshot) error
}

// StatusSink receives job lifecycle signals. Implementations must not
// block; they are called from the coordinator loop.
type StatusSink interface {
	// JobSubmitted fires when a job is accepted into the queue.
	JobSubmitted(job Job)
	// JobSettled fires after every attempt. The job carries its updated
	// state; the outcome carries the attempt's class, error, and timing.
	JobSettled(job Job, out FetchOutcome)
	// BatchSettled fires when the engine goes quiescent. Clean means no
	// attempt failed or hit a captcha since work began.
	BatchSettled(clean bool)
}

// FanoutStatusSink forwards every signal to each sink in order.
type FanoutStatusSink []StatusSink

func (f FanoutStatusSink) JobSubmitted(job Job) {
	for _, s := range f {
		if s != nil {
			s.JobSubmitted(job)
		}
	}
}

func (f FanoutStatusSink) JobSettled(job Job, out FetchOutcome) {
	for _, s := range f {
		if s != nil {
			s.JobSettled(job, out)
		}
	}
}

func (f FanoutStatusSink) BatchSettled(clean bool) {
	for _, s := range f {
		if s != nil {
			s.BatchSettled(clean)
		}
	}
}

// Clock abstracts wall time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints job IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher digests payloads for unchanged-content detection.
type Hasher interface {
	Hash(data []byte) (string, error)
}
