// Package scrape owns the engine's fetch scheduling: the bounded worker
// pool, retry and backoff rules, captcha gating, and the ordering guarantees
// between in-flight jobs and the published snapshot.
package scrape

import (
	"fmt"
	"time"
)

// TargetKind enumerates what a fetch job is after.
type TargetKind string

const (
	// TargetInventory fetches the seller's full active-listings page.
	TargetInventory TargetKind = "inventory"
	// TargetItem fetches one listing's item page.
	TargetItem TargetKind = "item"
	// TargetStats fetches the seller's store statistics page.
	TargetStats TargetKind = "stats"
)

// Target identifies what a job fetches. Item targets carry the item ID;
// inventory and stats targets are singletons.
type Target struct {
	Kind   TargetKind
	ItemID string
}

// InventoryTarget returns the full-refresh target.
func InventoryTarget() Target {
	return Target{Kind: TargetInventory}
}

// ItemTarget returns the single-item target for the given ID.
func ItemTarget(itemID string) Target {
	return Target{Kind: TargetItem, ItemID: itemID}
}

// StatsTarget returns the store-statistics target.
func StatsTarget() Target {
	return Target{Kind: TargetStats}
}

// String renders the target as a stable label for logs and metrics.
func (t Target) String() string {
	if t.Kind == TargetItem {
		return fmt.Sprintf("%s:%s", t.Kind, t.ItemID)
	}
	return string(t.Kind)
}

// JobState tracks a job through its lifecycle.
type JobState string

const (
	JobPending        JobState = "pending"
	JobRunning        JobState = "running"
	JobSucceeded      JobState = "succeeded"
	JobRetrying       JobState = "retrying"
	JobCaptchaBlocked JobState = "captcha_blocked"
	JobFailed         JobState = "failed"
)

// Job is one scheduled unit of fetch work. Attempt counts started fetches,
// so a job that has never run is at attempt zero.
type Job struct {
	ID        string
	Target    Target
	State     JobState
	Attempt   int
	Forced    bool
	Submitted time.Time
}

// OutcomeClass classifies the result of a single fetch attempt.
type OutcomeClass string

const (
	// OutcomeContent means a payload was retrieved and no captcha was
	// detected in it.
	OutcomeContent OutcomeClass = "content"
	// OutcomeTimeout means the attempt exceeded the per-request deadline.
	OutcomeTimeout OutcomeClass = "timeout"
	// OutcomeTransport covers navigation and connection failures.
	OutcomeTransport OutcomeClass = "transport"
	// OutcomeCaptcha means the marketplace answered with a challenge page.
	OutcomeCaptcha OutcomeClass = "captcha"
	// OutcomeCancelled means the attempt was cancelled before settling.
	OutcomeCancelled OutcomeClass = "cancelled"
)

// Retryable reports whether the class may be retried automatically. Captcha
// is deliberately excluded: retrying into a challenge wall only digs the
// hole deeper, so those jobs park until a human resolves the challenge.
func (c OutcomeClass) Retryable() bool {
	return c == OutcomeTimeout || c == OutcomeTransport
}

// FetchOutcome is one classified fetch attempt. Body is only populated for
// OutcomeContent.
type FetchOutcome struct {
	Job       Job
	Class     OutcomeClass
	Body      []byte
	FinalURL  string
	BodyHash  string
	Err       error
	Duration  time.Duration
	FetchedAt time.Time
}
