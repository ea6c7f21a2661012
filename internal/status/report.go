// Package status derives the dashboard's connection health and activity
// indicators from job lifecycle signals.
package status

import (
	"slices"
	"time"
)

// HealthLevel is the discrete connection health. Its numeric value is the
// number of bars a renderer draws.
type HealthLevel int

const (
	// HealthDown means every recent attempt failed.
	HealthDown HealthLevel = iota
	// HealthPoor means at least half of recent attempts failed.
	HealthPoor
	// HealthDegraded means at least a quarter of recent attempts failed.
	HealthDegraded
	// HealthFull means failures are rare or no attempts have settled yet.
	HealthFull
)

// Bars returns the number of bars to draw for the level.
func (l HealthLevel) Bars() int {
	return int(l)
}

func (l HealthLevel) String() string {
	switch l {
	case HealthDown:
		return "down"
	case HealthPoor:
		return "poor"
	case HealthDegraded:
		return "degraded"
	case HealthFull:
		return "full"
	default:
		return "unknown"
	}
}

// ActivityState is the coarse activity indicator.
type ActivityState string

const (
	// ActivityIdle means no work is running and any hold has expired.
	ActivityIdle ActivityState = "idle"
	// ActivityLoading means at least one job is queued or running.
	ActivityLoading ActivityState = "loading"
	// ActivitySuccess means the last batch settled with no failures.
	ActivitySuccess ActivityState = "success"
	// ActivityError means the last batch settled with failures or a
	// captcha.
	ActivityError ActivityState = "error"
)

// WindowStats summarizes the rolling outcome window.
type WindowStats struct {
	Total    int
	Failures int
	Captchas int
}

// Report is one derived view of engine health, cheap to copy and safe to
// hand to any reader.
type Report struct {
	Health   HealthLevel
	Activity ActivityState
	Window   WindowStats

	// CaptchaBlocked lists target labels parked behind a challenge,
	// sorted. Non-empty means the operator has to act.
	CaptchaBlocked []string

	LastError     string
	LastErrorAt   time.Time
	LastSuccessAt time.Time
	GeneratedAt   time.Time
}

// equal compares everything a consumer can render, ignoring GeneratedAt.
func (r Report) equal(o Report) bool {
	return r.Health == o.Health &&
		r.Activity == o.Activity &&
		r.Window == o.Window &&
		slices.Equal(r.CaptchaBlocked, o.CaptchaBlocked) &&
		r.LastError == o.LastError &&
		r.LastErrorAt.Equal(o.LastErrorAt) &&
		r.LastSuccessAt.Equal(o.LastSuccessAt)
}

// ReportSink receives derived reports. The state store implements it.
type ReportSink interface {
	SetStatus(Report)
}
