package status

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marketglass/marketglass/internal/metrics"
	"github.com/marketglass/marketglass/internal/scrape"
)

// Config tunes derivation.
type Config struct {
	// WindowSize is how many settled attempts the health window keeps.
	WindowSize int
	// DegradedRatio and PoorRatio are the failure-ratio boundaries between
	// full and degraded, and degraded and poor. A window that is all
	// failures is down regardless.
	DegradedRatio float64
	PoorRatio     float64
	// Hold is how long success and error verdicts stay displayed before
	// the activity returns to idle.
	Hold time.Duration
	// TickEvery is the cadence of the background refresh that expires
	// holds when no new signals arrive.
	TickEvery time.Duration
}

func (cfg *Config) applyDefaults() {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 20
	}
	if cfg.DegradedRatio <= 0 {
		cfg.DegradedRatio = 0.25
	}
	if cfg.PoorRatio <= 0 {
		cfg.PoorRatio = 0.5
	}
	if cfg.Hold <= 0 {
		cfg.Hold = 2 * time.Second
	}
	if cfg.TickEvery <= 0 {
		cfg.TickEvery = 250 * time.Millisecond
	}
}

// Monitor folds job lifecycle signals into a Report and pushes it to the
// sink whenever the derived view changes. It implements scrape.StatusSink.
// All methods are safe for concurrent use.
type Monitor struct {
	cfg    Config
	sink   ReportSink
	clock  scrape.Clock
	logger *zap.Logger

	mu         sync.Mutex
	window     *ring
	captcha    map[string]struct{}
	activity   ActivityState
	activityAt time.Time
	lastErr    string
	lastErrAt  time.Time
	lastOKAt   time.Time
	lastPushed Report
}

// NewMonitor builds a monitor. The sink may be nil, which turns pushes into
// no-ops; Report still works.
func NewMonitor(cfg Config, sink ReportSink, clock scrape.Clock, logger *zap.Logger) *Monitor {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		cfg:      cfg,
		sink:     sink,
		clock:    clock,
		logger:   logger,
		window:   newRing(cfg.WindowSize),
		captcha:  make(map[string]struct{}),
		activity: ActivityIdle,
	}
}

// JobSubmitted implements scrape.StatusSink.
func (m *Monitor) JobSubmitted(job scrape.Job) {
	m.mu.Lock()
	m.activity = ActivityLoading
	delete(m.captcha, job.Target.String())
	m.mu.Unlock()
	m.push()
}

// JobSettled implements scrape.StatusSink. Cancelled attempts carry no
// signal about the connection and are ignored.
func (m *Monitor) JobSettled(job scrape.Job, out scrape.FetchOutcome) {
	m.mu.Lock()
	now := m.clock.Now()
	switch out.Class {
	case scrape.OutcomeContent:
		m.window.push(outcomeOK)
		m.lastOKAt = now
	case scrape.OutcomeTimeout, scrape.OutcomeTransport:
		m.window.push(outcomeFail)
		if job.State == scrape.JobFailed {
			m.lastErr = failureText(job, out.Err)
			m.lastErrAt = now
		}
	case scrape.OutcomeCaptcha:
		m.window.push(outcomeCaptcha)
		m.captcha[job.Target.String()] = struct{}{}
	case scrape.OutcomeCancelled:
	}
	m.mu.Unlock()
	m.push()
}

// BatchSettled implements scrape.StatusSink.
func (m *Monitor) BatchSettled(clean bool) {
	m.mu.Lock()
	if clean {
		m.activity = ActivitySuccess
	} else {
		m.activity = ActivityError
	}
	m.activityAt = m.clock.Now()
	m.mu.Unlock()
	m.push()
}

// Report derives the current view. Hold expiry is applied lazily, so the
// report is correct even between background ticks.
func (m *Monitor) Report() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reportLocked(m.clock.Now())
}

// Run refreshes the sink on a cadence so holds expire for subscribers even
// when no new signals arrive. It returns when ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.TickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.push()
		}
	}
}

func (m *Monitor) reportLocked(now time.Time) Report {
	if (m.activity == ActivitySuccess || m.activity == ActivityError) &&
		now.Sub(m.activityAt) >= m.cfg.Hold {
		m.activity = ActivityIdle
	}

	st := m.window.stats()
	rep := Report{
		Health:        m.healthFor(st),
		Activity:      m.activity,
		Window:        st,
		LastError:     m.lastErr,
		LastErrorAt:   m.lastErrAt,
		LastSuccessAt: m.lastOKAt,
		GeneratedAt:   now,
	}
	for t := range m.captcha {
		rep.CaptchaBlocked = append(rep.CaptchaBlocked, t)
	}
	sort.Strings(rep.CaptchaBlocked)
	return rep
}

func (m *Monitor) healthFor(st WindowStats) HealthLevel {
	if st.Total == 0 {
		return HealthFull
	}
	ratio := float64(st.Failures+st.Captchas) / float64(st.Total)
	switch {
	case ratio >= 1:
		return HealthDown
	case ratio >= m.cfg.PoorRatio:
		return HealthPoor
	case ratio >= m.cfg.DegradedRatio:
		return HealthDegraded
	default:
		return HealthFull
	}
}

// push rederives the report and forwards it when it differs from the last
// one pushed, so subscribers only wake for real changes.
func (m *Monitor) push() {
	m.mu.Lock()
	rep := m.reportLocked(m.clock.Now())
	changed := !rep.equal(m.lastPushed)
	if changed {
		m.lastPushed = rep
	}
	m.mu.Unlock()

	if !changed {
		return
	}
	metrics.SetHealthLevel(int(rep.Health))
	if m.sink != nil {
		m.sink.SetStatus(rep)
	}
}

func failureText(job scrape.Job, err error) string {
	if err == nil {
		return fmt.Sprintf("%s failed after %d attempts", job.Target, job.Attempt)
	}
	return fmt.Sprintf("%s: %v", job.Target, err)
}

type outcomeKind uint8

const (
	outcomeOK outcomeKind = iota
	outcomeFail
	outcomeCaptcha
)

// ring is a fixed-size rolling window of attempt outcomes.
type ring struct {
	buf  []outcomeKind
	next int
	full bool
}

func newRing(n int) *ring {
	return &ring{buf: make([]outcomeKind, n)}
}

func (r *ring) push(k outcomeKind) {
	r.buf[r.next] = k
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *ring) stats() WindowStats {
	n := r.next
	if r.full {
		n = len(r.buf)
	}
	var st WindowStats
	st.Total = n
	for i := 0; i < n; i++ {
		switch r.buf[i] {
		case outcomeFail:
			st.Failures++
		case outcomeCaptcha:
			st.Captchas++
		}
	}
	return st
}
