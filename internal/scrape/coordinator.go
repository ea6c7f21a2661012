package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/marketglass/marketglass/internal/metrics"
	"github.com/marketglass/marketglass/internal/seller"
)

// CoordinatorConfig tunes scheduling.
type CoordinatorConfig struct {
	// MaxConcurrent caps in-flight fetch jobs.
	MaxConcurrent int
	// Interval is the periodic full-refresh cadence. Zero disables the
	// periodic timer, which one-shot callers rely on.
	Interval time.Duration
	// Schedule is an optional cron expression for forced deep refreshes.
	Schedule string
	// ShutdownGrace bounds how long shutdown waits for in-flight jobs
	// before cancelling them.
	ShutdownGrace time.Duration
	// CommandBuffer is the depth of the command channel. Commands beyond
	// it are dropped rather than blocking the caller.
	CommandBuffer int
}

func (cfg *CoordinatorConfig) applyDefaults() {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = 64
	}
}

// CoordinatorDeps bundles the coordinator's collaborators.
type CoordinatorDeps struct {
	Fetcher   Fetcher
	Extractor Extractor
	Merger    Merger
	Store     Publisher
	Status    StatusSink
	Retry     *RetryPolicy
	IDs       IDGenerator
	Clock     Clock
	Logger    *zap.Logger
}

func (d CoordinatorDeps) validate() error {
	switch {
	case d.Fetcher == nil:
		return fmt.Errorf("coordinator needs a fetcher")
	case d.Extractor == nil:
		return fmt.Errorf("coordinator needs an extractor")
	case d.Merger == nil:
		return fmt.Errorf("coordinator needs a merger")
	case d.Store == nil:
		return fmt.Errorf("coordinator needs a store")
	case d.Retry == nil:
		return fmt.Errorf("coordinator needs a retry policy")
	case d.IDs == nil:
		return fmt.Errorf("coordinator needs an id generator")
	case d.Clock == nil:
		return fmt.Errorf("coordinator needs a clock")
	}
	return nil
}

type commandKind uint8

const (
	cmdSubmit commandKind = iota
	cmdForce
	cmdResolveCaptcha
	cmdRetryDue
)

func (k commandKind) String() string {
	switch k {
	case cmdSubmit:
		return "submit"
	case cmdForce:
		return "force"
	case cmdResolveCaptcha:
		return "resolve_captcha"
	case cmdRetryDue:
		return "retry_due"
	default:
		return "unknown"
	}
}

type command struct {
	kind   commandKind
	target Target
	job    *Job
}

type inflightJob struct {
	job        *Job
	cancel     context.CancelFunc
	superseded bool
}

// Coordinator owns all scheduling state and runs it from a single goroutine.
// Fetches execute concurrently up to the configured cap, but their outcomes
// are applied to the snapshot strictly one at a time in completion order, so
// readers never observe a half-merged state.
//
// External callers talk to the loop through buffered command submission;
// when the engine is saturated a command is dropped with a warning instead
// of blocking the caller.
type Coordinator struct {
	cfg  CoordinatorConfig
	deps CoordinatorDeps

	cmds    chan command
	results chan FetchOutcome
	done    chan struct{}

	warnLimiter *rate.Limiter

	// Loop-owned state. Only the Run goroutine may touch these.
	pending     []*Job
	inflight    map[Target]*inflightJob
	gated       map[Target]*Job
	retryTimers map[string]*time.Timer
	batchOpen   bool
	batchDirty  bool
	draining    bool

	logger *zap.Logger
}

// NewCoordinator builds the engine loop. Deps.Status and Deps.Logger are
// optional; everything else is required.
func NewCoordinator(cfg CoordinatorConfig, deps CoordinatorDeps) (*Coordinator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if deps.Status == nil {
		deps.Status = nopStatusSink{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:         cfg,
		deps:        deps,
		cmds:        make(chan command, cfg.CommandBuffer),
		results:     make(chan FetchOutcome, cfg.MaxConcurrent),
		done:        make(chan struct{}),
		warnLimiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
		inflight:    make(map[Target]*inflightJob),
		gated:       make(map[Target]*Job),
		retryTimers: make(map[string]*time.Timer),
		logger:      logger,
	}, nil
}

// SubmitRefresh queues a refresh for the target, coalescing with any queued
// or running job for the same target.
func (c *Coordinator) SubmitRefresh(target Target) {
	c.post(command{kind: cmdSubmit, target: target})
}

// ForceRefresh queues a refresh that jumps the queue, supersedes a running
// job for the same target, and clears a captcha gate on it.
func (c *Coordinator) ForceRefresh(target Target) {
	c.post(command{kind: cmdForce, target: target})
}

// ResolveCaptcha signals that the operator has cleared the challenge in the
// browser. Every captcha-gated lineage is resubmitted with a fresh attempt
// budget. This is the only path that resumes a gated lineage.
func (c *Coordinator) ResolveCaptcha() {
	c.post(command{kind: cmdResolveCaptcha})
}

func (c *Coordinator) post(cmd command) {
	select {
	case c.cmds <- cmd:
	default:
		metrics.IncCommandDropped()
		if c.warnLimiter.Allow() {
			c.logger.Warn("command dropped, coordinator saturated",
				zap.String("kind", cmd.kind.String()),
				zap.String("target", cmd.target.String()),
			)
		}
	}
}

// Run drives the engine until ctx is cancelled, then drains in-flight jobs
// within the shutdown grace. It must be called exactly once. An inventory
// and a stats refresh are queued immediately so consumers see data without
// waiting out the first interval.
func (c *Coordinator) Run(ctx context.Context) error {
	execCtx, cancelExec := context.WithCancel(context.Background())
	defer cancelExec()

	var tickC <-chan time.Time
	if c.cfg.Interval > 0 {
		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	if c.cfg.Schedule != "" {
		sched := cron.New()
		_, err := sched.AddFunc(c.cfg.Schedule, func() {
			c.ForceRefresh(InventoryTarget())
			c.ForceRefresh(StatsTarget())
		})
		if err != nil {
			return fmt.Errorf("parse refresh schedule %q: %w", c.cfg.Schedule, err)
		}
		sched.Start()
		defer sched.Stop()
	}

	c.accept(InventoryTarget(), false)
	c.accept(StatsTarget(), false)

	for {
		c.dispatch(execCtx)
		c.settleQuiescence()
		select {
		case cmd := <-c.cmds:
			c.handleCommand(cmd)
		case out := <-c.results:
			c.handleOutcome(out)
		case <-tickC:
			c.accept(InventoryTarget(), false)
			c.accept(StatsTarget(), false)
		case <-ctx.Done():
			return c.drain(cancelExec)
		}
	}
}

func (c *Coordinator) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdSubmit:
		c.accept(cmd.target, false)
	case cmdForce:
		c.accept(cmd.target, true)
	case cmdResolveCaptcha:
		c.resolveCaptcha()
	case cmdRetryDue:
		c.retryDue(cmd.job)
	}
}

// accept admits a refresh request into the queue. Unforced requests
// coalesce with queued or running work for the same target and respect a
// captcha gate; forced requests clear the gate, supersede a running job,
// and go to the front of the queue.
func (c *Coordinator) accept(target Target, forced bool) {
	if _, blocked := c.gated[target]; blocked {
		if !forced {
			// Parked behind a challenge. Periodic refreshes must not
			// bypass the manual resolve signal.
			return
		}
		delete(c.gated, target)
		metrics.SetCaptchaGated(len(c.gated))
	}

	if inf, ok := c.inflight[target]; ok {
		if !forced {
			return
		}
		c.supersede(inf)
	}

	for _, queued := range c.pending {
		if queued.Target == target {
			if forced {
				queued.Forced = true
			}
			return
		}
	}

	job := c.newJob(target, forced)
	if job == nil {
		return
	}
	if forced {
		c.pending = append([]*Job{job}, c.pending...)
	} else {
		c.pending = append(c.pending, job)
	}
	c.batchOpen = true
	metrics.IncJobSubmitted(string(target.Kind))
	c.deps.Status.JobSubmitted(*job)
	c.logger.Debug("job queued",
		zap.String("job_id", job.ID),
		zap.String("target", target.String()),
		zap.Bool("forced", forced),
	)
}

func (c *Coordinator) newJob(target Target, forced bool) *Job {
	id, err := c.deps.IDs.NewID()
	if err != nil {
		c.logger.Error("mint job id", zap.Error(err))
		return nil
	}
	return &Job{
		ID:        id,
		Target:    target,
		State:     JobPending,
		Forced:    forced,
		Submitted: c.deps.Clock.Now(),
	}
}

// supersede cancels a running job and marks its eventual outcome for
// discard. The inflight slot stays taken until that outcome arrives, which
// keeps the concurrency cap honest.
func (c *Coordinator) supersede(inf *inflightJob) {
	inf.superseded = true
	inf.cancel()
	metrics.IncJobSuperseded()
	c.logger.Debug("job superseded",
		zap.String("job_id", inf.job.ID),
		zap.String("target", inf.job.Target.String()),
	)
}

func (c *Coordinator) dispatch(execCtx context.Context) {
	for len(c.inflight) < c.cfg.MaxConcurrent {
		idx := -1
		for i, job := range c.pending {
			if _, busy := c.inflight[job.Target]; !busy {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		job := c.pending[idx]
		c.pending = append(c.pending[:idx], c.pending[idx+1:]...)
		c.start(execCtx, job)
	}
}

func (c *Coordinator) start(execCtx context.Context, job *Job) {
	jobCtx, cancel := context.WithCancel(execCtx)
	job.State = JobRunning
	job.Attempt++
	c.inflight[job.Target] = &inflightJob{job: job, cancel: cancel}
	metrics.SetJobsInFlight(len(c.inflight))
	c.logger.Debug("job started",
		zap.String("job_id", job.ID),
		zap.String("target", job.Target.String()),
		zap.Int("attempt", job.Attempt),
	)

	snapshot := *job
	go func() {
		out := c.deps.Fetcher.Run(jobCtx, snapshot)
		cancel()
		c.results <- out
	}()
}

func (c *Coordinator) handleOutcome(out FetchOutcome) {
	inf, ok := c.inflight[out.Job.Target]
	if !ok || inf.job.ID != out.Job.ID {
		// Result of a job that was superseded and already replaced. The
		// snapshot must never absorb it.
		metrics.IncOutcomeDiscarded()
		c.logger.Debug("discarding stale outcome",
			zap.String("job_id", out.Job.ID),
			zap.String("target", out.Job.Target.String()),
		)
		return
	}
	delete(c.inflight, out.Job.Target)
	metrics.SetJobsInFlight(len(c.inflight))

	if inf.superseded {
		metrics.IncOutcomeDiscarded()
		c.logger.Debug("discarding superseded outcome",
			zap.String("job_id", out.Job.ID),
			zap.String("target", out.Job.Target.String()),
		)
		return
	}

	job := inf.job
	metrics.ObserveFetch(string(job.Target.Kind), string(out.Class), out.Duration)

	switch out.Class {
	case OutcomeContent:
		c.apply(out)
		job.State = JobSucceeded
		c.deps.Status.JobSettled(*job, out)

	case OutcomeCaptcha:
		job.State = JobCaptchaBlocked
		c.gated[job.Target] = job
		c.batchDirty = true
		metrics.SetCaptchaGated(len(c.gated))
		c.deps.Status.JobSettled(*job, out)
		c.logger.Warn("job parked behind challenge, resolve to resume",
			zap.String("job_id", job.ID),
			zap.String("target", job.Target.String()),
		)

	case OutcomeTimeout, OutcomeTransport:
		if !c.draining && c.deps.Retry.ShouldRetry(out.Class, job.Attempt) {
			job.State = JobRetrying
			c.deps.Status.JobSettled(*job, out)
			c.scheduleRetry(job, out.Class)
		} else {
			job.State = JobFailed
			c.batchDirty = true
			c.deps.Status.JobSettled(*job, out)
			c.logger.Error("job failed on final attempt",
				zap.String("job_id", job.ID),
				zap.String("target", job.Target.String()),
				zap.Int("attempts", job.Attempt),
				zap.Error(out.Err),
			)
		}

	case OutcomeCancelled:
		c.deps.Status.JobSettled(*job, out)
	}
}

// apply runs extraction and merge for a content outcome and publishes the
// next snapshot version. It executes on the loop goroutine, which is what
// serializes merges into completion order.
func (c *Coordinator) apply(out FetchOutcome) {
	now := c.deps.Clock.Now()
	cur := c.deps.Store.Current()

	var next *seller.Snapshot
	switch out.Job.Target.Kind {
	case TargetInventory:
		res := c.deps.Extractor.Inventory(out.Body)
		if !res.Complete {
			c.logger.Warn("inventory extraction incomplete",
				zap.Int("records", len(res.Records)),
				zap.Strings("issues", res.Issues),
			)
		}
		next = c.deps.Merger.MergeInventory(cur, res, now)
	case TargetItem:
		rec := c.deps.Extractor.Item(out.Body, out.Job.Target.ItemID)
		next = c.deps.Merger.MergeItem(cur, rec, now)
	case TargetStats:
		rec := c.deps.Extractor.Stats(out.Body)
		next = c.deps.Merger.MergeStats(cur, rec, now)
	default:
		c.logger.Error("content outcome for unknown target kind",
			zap.String("target", out.Job.Target.String()),
		)
		return
	}

	if err := c.deps.Store.Publish(next); err != nil {
		c.logger.Error("publish snapshot",
			zap.Uint64("version", next.Version),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) scheduleRetry(job *Job, class OutcomeClass) {
	delay := c.deps.Retry.Backoff(job.Attempt)
	metrics.IncJobRetried(string(job.Target.Kind))
	c.logger.Info("retrying job",
		zap.String("job_id", job.ID),
		zap.String("target", job.Target.String()),
		zap.Int("attempt", job.Attempt),
		zap.String("class", string(class)),
		zap.Duration("backoff", delay),
	)
	c.retryTimers[job.ID] = time.AfterFunc(delay, func() {
		select {
		case c.cmds <- command{kind: cmdRetryDue, job: job}:
		case <-c.done:
		}
	})
}

// retryDue requeues a job whose backoff elapsed, unless newer work for the
// same target superseded the lineage while it was waiting.
func (c *Coordinator) retryDue(job *Job) {
	delete(c.retryTimers, job.ID)
	if _, busy := c.inflight[job.Target]; busy {
		return
	}
	if _, blocked := c.gated[job.Target]; blocked {
		return
	}
	for _, queued := range c.pending {
		if queued.Target == job.Target {
			return
		}
	}
	job.State = JobPending
	c.pending = append(c.pending, job)
}

func (c *Coordinator) resolveCaptcha() {
	if len(c.gated) == 0 {
		c.logger.Info("captcha resolve signal with nothing gated")
		return
	}
	targets := make([]Target, 0, len(c.gated))
	for t := range c.gated {
		targets = append(targets, t)
	}
	c.logger.Info("captcha resolved, resuming gated targets", zap.Int("count", len(targets)))
	for _, t := range targets {
		delete(c.gated, t)
		c.accept(t, false)
	}
	metrics.SetCaptchaGated(len(c.gated))
}

// settleQuiescence fires the batch-settled signal once no work is queued,
// running, or waiting on a backoff timer.
func (c *Coordinator) settleQuiescence() {
	if !c.batchOpen {
		return
	}
	if len(c.inflight) > 0 || len(c.pending) > 0 || len(c.retryTimers) > 0 {
		return
	}
	clean := !c.batchDirty
	c.batchOpen = false
	c.batchDirty = false
	c.deps.Status.BatchSettled(clean)
	c.logger.Debug("engine quiescent", zap.Bool("clean", clean))
}

// drain stops new work, waits out the grace for in-flight jobs, then
// cancels whatever remains. Outcomes that settle during the grace are still
// merged and published.
func (c *Coordinator) drain(cancelExec context.CancelFunc) error {
	c.draining = true
	close(c.done)
	for id, timer := range c.retryTimers {
		timer.Stop()
		delete(c.retryTimers, id)
	}
	c.pending = nil

	if len(c.inflight) > 0 {
		c.logger.Info("draining in-flight jobs",
			zap.Int("count", len(c.inflight)),
			zap.Duration("grace", c.cfg.ShutdownGrace),
		)
		grace := time.NewTimer(c.cfg.ShutdownGrace)
		defer grace.Stop()
		for len(c.inflight) > 0 {
			select {
			case out := <-c.results:
				c.handleOutcome(out)
			case <-grace.C:
				c.logger.Warn("shutdown grace elapsed, cancelling remaining jobs",
					zap.Int("count", len(c.inflight)),
				)
				cancelExec()
			}
		}
	}
	c.settleQuiescence()
	c.logger.Info("coordinator stopped")
	return nil
}

type nopStatusSink struct{}

func (nopStatusSink) JobSubmitted(Job)            {}
func (nopStatusSink) JobSettled(Job, FetchOutcome) {}
func (nopStatusSink) BatchSettled(bool)           {}
