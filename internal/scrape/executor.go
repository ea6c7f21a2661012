package scrape

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ExecutorConfig tunes fetch attempts.
type ExecutorConfig struct {
	// Timeout bounds one attempt end to end, politeness wait excluded.
	Timeout time.Duration
	// RatePerSec caps navigations across all concurrent jobs. Zero
	// disables the limiter.
	RatePerSec float64
	// ExpandSelector, when set, is clicked on inventory pages so paged
	// inventories collapse into one document before extraction.
	ExpandSelector string
}

// Executor runs single fetch attempts against the automation session and
// classifies what came back. It holds no job state; the coordinator owns
// scheduling and retries.
type Executor struct {
	session  Session
	urls     URLs
	detector CaptchaDetector
	hasher   Hasher
	clock    Clock
	limiter  *rate.Limiter
	cfg      ExecutorConfig
	logger   *zap.Logger
}

// NewExecutor wires an executor. Detector and hasher may be nil, which
// disables captcha classification and body hashing respectively.
func NewExecutor(session Session, urls URLs, detector CaptchaDetector, hasher Hasher, clock Clock, cfg ExecutorConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return &Executor{
		session:  session,
		urls:     urls,
		detector: detector,
		hasher:   hasher,
		clock:    clock,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run performs one fetch attempt for the job. It always returns an outcome;
// errors are folded into the outcome class.
func (e *Executor) Run(ctx context.Context, job Job) FetchOutcome {
	start := e.clock.Now()
	out := FetchOutcome{Job: job, FetchedAt: start}

	targetURL, err := e.urls.For(job.Target)
	if err != nil {
		return e.settle(out, OutcomeTransport, err, start)
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return e.settle(out, OutcomeCancelled, err, start)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	var opts []NavigateOption
	if job.Target.Kind == TargetInventory && e.cfg.ExpandSelector != "" {
		opts = append(opts, WithClick(e.cfg.ExpandSelector))
	}

	page, err := e.session.Navigate(attemptCtx, targetURL, opts...)
	if err != nil {
		return e.settle(out, e.classify(ctx, err), err, start)
	}
	out.FinalURL = page.URL

	if e.detector != nil && e.detector.Detect(page.URL, page.Body) {
		e.logger.Warn("challenge wall detected",
			zap.String("target", job.Target.String()),
			zap.String("url", page.URL),
		)
		return e.settle(out, OutcomeCaptcha, nil, start)
	}

	out.Body = page.Body
	if e.hasher != nil {
		if h, hashErr := e.hasher.Hash(page.Body); hashErr == nil {
			out.BodyHash = h
		}
	}
	return e.settle(out, OutcomeContent, nil, start)
}

// classify maps a navigation error to an outcome class. The job context
// decides between cancellation and timeout when both deadlines are in play.
func (e *Executor) classify(jobCtx context.Context, err error) OutcomeClass {
	if jobCtx.Err() != nil || errors.Is(err, context.Canceled) {
		return OutcomeCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	return OutcomeTransport
}

func (e *Executor) settle(out FetchOutcome, class OutcomeClass, err error, start time.Time) FetchOutcome {
	out.Class = class
	out.Err = err
	out.Duration = e.clock.Now().Sub(start)
	e.logger.Debug("fetch attempt settled",
		zap.String("job_id", out.Job.ID),
		zap.String("target", out.Job.Target.String()),
		zap.Int("attempt", out.Job.Attempt),
		zap.String("class", string(class)),
		zap.Duration("duration", out.Duration),
		zap.Error(err),
	)
	return out
}
