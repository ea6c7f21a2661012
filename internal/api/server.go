// Package api serves the read-only debug surface: health, the derived
// status report, the current snapshot, recent engine events, and Prometheus
// metrics. Handlers only read from the state store and the event journal;
// nothing here can steer the engine.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/marketglass/marketglass/internal/metrics"
	"github.com/marketglass/marketglass/internal/state"
	"github.com/marketglass/marketglass/internal/store"
)

const (
	requestTimeout    = 15 * time.Second
	defaultEventLimit = 50
)

// Server exposes the debug endpoints over a chi router.
type Server struct {
	state   *state.Store
	journal *store.Journal
	logger  *zap.Logger
	router  chi.Router
}

// NewServer wires the routes and middleware. journal may be nil, in which
// case /eventsz serves an empty journal view.
func NewServer(st *state.Store, journal *store.Journal, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		state:   st,
		journal: journal,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(requestTimeout))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/statusz", s.statusz)
	r.Get("/snapshot", s.snapshot)
	r.Get("/eventsz", s.events)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router = r
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) statusz(w http.ResponseWriter, _ *http.Request) {
	rep := s.state.Status()
	s.writeJSON(w, http.StatusOK, statusResponse{
		Health:   rep.Health.String(),
		Activity: string(rep.Activity),
		Window: windowResponse{
			Total:    rep.Window.Total,
			Failures: rep.Window.Failures,
			Captchas: rep.Window.Captchas,
		},
		CaptchaBlocked: rep.CaptchaBlocked,
		LastError:      rep.LastError,
		LastErrorAt:    timePtr(rep.LastErrorAt),
		LastSuccessAt:  timePtr(rep.LastSuccessAt),
		GeneratedAt:    rep.GeneratedAt,
	})
}

func (s *Server) snapshot(w http.ResponseWriter, _ *http.Request) {
	snap := s.state.Current()
	all := snap.All()
	listings := make([]listingResponse, 0, len(all))
	for _, l := range all {
		listings = append(listings, listingResponse{
			ItemID:        l.ItemID,
			Title:         l.Title,
			Watchers:      l.Watchers,
			Carts:         l.Carts,
			Price:         l.Price,
			ShippingPrice: l.ShippingPrice,
			Condition:     l.Condition,
			Description:   l.Description,
			Status:        string(l.Status),
			AbsentStreak:  l.AbsentStreak,
			Incomplete:    l.Incomplete,
			FirstSeen:     l.FirstSeen,
			LastSeen:      l.LastSeen,
			UpdatedAt:     l.UpdatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, snapshotResponse{
		Version:  snap.Version,
		MergedAt: timePtr(snap.MergedAt),
		Stats: statsResponse{
			Followers:   snap.Stats.Followers,
			SoldItems:   snap.Stats.SoldItems,
			ReviewScore: snap.Stats.ReviewScore,
			UpdatedAt:   timePtr(snap.Stats.UpdatedAt),
		},
		Listings: listings,
	})
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		limit = n
	}

	resp := eventsResponse{Events: []eventResponse{}, Tallies: []store.TargetTally{}}
	if s.journal != nil {
		for _, evt := range s.journal.Recent(limit) {
			resp.Events = append(resp.Events, eventResponse{
				JobID:   evt.JobID,
				TS:      evt.TS,
				Stage:   string(evt.Stage),
				Target:  evt.Target,
				Attempt: evt.Attempt,
				Class:   evt.Class,
				DurMS:   evt.Dur.Milliseconds(),
				Note:    evt.Note,
			})
		}
		resp.Tallies = s.journal.Tallies()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type statusResponse struct {
	Health         string         `json:"health"`
	Activity       string         `json:"activity"`
	Window         windowResponse `json:"window"`
	CaptchaBlocked []string       `json:"captcha_blocked,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	LastErrorAt    *time.Time     `json:"last_error_at,omitempty"`
	LastSuccessAt  *time.Time     `json:"last_success_at,omitempty"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

type windowResponse struct {
	Total    int `json:"total"`
	Failures int `json:"failures"`
	Captchas int `json:"captchas"`
}

type snapshotResponse struct {
	Version  uint64            `json:"version"`
	MergedAt *time.Time        `json:"merged_at,omitempty"`
	Stats    statsResponse     `json:"stats"`
	Listings []listingResponse `json:"listings"`
}

type statsResponse struct {
	Followers   *int             `json:"followers,omitempty"`
	SoldItems   *int             `json:"sold_items,omitempty"`
	ReviewScore *decimal.Decimal `json:"review_score,omitempty"`
	UpdatedAt   *time.Time       `json:"updated_at,omitempty"`
}

type listingResponse struct {
	ItemID        string           `json:"item_id"`
	Title         string           `json:"title"`
	Watchers      *int             `json:"watchers,omitempty"`
	Carts         *int             `json:"carts,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	ShippingPrice *decimal.Decimal `json:"shipping_price,omitempty"`
	Condition     string           `json:"condition,omitempty"`
	Description   string           `json:"description,omitempty"`
	Status        string           `json:"status"`
	AbsentStreak  int              `json:"absent_streak,omitempty"`
	Incomplete    bool             `json:"incomplete,omitempty"`
	FirstSeen     time.Time        `json:"first_seen"`
	LastSeen      time.Time        `json:"last_seen"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type eventsResponse struct {
	Events  []eventResponse     `json:"events"`
	Tallies []store.TargetTally `json:"tallies"`
}

type eventResponse struct {
	JobID   string    `json:"job_id"`
	TS      time.Time `json:"ts"`
	Stage   string    `json:"stage"`
	Target  string    `json:"target,omitempty"`
	Attempt int       `json:"attempt,omitempty"`
	Class   string    `json:"class,omitempty"`
	DurMS   int64     `json:"dur_ms"`
	Note    string    `json:"note,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", reqID),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
