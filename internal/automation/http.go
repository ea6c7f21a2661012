package automation

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/marketglass/marketglass/internal/scrape"
)

// HTTPConfig controls the colly-backed session.
type HTTPConfig struct {
	UserAgent string
	// Timeout bounds one request inside the collector. The caller's
	// context usually fires first; this is the inner safety net.
	Timeout time.Duration
}

// HTTPSession fetches pages over plain HTTP with colly. Pages are returned
// as served, with no script execution, so click-through options are
// ignored. Cookies and pooled connections are shared across navigations;
// each navigation gets its own collector so concurrent fetches never share
// callback state. The browser provider never consults robots.txt, so this
// one does not either.
type HTTPSession struct {
	cfg    HTTPConfig
	logger *zap.Logger

	transport *http.Transport
	jar       *cookiejar.Jar
	open      bool
}

// NewHTTPSession builds an unopened HTTP session.
func NewHTTPSession(cfg HTTPConfig, logger *zap.Logger) *HTTPSession {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPSession{cfg: cfg, logger: logger}
}

// Open prepares the shared transport and cookie jar.
func (s *HTTPSession) Open(ctx context.Context) error {
	if s.open {
		return fmt.Errorf("http session already open")
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("build cookie jar: %w", err)
	}
	s.transport = newPooledTransport()
	s.jar = jar
	s.open = true
	s.logger.Info("http session open", zap.String("user_agent", s.cfg.UserAgent))
	return nil
}

// Navigate performs one GET and returns the body plus the URL the transport
// settled on after redirects.
func (s *HTTPSession) Navigate(ctx context.Context, url string, opts ...scrape.NavigateOption) (scrape.Page, error) {
	if !s.open {
		return scrape.Page{}, fmt.Errorf("http session not open")
	}
	// Click-through expansion needs script execution; resolve and drop.
	_ = scrape.ResolveNavigateOptions(opts...)

	recorder := &finalURLRecorder{base: s.transport}
	collector := s.newCollector(recorder)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return scrape.Page{}, fmt.Errorf("navigate %s: %w", url, ctx.Err())
	case err := <-done:
		if err != nil {
			return scrape.Page{}, fmt.Errorf("navigate %s: %w", url, err)
		}
		if fetchErr != nil {
			return scrape.Page{}, fmt.Errorf("navigate %s: %w", url, fetchErr)
		}
	}

	final := recorder.lastURL()
	if final == "" {
		final = url
	}
	return scrape.Page{URL: final, Body: body}, nil
}

// Close drops pooled connections.
func (s *HTTPSession) Close(ctx context.Context) error {
	if !s.open {
		return nil
	}
	s.transport.CloseIdleConnections()
	s.open = false
	s.logger.Info("http session closed")
	return nil
}

// newCollector builds a one-navigation collector. Error-status bodies are
// parsed because challenge walls often arrive on non-2xx responses, and the
// detector needs to see them.
func (s *HTTPSession) newCollector(transport http.RoundTripper) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(s.cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	c.IgnoreRobotsTxt = true
	c.SetRequestTimeout(s.cfg.Timeout)
	c.WithTransport(transport)
	c.SetCookieJar(s.jar)
	return c
}

// finalURLRecorder remembers the last request URL a visit produced, which
// after redirect-following is the URL the page actually came from.
type finalURLRecorder struct {
	base http.RoundTripper

	mu   sync.Mutex
	last string
}

func (r *finalURLRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	r.mu.Lock()
	r.last = req.URL.String()
	r.mu.Unlock()
	return r.base.RoundTrip(req)
}

func (r *finalURLRecorder) lastURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func newPooledTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
