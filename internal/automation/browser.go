package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/marketglass/marketglass/internal/scrape"
)

// BrowserConfig controls the chromedp-backed session.
type BrowserConfig struct {
	UserAgent string
	// SettleDelay is the pause after the DOM reports ready, giving
	// client-side rendering a beat to fill dynamic counters.
	SettleDelay time.Duration
}

// BrowserSession drives one headless browser for the whole engine run. Open
// launches and warms the browser; each Navigate runs in its own tab, so
// concurrent fetches do not share page state. The caller's context bounds
// every navigation.
type BrowserSession struct {
	cfg    BrowserConfig
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browser       context.Context
	browserCancel context.CancelFunc
}

// NewBrowserSession builds an unopened browser session.
func NewBrowserSession(cfg BrowserConfig, logger *zap.Logger) *BrowserSession {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserSession{cfg: cfg, logger: logger}
}

// Open launches headless Chrome and keeps it warm until Close.
func (s *BrowserSession) Open(ctx context.Context) error {
	if s.browser != nil {
		return fmt.Errorf("browser session already open")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.UserAgent(s.cfg.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	stop := context.AfterFunc(ctx, browserCancel)
	defer stop()

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("browser warmup: %w", err)
	}

	s.allocCancel = allocCancel
	s.browser = browserCtx
	s.browserCancel = browserCancel
	s.logger.Info("browser session open", zap.String("user_agent", s.cfg.UserAgent))
	return nil
}

// Navigate loads the URL in a fresh tab and returns the rendered document
// plus the URL the browser settled on after redirects.
func (s *BrowserSession) Navigate(ctx context.Context, url string, opts ...scrape.NavigateOption) (scrape.Page, error) {
	if s.browser == nil {
		return scrape.Page{}, fmt.Errorf("browser session not open")
	}
	resolved := scrape.ResolveNavigateOptions(opts...)

	tab, closeTab := chromedp.NewContext(s.browser)
	defer closeTab()
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	var (
		html     string
		finalURL string
		clicked  bool
	)
	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.SettleDelay),
	}
	if resolved.ClickSelector != "" {
		actions = append(actions,
			chromedp.Evaluate(clickScript(resolved.ClickSelector), &clicked),
			chromedp.Sleep(s.cfg.SettleDelay),
		)
	}
	actions = append(actions,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)

	if err := chromedp.Run(tab, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return scrape.Page{}, fmt.Errorf("navigate %s: %w", url, ctxErr)
		}
		return scrape.Page{}, fmt.Errorf("navigate %s: %w", url, err)
	}

	if resolved.ClickSelector != "" && !clicked {
		s.logger.Debug("expand selector absent on page",
			zap.String("selector", resolved.ClickSelector),
			zap.String("url", url),
		)
	}
	if finalURL == "" {
		finalURL = url
	}
	return scrape.Page{URL: finalURL, Body: []byte(html)}, nil
}

// Close tears down the browser and allocator. Safe to call when Open never
// succeeded.
func (s *BrowserSession) Close(ctx context.Context) error {
	if s.browser == nil {
		return nil
	}
	s.browserCancel()
	s.allocCancel()
	s.browser = nil
	s.logger.Info("browser session closed")
	return nil
}

// clickScript clicks the selector when present and reports whether it found
// anything, so an absent expander never stalls the navigation.
func clickScript(selector string) string {
	sel, _ := json.Marshal(selector)
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (el) { el.click(); return true; } return false; })()`, sel)
}
