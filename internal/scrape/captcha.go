package scrape

import (
	"bytes"
	"strings"
)

// Default signals for marketplace challenge pages. The URL tokens catch
// redirects to a dedicated challenge host; the body tokens catch challenges
// served in place on the original URL.
var (
	DefaultCaptchaURLTokens = []string{"captcha", "challenge", "splashui"}

	DefaultCaptchaBodyTokens = []string{
		"pardon our interruption",
		"verify yourself",
		"please verify you are a human",
		"hcaptcha",
		"g-recaptcha",
	}
)

// PatternDetector implements CaptchaDetector with simple URL and body
// signals. False negatives fall through to extraction, which then yields an
// incomplete result; false positives park a job until resolved, so the
// token lists should stay conservative.
type PatternDetector struct {
	urlTokens  []string
	bodyTokens [][]byte
}

// NewPatternDetector builds a detector from token lists. Tokens are matched
// case-insensitively; empty tokens are dropped.
func NewPatternDetector(urlTokens, bodyTokens []string) *PatternDetector {
	d := &PatternDetector{}
	for _, tok := range urlTokens {
		tok = strings.TrimSpace(strings.ToLower(tok))
		if tok == "" {
			continue
		}
		d.urlTokens = append(d.urlTokens, tok)
	}
	for _, tok := range bodyTokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		d.bodyTokens = append(d.bodyTokens, bytes.ToLower([]byte(tok)))
	}
	return d
}

// NewDefaultPatternDetector builds a detector with the stock token lists.
func NewDefaultPatternDetector() *PatternDetector {
	return NewPatternDetector(DefaultCaptchaURLTokens, DefaultCaptchaBodyTokens)
}

// Detect reports whether the payload is a challenge wall.
func (d *PatternDetector) Detect(finalURL string, body []byte) bool {
	if d == nil {
		return false
	}
	if d.matchesURL(finalURL) {
		return true
	}
	return d.matchesBody(body)
}

func (d *PatternDetector) matchesURL(finalURL string) bool {
	if finalURL == "" || len(d.urlTokens) == 0 {
		return false
	}
	lower := strings.ToLower(finalURL)
	for _, tok := range d.urlTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

func (d *PatternDetector) matchesBody(body []byte) bool {
	if len(body) == 0 || len(d.bodyTokens) == 0 {
		return false
	}
	lower := bytes.ToLower(body)
	for _, tok := range d.bodyTokens {
		if bytes.Contains(lower, tok) {
			return true
		}
	}
	return false
}
