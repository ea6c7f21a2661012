// Package automation provides the browser sessions the fetch path drives.
// The chromedp session is the production provider; the colly session covers
// development and tests where a real browser is unavailable or unwanted.
package automation

// DefaultUserAgent is presented by both providers unless overridden. It
// matches a mainstream desktop browser because marketplace edge servers
// fingerprint obvious automation agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/122.0.0.0 Safari/537.36"
