package scrape

import (
	"fmt"
	"net/url"
	"strings"
)

// URLs resolves fetch targets to marketplace addresses for one seller.
type URLs struct {
	base   string
	seller string
}

// NewURLs builds a resolver rooted at the marketplace origin. The base must
// carry a scheme; a trailing slash is tolerated.
func NewURLs(base, sellerName string) (URLs, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return URLs{}, fmt.Errorf("marketplace base URL is empty")
	}
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return URLs{}, fmt.Errorf("marketplace base URL %q is not absolute", base)
	}
	sellerName = strings.TrimSpace(sellerName)
	if sellerName == "" {
		return URLs{}, fmt.Errorf("seller name is empty")
	}
	return URLs{base: base, seller: sellerName}, nil
}

// For maps a target to the URL its fetch should navigate to.
func (u URLs) For(t Target) (string, error) {
	switch t.Kind {
	case TargetInventory:
		return fmt.Sprintf("%s/sch/i.html?_ssn=%s&_ipg=240", u.base, url.QueryEscape(u.seller)), nil
	case TargetItem:
		if t.ItemID == "" {
			return "", fmt.Errorf("item target without item id")
		}
		return u.Item(t.ItemID), nil
	case TargetStats:
		return fmt.Sprintf("%s/usr/%s", u.base, url.PathEscape(u.seller)), nil
	default:
		return "", fmt.Errorf("unknown target kind %q", t.Kind)
	}
}

// Item returns the public page for one listing. Exposed separately so the
// CLI can print open-in-browser links.
func (u URLs) Item(itemID string) string {
	return fmt.Sprintf("%s/itm/%s", u.base, url.PathEscape(itemID))
}
