// Package seller defines the canonical inventory model shared by the scrape
// engine, the state store, and the persistence gateway.
package seller

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingStatus tracks where a listing is in its lifecycle.
type ListingStatus string

const (
	// StatusActive means the listing appeared in the most recent complete
	// full refresh, or has never been through one.
	StatusActive ListingStatus = "active"
	// StatusPossiblyEnded means the listing was absent from at least one
	// complete full refresh but the grace window has not elapsed yet.
	StatusPossiblyEnded ListingStatus = "possibly_ended"
	// StatusEnded means the listing stayed absent for the whole grace window.
	StatusEnded ListingStatus = "ended"
)

// Listing is one marketplace item together with its observed attributes.
// Optional fields are nil until a fetch reports a value for them; nil means
// "not observed yet", never zero.
type Listing struct {
	ItemID        string
	Title         string
	Watchers      *int
	Carts         *int
	Price         *decimal.Decimal
	ShippingPrice *decimal.Decimal
	Condition     string
	Description   string

	// Status and AbsentStreak implement the ended-detection grace window.
	// AbsentStreak counts consecutive complete full refreshes in which the
	// item did not appear.
	Status       ListingStatus
	AbsentStreak int

	// Incomplete marks that the most recent merge for this item carried
	// parse issues, so some fields may be stale.
	Incomplete bool

	FirstSeen time.Time
	LastSeen  time.Time
	UpdatedAt time.Time
}

// Ended reports whether the listing is past its grace window.
func (l Listing) Ended() bool {
	return l.Status == StatusEnded
}

// Stats is the store-level statistics record. There is exactly one per
// seller; optional fields follow the same nil-means-unknown convention as
// Listing.
type Stats struct {
	Followers   *int
	SoldItems   *int
	ReviewScore *decimal.Decimal
	UpdatedAt   time.Time
}
