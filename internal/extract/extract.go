// Package extract turns raw marketplace payloads into structured records.
//
// Extraction is pure: it never performs I/O and never fails outright. Fields
// that cannot be recovered from a payload come back with OriginMissing, and
// payload-level problems are reported as issues on the result so callers can
// decide how much of it to trust.
package extract

import (
	"github.com/shopspring/decimal"
)

// Origin says how a field value was obtained.
type Origin uint8

const (
	// OriginMissing means the payload carried no usable value.
	OriginMissing Origin = iota
	// OriginPresent means the value was read directly from the payload.
	OriginPresent
	// OriginDerived means the value was inferred, such as a zero shipping
	// price derived from a "Free shipping" label.
	OriginDerived
)

// Field is a value paired with its provenance. Consumers must check Known
// before trusting Value; a missing field's Value is the zero value.
type Field[T any] struct {
	Value  T
	Origin Origin
}

// Present wraps a value read directly from the payload.
func Present[T any](v T) Field[T] {
	return Field[T]{Value: v, Origin: OriginPresent}
}

// Derived wraps a value inferred from the payload rather than read from it.
func Derived[T any](v T) Field[T] {
	return Field[T]{Value: v, Origin: OriginDerived}
}

// Missing returns a field with no value.
func Missing[T any]() Field[T] {
	return Field[T]{}
}

// Known reports whether the field carries a usable value.
func (f Field[T]) Known() bool {
	return f.Origin != OriginMissing
}

// ListingRecord is the extracted form of one listing. Issues lists the
// fields that could not be recovered; a record with issues is still mergeable
// but marks the listing incomplete.
type ListingRecord struct {
	ItemID        string
	Title         Field[string]
	Watchers      Field[int]
	Carts         Field[int]
	Price         Field[decimal.Decimal]
	ShippingPrice Field[decimal.Decimal]
	Condition     Field[string]
	Description   Field[string]
	Issues        []string
}

// InventoryResult is the outcome of extracting a full inventory page.
// Complete reports whether the record set can be trusted as the entire
// inventory; only complete results may drive absence bookkeeping downstream.
type InventoryResult struct {
	Records  []ListingRecord
	Complete bool
	Issues   []string
}

// StatsRecord is the extracted form of the seller's store statistics.
type StatsRecord struct {
	Followers   Field[int]
	SoldItems   Field[int]
	ReviewScore Field[decimal.Decimal]
	Issues      []string
}

// Extractor parses marketplace HTML with goquery. The zero value is ready to
// use; the type exists so callers can depend on an interface seam instead of
// package functions.
type Extractor struct{}

// NewExtractor returns a ready Extractor.
func NewExtractor() Extractor {
	return Extractor{}
}
