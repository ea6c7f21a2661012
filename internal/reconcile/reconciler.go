// Package reconcile folds extracted records into versioned snapshots. It
// owns the field-wise merge rules and the grace window that decides when an
// absent listing is considered ended.
package reconcile

import (
	"time"

	"go.uber.org/zap"

	"github.com/marketglass/marketglass/internal/extract"
	"github.com/marketglass/marketglass/internal/seller"
)

// Config tunes merge behavior.
type Config struct {
	// GraceRefreshes is how many consecutive complete full refreshes a
	// listing must miss before it is marked ended.
	GraceRefreshes int
}

// Reconciler builds the next snapshot version from the current one plus one
// merge input. It never mutates the current snapshot, so published versions
// stay immutable. Reconciler methods are not safe for concurrent use; the
// coordinator serializes all merges.
type Reconciler struct {
	grace  int
	logger *zap.Logger
}

// New builds a reconciler.
func New(cfg Config, logger *zap.Logger) *Reconciler {
	if cfg.GraceRefreshes <= 0 {
		cfg.GraceRefreshes = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{grace: cfg.GraceRefreshes, logger: logger}
}

// MergeInventory folds a full-refresh result in. Every extracted record is
// merged field-wise; absence bookkeeping runs only when the result set is
// complete, so a partial page can never end a listing.
func (r *Reconciler) MergeInventory(cur *seller.Snapshot, res extract.InventoryResult, at time.Time) *seller.Snapshot {
	next := r.begin(cur, at)

	seen := make(map[string]bool, len(res.Records))
	for _, rec := range res.Records {
		seen[rec.ItemID] = true
		r.applyRecord(next, rec, at, true)
	}

	if res.Complete {
		r.markAbsent(next, seen, at)
	}
	return next
}

// MergeItem folds a single-item result in. Item fetches update fields but
// never touch absence bookkeeping: an item page can render for a listing
// the seller already ended, so only complete full refreshes move the
// lifecycle.
func (r *Reconciler) MergeItem(cur *seller.Snapshot, rec extract.ListingRecord, at time.Time) *seller.Snapshot {
	next := r.begin(cur, at)
	r.applyRecord(next, rec, at, false)
	return next
}

// MergeStats folds a store-statistics result in, retaining current values
// for fields the fetch could not recover.
func (r *Reconciler) MergeStats(cur *seller.Snapshot, rec extract.StatsRecord, at time.Time) *seller.Snapshot {
	next := r.begin(cur, at)

	st := next.Stats
	changed := false
	if rec.Followers.Known() && (st.Followers == nil || *st.Followers != rec.Followers.Value) {
		v := rec.Followers.Value
		st.Followers = &v
		changed = true
	}
	if rec.SoldItems.Known() && (st.SoldItems == nil || *st.SoldItems != rec.SoldItems.Value) {
		v := rec.SoldItems.Value
		st.SoldItems = &v
		changed = true
	}
	if rec.ReviewScore.Known() && (st.ReviewScore == nil || !st.ReviewScore.Equal(rec.ReviewScore.Value)) {
		v := rec.ReviewScore.Value
		st.ReviewScore = &v
		changed = true
	}
	if changed {
		st.UpdatedAt = at
	}
	next.Stats = st
	return next
}

func (r *Reconciler) begin(cur *seller.Snapshot, at time.Time) *seller.Snapshot {
	next := cur.Clone()
	next.Version++
	next.MergedAt = at
	return next
}

// applyRecord merges one record into the next snapshot. Fields the record
// is missing retain their current values. present marks positive evidence
// from a full refresh and resets the listing's absence bookkeeping.
func (r *Reconciler) applyRecord(next *seller.Snapshot, rec extract.ListingRecord, at time.Time, present bool) {
	cur, exists := next.Listings[rec.ItemID]
	if !exists {
		cur = seller.Listing{
			ItemID:    rec.ItemID,
			Status:    seller.StatusActive,
			FirstSeen: at,
		}
		r.logger.Debug("new listing discovered", zap.String("item_id", rec.ItemID))
	}
	changed := !exists

	if rec.Title.Known() && rec.Title.Value != cur.Title {
		cur.Title = rec.Title.Value
		changed = true
	}
	if rec.Condition.Known() && rec.Condition.Value != cur.Condition {
		cur.Condition = rec.Condition.Value
		changed = true
	}
	if rec.Description.Known() && rec.Description.Value != cur.Description {
		cur.Description = rec.Description.Value
		changed = true
	}
	if rec.Watchers.Known() && (cur.Watchers == nil || *cur.Watchers != rec.Watchers.Value) {
		v := rec.Watchers.Value
		cur.Watchers = &v
		changed = true
	}
	if rec.Carts.Known() && (cur.Carts == nil || *cur.Carts != rec.Carts.Value) {
		v := rec.Carts.Value
		cur.Carts = &v
		changed = true
	}
	if rec.Price.Known() && (cur.Price == nil || !cur.Price.Equal(rec.Price.Value)) {
		v := rec.Price.Value
		cur.Price = &v
		changed = true
	}
	if rec.ShippingPrice.Known() && (cur.ShippingPrice == nil || !cur.ShippingPrice.Equal(rec.ShippingPrice.Value)) {
		v := rec.ShippingPrice.Value
		cur.ShippingPrice = &v
		changed = true
	}

	incomplete := len(rec.Issues) > 0
	if cur.Incomplete != incomplete {
		cur.Incomplete = incomplete
		changed = true
	}
	if incomplete {
		r.logger.Warn("listing merged with parse issues",
			zap.String("item_id", rec.ItemID),
			zap.Strings("issues", rec.Issues),
		)
	}

	if present {
		if exists && cur.Status == seller.StatusEnded {
			r.logger.Info("ended listing reappeared", zap.String("item_id", rec.ItemID))
		}
		if cur.Status != seller.StatusActive {
			cur.Status = seller.StatusActive
			changed = true
		}
		cur.AbsentStreak = 0
	}
	cur.LastSeen = at
	if changed {
		cur.UpdatedAt = at
	}
	next.Listings[rec.ItemID] = cur
}

// markAbsent advances the grace window for listings missing from a complete
// full refresh.
func (r *Reconciler) markAbsent(next *seller.Snapshot, seen map[string]bool, at time.Time) {
	for id, l := range next.Listings {
		if seen[id] || l.Status == seller.StatusEnded {
			continue
		}
		l.AbsentStreak++
		if l.AbsentStreak >= r.grace {
			l.Status = seller.StatusEnded
			r.logger.Info("listing ended",
				zap.String("item_id", id),
				zap.Int("missed_refreshes", l.AbsentStreak),
			)
		} else {
			l.Status = seller.StatusPossiblyEnded
		}
		l.UpdatedAt = at
		next.Listings[id] = l
	}
}
