package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketglass/marketglass/internal/extract"
	"github.com/marketglass/marketglass/internal/seller"
)

func ptr[T any](v T) *T { return &v }

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fullRecord(itemID string) extract.ListingRecord {
	return extract.ListingRecord{
		ItemID:        itemID,
		Title:         extract.Present("Vintage glass pitcher"),
		Watchers:      extract.Present(4),
		Carts:         extract.Present(1),
		Price:         extract.Present(money("129.99")),
		ShippingPrice: extract.Derived(decimal.Zero),
		Condition:     extract.Present("Used"),
	}
}

func snapshotWith(listings ...seller.Listing) *seller.Snapshot {
	snap := seller.EmptySnapshot()
	for _, l := range listings {
		snap.Listings[l.ItemID] = l
	}
	return snap
}

func TestMergeInventoryAddsNewListings(t *testing.T) {
	t.Parallel()

	r := New(Config{GraceRefreshes: 3}, zap.NewNop())
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	cur := seller.EmptySnapshot()
	next := r.MergeInventory(cur, extract.InventoryResult{
		Records:  []extract.ListingRecord{fullRecord("334455"), fullRecord("998877")},
		Complete: true,
	}, at)

	require.Equal(t, uint64(1), next.Version)
	require.Equal(t, at, next.MergedAt)
	require.Len(t, next.Listings, 2)

	l, ok := next.Listing("334455")
	require.True(t, ok)
	require.Equal(t, "Vintage glass pitcher", l.Title)
	require.Equal(t, seller.StatusActive, l.Status)
	require.Equal(t, 4, *l.Watchers)
	require.Equal(t, 1, *l.Carts)
	require.True(t, l.Price.Equal(money("129.99")))
	require.True(t, l.ShippingPrice.Equal(decimal.Zero))
	require.Equal(t, at, l.FirstSeen)
	require.Equal(t, at, l.LastSeen)
	require.Equal(t, at, l.UpdatedAt)

	// The input snapshot stays untouched.
	require.Zero(t, cur.Version)
	require.Empty(t, cur.Listings)
}

func TestMergeInventoryRetainsMissingFields(t *testing.T) {
	t.Parallel()

	r := New(Config{GraceRefreshes: 3}, zap.NewNop())
	seen := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	at := seen.Add(time.Hour)

	cur := snapshotWith(seller.Listing{
		ItemID:    "334455",
		Title:     "Vintage glass pitcher",
		Watchers:  ptr(4),
		Price:     ptr(money("129.99")),
		Status:    seller.StatusActive,
		FirstSeen: seen,
		LastSeen:  seen,
		UpdatedAt: seen,
	})

	// The refresh saw the item but only recovered a new price.
	next := r.MergeInventory(cur, extract.InventoryResult{
		Records: []extract.ListingRecord{{
			ItemID: "334455",
			Price:  extract.Present(money("119.99")),
		}},
		Complete: true,
	}, at)

	l, ok := next.Listing("334455")
	require.True(t, ok)
	require.Equal(t, "Vintage glass pitcher", l.Title, "missing title must not erase the known one")
	require.Equal(t, 4, *l.Watchers)
	require.True(t, l.Price.Equal(money("119.99")))
	require.Equal(t, seen, l.FirstSeen)
	require.Equal(t, at, l.LastSeen)
	require.Equal(t, at, l.UpdatedAt)
}

func TestMergeInventoryUnchangedRecordKeepsUpdatedAt(t *testing.T) {
	t.Parallel()

	r := New(Config{GraceRefreshes: 3}, zap.NewNop())
	seen := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	at := seen.Add(time.Hour)

	cur := snapshotWith(seller.Listing{
		ItemID:    "334455",
		Title:     "Vintage glass pitcher",
		Price:     ptr(money("129.99")),
		Status:    seller.StatusActive,
		FirstSeen: seen,
		LastSeen:  seen,
		UpdatedAt: seen,
	})

	next := r.MergeInventory(cur, extract.InventoryResult{
		Records: []extract.ListingRecord{{
			ItemID: "334455",
			Title:  extract.Present("Vintage glass pitcher"),
			Price:  extract.Present(money("129.99")),
		}},
		Complete: true,
	}, at)

	l, _ := next.Listing("334455")
	require.Equal(t, seen, l.UpdatedAt, "identical values are not a change")
	require.Equal(t, at, l.LastSeen, "sighting is still recorded")
}

func TestMergeInventoryGraceWindow(t *testing.T) {
	t.Parallel()

	r := New(Config{GraceRefreshes: 2}, zap.NewNop())
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	snap := snapshotWith(seller.Listing{ItemID: "334455", Status: seller.StatusActive})
	empty := extract.InventoryResult{Complete: true}

	snap = r.MergeInventory(snap, empty, at)
	l, _ := snap.Listing("334455")
	require.Equal(t, seller.StatusPossiblyEnded, l.Status)
	require.Equal(t, 1, l.AbsentStreak)
	require.False(t, l.Ended())

	snap = r.MergeInventory(snap, empty, at.Add(time.Minute))
	l, _ = snap.Listing("334455")
	require.Equal(t, seller.StatusEnded, l.Status)
	require.Equal(t, 2, l.AbsentStreak)
	require.True(t, l.Ended())
	require.Empty(t, snap.Active())
	require.Len(t, snap.All(), 1, "ended listings stay in the snapshot")

	// Once ended, further absences change nothing.
	snap = r.MergeInventory(snap, empty, at.Add(2*time.Minute))
	l, _ = snap.Listing("334455")
	require.Equal(t, seller.StatusEnded, l.Status)
	require.Equal(t, 2, l.AbsentStreak)
}

func TestMergeInventoryIncompleteSkipsAbsence(t *testing.T) {
	t.Parallel()

	r := New(Config{GraceRefreshes: 2}, zap.NewNop())
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	snap := snapshotWith(seller.Listing{ItemID: "334455", Status: seller.StatusActive})

	// A truncated page must never push a listing toward ended.
	next := r.MergeInventory(snap, extract.InventoryResult{Complete: false}, at)

	l, _ := next.Listing("334455")
	require.Equal(t, seller.StatusActive, l.Status)
	require.Zero(t, l.AbsentStreak)
}

func TestMergeInventoryReappearanceResetsGrace(t *testing.T) {
	t.Parallel()

	r := New(Config{GraceRefreshes: 3}, zap.NewNop())
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	snap := snapshotWith(seller.Listing{
		ItemID:       "334455",
		Title:        "Vintage glass pitcher",
		Status:       seller.StatusPossiblyEnded,
		AbsentStreak: 2,
	})

	next := r.MergeInventory(snap, extract.InventoryResult{
		Records:  []extract.ListingRecord{{ItemID: "334455"}},
		Complete: true,
	}, at)

	l, _ := next.Listing("334455")
	require.Equal(t, seller.StatusActive, l.Status)
	require.Zero(t, l.AbsentStreak)
}

func TestMergeInventoryResurrectsEndedListing(t *testing.T) {
	t.Parallel()

	r := New(Config{GraceRefreshes: 3}, zap.NewNop())
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	snap := snapshotWith(seller.Listing{
		ItemID:       "334455",
		Status:       seller.StatusEnded,
		AbsentStreak: 3,
	})

	next := r.MergeInventory(snap, extract.InventoryResult{
		Records:  []extract.ListingRecord{fullRecord("334455")},
		Complete: true,
	}, at)

	l, _ := next.Listing("334455")
	require.Equal(t, seller.StatusActive, l.Status)
	require.Zero(t, l.AbsentStreak)
	require.Contains(t, next.Active(), l)
}

func TestMergeInventoryTracksParseIssues(t *testing.T) {
	t.Parallel()

	r := New(Config{GraceRefreshes: 3}, zap.NewNop())
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	snap := seller.EmptySnapshot()
	next := r.MergeInventory(snap, extract.InventoryResult{
		Records: []extract.ListingRecord{{
			ItemID: "334455",
			Title:  extract.Present("Vintage glass pitcher"),
			Issues: []string{"price: unparseable"},
		}},
		Complete: true,
	}, at)

	l, _ := next.Listing("334455")
	require.True(t, l.Incomplete)

	// A later clean merge clears the flag.
	next = r.MergeInventory(next, extract.InventoryResult{
		Records:  []extract.ListingRecord{fullRecord("334455")},
		Complete: true,
	}, at.Add(time.Minute))

	l, _ = next.Listing("334455")
	require.False(t, l.Incomplete)
}

func TestMergeItemLeavesLifecycleAlone(t *testing.T) {
	t.Parallel()

	r := New(Config{GraceRefreshes: 3}, zap.NewNop())
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	snap := snapshotWith(seller.Listing{
		ItemID:       "334455",
		Title:        "Vintage glass pitcher",
		Status:       seller.StatusPossiblyEnded,
		AbsentStreak: 1,
	})

	next := r.MergeItem(snap, extract.ListingRecord{
		ItemID:      "334455",
		Description: extract.Present("Hand blown, circa 1950."),
		Watchers:    extract.Present(9),
	}, at)

	l, _ := next.Listing("334455")
	require.Equal(t, "Hand blown, circa 1950.", l.Description)
	require.Equal(t, 9, *l.Watchers)
	// An item page can render for an ending listing, so the grace window
	// must not move.
	require.Equal(t, seller.StatusPossiblyEnded, l.Status)
	require.Equal(t, 1, l.AbsentStreak)
}

func TestMergeStatsRetainsUnknownFields(t *testing.T) {
	t.Parallel()

	r := New(Config{}, zap.NewNop())
	seen := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	at := seen.Add(time.Hour)

	cur := seller.EmptySnapshot()
	cur.Stats = seller.Stats{
		Followers:   ptr(47),
		SoldItems:   ptr(1204),
		ReviewScore: ptr(money("98.7")),
		UpdatedAt:   seen,
	}

	next := r.MergeStats(cur, extract.StatsRecord{
		Followers: extract.Present(48),
	}, at)

	require.Equal(t, 48, *next.Stats.Followers)
	require.Equal(t, 1204, *next.Stats.SoldItems)
	require.True(t, next.Stats.ReviewScore.Equal(money("98.7")))
	require.Equal(t, at, next.Stats.UpdatedAt)

	// Nothing known, nothing changed.
	again := r.MergeStats(next, extract.StatsRecord{}, at.Add(time.Hour))
	require.Equal(t, next.Stats.Followers, again.Stats.Followers)
	require.Equal(t, at, again.Stats.UpdatedAt)
}

func TestMergeNeverMutatesCurrentSnapshot(t *testing.T) {
	t.Parallel()

	r := New(Config{GraceRefreshes: 3}, zap.NewNop())
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	cur := snapshotWith(seller.Listing{
		ItemID: "334455",
		Title:  "Vintage glass pitcher",
		Price:  ptr(money("129.99")),
		Status: seller.StatusActive,
	})
	cur.Version = 7
	cur.Stats = seller.Stats{Followers: ptr(47)}

	r.MergeInventory(cur, extract.InventoryResult{
		Records:  []extract.ListingRecord{{ItemID: "334455", Price: extract.Present(money("1.00"))}},
		Complete: true,
	}, at)
	r.MergeItem(cur, extract.ListingRecord{ItemID: "334455", Title: extract.Present("renamed")}, at)
	r.MergeStats(cur, extract.StatsRecord{Followers: extract.Present(99)}, at)

	require.Equal(t, uint64(7), cur.Version)
	l, _ := cur.Listing("334455")
	require.Equal(t, "Vintage glass pitcher", l.Title)
	require.True(t, l.Price.Equal(money("129.99")))
	require.Equal(t, 47, *cur.Stats.Followers)
}

func TestEveryMergeAdvancesVersion(t *testing.T) {
	t.Parallel()

	r := New(Config{}, zap.NewNop())
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	snap := seller.EmptySnapshot()
	snap = r.MergeInventory(snap, extract.InventoryResult{Complete: true}, at)
	require.Equal(t, uint64(1), snap.Version)
	snap = r.MergeItem(snap, extract.ListingRecord{ItemID: "334455"}, at)
	require.Equal(t, uint64(2), snap.Version)
	snap = r.MergeStats(snap, extract.StatsRecord{}, at)
	require.Equal(t, uint64(3), snap.Version)
}

func TestNewDefaultsGraceWindow(t *testing.T) {
	t.Parallel()

	r := New(Config{}, nil)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	snap := snapshotWith(seller.Listing{ItemID: "334455", Status: seller.StatusActive})
	empty := extract.InventoryResult{Complete: true}

	for i := 0; i < 2; i++ {
		snap = r.MergeInventory(snap, empty, at.Add(time.Duration(i)*time.Minute))
		l, _ := snap.Listing("334455")
		require.Equal(t, seller.StatusPossiblyEnded, l.Status)
	}
	snap = r.MergeInventory(snap, empty, at.Add(3*time.Minute))
	l, _ := snap.Listing("334455")
	require.Equal(t, seller.StatusEnded, l.Status)
}
