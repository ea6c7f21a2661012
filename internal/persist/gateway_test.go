package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketglass/marketglass/internal/seller"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	gw, err := New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return gw
}

func ptr[T any](v T) *T { return &v }

func money(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func storeSnapshot(listings ...seller.Listing) *seller.Snapshot {
	snap := seller.EmptySnapshot()
	snap.Version = 1
	for _, l := range listings {
		snap.Listings[l.ItemID] = l
	}
	return snap
}

func TestNewCreatesDataDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "data")
	gw, err := New(dir, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, dir, gw.Dir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestNewRejectsUnusablePaths(t *testing.T) {
	t.Parallel()

	_, err := New("", zap.NewNop())
	require.True(t, IsStructural(err))

	file := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = New(file, zap.NewNop())
	require.True(t, IsStructural(err))
	require.ErrorContains(t, err, "not a directory")
}

func TestGatewayRoundTrip(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)

	full := seller.Listing{
		ItemID:        "334455",
		Title:         "Vintage glass pitcher",
		Watchers:      ptr(4),
		Carts:         ptr(1),
		Price:         money("129.99"),
		ShippingPrice: money("0"),
		Condition:     "Used",
		Description:   "Hand blown, circa 1950.",
		Status:        seller.StatusActive,
	}
	sparse := seller.Listing{ItemID: "998877", Title: "Art deco vase", Status: seller.StatusActive}

	snap := storeSnapshot(full, sparse)
	snap.Stats = seller.Stats{
		Followers:   ptr(47),
		SoldItems:   ptr(1204),
		ReviewScore: money("98.7"),
	}
	require.NoError(t, gw.Save(snap))

	loaded, err := gw.Load()
	require.NoError(t, err)
	require.Zero(t, loaded.Version, "loads seed at version zero")
	require.Len(t, loaded.Listings, 2)

	got := loaded.Listings["334455"]
	require.Equal(t, "Vintage glass pitcher", got.Title)
	require.Equal(t, 4, *got.Watchers)
	require.Equal(t, 1, *got.Carts)
	require.True(t, got.Price.Equal(decimal.RequireFromString("129.99")))
	require.True(t, got.ShippingPrice.IsZero())
	require.Equal(t, "Used", got.Condition)
	require.Equal(t, "Hand blown, circa 1950.", got.Description)
	require.Equal(t, seller.StatusActive, got.Status)

	// Unknown fields come back nil, never zero.
	vase := loaded.Listings["998877"]
	require.Nil(t, vase.Watchers)
	require.Nil(t, vase.Price)

	require.Equal(t, 47, *loaded.Stats.Followers)
	require.Equal(t, 1204, *loaded.Stats.SoldItems)
	require.True(t, loaded.Stats.ReviewScore.Equal(decimal.RequireFromString("98.7")))
}

func TestLoadColdStart(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)
	snap, err := gw.Load()
	require.NoError(t, err)
	require.Empty(t, snap.Listings)
	require.Nil(t, snap.Stats.Followers)
}

func TestLoadCorruptCSV(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)
	bad := "title,watchers\n\"unterminated\n"
	require.NoError(t, os.WriteFile(filepath.Join(gw.Dir(), "listings.csv"), []byte(bad), 0o600))

	_, err := gw.Load()
	require.True(t, IsCorrupt(err))
	require.False(t, IsStructural(err))
}

func TestLoadRejectsUnknownHeader(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)
	bad := "a,b,c,d,e,f,g,h\n"
	require.NoError(t, os.WriteFile(filepath.Join(gw.Dir(), "listings.csv"), []byte(bad), 0o600))

	_, err := gw.Load()
	require.True(t, IsCorrupt(err))
	require.ErrorContains(t, err, "unexpected header")
}

func TestLoadRejectsBadCells(t *testing.T) {
	t.Parallel()

	header := "title,watchers,carts,price,shipping_price,condition,description,item_id\n"

	tests := []struct {
		name string
		row  string
		want string
	}{
		{name: "unparseable watchers", row: "Vase,many,,,,,,998877\n", want: "watchers"},
		{name: "negative price", row: "Vase,,,-5.00,,,,998877\n", want: "price"},
		{name: "missing item id", row: "Vase,,,,,,,\n", want: "item id is empty"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gw := newTestGateway(t)
			require.NoError(t, os.WriteFile(filepath.Join(gw.Dir(), "listings.csv"), []byte(header+tc.row), 0o600))

			_, err := gw.Load()
			require.True(t, IsCorrupt(err))
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLoadCorruptStats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{name: "not yaml", yaml: "{{{{"},
		{name: "negative followers", yaml: "followers: -3\n"},
		{name: "bad review score", yaml: "review_score: \"very good\"\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gw := newTestGateway(t)
			require.NoError(t, os.WriteFile(filepath.Join(gw.Dir(), "stats.yaml"), []byte(tc.yaml), 0o600))

			_, err := gw.Load()
			require.True(t, IsCorrupt(err))
		})
	}
}

func TestRecreateResetsStore(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)
	require.NoError(t, os.WriteFile(filepath.Join(gw.Dir(), "listings.csv"), []byte("garbage\n\"x\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(gw.Dir(), "stats.yaml"), []byte("{{{{"), 0o600))

	_, err := gw.Load()
	require.True(t, IsCorrupt(err))

	require.NoError(t, gw.Recreate())

	snap, err := gw.Load()
	require.NoError(t, err)
	require.Empty(t, snap.Listings)
	require.Nil(t, snap.Stats.Followers)
}

func TestSaveDropsEndedListings(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)

	active := seller.Listing{ItemID: "112233", Title: "Stained glass panel", Status: seller.StatusActive}
	doomed := seller.Listing{ItemID: "334455", Title: "Vintage glass pitcher", Status: seller.StatusActive}
	require.NoError(t, gw.Save(storeSnapshot(active, doomed)))

	doomed.Status = seller.StatusEnded
	next := storeSnapshot(active, doomed)
	next.Version = 2
	require.NoError(t, gw.Save(next))

	loaded, err := gw.Load()
	require.NoError(t, err)
	require.Len(t, loaded.Listings, 1)
	_, ok := loaded.Listings["334455"]
	require.False(t, ok, "ended listings must not resurrect on the next start")
}

func TestSaveKeepsRowsTheSnapshotNeverSaw(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)

	known := seller.Listing{ItemID: "112233", Title: "Stained glass panel", Status: seller.StatusActive}
	other := seller.Listing{ItemID: "998877", Title: "Art deco vase", Status: seller.StatusActive}
	require.NoError(t, gw.Save(storeSnapshot(known, other)))

	// A later engine run that never fetched 998877 must not erase it.
	next := storeSnapshot(known)
	next.Version = 2
	require.NoError(t, gw.Save(next))

	loaded, err := gw.Load()
	require.NoError(t, err)
	require.Len(t, loaded.Listings, 2)
}

func TestSaveSkipsUnchangedContent(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)
	snap := storeSnapshot(seller.Listing{ItemID: "334455", Title: "Vintage glass pitcher", Status: seller.StatusActive})
	require.NoError(t, gw.Save(snap))

	// Remove the file behind the gateway's back; an unchanged save is
	// skipped before any write, so the file must stay gone.
	path := filepath.Join(gw.Dir(), "listings.csv")
	require.NoError(t, os.Remove(path))
	require.NoError(t, gw.Save(snap))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	// Changed content writes again.
	changed := storeSnapshot(seller.Listing{ItemID: "334455", Title: "Renamed pitcher", Status: seller.StatusActive})
	changed.Version = 2
	require.NoError(t, gw.Save(changed))
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestSaveWritesReadableStatsYAML(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)
	snap := storeSnapshot()
	snap.Stats = seller.Stats{Followers: ptr(47), ReviewScore: money("98.7")}
	require.NoError(t, gw.Save(snap))

	raw, err := os.ReadFile(filepath.Join(gw.Dir(), "stats.yaml"))
	require.NoError(t, err)
	require.Contains(t, string(raw), "followers: 47")
	require.Contains(t, string(raw), `review_score: "98.7"`)
}
