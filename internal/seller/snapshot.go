package seller

import (
	"sort"
	"time"
)

// Snapshot is one immutable, versioned view of the seller's inventory plus
// store statistics. Only the reconciler produces new snapshots; everyone else
// must treat a snapshot, including its Listings map, as read-only.
type Snapshot struct {
	Version  uint64
	MergedAt time.Time
	Listings map[string]Listing
	Stats    Stats
}

// EmptySnapshot returns the version-zero snapshot cold starts begin from.
func EmptySnapshot() *Snapshot {
	return &Snapshot{Listings: make(map[string]Listing)}
}

// Listing returns the listing with the given item ID, if present.
func (s *Snapshot) Listing(itemID string) (Listing, bool) {
	l, ok := s.Listings[itemID]
	return l, ok
}

// Active returns the listings that are not past their grace window, sorted
// by item ID for stable iteration.
func (s *Snapshot) Active() []Listing {
	out := make([]Listing, 0, len(s.Listings))
	for _, l := range s.Listings {
		if l.Ended() {
			continue
		}
		out = append(out, l)
	}
	sortListings(out)
	return out
}

// All returns every listing, ended ones included, sorted by item ID.
func (s *Snapshot) All() []Listing {
	out := make([]Listing, 0, len(s.Listings))
	for _, l := range s.Listings {
		out = append(out, l)
	}
	sortListings(out)
	return out
}

// Clone returns a copy of the snapshot with its own Listings map, suitable
// for building the next version without touching the current one.
func (s *Snapshot) Clone() *Snapshot {
	next := &Snapshot{
		Version:  s.Version,
		MergedAt: s.MergedAt,
		Listings: make(map[string]Listing, len(s.Listings)),
		Stats:    s.Stats,
	}
	for id, l := range s.Listings {
		next.Listings[id] = l
	}
	return next
}

func sortListings(ls []Listing) {
	sort.Slice(ls, func(i, j int) bool { return ls[i].ItemID < ls[j].ItemID })
}
