// Package persist is the flat-file gateway between snapshots and disk.
// Listings live in a CSV, store statistics in a YAML file, both under one
// data directory.
package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/marketglass/marketglass/internal/hash/sha256"
	"github.com/marketglass/marketglass/internal/seller"
)

const (
	listingsFile = "listings.csv"
	statsFile    = "stats.yaml"
)

// ErrorKind classifies gateway failures.
type ErrorKind string

const (
	// KindCorrupt means a store file exists but cannot be decoded. The
	// caller decides whether to recreate the store.
	KindCorrupt ErrorKind = "corrupt"
	// KindStructural means the store layout itself is unusable, such as a
	// missing or unwritable data directory.
	KindStructural ErrorKind = "structural"
)

// Error is a typed gateway failure.
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s store error at %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCorrupt reports whether err is a corrupt-store error.
func IsCorrupt(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindCorrupt
}

// IsStructural reports whether err is a structural store error.
func IsStructural(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindStructural
}

func corruptErr(path string, err error) *Error {
	return &Error{Kind: KindCorrupt, Path: path, Err: err}
}

func structuralErr(path string, err error) *Error {
	return &Error{Kind: KindStructural, Path: path, Err: err}
}

// Gateway reads and writes the store files. Writes are atomic and skipped
// when the serialized content has not changed since the last save.
type Gateway struct {
	dir    string
	hasher *sha256.Hasher
	logger *zap.Logger

	mu         sync.Mutex
	lastDigest string
}

// New validates the data directory and returns a gateway for it. The
// directory is created when missing; an existing path that is not a usable
// directory is a structural error.
func New(dir string, logger *zap.Logger) (*Gateway, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, structuralErr(dir, fmt.Errorf("data directory is required"))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, structuralErr(dir, fmt.Errorf("stat data directory: %w", err))
		}
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, structuralErr(dir, fmt.Errorf("create data directory: %w", mkErr))
		}
	} else if !info.IsDir() {
		return nil, structuralErr(dir, fmt.Errorf("data directory path is not a directory"))
	}

	// Check for write permissions.
	testFile := filepath.Join(dir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, structuralErr(dir, fmt.Errorf("data directory is not writable: %w", err))
	}
	if err := os.Remove(testFile); err != nil {
		return nil, structuralErr(dir, fmt.Errorf("clean up write probe: %w", err))
	}

	return &Gateway{dir: dir, hasher: sha256.New(), logger: logger}, nil
}

// Dir returns the data directory the gateway operates on.
func (g *Gateway) Dir() string {
	return g.dir
}

// Load reads both store files into a seed snapshot at version zero. Missing
// files mean a cold start and load as empty; files that exist but cannot be
// decoded surface as corrupt errors with no partial data.
func (g *Gateway) Load() (*seller.Snapshot, error) {
	snap := seller.EmptySnapshot()

	listings, err := g.loadListings()
	if err != nil {
		return nil, err
	}
	for _, l := range listings {
		snap.Listings[l.ItemID] = l
	}

	stats, err := g.loadStats()
	if err != nil {
		return nil, err
	}
	snap.Stats = stats
	return snap, nil
}

// Save atomically rewrites both store files. Listing rows already on disk
// are merged with the snapshot keyed by item id: snapshot rows win, rows
// for items the snapshot never saw are kept, and rows for listings the
// engine watched end are dropped so they do not resurrect on the next
// start. A save whose serialized content matches the previous one is
// skipped.
func (g *Gateway) Save(snap *seller.Snapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	merged := g.mergedListings(snap)
	listings, err := encodeListings(merged)
	if err != nil {
		return structuralErr(filepath.Join(g.dir, listingsFile), err)
	}
	stats, err := encodeStats(snap.Stats)
	if err != nil {
		return structuralErr(filepath.Join(g.dir, statsFile), err)
	}

	digest, err := g.hasher.Hash(append(append([]byte{}, listings...), stats...))
	if err == nil && digest == g.lastDigest {
		g.logger.Debug("store unchanged, skipping save", zap.Uint64("version", snap.Version))
		return nil
	}

	if err := g.writeFile(listingsFile, listings); err != nil {
		return err
	}
	if err := g.writeFile(statsFile, stats); err != nil {
		return err
	}
	g.lastDigest = digest
	g.logger.Debug("store saved",
		zap.Uint64("version", snap.Version),
		zap.Int("listings", len(merged)),
	)
	return nil
}

// mergedListings overlays the snapshot onto whatever listing rows are on
// disk, sorted by item id. A listings file that cannot be read merges as
// empty: it is about to be replaced, so stale bytes must not block the
// save.
func (g *Gateway) mergedListings(snap *seller.Snapshot) []seller.Listing {
	existing, err := g.loadListings()
	if err != nil {
		g.logger.Warn("existing listings unreadable, overwriting", zap.Error(err))
		existing = nil
	}

	byID := make(map[string]seller.Listing, len(existing)+len(snap.Listings))
	for _, l := range existing {
		byID[l.ItemID] = l
	}
	for id, l := range snap.Listings {
		if l.Ended() {
			delete(byID, id)
			continue
		}
		byID[id] = l
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]seller.Listing, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out
}

// Recreate rewrites both store files as empty defaults, abandoning whatever
// is on disk. It is the recovery path after corruption.
func (g *Gateway) Recreate() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastDigest = ""

	listings, err := encodeListings(nil)
	if err != nil {
		return structuralErr(filepath.Join(g.dir, listingsFile), err)
	}
	stats, err := encodeStats(seller.Stats{})
	if err != nil {
		return structuralErr(filepath.Join(g.dir, statsFile), err)
	}
	if err := g.writeFile(listingsFile, listings); err != nil {
		return err
	}
	if err := g.writeFile(statsFile, stats); err != nil {
		return err
	}
	g.logger.Warn("store recreated with defaults", zap.String("dir", g.dir))
	return nil
}

func (g *Gateway) writeFile(name string, data []byte) error {
	path := filepath.Join(g.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return structuralErr(path, fmt.Errorf("write temp file: %w", err))
	}
	if err := os.Rename(tmp, path); err != nil {
		return structuralErr(path, fmt.Errorf("replace file: %w", err))
	}
	return nil
}

// statsDoc is the YAML shape of the stats file. The review score travels as
// a string so decimal values round-trip exactly.
type statsDoc struct {
	Followers   *int    `yaml:"followers,omitempty"`
	SoldItems   *int    `yaml:"sold_items,omitempty"`
	ReviewScore *string `yaml:"review_score,omitempty"`
}

func encodeStats(st seller.Stats) ([]byte, error) {
	doc := statsDoc{Followers: st.Followers, SoldItems: st.SoldItems}
	if st.ReviewScore != nil {
		s := st.ReviewScore.String()
		doc.ReviewScore = &s
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal stats: %w", err)
	}
	return out, nil
}

func (g *Gateway) loadStats() (seller.Stats, error) {
	path := filepath.Join(g.dir, statsFile)
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return seller.Stats{}, nil
	}
	if err != nil {
		return seller.Stats{}, structuralErr(path, err)
	}

	var doc statsDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return seller.Stats{}, corruptErr(path, err)
	}
	if doc.Followers != nil && *doc.Followers < 0 {
		return seller.Stats{}, corruptErr(path, fmt.Errorf("negative followers %d", *doc.Followers))
	}
	if doc.SoldItems != nil && *doc.SoldItems < 0 {
		return seller.Stats{}, corruptErr(path, fmt.Errorf("negative sold items %d", *doc.SoldItems))
	}

	st := seller.Stats{Followers: doc.Followers, SoldItems: doc.SoldItems}
	if doc.ReviewScore != nil {
		d, err := decimalFromString(*doc.ReviewScore)
		if err != nil {
			return seller.Stats{}, corruptErr(path, fmt.Errorf("review score: %w", err))
		}
		st.ReviewScore = d
	}
	return st, nil
}
