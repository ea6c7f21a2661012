package persist

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/marketglass/marketglass/internal/seller"
)

// csvHeader fixes the column order of the listings file. Changing it breaks
// every store on disk, so treat it as a file format version.
var csvHeader = []string{
	"title",
	"watchers",
	"carts",
	"price",
	"shipping_price",
	"condition",
	"description",
	"item_id",
}

func encodeListings(listings []seller.Listing) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, l := range listings {
		if err := w.Write(rowFromListing(l)); err != nil {
			return nil, fmt.Errorf("write row for %s: %w", l.ItemID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *Gateway) loadListings() ([]seller.Listing, error) {
	path := filepath.Join(g.dir, listingsFile)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, structuralErr(path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(csvHeader)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, corruptErr(path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if !slices.Equal(rows[0], csvHeader) {
		return nil, corruptErr(path, fmt.Errorf("unexpected header %v", rows[0]))
	}

	out := make([]seller.Listing, 0, len(rows)-1)
	for i, row := range rows[1:] {
		l, err := listingFromRow(row)
		if err != nil {
			return nil, corruptErr(path, fmt.Errorf("row %d: %w", i+2, err))
		}
		out = append(out, l)
	}
	return out, nil
}

// rowFromListing serializes the persisted fields in header order. Nil
// optional fields become empty cells, never zeros.
func rowFromListing(l seller.Listing) []string {
	return []string{
		l.Title,
		countCell(l.Watchers),
		countCell(l.Carts),
		moneyCell(l.Price),
		moneyCell(l.ShippingPrice),
		l.Condition,
		l.Description,
		l.ItemID,
	}
}

// listingFromRow decodes one row. Loaded listings start a fresh lifecycle:
// the grace window is not persisted, so everything on disk seeds as active.
func listingFromRow(row []string) (seller.Listing, error) {
	l := seller.Listing{Status: seller.StatusActive}
	l.Title = row[0]

	var err error
	if l.Watchers, err = countValue(row[1]); err != nil {
		return l, fmt.Errorf("watchers: %w", err)
	}
	if l.Carts, err = countValue(row[2]); err != nil {
		return l, fmt.Errorf("carts: %w", err)
	}
	if l.Price, err = moneyValue(row[3]); err != nil {
		return l, fmt.Errorf("price: %w", err)
	}
	if l.ShippingPrice, err = moneyValue(row[4]); err != nil {
		return l, fmt.Errorf("shipping price: %w", err)
	}
	l.Condition = row[5]
	l.Description = row[6]
	l.ItemID = strings.TrimSpace(row[7])
	if l.ItemID == "" {
		return l, fmt.Errorf("item id is empty")
	}
	return l, nil
}

func countCell(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func moneyCell(v *decimal.Decimal) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func countValue(cell string) (*int, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(cell)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", cell, err)
	}
	if n < 0 {
		return nil, fmt.Errorf("negative count %d", n)
	}
	return &n, nil
}

func moneyValue(cell string) (*decimal.Decimal, error) {
	return decimalFromString(cell)
}

func decimalFromString(cell string) (*decimal.Decimal, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(cell)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", cell, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %s", d)
	}
	return &d, nil
}
