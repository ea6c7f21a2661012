package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors for the seller's active-listings page. The card layout carries
// one item per ".active-item" block; the empty marker distinguishes a seller
// with nothing listed from a page whose shape has drifted.
const (
	selListingCard   = "div.active-item"
	selListingsEmpty = ".active-items__empty"

	selCardTitle     = "h3.item-title span"
	selCardItemID    = ".item__itemid span.normal"
	selCardPrice     = ".item__price span.bold"
	selCardShipping  = ".item__shipping span.bold"
	selCardCondition = ".item__condition"
	selCardWatchers  = ".me-item-activity__column--watchers .me-item-activity__column-count"
	selCardCarts     = ".me-item-activity__column--carts .me-item-activity__column-count"

	itemIDPrefix = "Item ID: "
)

// Inventory extracts every listing card from a full inventory page.
//
// The result is marked complete only when the payload can be trusted as the
// seller's entire inventory: the page parsed, every card carried an item ID,
// and an empty page positively showed its empty state. Incomplete results
// still deliver whatever records were recovered.
func (Extractor) Inventory(body []byte) InventoryResult {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return InventoryResult{Issues: []string{fmt.Sprintf("parse document: %v", err)}}
	}

	res := InventoryResult{Complete: true}
	cards := doc.Find(selListingCard)
	if cards.Length() == 0 {
		if doc.Find(selListingsEmpty).Length() == 0 {
			res.Complete = false
			res.Issues = append(res.Issues, "no listing cards and no empty-inventory marker")
		}
		return res
	}

	seen := make(map[string]bool, cards.Length())
	cards.Each(func(i int, card *goquery.Selection) {
		rec, ok := listingFromCard(card)
		if !ok {
			res.Complete = false
			res.Issues = append(res.Issues, fmt.Sprintf("card %d: item id missing", i))
			return
		}
		if seen[rec.ItemID] {
			res.Issues = append(res.Issues, fmt.Sprintf("duplicate card for item %s", rec.ItemID))
			return
		}
		seen[rec.ItemID] = true
		res.Records = append(res.Records, rec)
	})
	return res
}

func listingFromCard(card *goquery.Selection) (ListingRecord, bool) {
	rawID := strings.TrimSpace(card.Find(selCardItemID).First().Text())
	id := strings.TrimSpace(strings.TrimPrefix(rawID, itemIDPrefix))
	if id == "" {
		return ListingRecord{}, false
	}

	rec := ListingRecord{ItemID: id}
	rec.Title = textField(card, selCardTitle)
	if !rec.Title.Known() {
		rec.Issues = append(rec.Issues, "title missing")
	}
	rec.Price = parseMoney(card.Find(selCardPrice).First().Text())
	if !rec.Price.Known() {
		rec.Issues = append(rec.Issues, "price unparseable")
	}
	rec.ShippingPrice = parseMoney(card.Find(selCardShipping).First().Text())
	rec.Condition = textField(card, selCardCondition)
	rec.Watchers = parseCount(card.Find(selCardWatchers).First().Text())
	rec.Carts = parseCount(card.Find(selCardCarts).First().Text())
	return rec, true
}

// textField reads the trimmed text under a selector, missing when empty.
func textField(root *goquery.Selection, selector string) Field[string] {
	t := strings.TrimSpace(root.Find(selector).First().Text())
	if t == "" {
		return Missing[string]()
	}
	return Present(t)
}
