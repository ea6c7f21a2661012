package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors for a single item page.
const (
	selItemTitle       = "h1.item-title"
	selItemPrice       = ".item__price span.bold"
	selItemShipping    = ".item__shipping span.bold"
	selItemCondition   = ".item__condition"
	selItemDescription = ".item-description"
	selItemWatchers    = ".watch-count"
)

// Item extracts the detail fields for one listing from its item page. The
// returned record always carries the requested item ID so the caller can
// merge it even when every field came back missing.
func (Extractor) Item(body []byte, itemID string) ListingRecord {
	rec := ListingRecord{ItemID: itemID}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		rec.Issues = append(rec.Issues, fmt.Sprintf("parse document: %v", err))
		return rec
	}

	rec.Title = textField(doc.Selection, selItemTitle)
	if !rec.Title.Known() {
		rec.Issues = append(rec.Issues, "title missing")
	}
	rec.Price = parseMoney(doc.Find(selItemPrice).First().Text())
	if !rec.Price.Known() {
		rec.Issues = append(rec.Issues, "price unparseable")
	}
	rec.ShippingPrice = parseMoney(doc.Find(selItemShipping).First().Text())
	rec.Condition = textField(doc.Selection, selItemCondition)
	rec.Watchers = parseCount(doc.Find(selItemWatchers).First().Text())
	rec.Description = descriptionField(doc)
	return rec
}

// descriptionField flattens the description block to whitespace-normalized
// text. Item descriptions are seller-authored HTML, so layout is not
// preserved.
func descriptionField(doc *goquery.Document) Field[string] {
	node := doc.Find(selItemDescription).First()
	if node.Length() == 0 {
		return Missing[string]()
	}
	text := strings.Join(strings.Fields(node.Text()), " ")
	if text == "" {
		return Missing[string]()
	}
	return Present(text)
}
