package extract

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// selStatsContent anchors the seller-card statistics block. Its first three
// child columns are, in order, review score, sold items, and followers.
const selStatsContent = ".str-seller-card__store-stats-content"

// Stats extracts the store statistics from a seller profile page.
func (Extractor) Stats(body []byte) StatsRecord {
	var rec StatsRecord
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		rec.Issues = append(rec.Issues, fmt.Sprintf("parse document: %v", err))
		return rec
	}

	cols := doc.Find(selStatsContent).First().Children()
	if cols.Length() == 0 {
		rec.Issues = append(rec.Issues, "store stats block missing")
		return rec
	}

	rec.ReviewScore = parseScore(cols.Eq(0).Text())
	if !rec.ReviewScore.Known() {
		rec.Issues = append(rec.Issues, "review score unparseable")
	}
	rec.SoldItems = parseCount(cols.Eq(1).Text())
	if !rec.SoldItems.Known() {
		rec.Issues = append(rec.Issues, "sold items unparseable")
	}
	rec.Followers = parseCount(cols.Eq(2).Text())
	if !rec.Followers.Known() {
		rec.Issues = append(rec.Issues, "followers unparseable")
	}
	return rec
}
