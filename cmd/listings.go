package cmd

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marketglass/marketglass/internal/persist"
	"github.com/marketglass/marketglass/internal/scrape"
	"github.com/marketglass/marketglass/internal/seller"
)

const maxTitleWidth = 48

func newListingsCmd() *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "listings",
		Short: "Print the persisted listings as a table",
		Long: `Reads the flat-file store and prints the seller's listings with their
public URLs. Works offline against whatever the last run persisted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			gw, err := persist.New(cfg.DataDir, zap.NewNop())
			if err != nil {
				return err
			}
			snap, err := gw.Load()
			if err != nil {
				return err
			}
			urls, err := scrape.NewURLs(cfg.BaseURL, cfg.Seller)
			if err != nil {
				return err
			}
			return renderListings(cmd.OutOrStdout(), snap.All(), urls, cfg.TablePageSize, page)
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page of listings to display")
	return cmd
}

func renderListings(w io.Writer, listings []seller.Listing, urls scrape.URLs, pageSize, page int) error {
	if len(listings) == 0 {
		fmt.Fprintln(w, "no listings persisted yet; run a refresh first")
		return nil
	}
	if pageSize <= 0 {
		pageSize = len(listings)
	}
	pages := (len(listings) + pageSize - 1) / pageSize
	if page < 1 || page > pages {
		return fmt.Errorf("page %d out of range, store has %d page(s)", page, pages)
	}
	start := (page - 1) * pageSize
	end := min(start+pageSize, len(listings))

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Item ID", "Title", "Price", "Watchers", "Carts", "URL"})
	for _, l := range listings[start:end] {
		t.AppendRow(table.Row{
			l.ItemID,
			clipTitle(l.Title),
			moneyCol(l.Price),
			countCol(l.Watchers),
			countCol(l.Carts),
			urls.Item(l.ItemID),
		})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("page %d/%d", page, pages),
		fmt.Sprintf("%d listing(s)", len(listings)),
		"", "", "", "",
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}

func clipTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= maxTitleWidth {
		return title
	}
	return string(runes[:maxTitleWidth-1]) + "…"
}

func moneyCol(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return "$" + d.StringFixed(2)
}

func countCol(n *int) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *n)
}
