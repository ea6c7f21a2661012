package extract

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		want    int
		missing bool
	}{
		{name: "bare number", text: "4", want: 4},
		{name: "labeled", text: "4 watchers", want: 4},
		{name: "label first", text: "watchers: 12", want: 12},
		{name: "thousands separator", text: "1,204 items sold", want: 1204},
		{name: "zero", text: "0", want: 0},
		{name: "empty", text: "", missing: true},
		{name: "whitespace", text: "   ", missing: true},
		{name: "no digits", text: "lots of watchers", missing: true},
		{name: "negative", text: "-5", missing: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := parseCount(tc.text)
			if tc.missing {
				require.False(t, got.Known())
				return
			}
			require.True(t, got.Known())
			require.Equal(t, tc.want, got.Value)
		})
	}
}

func TestParseMoney(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		want    string
		origin  Origin
		missing bool
	}{
		{name: "plain", text: "$84.50", want: "84.50", origin: OriginPresent},
		{name: "currency prefix", text: "US $1,299.99", want: "1299.99", origin: OriginPresent},
		{name: "no cents", text: "$15", want: "15", origin: OriginPresent},
		{name: "free shipping", text: "Free shipping", want: "0", origin: OriginDerived},
		{name: "free uppercase", text: "FREE", want: "0", origin: OriginDerived},
		{name: "range takes lower bound", text: "$5.00 to $8.00", want: "5.00", origin: OriginDerived},
		{name: "empty", text: "", missing: true},
		{name: "no amount", text: "Contact seller", missing: true},
		{name: "negative", text: "-5.00", missing: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := parseMoney(tc.text)
			if tc.missing {
				require.False(t, got.Known())
				return
			}
			require.True(t, got.Known())
			require.Equal(t, tc.origin, got.Origin)
			require.True(t, got.Value.Equal(decimal.RequireFromString(tc.want)),
				"want %s, got %s", tc.want, got.Value)
		})
	}
}

func TestParseScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		want    string
		missing bool
	}{
		{name: "percentage", text: "98.7% positive feedback", want: "98.7"},
		{name: "integer", text: "100% positive feedback", want: "100"},
		{name: "empty", text: "", missing: true},
		{name: "no digits", text: "No feedback yet", missing: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := parseScore(tc.text)
			if tc.missing {
				require.False(t, got.Known())
				return
			}
			require.True(t, got.Known())
			require.True(t, got.Value.Equal(decimal.RequireFromString(tc.want)))
		})
	}
}
