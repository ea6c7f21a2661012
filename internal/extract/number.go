package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	countPattern = regexp.MustCompile(`\d[\d,]*`)
	moneyPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
)

// parseCount extracts a non-negative integer from free-form text such as
// "1,234 watchers". Anything else, including negative numbers, comes back
// missing rather than zero.
func parseCount(text string) Field[int] {
	t := strings.TrimSpace(text)
	if t == "" || negativeNumber(t) {
		return Missing[int]()
	}
	m := countPattern.FindString(t)
	if m == "" {
		return Missing[int]()
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return Missing[int]()
	}
	return Present(n)
}

// parseMoney extracts an amount from price text such as "US $1,299.99".
// Free shipping labels yield a derived zero. Ranged prices ("$5.00 to
// $8.00") yield the lower bound, marked derived.
func parseMoney(text string) Field[decimal.Decimal] {
	t := strings.TrimSpace(text)
	if t == "" {
		return Missing[decimal.Decimal]()
	}
	if strings.Contains(strings.ToLower(t), "free") {
		return Derived(decimal.Zero)
	}
	if negativeNumber(t) {
		return Missing[decimal.Decimal]()
	}
	matches := moneyPattern.FindAllString(t, 2)
	if len(matches) == 0 {
		return Missing[decimal.Decimal]()
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(matches[0], ",", ""))
	if err != nil || d.IsNegative() {
		return Missing[decimal.Decimal]()
	}
	if len(matches) > 1 {
		return Derived(d)
	}
	return Present(d)
}

// parseScore extracts a decimal rating from text such as "99.8% positive
// feedback".
func parseScore(text string) Field[decimal.Decimal] {
	t := strings.TrimSpace(text)
	if t == "" || negativeNumber(t) {
		return Missing[decimal.Decimal]()
	}
	m := moneyPattern.FindString(t)
	if m == "" {
		return Missing[decimal.Decimal]()
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m, ",", ""))
	if err != nil || d.IsNegative() {
		return Missing[decimal.Decimal]()
	}
	return Present(d)
}

// negativeNumber reports whether the first digit in the text is preceded by
// a minus sign.
func negativeNumber(t string) bool {
	i := strings.IndexAny(t, "0123456789")
	return i > 0 && t[i-1] == '-'
}
