package economy

import (
	"strconv"

	"github.com/shopspring/decimal"
)

var suffixes = []string{"", "K", "M", "B", "T", "aa", "ab", "ac", "ad", "ae", "af", "ag", "ah", "ai", "aj"}

var thousand = decimal.NewFromInt(1000)

// Format renders large amounts with short suffixes (1.50K, 2.25M, ...) and
// falls back to scientific notation past the suffix table. Digits past places
// are truncated, never rounded up.
func Format(d decimal.Decimal, places int32) string {
	a := d.Abs()
	if a.LessThan(thousand) {
		return d.StringFixed(places)
	}
	digits := len(a.Truncate(0).String())
	group := (digits - 1) / 3
	var s string
	if group >= len(suffixes) {
		exp := digits - 1
		s = a.Shift(int32(-exp)).Truncate(places).StringFixed(places) + "e" + strconv.Itoa(exp)
	} else {
		s = a.Shift(int32(-3*group)).Truncate(places).StringFixed(places) + suffixes[group]
	}
	if d.IsNegative() {
		return "-" + s
	}
	return s
}
