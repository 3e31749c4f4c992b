package economy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// MoneyPlaces is the number of fractional digits kept on money results.
	MoneyPlaces = int32(12)

	powPlaces = int32(24)
	lnPlaces  = int32(32)
)

var (
	Zero = decimal.Zero
	One  = decimal.NewFromInt(1)
)

// PowInt raises base to a non-negative integer power. Intermediate products are
// rounded to powPlaces so the digit count stays bounded for large exponents.
func PowInt(base decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 {
		return One
	}
	result := One
	b := base
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(b).Round(powPlaces)
		}
		n >>= 1
		if n > 0 {
			b = b.Mul(b).Round(powPlaces)
		}
	}
	return result
}

// PowFrac computes x^alpha for x > 0 as exp(alpha * ln x).
func PowFrac(x decimal.Decimal, alpha decimal.Decimal) (decimal.Decimal, error) {
	if !x.IsPositive() {
		return Zero, fmt.Errorf("pow of non-positive base %s", x)
	}
	if alpha.IsZero() {
		return One, nil
	}
	if alpha.Equal(One) {
		return x, nil
	}
	ln, err := x.Ln(lnPlaces)
	if err != nil {
		return Zero, fmt.Errorf("ln %s: %w", x, err)
	}
	out, err := ln.Mul(alpha).ExpTaylor(lnPlaces)
	if err != nil {
		return Zero, fmt.Errorf("exp %s: %w", ln.Mul(alpha), err)
	}
	return out, nil
}

func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// MustDecimal parses s and panics on malformed input. Only for literals.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("invalid decimal literal %q: %v", s, err))
	}
	return d
}
