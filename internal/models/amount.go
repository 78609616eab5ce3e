package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatAmount renders an amount for display: two decimals for magnitudes above one,
// two significant digits otherwise, with trailing zeros removed.
func FormatAmount(amount, currency string) string {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return amount
	}

	var s string
	if d.Abs().GreaterThan(decimal.NewFromInt(1)) {
		s = d.StringFixed(2)
	} else {
		s = twoSignificant(d)
	}

	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}

	if currency == "" {
		return s
	}
	if strings.HasPrefix(s, "-") {
		return "-" + currency + s[1:]
	}
	return currency + s
}

func twoSignificant(d decimal.Decimal) string {
	if d.IsZero() {
		return "0.0"
	}
	// exponent of the leading digit, e.g. 0.0123 -> -2
	lead := int32(len(d.Abs().Truncate(0).String()))
	if d.Abs().LessThan(decimal.NewFromInt(1)) {
		lead = 0
		for a := d.Abs(); a.LessThan(decimal.NewFromInt(1)); a = a.Shift(1) {
			lead--
		}
		lead++
	}
	places := 2 - lead
	if places < 0 {
		places = 0
	}
	return d.Round(places).StringFixed(places)
}

// ValidateAmount accepts positive decimal strings.
func ValidateAmount(amount string) error {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("%w: amount %q is not a decimal", ErrInvalidRequest, amount)
	}
	if !d.IsPositive() {
		return fmt.Errorf("%w: amount %q must be positive", ErrInvalidRequest, amount)
	}
	return nil
}
