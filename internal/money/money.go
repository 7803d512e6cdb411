// Package money holds amounts as an integer count of a currency's minor units.
package money

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

type Money struct {
	minor int64
}

func Zero() Money {
	return Money{}
}

func FromMinor(minor int64) Money {
	return Money{minor: minor}
}

func (m Money) Minor() int64 {
	return m.minor
}

func (m Money) Add(other Money) Money {
	return Money{minor: m.minor + other.minor}
}

func (m Money) Sub(other Money) Money {
	return Money{minor: m.minor - other.minor}
}

func (m Money) Mul(n int) Money {
	return Money{minor: m.minor * int64(n)}
}

// Cmp returns -1, 0 or +1.
func (m Money) Cmp(other Money) int {
	switch {
	case m.minor < other.minor:
		return -1
	case m.minor > other.minor:
		return 1
	}
	return 0
}

func (m Money) IsZero() bool {
	return m.minor == 0
}

func (m Money) IsNegative() bool {
	return m.minor < 0
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.minor)
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var minor int64
	if err := json.Unmarshal(data, &minor); err != nil {
		return fmt.Errorf("failed decoding money with error=%w", err)
	}
	m.minor = minor
	return nil
}

func scaleOf(currencyCode string) (currency.Unit, int32, error) {
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return currency.Unit{}, 0, fmt.Errorf("failed parsing currency=%s with error=%w", currencyCode, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return unit, int32(scale), nil
}

// FromDecimal converts a major-unit amount such as "12.99" into minor units. Amounts with more
// fractional digits than the currency allows are rejected.
func FromDecimal(amount decimal.Decimal, currencyCode string) (Money, error) {
	_, scale, err := scaleOf(currencyCode)
	if err != nil {
		return Money{}, err
	}
	shifted := amount.Shift(scale)
	if !shifted.Equal(shifted.Truncate(0)) {
		return Money{}, fmt.Errorf(
			"amount=%s has more than %d fractional digits for currency=%s",
			amount.String(),
			scale,
			currencyCode,
		)
	}
	return Money{minor: shifted.IntPart()}, nil
}

func (m Money) Decimal(currencyCode string) (decimal.Decimal, error) {
	_, scale, err := scaleOf(currencyCode)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.New(m.minor, -scale), nil
}

// Format renders m for display, e.g. Format("en-IN", "INR").
func (m Money) Format(locale string, currencyCode string) (string, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return "", fmt.Errorf("failed parsing locale=%s with error=%w", locale, err)
	}
	unit, scale, err := scaleOf(currencyCode)
	if err != nil {
		return "", err
	}
	amount := decimal.New(m.minor, -scale).InexactFloat64()
	printer := message.NewPrinter(tag)
	return printer.Sprintf(
		"%v %v",
		currency.Symbol(unit),
		number.Decimal(amount, number.Scale(int(scale))),
	), nil
}
