// Package money implements an exact fixed-point monetary amount tagged with an
// ISO 4217 currency code.
//
// Amounts are held as int64 minor units. Every operation that can produce a
// fractional minor unit (Multiply) is computed in exact decimal arithmetic and
// rounded half-to-even (banker's rounding) to the nearest minor unit. No other
// rounding rule is used anywhere in the module.
package money

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// EUR is the settlement currency of orders.
const EUR = "EUR"

var (
	// ErrCurrencyMismatch is returned when two amounts in different currencies
	// are combined.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrInvalidPrice is returned when a price cannot be represented exactly in
	// minor units of its currency.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrInvalidCurrency is returned for codes that are not three upper-case letters.
	ErrInvalidCurrency = errors.New("invalid currency code")
	// ErrOverflow is returned when a result does not fit in int64 minor units.
	ErrOverflow = errors.New("amount out of range")
)

// CurrencyMismatchError carries the two currencies that could not be combined.
// It matches ErrCurrencyMismatch with errors.Is.
type CurrencyMismatchError struct {
	Left  string
	Right string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch: %s vs %s", e.Left, e.Right)
}

func (e *CurrencyMismatchError) Unwrap() error {
	return ErrCurrencyMismatch
}

// Money is an immutable amount in minor units of a currency.
type Money struct {
	amount   int64
	currency string
}

// New returns Money for an amount already expressed in minor units.
func New(amount int64, currency string) Money {
	return Money{amount: amount, currency: currency}
}

// Zero returns the additive identity for currency.
func Zero(currency string) Money {
	return Money{currency: currency}
}

// Amount returns the amount in minor units.
func (m Money) Amount() int64 { return m.amount }

// Currency returns the ISO 4217 code.
func (m Money) Currency() string { return m.currency }

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.amount == 0 }

// Equal compares by (amount, currency).
func (m Money) Equal(other Money) bool {
	return m.amount == other.amount && m.currency == other.currency
}

// Add returns m + other. Both operands must share a currency; a sum outside
// the int64 range fails with ErrOverflow.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, &CurrencyMismatchError{Left: m.currency, Right: other.currency}
	}
	sum := m.amount + other.amount
	if (other.amount > 0 && sum < m.amount) || (other.amount < 0 && sum > m.amount) {
		return Money{}, errors.Wrapf(ErrOverflow, "%d + %d", m.amount, other.amount)
	}
	return Money{amount: sum, currency: m.currency}, nil
}

// MultiplyInt scales the amount by an integer. The result is exact or fails
// with ErrOverflow.
func (m Money) MultiplyInt(n int64) (Money, error) {
	return m.scale(decimal.NewFromInt(n))
}

// Multiply scales the amount by factor and rounds half-to-even to the nearest
// minor unit. A product outside the int64 range fails with ErrOverflow.
func (m Money) Multiply(factor decimal.Decimal) (Money, error) {
	return m.scale(factor)
}

func (m Money) scale(factor decimal.Decimal) (Money, error) {
	product := decimal.NewFromInt(m.amount).Mul(factor).RoundBank(0)
	if product.GreaterThan(maxMinor) || product.LessThan(minMinor) {
		return Money{}, errors.Wrapf(ErrOverflow, "%d * %s", m.amount, factor.String())
	}
	return Money{amount: product.IntPart(), currency: m.currency}, nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.amount, -Exponent(m.currency))
}

// Format renders the amount in major units with exactly as many fractional
// digits as the currency has, e.g. "100.00" for 10000 EUR.
func (m Money) Format() string {
	return m.Decimal().StringFixed(Exponent(m.currency))
}

func (m Money) String() string {
	return m.Format() + " " + m.currency
}

// Parse converts a decimal string in major units ("50.00") into Money.
// It fails with ErrInvalidPrice when the value is not a number, carries more
// fractional digits than the currency allows, or does not fit in int64 minor
// units.
func Parse(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, errors.Wrapf(ErrInvalidPrice, "parse %q", amount)
	}
	return FromDecimal(d, currency)
}

// FromDecimal converts a major-unit decimal into Money.
func FromDecimal(d decimal.Decimal, currency string) (Money, error) {
	exp := Exponent(currency)
	if !d.Equal(d.Truncate(exp)) {
		return Money{}, errors.Wrapf(ErrInvalidPrice, "%s has more than %d decimal places", d.String(), exp)
	}
	minor := d.Shift(exp)
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return Money{}, errors.Wrapf(ErrInvalidPrice, "%s is out of range", d.String())
	}
	return Money{amount: minor.IntPart(), currency: currency}, nil
}

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// ValidCurrency reports whether code looks like an ISO 4217 alphabetic code.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := range len(code) {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

// exponents lists currencies whose minor unit is not 1/100.
var exponents = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0,
	"KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0,
	"XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// Exponent returns the number of fractional digits of the currency's minor unit.
func Exponent(currency string) int32 {
	if e, ok := exponents[currency]; ok {
		return e
	}
	return 2
}
