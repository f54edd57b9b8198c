// Package money provides exact fixed-point arithmetic for monetary and
// quantity values. All values enter the pipeline as strings and are parsed
// strictly: anything that would lose precision is rejected rather than
// rounded. Binary floating point is never used for comparison.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrParse is returned when an input string is not an exact fixed-point
// value within the supported precision. Callers surface it as PARSE_ERROR.
var ErrParse = errors.New("money: parse error")

const (
	// MaxIntegerDigits is the largest supported magnitude (10^15 - 1).
	MaxIntegerDigits = 15
	// MoneyScale is the fractional precision of monetary amounts.
	MoneyScale = 2
	// QuantityScale is the fractional precision of quantities.
	QuantityScale = 6
	// divScale is the quotient precision of Div.
	divScale = 6
)

// Tolerances used across the pipeline. Money comparisons allow a one-cent
// absolute slack; unit-price deviation is relative (0.1%); quantities must
// match exactly.
var (
	MoneyTolerance    = MustParse("0.01")
	PriceRelTolerance = decimal.NewFromFloat(0.001)
	QuantityTolerance = Zero()
)

// Value is an exact fixed-point number. The zero Value is usable and equal
// to 0.
type Value struct {
	d decimal.Decimal
}

// Zero returns the zero value.
func Zero() Value { return Value{} }

// Parse converts a string into a Value with at most maxScale fractional
// digits. It fails with ErrParse on empty input, malformed numbers, more
// than MaxIntegerDigits integer digits, or more fractional digits than
// maxScale (precision would be lost).
func Parse(s string, maxScale int) (Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}, fmt.Errorf("%w: empty value", ErrParse)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q", ErrParse, s)
	}
	if int(-d.Exponent()) > maxScale {
		return Value{}, fmt.Errorf("%w: %q exceeds %d fractional digits", ErrParse, s, maxScale)
	}
	if len(d.Abs().Truncate(0).String()) > MaxIntegerDigits {
		return Value{}, fmt.Errorf("%w: %q exceeds %d integer digits", ErrParse, s, MaxIntegerDigits)
	}
	return Value{d: d}, nil
}

// ParseMoney parses a two-place monetary amount.
func ParseMoney(s string) (Value, error) { return Parse(s, MoneyScale) }

// ParseQuantity parses a quantity with up to six fractional digits.
func ParseQuantity(s string) (Value, error) { return Parse(s, QuantityScale) }

// MustParse parses a quantity-scale literal and panics on failure.
// For package-level constants and tests only.
func MustParse(s string) Value {
	v, err := Parse(s, QuantityScale)
	if err != nil {
		panic(err)
	}
	return v
}

// Add returns a + b exactly.
func (v Value) Add(o Value) Value { return Value{d: v.d.Add(o.d)} }

// Sub returns a - b exactly.
func (v Value) Sub(o Value) Value { return Value{d: v.d.Sub(o.d)} }

// Mul returns a × b exactly.
func (v Value) Mul(o Value) Value { return Value{d: v.d.Mul(o.d)} }

// Div returns a ÷ b truncated to six fractional digits with banker's
// rounding. Division by zero returns zero and false.
func (v Value) Div(o Value) (Value, bool) {
	if o.d.IsZero() {
		return Value{}, false
	}
	// Compute two guard digits past the target scale, then round half-even.
	q := v.d.DivRound(o.d, divScale+2)
	return Value{d: q.RoundBank(divScale)}, true
}

// Abs returns |v|.
func (v Value) Abs() Value { return Value{d: v.d.Abs()} }

// Neg returns -v.
func (v Value) Neg() Value { return Value{d: v.d.Neg()} }

// IsZero reports whether v == 0.
func (v Value) IsZero() bool { return v.d.IsZero() }

// Sign returns -1, 0 or 1.
func (v Value) Sign() int { return v.d.Sign() }

// Cmp compares v and o: -1 if v < o, 0 if equal, 1 if v > o.
func (v Value) Cmp(o Value) int { return v.d.Cmp(o.d) }

// Equal reports exact equality.
func (v Value) Equal(o Value) bool { return v.d.Equal(o.d) }

// EqualsWithin reports whether |a - b| <= absTol.
func (v Value) EqualsWithin(o, absTol Value) bool {
	return v.d.Sub(o.d).Abs().Cmp(absTol.d) <= 0
}

// WithinRelative reports whether |a - b| / |a| <= relTol. A zero base with a
// non-zero counterpart is never within tolerance.
func (v Value) WithinRelative(o Value, relTol decimal.Decimal) bool {
	if v.d.IsZero() {
		return o.d.IsZero()
	}
	ratio := v.d.Sub(o.d).Abs().DivRound(v.d.Abs(), divScale+2)
	return ratio.Cmp(relTol) <= 0
}

// StringFixed renders the value with exactly two fractional digits.
func (v Value) StringFixed() string { return v.d.StringFixed(MoneyScale) }

// String renders the value with its natural scale.
func (v Value) String() string { return v.d.String() }

// MarshalJSON renders the value as a string so no precision is lost in
// persisted records.
func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.d.String() + `"`), nil
}

// UnmarshalJSON accepts both string and bare-number forms.
func (v *Value) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*v = Value{}
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrParse, s)
	}
	v.d = d
	return nil
}

// Float64 returns an approximate binary float for display and scoring
// weights only. Never use the result in a comparison.
func (v Value) Float64() float64 {
	f, _ := v.d.Float64()
	return f
}
