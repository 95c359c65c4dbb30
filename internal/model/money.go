package model

import (
	"database/sql/driver"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor units (sen). Stored as NUMERIC(12,2) and
// rendered as a two-decimal JSON number.
type Money int64

var (
	amountPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)$`)
	maxMoney      = decimal.NewFromInt(math.MaxInt64)
	minMoney      = decimal.NewFromInt(math.MinInt64)
)

// ParseMoney parses "10", "10.5" or "10.50". More than two decimal
// places, exponents and stray signs are errors.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if !amountPattern.MatchString(s) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.Exponent() < -2 {
		return 0, fmt.Errorf("amount %q has more than two decimal places", s)
	}
	return fromDecimal(d, s)
}

func fromDecimal(d decimal.Decimal, s string) (Money, error) {
	sen := d.Shift(2)
	if !sen.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than two decimal places", s)
	}
	if sen.GreaterThan(maxMoney) || sen.LessThan(minMoney) {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	return Money(sen.IntPart()), nil
}

// MustMoney is ParseMoney for literals.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Decimal returns the amount in ringgit.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Mul multiplies a unit rate by a quantity.
func (m Money) Mul(quantity int) Money {
	return Money(int64(m) * int64(quantity))
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		return nil
	}
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = 0
		return nil
	case []byte:
		return m.scanString(string(v))
	case string:
		return m.scanString(v)
	case int64:
		v2, err := fromDecimal(decimal.NewFromInt(v), fmt.Sprint(v))
		if err != nil {
			return err
		}
		*m = v2
		return nil
	case float64:
		v2, err := fromDecimal(decimal.NewFromFloat(v).Round(2), fmt.Sprint(v))
		if err != nil {
			return err
		}
		*m = v2
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Money", src)
	}
}

func (m *Money) scanString(s string) error {
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Max returns the larger of two amounts.
func Max(a, b Money) Money {
	if a > b {
		return a
	}
	return b
}
