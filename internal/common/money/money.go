// Package money represents monetary amounts in minor units (cents).
package money

import (
	"encoding/json"
	"fmt"
)

// Currency is a 3-letter ISO 4217 code. Rentals are charged in USD; the type
// exists so provider payloads carry the currency explicitly.
type Currency string

const (
	USD Currency = "USD"
)

// Money is an amount in minor units (cents for USD).
type Money struct {
	AmountMinor int64    `json:"amount_minor"`
	Currency    Currency `json:"currency"`
}

// New creates a Money value from minor units.
func New(amountMinor int64, currency Currency) Money {
	return Money{AmountMinor: amountMinor, Currency: currency}
}

// USDCents creates a USD amount from cents.
func USDCents(cents int64) Money {
	return Money{AmountMinor: cents, Currency: USD}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.AmountMinor == 0 }

// IsPositive reports whether the amount is greater than zero.
func (m Money) IsPositive() bool { return m.AmountMinor > 0 }

// Add adds two amounts of the same currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return Money{AmountMinor: m.AmountMinor + other.AmountMinor, Currency: m.Currency}, nil
}

// Equal checks equality of amount and currency.
func (m Money) Equal(other Money) bool {
	return m.AmountMinor == other.AmountMinor && m.Currency == other.Currency
}

// Major returns the amount in major units (dollars for USD).
func (m Money) Major() float64 {
	return float64(m.AmountMinor) / 100
}

// DecimalString renders the amount as a provider-style decimal ("280.00").
func (m Money) DecimalString() string {
	return fmt.Sprintf("%d.%02d", m.AmountMinor/100, m.AmountMinor%100)
}

// String returns a human-readable representation.
func (m Money) String() string {
	if m.Currency == USD {
		return fmt.Sprintf("$%.2f", m.Major())
	}
	return fmt.Sprintf("%d %s (minor)", m.AmountMinor, m.Currency)
}

// ParseDecimal converts a provider decimal amount ("280.00") into minor units.
func ParseDecimal(s string, currency Currency) (Money, error) {
	var major, minor int64
	if _, err := fmt.Sscanf(s, "%d.%02d", &major, &minor); err != nil {
		// Whole-number amounts ("280") are valid in provider payloads.
		if _, err2 := fmt.Sscanf(s, "%d", &major); err2 != nil {
			return Money{}, fmt.Errorf("parsing decimal amount %q: %w", s, err)
		}
		minor = 0
	}
	return Money{AmountMinor: major*100 + minor, Currency: currency}, nil
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		AmountMinor int64  `json:"amount_minor"`
		Currency    string `json:"currency"`
	}{m.AmountMinor, string(m.Currency)})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Money) UnmarshalJSON(data []byte) error {
	var v struct {
		AmountMinor int64  `json:"amount_minor"`
		Currency    string `json:"currency"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	m.AmountMinor = v.AmountMinor
	m.Currency = Currency(v.Currency)
	return nil
}
