// Package core holds the budgeting domain: accounts, templates, calendar
// entries and per-account amount maps.
//
// Amount maps are keyed by account reference (today the account name, see
// AccountResolver) and never hold zero values: setting zero removes the key.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Amounts maps an account reference to a non-zero decimal amount.
type Amounts map[string]decimal.Decimal

// Totals maps an account reference to a derived total. Unlike Amounts,
// zero is a meaningful value and is kept.
type Totals map[string]decimal.Decimal

// NewAmounts builds Amounts from loosely typed floats, dropping zero, NaN
// and infinite values.
func NewAmounts(values map[string]float64) Amounts {
	out := make(Amounts, len(values))
	for k, v := range values {
		if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out.Set(k, decimal.NewFromFloat(v))
	}
	return out
}

// Get returns the amount for key, zero when absent.
func (a Amounts) Get(key string) decimal.Decimal {
	return a[key]
}

// Set stores v under key. A zero value removes the key.
func (a *Amounts) Set(key string, v decimal.Decimal) {
	if v.IsZero() || strings.TrimSpace(key) == "" {
		a.Delete(key)
		return
	}
	if *a == nil {
		*a = make(Amounts)
	}
	(*a)[key] = v
}

// Delete removes key.
func (a Amounts) Delete(key string) {
	delete(a, key)
}

// Total sums every amount in the map, including keys of accounts that no
// longer exist.
func (a Amounts) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range a {
		total = total.Add(v)
	}
	return total
}

func (a Amounts) Clone() Amounts {
	if a == nil {
		return nil
	}
	out := make(Amounts, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Normalize returns a copy without zero amounts or blank keys.
func (a Amounts) Normalize() Amounts {
	out := make(Amounts, len(a))
	for k, v := range a {
		out.Set(k, v)
	}
	return out
}

// UnmarshalJSON accepts numbers, numeric strings and nulls; null and zero
// values are dropped. Anything else fails with ErrInvalidAmount.
func (a *Amounts) UnmarshalJSON(data []byte) error {
	var raw map[string]decimal.NullDecimal
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	out := make(Amounts, len(raw))
	for k, v := range raw {
		if v.Valid {
			out.Set(k, v.Decimal)
		}
	}
	*a = out
	return nil
}

// Get returns the total for key, zero when absent.
func (t Totals) Get(key string) decimal.Decimal {
	return t[key]
}

// FormatAmount renders d with two decimal places.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
