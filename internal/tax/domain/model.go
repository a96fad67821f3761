package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Rate is a GST slab expressed in whole percent.
// Persisted documents keep their rate, so existing slabs are never renumbered.
type Rate int

const (
	RateExempt Rate = 0
	Rate5      Rate = 5
	Rate12     Rate = 12
	Rate18     Rate = 18
	Rate28     Rate = 28
)

// MinorUnitPlaces is the currency precision (paise) every stored amount is rounded to.
const MinorUnitPlaces int32 = 2

var allowedRates = []Rate{RateExempt, Rate5, Rate12, Rate18, Rate28}

// AllowedRates returns the legal rates in ascending order.
func AllowedRates() []Rate {
	return append([]Rate(nil), allowedRates...)
}

func (r Rate) Valid() bool {
	for _, allowed := range allowedRates {
		if r == allowed {
			return true
		}
	}
	return false
}

// Percent returns the rate as a decimal percentage (18 for 18%).
func (r Rate) Percent() decimal.Decimal {
	return decimal.NewFromInt(int64(r))
}

func (r Rate) String() string {
	return strconv.Itoa(int(r)) + "%"
}

// ParseRate accepts "18", "18%" or "18.0".
func ParseRate(raw string) (Rate, error) {
	value := strings.TrimSuffix(strings.TrimSpace(raw), "%")
	d, err := decimal.NewFromString(value)
	if err != nil || !d.IsInteger() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTaxRate, raw)
	}
	rate := Rate(d.IntPart())
	if !rate.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTaxRate, raw)
	}
	return rate, nil
}

// Taxable is the numeric projection of one document line.
type Taxable struct {
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	Rate            Rate
}

// BreakdownEntry aggregates the lines sharing one rate.
type BreakdownEntry struct {
	Rate          Rate            `json:"rate"`
	TaxableAmount decimal.Decimal `json:"taxable_amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
}

// Totals are the derived amounts of a document.
type Totals struct {
	Subtotal  decimal.Decimal  `json:"subtotal"`
	Breakdown []BreakdownEntry `json:"tax_breakdown"`
	Total     decimal.Decimal  `json:"total"`
}

// TaxAmount sums the tax of every breakdown entry.
func (t Totals) TaxAmount() decimal.Decimal {
	sum := decimal.Zero
	for _, entry := range t.Breakdown {
		sum = sum.Add(entry.TaxAmount)
	}
	return sum
}

// Equal compares amounts numerically.
func (t Totals) Equal(o Totals) bool {
	if !t.Subtotal.Equal(o.Subtotal) || !t.Total.Equal(o.Total) || len(t.Breakdown) != len(o.Breakdown) {
		return false
	}
	for i := range t.Breakdown {
		a, b := t.Breakdown[i], o.Breakdown[i]
		if a.Rate != b.Rate || !a.TaxableAmount.Equal(b.TaxableAmount) || !a.TaxAmount.Equal(b.TaxAmount) {
			return false
		}
	}
	return true
}
