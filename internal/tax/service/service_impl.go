package service

import (
	"fmt"
	"sort"

	taxdomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/tax/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeTotals derives subtotal, per-rate breakdown and total from lines.
//
// Rounding happens at two fixed points only: each line's taxable amount is
// rounded to minor units, and each rate group's accumulated tax is rounded
// once. Subtotal and total are sums of already rounded values.
func ComputeTotals(lines []taxdomain.Taxable) (taxdomain.Totals, error) {
	type group struct {
		taxable decimal.Decimal
		tax     decimal.Decimal
	}

	subtotal := decimal.Zero
	groups := make(map[taxdomain.Rate]*group)

	for i, line := range lines {
		if !line.Rate.Valid() {
			return taxdomain.Totals{}, fmt.Errorf("line %d: %w", i+1, taxdomain.ErrInvalidTaxRate)
		}
		taxable := LineTaxable(line)
		tax := LineTax(taxable, line.Rate)
		if taxable.IsNegative() || tax.IsNegative() {
			return taxdomain.Totals{}, fmt.Errorf("line %d: %w", i+1, taxdomain.ErrNegativeAmount)
		}

		subtotal = subtotal.Add(taxable)
		g, ok := groups[line.Rate]
		if !ok {
			g = &group{taxable: decimal.Zero, tax: decimal.Zero}
			groups[line.Rate] = g
		}
		g.taxable = g.taxable.Add(taxable)
		g.tax = g.tax.Add(tax)
	}

	rates := make([]taxdomain.Rate, 0, len(groups))
	for rate := range groups {
		rates = append(rates, rate)
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i] < rates[j] })

	breakdown := make([]taxdomain.BreakdownEntry, 0, len(rates))
	total := subtotal
	for _, rate := range rates {
		g := groups[rate]
		taxAmount := g.tax.Round(taxdomain.MinorUnitPlaces)
		breakdown = append(breakdown, taxdomain.BreakdownEntry{
			Rate:          rate,
			TaxableAmount: g.taxable,
			TaxAmount:     taxAmount,
		})
		total = total.Add(taxAmount)
	}

	return taxdomain.Totals{
		Subtotal:  subtotal,
		Breakdown: breakdown,
		Total:     total,
	}, nil
}

// LineTaxable is quantity * unit price * (1 - discount/100), rounded to minor units.
func LineTaxable(line taxdomain.Taxable) decimal.Decimal {
	gross := line.Quantity.Mul(line.UnitPrice)
	net := gross.Mul(hundred.Sub(line.DiscountPercent)).Shift(-2)
	return net.Round(taxdomain.MinorUnitPlaces)
}

// LineTax is the unrounded tax on an already rounded taxable amount.
func LineTax(taxable decimal.Decimal, rate taxdomain.Rate) decimal.Decimal {
	return taxable.Mul(rate.Percent()).Shift(-2)
}
