// Package money holds the integer-cents arithmetic shared by order
// creation, finalization and refunds. Everything works on minor currency
// units and basis points; floats only appear for by-weight line items.
package money

import (
	"fmt"
	"math"
)

type Totals struct {
	SubtotalCents int `json:"subtotal_cents"`
	TaxCents      int `json:"tax_cents"`
	TotalCents    int `json:"total_cents"`
}

// TaxCents is round(subtotal * bps / 10000), half away from zero.
func TaxCents(subtotalCents, taxRateBps int) int {
	return int(math.Round(float64(subtotalCents) * float64(taxRateBps) / 10000))
}

func BuildTotals(subtotalCents, taxRateBps int) Totals {
	tax := TaxCents(subtotalCents, taxRateBps)
	return Totals{
		SubtotalCents: subtotalCents,
		TaxCents:      tax,
		TotalCents:    subtotalCents + tax,
	}
}

// LineSubtotalCents prices a line from the snapshotted unit price and the
// quantity or weight multiplier.
func LineSubtotalCents(priceCents int, multiplier float64) int {
	return int(math.Round(float64(priceCents) * multiplier))
}

// ClampRefund caps a requested refund at what remains of the paid total.
// The result is never negative and never exceeds paid - alreadyRefunded.
func ClampRefund(requestedCents, alreadyRefundedCents, paidCents int) int {
	remaining := paidCents - alreadyRefundedCents
	if remaining < 0 {
		remaining = 0
	}
	if requestedCents < remaining {
		return requestedCents
	}
	return remaining
}

func FormatCents(cents int) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
