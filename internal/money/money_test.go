package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaxCents(t *testing.T) {
	// 1000 cents at 8.25% -> 82.5 rounds to 83
	assert.Equal(t, 83, TaxCents(1000, 825))
	assert.Equal(t, 0, TaxCents(1000, 0))
	assert.Equal(t, 1000, TaxCents(1000, 10000))
	assert.Equal(t, 0, TaxCents(0, 825))
}

func TestBuildTotals(t *testing.T) {
	got := BuildTotals(1000, 825)
	assert.Equal(t, Totals{SubtotalCents: 1000, TaxCents: 83, TotalCents: 1083}, got)
}

func TestLineSubtotalCents(t *testing.T) {
	assert.Equal(t, 897, LineSubtotalCents(299, 3))
	// 2.5 lb at $1.99/lb -> 497.5 rounds to 498
	assert.Equal(t, 498, LineSubtotalCents(199, 2.5))
}

func TestClampRefund(t *testing.T) {
	assert.Equal(t, 700, ClampRefund(900, 300, 1000))
	assert.Equal(t, 0, ClampRefund(500, 1000, 1000))
	assert.Equal(t, 0, ClampRefund(500, 1200, 1000))
	assert.Equal(t, 250, ClampRefund(250, 0, 1000))
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "$12.34", FormatCents(1234))
	assert.Equal(t, "$0.05", FormatCents(5))
	assert.Equal(t, "-$1.00", FormatCents(-100))
}
