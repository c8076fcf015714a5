package receipt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oasismarkets/go-pickup-orders/internal/orders"
)

func TestBuildEscPos(t *testing.T) {
	qty := 2
	finalSub := 1000
	finalTotal := 1083
	o := &orders.Order{
		OrderNumber:         "OM-20260211-0007",
		CustomerName:        "Dana Whitfield",
		Status:              orders.StatusFulfilled,
		SlotStart:           time.Date(2026, 2, 11, 16, 0, 0, 0, time.UTC),
		EstimatedTotalCents: 1083,
		FinalTotalCents:     &finalTotal,
	}
	items := []orders.OrderItem{{
		Product: orders.ProductSnapshot{
			ProductID: "p1", Name: "Honeycrisp Apples",
			Unit: orders.UnitEach, PriceCents: 500,
		},
		EstimatedQuantity:          &qty,
		EstimatedLineSubtotalCents: 1000,
		FinalQuantity:              &qty,
		FinalLineSubtotalCents:     &finalSub,
	}}

	doc := string(BuildEscPos(o, items))
	assert.Contains(t, doc, "OASIS MARKETS")
	assert.Contains(t, doc, "ORDER OM-20260211-0007")
	assert.Contains(t, doc, "NAME DANA WHITFIELD")
	assert.Contains(t, doc, "Honeycrisp Apples")
	assert.Contains(t, doc, "$10.00")
	assert.Contains(t, doc, "FINAL TOTAL: $10.83")
	assert.Contains(t, doc, "STATUS: FULFILLED")
	// initialize and cut control sequences frame the document
	assert.Contains(t, doc, "\x1B@")
	assert.Contains(t, doc, "\x1DV\x00")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "receipts/OM-20260211-0007.txt", Key("OM-20260211-0007"))
}
