// Package receipt renders ESC/POS pickup receipts and stores the printable
// artifact through an object-storage boundary.
package receipt

import (
	"fmt"
	"strings"

	"github.com/oasismarkets/go-pickup-orders/internal/money"
	"github.com/oasismarkets/go-pickup-orders/internal/orders"
)

const (
	esc = "\x1B"
	gs  = "\x1D"
)

// BuildEscPos renders the printable receipt payload for an Epson-class
// thermal printer.
func BuildEscPos(o *orders.Order, items []orders.OrderItem) []byte {
	var b strings.Builder

	b.WriteString(esc + "@")      // initialize
	b.WriteString(esc + "a\x01")  // center
	b.WriteString(gs + "!\x11")   // double width/height
	b.WriteString("OASIS MARKETS\n")
	b.WriteString(gs + "!\x00")
	fmt.Fprintf(&b, "ORDER %s\n", o.OrderNumber)
	fmt.Fprintf(&b, "NAME %s\n", strings.ToUpper(o.CustomerName))
	b.WriteString("\n")

	b.WriteString(esc + "a\x00") // left
	b.WriteString("--------------------------------\n")
	for _, it := range items {
		amount := it.ReservedAmount()
		total := it.EstimatedLineSubtotalCents
		if it.FinalLineSubtotalCents != nil {
			total = *it.FinalLineSubtotalCents
		}
		fmt.Fprintf(&b, "%s\n", it.Product.Name)
		fmt.Fprintf(&b, "  %.2f %s  %s\n", amount, it.Product.Unit, money.FormatCents(total))
	}
	b.WriteString("--------------------------------\n")
	fmt.Fprintf(&b, "EST TOTAL: %s\n", money.FormatCents(o.EstimatedTotalCents))
	if o.FinalTotalCents != nil {
		fmt.Fprintf(&b, "FINAL TOTAL: %s\n", money.FormatCents(*o.FinalTotalCents))
	}
	fmt.Fprintf(&b, "STATUS: %s\n", strings.ToUpper(string(o.Status)))
	fmt.Fprintf(&b, "PICKUP: %s\n", o.SlotStart.UTC().Format("2006-01-02 15:04 MST"))
	b.WriteString("\n\n")
	b.WriteString(gs + "V\x00") // full cut

	return []byte(b.String())
}

// Key is the storage key for an order's receipt artifact.
func Key(orderNumber string) string {
	return "receipts/" + orderNumber + ".txt"
}
