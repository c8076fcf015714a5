package orders

import (
	"fmt"
	"time"
)

// BuildOrderNumber formats the human order number from the service date and
// the daily sequence, e.g. OM-20260211-0042. The sequence is zero-padded to
// four digits but grows past them without truncation.
func BuildOrderNumber(date time.Time, sequence int) string {
	return fmt.Sprintf("OM-%s-%04d", date.UTC().Format("20060102"), sequence)
}
