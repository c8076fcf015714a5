package orders

// Operator-selectable delay durations, in minutes.
var AllowedDelayMinutes = map[int]bool{10: true, 30: true, 60: true, 90: true}

// SlotShiftHours maps a delay to how many hours the physical slot moves.
// 10- and 30-minute delays are absorbed inside the existing window; 60
// re-slots by one hour and 90 by two, so a long-running order does not
// crowd the next window.
func SlotShiftHours(delayMinutes int) int {
	switch delayMinutes {
	case 60:
		return 1
	case 90:
		return 2
	default:
		return 0
	}
}
