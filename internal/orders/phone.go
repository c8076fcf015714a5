package orders

import "strings"

// NormalizePhone strips formatting so stored numbers and lookup input
// compare equal. Digits are kept, plus a leading "+".
func NormalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
