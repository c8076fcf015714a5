// Package pickup derives bookable pickup slots from store hours. Slots are
// computed on demand and never persisted; only day-range overrides and the
// blocked-slot set live in the store.
package pickup

import (
	"fmt"
	"time"
)

const SlotDuration = time.Hour

type Slot struct {
	Start       time.Time `json:"start_iso"`
	End         time.Time `json:"end_iso"`
	Capacity    int       `json:"capacity"`
	Booked      int       `json:"booked"`
	Available   int       `json:"available"`
	Unavailable bool      `json:"is_unavailable"`
}

type DayConfig struct {
	Location        *time.Location
	OpenHour        int
	CloseHour       int
	Capacity        int
	LeadTimeMinutes int
	// keyed by Key(slotStart)
	Unavailable map[string]bool
}

// Key normalizes a slot start into the canonical map key used for booking
// counts and the blocked-slot set.
func Key(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// DayKey is the store-local service date of an instant.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// DayBounds returns the UTC instants bounding a store-local service date.
func DayBounds(date string, loc *time.Location) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	return day.UTC(), day.AddDate(0, 0, 1).UTC(), nil
}

// Generate builds the ordered hourly slot list for a service date.
//
// The shopper-facing list (includePastCutoff=false) drops slots starting
// before now + lead time; the operator list keeps every slot so past-cutoff
// slots can still be inspected and blocked. A closeHour at or below openHour
// yields an empty list; rejecting that configuration is the write path's job.
func Generate(date string, cfg DayConfig, booked map[string]int, now time.Time, includePastCutoff bool) ([]Slot, error) {
	day, err := time.ParseInLocation("2006-01-02", date, cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}

	open := day.Add(time.Duration(cfg.OpenHour) * time.Hour)
	close := day.Add(time.Duration(cfg.CloseHour) * time.Hour)
	leadCutoff := now.Add(time.Duration(cfg.LeadTimeMinutes) * time.Minute)

	var slots []Slot
	for cursor := open; cursor.Before(close); cursor = cursor.Add(SlotDuration) {
		if !includePastCutoff && cursor.Before(leadCutoff) {
			continue
		}

		key := Key(cursor)
		count := booked[key]
		unavailable := cfg.Unavailable[key]

		available := 0
		if !unavailable {
			available = cfg.Capacity - count
			if available < 0 {
				available = 0
			}
		}

		slots = append(slots, Slot{
			Start:       cursor.UTC(),
			End:         cursor.Add(SlotDuration).UTC(),
			Capacity:    cfg.Capacity,
			Booked:      count,
			Available:   available,
			Unavailable: unavailable,
		})
	}
	return slots, nil
}
