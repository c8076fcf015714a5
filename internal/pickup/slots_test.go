package pickup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chicago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	return loc
}

func TestGenerateAppliesLeadTimeFilter(t *testing.T) {
	loc := chicago(t)
	cfg := DayConfig{
		Location:        loc,
		OpenHour:        9,
		CloseHour:       12,
		Capacity:        5,
		LeadTimeMinutes: 60,
	}
	now := time.Date(2026, 2, 11, 8, 30, 0, 0, loc)

	slots, err := Generate("2026-02-11", cfg, nil, now, false)
	require.NoError(t, err)

	// 9:00 falls inside the lead window, 10:00 and 11:00 survive.
	require.Len(t, slots, 2)
	assert.Equal(t, 10, slots[0].Start.In(loc).Hour())
	assert.Equal(t, 5, slots[0].Available)
	assert.Equal(t, slots[0].Start.Add(time.Hour), slots[0].End)
}

func TestGenerateKeepsSlotAtLeadCutoff(t *testing.T) {
	loc := chicago(t)
	cfg := DayConfig{
		Location:        loc,
		OpenHour:        9,
		CloseHour:       12,
		Capacity:        5,
		LeadTimeMinutes: 60,
	}
	// cutoff is exactly 10:00; that slot stays bookable
	now := time.Date(2026, 2, 11, 9, 0, 0, 0, loc)

	slots, err := Generate("2026-02-11", cfg, nil, now, false)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, 10, slots[0].Start.In(loc).Hour())
}

func TestGenerateAdminListKeepsPastCutoffSlots(t *testing.T) {
	loc := chicago(t)
	cfg := DayConfig{
		Location:        loc,
		OpenHour:        9,
		CloseHour:       12,
		Capacity:        5,
		LeadTimeMinutes: 60,
	}
	now := time.Date(2026, 2, 11, 8, 30, 0, 0, loc)

	slots, err := Generate("2026-02-11", cfg, nil, now, true)
	require.NoError(t, err)
	assert.Len(t, slots, 3)
}

func TestGenerateBookedAndUnavailable(t *testing.T) {
	loc := chicago(t)
	slot9 := Key(time.Date(2026, 2, 11, 9, 0, 0, 0, loc))
	slot10 := Key(time.Date(2026, 2, 11, 10, 0, 0, 0, loc))

	cfg := DayConfig{
		Location:        loc,
		OpenHour:        9,
		CloseHour:       11,
		Capacity:        4,
		LeadTimeMinutes: 0,
		Unavailable:     map[string]bool{slot10: true},
	}
	now := time.Date(2026, 2, 11, 8, 0, 0, 0, loc)
	booked := map[string]int{slot9: 3}

	slots, err := Generate("2026-02-11", cfg, booked, now, false)
	require.NoError(t, err)
	require.Len(t, slots, 2)

	assert.Equal(t, 3, slots[0].Booked)
	assert.Equal(t, 1, slots[0].Available)

	assert.True(t, slots[1].Unavailable)
	assert.Equal(t, 0, slots[1].Available)
}

func TestGenerateAvailabilityNeverNegative(t *testing.T) {
	loc := chicago(t)
	slot9 := Key(time.Date(2026, 2, 11, 9, 0, 0, 0, loc))
	cfg := DayConfig{
		Location: loc,
		OpenHour: 9, CloseHour: 10,
		Capacity: 2,
	}
	now := time.Date(2026, 2, 11, 0, 0, 0, 0, loc)

	slots, err := Generate("2026-02-11", cfg, map[string]int{slot9: 7}, now, false)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, 0, slots[0].Available)
	assert.Equal(t, 7, slots[0].Booked)
}

func TestGenerateEmptyWhenClosedRange(t *testing.T) {
	loc := chicago(t)
	cfg := DayConfig{Location: loc, OpenHour: 18, CloseHour: 9, Capacity: 5}
	now := time.Date(2026, 2, 11, 0, 0, 0, 0, loc)

	slots, err := Generate("2026-02-11", cfg, nil, now, true)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestGenerateRejectsBadDate(t *testing.T) {
	loc := chicago(t)
	_, err := Generate("02/11/2026", DayConfig{Location: loc, OpenHour: 9, CloseHour: 12}, nil, time.Now(), false)
	assert.Error(t, err)
}
