package obligation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monthlySchedule(targetDay int, rule LegalDueRule) Schedule {
	return Schedule{
		Frequency:         FrequencyMonthly,
		InternalTargetDay: targetDay,
		LegalDueRule:      rule,
	}
}

func TestComputeDeadlines_CarneLeao(t *testing.T) {
	// Carnê Leão: monthly, internal target on the 15th, legally due on the
	// last day of the competence month.
	s := monthlySchedule(15, LegalDueRule{Kind: LegalDueLastDayOfMonth})

	d, err := ComputeDeadlines(s, "03/2025")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), d.InternalTargetAt)
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), d.DueAt)
}

func TestComputeDeadlines_GPSFixedDayNextMonth(t *testing.T) {
	// GPS: internal target on the 10th, legally due on the 15th of the
	// following month.
	s := monthlySchedule(10, LegalDueRule{Kind: LegalDueFixedDayNextMonth, OffsetDays: 15})

	d, err := ComputeDeadlines(s, "12/2025")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC), d.InternalTargetAt)
	assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), d.DueAt)
}

func TestComputeDeadlines_MonthEndClamping(t *testing.T) {
	// Target day 31 in a 30-day month resolves to the month's last day.
	s := monthlySchedule(31, LegalDueRule{Kind: LegalDueOffsetDays, OffsetDays: 5})

	d, err := ComputeDeadlines(s, "04/2025")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC), d.InternalTargetAt)
	assert.Equal(t, time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC), d.DueAt)
}

func TestComputeDeadlines_FebruaryLeapYear(t *testing.T) {
	s := monthlySchedule(30, LegalDueRule{Kind: LegalDueLastDayOfMonth})

	d, err := ComputeDeadlines(s, "02/2024")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d.InternalTargetAt)
	assert.Equal(t, d.InternalTargetAt, d.DueAt)
}

func TestComputeDeadlines_InternalClampedToDue(t *testing.T) {
	// Internal target after the legal due date gets pulled back onto it.
	s := monthlySchedule(25, LegalDueRule{Kind: LegalDueFixedDayNextMonth, OffsetDays: 10})
	d, err := ComputeDeadlines(s, "06/2025")
	require.NoError(t, err)
	assert.False(t, d.InternalTargetAt.After(d.DueAt))

	// Degenerate rule: due on day 1 of the same month window.
	s2 := monthlySchedule(20, LegalDueRule{Kind: LegalDueLastDayOfMonth})
	d2, err := ComputeDeadlines(s2, "02/2025")
	require.NoError(t, err)
	assert.False(t, d2.InternalTargetAt.After(d2.DueAt))
}

func TestComputeDeadlines_Weekly(t *testing.T) {
	// Weekly obligation targeting Fridays (ISO weekday 5).  March 2025
	// starts on a Saturday, so the first Friday is the 7th.
	s := Schedule{
		Frequency:         FrequencyWeekly,
		InternalTargetDay: 5,
		LegalDueRule:      LegalDueRule{Kind: LegalDueLastDayOfMonth},
	}

	d, err := ComputeDeadlines(s, "03/2025")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC), d.InternalTargetAt)
	assert.Equal(t, time.Weekday(5), d.InternalTargetAt.Weekday())
}

func TestComputeDeadlines_WeeklySundayOrdinal(t *testing.T) {
	// ISO weekday 7 is Sunday.  June 2025 starts on a Sunday.
	s := Schedule{
		Frequency:         FrequencyWeekly,
		InternalTargetDay: 7,
		LegalDueRule:      LegalDueRule{Kind: LegalDueLastDayOfMonth},
	}

	d, err := ComputeDeadlines(s, "06/2025")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), d.InternalTargetAt)
}

func TestComputeDeadlines_InternalNeverAfterDue_Property(t *testing.T) {
	rules := []LegalDueRule{
		{Kind: LegalDueLastDayOfMonth},
		{Kind: LegalDueOffsetDays, OffsetDays: 0},
		{Kind: LegalDueOffsetDays, OffsetDays: 20},
		{Kind: LegalDueFixedDayNextMonth, OffsetDays: 7},
		{Kind: LegalDueFixedDayNextMonth, OffsetDays: 31},
	}
	competences := []Competence{"01/2025", "02/2025", "02/2024", "04/2025", "12/2025"}

	for _, rule := range rules {
		for day := 1; day <= 31; day += 6 {
			for _, c := range competences {
				d, err := ComputeDeadlines(monthlySchedule(day, rule), c)
				require.NoError(t, err)
				assert.False(t, d.InternalTargetAt.After(d.DueAt),
					"rule=%v day=%d competence=%s", rule, day, c)
			}
		}
	}
}

func TestComputeDeadlines_InvalidInputs(t *testing.T) {
	s := monthlySchedule(15, LegalDueRule{Kind: LegalDueLastDayOfMonth})

	_, err := ComputeDeadlines(s, "15/2025")
	assert.Error(t, err)

	_, err = ComputeDeadlines(monthlySchedule(0, LegalDueRule{Kind: LegalDueLastDayOfMonth}), "03/2025")
	assert.Error(t, err)

	_, err = ComputeDeadlines(Schedule{Frequency: "daily", InternalTargetDay: 1, LegalDueRule: LegalDueRule{Kind: LegalDueLastDayOfMonth}}, "03/2025")
	assert.Error(t, err)

	_, err = ComputeDeadlines(monthlySchedule(15, LegalDueRule{Kind: "unknown"}), "03/2025")
	assert.Error(t, err)

	weekly := Schedule{Frequency: FrequencyWeekly, InternalTargetDay: 8, LegalDueRule: LegalDueRule{Kind: LegalDueLastDayOfMonth}}
	_, err = ComputeDeadlines(weekly, "03/2025")
	assert.Error(t, err)
}
