package obligation

import (
	"fmt"
	"time"

	"github.com/contabil/fiscore/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Frequency enumeration
// ─────────────────────────────────────────────────────────────────────────────

// Frequency defines how often an obligation recurs.
type Frequency string

const (
	// FrequencyWeekly recurs once per week; the schedule's target day is an
	// ISO weekday ordinal (1=Monday .. 7=Sunday).
	FrequencyWeekly Frequency = "weekly"

	// FrequencyMonthly recurs once per competence month; the target day is a
	// day-of-month in [1, 31], clamped to the month's last day.
	FrequencyMonthly Frequency = "monthly"

	// FrequencyAnnual recurs once per year; the target day is a day-of-month
	// applied to the competence month of the configured year anchor.
	FrequencyAnnual Frequency = "annual"
)

// Valid reports whether the frequency is one of the supported values.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyMonthly, FrequencyAnnual:
		return true
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// LegalDueRule value object
// ─────────────────────────────────────────────────────────────────────────────

// LegalDueKind selects how the external legal deadline is derived from the
// competence period.
type LegalDueKind string

const (
	// LegalDueOffsetDays places the legal due date a fixed number of days
	// after the competence period closes.
	LegalDueOffsetDays LegalDueKind = "offset_days"

	// LegalDueLastDayOfMonth places the legal due date on the last day of
	// the competence month (e.g. Carnê Leão).
	LegalDueLastDayOfMonth LegalDueKind = "last_day_of_month"

	// LegalDueFixedDayNextMonth places the legal due date on a fixed day of
	// the month following the competence (e.g. GPS due on the 15th of the
	// next month).
	LegalDueFixedDayNextMonth LegalDueKind = "fixed_day_next_month"
)

// LegalDueRule describes how to compute an obligation's external legal due
// date from its competence period.
type LegalDueRule struct {
	Kind LegalDueKind `json:"kind"`

	// OffsetDays is the day offset for LegalDueOffsetDays, or the
	// day-of-month for LegalDueFixedDayNextMonth.  Ignored for
	// LegalDueLastDayOfMonth.
	OffsetDays int `json:"offset_days,omitempty"`
}

// Validate checks the rule's internal consistency.
func (r LegalDueRule) Validate() error {
	switch r.Kind {
	case LegalDueOffsetDays:
		if r.OffsetDays < 0 {
			return errors.New(errors.ErrCodeScheduleRuleInvalid,
				"offset_days must be >= 0 for offset_days rule")
		}
	case LegalDueLastDayOfMonth:
	case LegalDueFixedDayNextMonth:
		if r.OffsetDays < 1 || r.OffsetDays > 31 {
			return errors.New(errors.ErrCodeScheduleRuleInvalid,
				"offset_days must be a day-of-month in [1, 31] for fixed_day_next_month rule")
		}
	default:
		return errors.New(errors.ErrCodeScheduleRuleInvalid,
			fmt.Sprintf("unknown legal due rule kind %q", r.Kind))
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Schedule value object + deadline calculator
// ─────────────────────────────────────────────────────────────────────────────

// Schedule bundles the recurrence parameters of an obligation template.
type Schedule struct {
	Frequency Frequency `json:"frequency"`

	// InternalTargetDay is the day-of-month for monthly/annual obligations
	// (clamped to the month's last day), or the ISO weekday ordinal
	// (1=Monday .. 7=Sunday) for weekly obligations.
	InternalTargetDay int `json:"internal_target_day"`

	LegalDueRule LegalDueRule `json:"legal_due_rule"`
}

// Validate checks the schedule's internal consistency.
func (s Schedule) Validate() error {
	if !s.Frequency.Valid() {
		return errors.New(errors.ErrCodeScheduleRuleInvalid,
			fmt.Sprintf("unknown frequency %q", s.Frequency))
	}
	switch s.Frequency {
	case FrequencyWeekly:
		if s.InternalTargetDay < 1 || s.InternalTargetDay > 7 {
			return errors.New(errors.ErrCodeScheduleRuleInvalid,
				"internal_target_day must be an ISO weekday in [1, 7] for weekly obligations")
		}
	default:
		if s.InternalTargetDay < 1 || s.InternalTargetDay > 31 {
			return errors.New(errors.ErrCodeScheduleRuleInvalid,
				"internal_target_day must be a day-of-month in [1, 31]")
		}
	}
	return s.LegalDueRule.Validate()
}

// Deadlines holds the two dates the calculator produces for one competence.
type Deadlines struct {
	// DueAt is the external legal deadline.
	DueAt time.Time

	// InternalTargetAt is the internal deadline; always on or before DueAt.
	InternalTargetAt time.Time
}

// ComputeDeadlines resolves the legal due date and the internal target date
// for the given competence period.
//
// Rules:
//   - The internal target comes from InternalTargetDay within the competence
//     month (month-end clamped), or from the first occurrence of the target
//     weekday within the competence month for weekly obligations.
//   - The legal due date comes from LegalDueRule.
//   - The internal target is clamped to be on or before the legal due date;
//     internal deadlines exist to buffer against the legal one.
//
// Pure and deterministic: no clock access, no side effects.
func ComputeDeadlines(s Schedule, competence Competence) (Deadlines, error) {
	if err := competence.Validate(); err != nil {
		return Deadlines{}, err
	}
	if err := s.Validate(); err != nil {
		return Deadlines{}, err
	}

	periodStart := competence.PeriodStart()
	periodEnd := competence.PeriodEnd()

	var internal time.Time
	switch s.Frequency {
	case FrequencyWeekly:
		internal = firstWeekdayOnOrAfter(periodStart, s.InternalTargetDay)
	default:
		internal = dayOfMonthClamped(competence, s.InternalTargetDay)
	}

	var due time.Time
	switch s.LegalDueRule.Kind {
	case LegalDueOffsetDays:
		due = periodEnd.AddDate(0, 0, s.LegalDueRule.OffsetDays)
	case LegalDueLastDayOfMonth:
		due = periodEnd
	case LegalDueFixedDayNextMonth:
		due = dayOfMonthClamped(competence.Next(), s.LegalDueRule.OffsetDays)
	}

	if internal.After(due) {
		internal = due
	}

	return Deadlines{DueAt: due, InternalTargetAt: internal}, nil
}

// dayOfMonthClamped returns midnight UTC on the given day of the competence
// month, clamping past-the-end days to the month's last day (e.g. day 31 in
// April resolves to April 30).
func dayOfMonthClamped(c Competence, day int) time.Time {
	if last := c.DaysInMonth(); day > last {
		day = last
	}
	return time.Date(c.Year(), time.Month(c.Month()), day, 0, 0, 0, 0, time.UTC)
}

// firstWeekdayOnOrAfter returns the first date on or after start whose ISO
// weekday (1=Monday .. 7=Sunday) equals isoWeekday.
func firstWeekdayOnOrAfter(start time.Time, isoWeekday int) time.Time {
	current := int(start.Weekday())
	if current == 0 {
		current = 7 // time.Sunday is 0; ISO calls it 7
	}
	delta := (isoWeekday - current + 7) % 7
	return start.AddDate(0, 0, delta)
}
