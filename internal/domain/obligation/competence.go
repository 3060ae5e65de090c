package obligation

import (
	"fmt"
	"regexp"
	"time"

	"github.com/contabil/fiscore/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Competence value object
// ─────────────────────────────────────────────────────────────────────────────

// Competence identifies the fiscal period an obligation instance refers to,
// in the Brazilian "MM/YYYY" convention (e.g. "03/2025" for March 2025).
//
// Competence strings are validated eagerly at every system boundary: a
// malformed competence must never reach the (client, obligation, competence)
// uniqueness lookup.
type Competence string

var competencePattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/\d{4}$`)

// ParseCompetence validates s and returns it as a Competence.
func ParseCompetence(s string) (Competence, error) {
	c := Competence(s)
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

// CompetenceFromTime returns the competence for the month containing t.
func CompetenceFromTime(t time.Time) Competence {
	return Competence(fmt.Sprintf("%02d/%04d", int(t.Month()), t.Year()))
}

// CurrentCompetence returns the competence for the month containing now.
func CurrentCompetence(now time.Time) Competence {
	return CompetenceFromTime(now)
}

// Validate checks that the competence matches the MM/YYYY format with a
// month in [01, 12].
func (c Competence) Validate() error {
	if !competencePattern.MatchString(string(c)) {
		return errors.New(errors.ErrCodeCompetenceInvalid,
			fmt.Sprintf("competence %q is not in MM/YYYY format", string(c)))
	}
	return nil
}

// Month returns the competence month in [1, 12].  The competence must be
// valid; Month returns 0 otherwise.
func (c Competence) Month() int {
	var mm, yyyy int
	if _, err := fmt.Sscanf(string(c), "%02d/%04d", &mm, &yyyy); err != nil {
		return 0
	}
	return mm
}

// Year returns the competence year.  The competence must be valid; Year
// returns 0 otherwise.
func (c Competence) Year() int {
	var mm, yyyy int
	if _, err := fmt.Sscanf(string(c), "%02d/%04d", &mm, &yyyy); err != nil {
		return 0
	}
	return yyyy
}

// PeriodStart returns midnight UTC on the first day of the competence month.
func (c Competence) PeriodStart() time.Time {
	return time.Date(c.Year(), time.Month(c.Month()), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodEnd returns midnight UTC on the last day of the competence month.
func (c Competence) PeriodEnd() time.Time {
	return c.PeriodStart().AddDate(0, 1, -1)
}

// Next returns the competence for the following month.
func (c Competence) Next() Competence {
	return CompetenceFromTime(c.PeriodStart().AddDate(0, 1, 0))
}

// Previous returns the competence for the preceding month.
func (c Competence) Previous() Competence {
	return CompetenceFromTime(c.PeriodStart().AddDate(0, -1, 0))
}

// DaysInMonth returns the number of days in the competence month.
func (c Competence) DaysInMonth() int {
	return c.PeriodEnd().Day()
}

func (c Competence) String() string {
	return string(c)
}
