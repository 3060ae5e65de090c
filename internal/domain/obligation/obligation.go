// Package obligation defines the catalog templates, client links, and the
// periodic obligation instances with their deadline-driven lifecycle.
package obligation

import (
	"strings"
	"time"

	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Obligation catalog template
// ─────────────────────────────────────────────────────────────────────────────

// Obligation is a catalog template describing one recurring fiscal duty
// (e.g. "Carnê Leão", "GPS Autônomo").  Templates are immutable once
// instances reference them, except for administrative edits; removal is
// archival only.
type Obligation struct {
	ID       common.ID `json:"id"`
	OrgID    common.OrgID `json:"org_id"`
	Name     string    `json:"name"`
	Schedule Schedule  `json:"schedule"`

	// FiscalCode is the official revenue-service code used by the document
	// matcher (e.g. DARF code "0190").  Optional.
	FiscalCode string `json:"fiscal_code,omitempty"`

	// Archived templates are hidden from generation and matching but keep
	// their historical instances.
	Archived bool `json:"archived"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewObligation creates a catalog template with validation.
func NewObligation(orgID common.OrgID, name string, schedule Schedule, fiscalCode string) (*Obligation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New(errors.ErrCodeValidation, "obligation name must not be empty")
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Obligation{
		ID:         common.NewID(),
		OrgID:      orgID,
		Name:       name,
		Schedule:   schedule,
		FiscalCode: strings.TrimSpace(fiscalCode),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Archive hides the template from generation and matching.
func (o *Obligation) Archive() {
	o.Archived = true
	o.UpdatedAt = time.Now().UTC()
}

// ─────────────────────────────────────────────────────────────────────────────
// Client directory record
// ─────────────────────────────────────────────────────────────────────────────

// IdentifierKind distinguishes the two Brazilian taxpayer identifier families
// a client may be matched by.
type IdentifierKind string

const (
	// IdentifierCPFCNPJ matches CPF (11 digits, natural persons) or CNPJ
	// (14 digits, legal entities).
	IdentifierCPFCNPJ IdentifierKind = "cpf_cnpj"

	// IdentifierNIT matches the social-insurance number printed on GPS
	// payment slips (NIT/PIS/PASEP, 11 digits).
	IdentifierNIT IdentifierKind = "nit"
)

// Client is the projection of the external client directory the core needs:
// identity, matching identifiers, and the active flag.  Client CRUD itself
// lives outside this system.
type Client struct {
	ID    common.ID    `json:"id"`
	OrgID common.OrgID `json:"org_id"`
	Name  string       `json:"name"`

	// Code is the short internal client code staff use day to day.
	Code string `json:"code"`

	// CPFCNPJ is the tax identifier, stored digits-only.
	CPFCNPJ string `json:"cpf_cnpj,omitempty"`

	// NIT is the social-insurance identifier, stored digits-only.
	NIT string `json:"nit,omitempty"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeIdentifier strips all non-digit characters from an identifier so
// that "123.456.789-09" and "12345678909" compare equal.
func NormalizeIdentifier(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// ClientObligationLink
// ─────────────────────────────────────────────────────────────────────────────

// ClientObligationLink subscribes one client to one catalog obligation.
// Only active links receive generated instances.  Links are soft-disabled
// via Active=false and never hard-deleted while instances exist.
type ClientObligationLink struct {
	ID           common.ID    `json:"id"`
	OrgID        common.OrgID `json:"org_id"`
	ClientID     common.ID    `json:"client_id"`
	ObligationID common.ID    `json:"obligation_id"`
	Active       bool         `json:"active"`

	// ScheduleOverride, when non-nil, replaces the template schedule for
	// this client (e.g. a client with a negotiated earlier internal date).
	ScheduleOverride *Schedule `json:"schedule_override,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewClientObligationLink creates an active link with validation.
func NewClientObligationLink(orgID common.OrgID, clientID, obligationID common.ID, override *Schedule) (*ClientObligationLink, error) {
	if err := clientID.Validate(); err != nil {
		return nil, errors.New(errors.ErrCodeValidation, "client_id is not a valid identifier")
	}
	if err := obligationID.Validate(); err != nil {
		return nil, errors.New(errors.ErrCodeValidation, "obligation_id is not a valid identifier")
	}
	if override != nil {
		if err := override.Validate(); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	return &ClientObligationLink{
		ID:               common.NewID(),
		OrgID:            orgID,
		ClientID:         clientID,
		ObligationID:     obligationID,
		Active:           true,
		ScheduleOverride: override,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// EffectiveSchedule returns the per-link override when present, otherwise
// the template schedule.
func (l *ClientObligationLink) EffectiveSchedule(template Schedule) Schedule {
	if l.ScheduleOverride != nil {
		return *l.ScheduleOverride
	}
	return template
}

// Disable soft-disables the link; existing instances are untouched.
func (l *ClientObligationLink) Disable() {
	l.Active = false
	l.UpdatedAt = time.Now().UTC()
}

// Enable re-activates the link.
func (l *ClientObligationLink) Enable() {
	l.Active = true
	l.UpdatedAt = time.Now().UTC()
}
