package obligation

import (
	"context"
	"time"

	"github.com/contabil/fiscore/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Repository interfaces
// ─────────────────────────────────────────────────────────────────────────────

// CatalogRepository provides access to obligation templates.
type CatalogRepository interface {
	Save(ctx context.Context, o *Obligation) error
	FindByID(ctx context.Context, orgID common.OrgID, id common.ID) (*Obligation, error)

	// FindByFiscalCode looks up a non-archived template by exact fiscal
	// code.  Returns ErrCodeObligationNotFound when no template matches.
	FindByFiscalCode(ctx context.Context, orgID common.OrgID, fiscalCode string) (*Obligation, error)

	// FindByNameSubstring looks up a non-archived template whose name
	// contains the given fragment, case-insensitively.  Used by the legacy
	// fiscal-code fallback table.
	FindByNameSubstring(ctx context.Context, orgID common.OrgID, fragment string) (*Obligation, error)

	List(ctx context.Context, orgID common.OrgID, includeArchived bool) ([]*Obligation, error)
}

// ClientRepository is the read-side projection of the external client
// directory the matcher and generator need.
type ClientRepository interface {
	FindByID(ctx context.Context, orgID common.OrgID, id common.ID) (*Client, error)

	// FindByIdentifier looks up an active client by a digits-only
	// identifier of the given kind.  Returns ErrCodeClientNotFound when no
	// active client matches.
	FindByIdentifier(ctx context.Context, orgID common.OrgID, kind IdentifierKind, identifier string) (*Client, error)

	List(ctx context.Context, orgID common.OrgID, onlyActive bool) ([]*Client, error)

	// ListOrgIDs enumerates every tenant with at least one client on
	// record.  Background sweeps iterate this set.
	ListOrgIDs(ctx context.Context) ([]common.OrgID, error)
}

// LinkRepository provides access to client-obligation subscriptions.
type LinkRepository interface {
	Save(ctx context.Context, l *ClientObligationLink) error
	FindByID(ctx context.Context, orgID common.OrgID, id common.ID) (*ClientObligationLink, error)

	// FindActive returns every active link in the organization, the
	// generator's work list.
	FindActive(ctx context.Context, orgID common.OrgID) ([]*ClientObligationLink, error)

	ListByClient(ctx context.Context, orgID common.OrgID, clientID common.ID) ([]*ClientObligationLink, error)
}

// InstanceFilter narrows instance listings.
type InstanceFilter struct {
	ClientID     *common.ID
	ObligationID *common.ID
	Competence   *Competence
	Status       *InstanceStatus
	DueBefore    *time.Time
	DueAfter     *time.Time
}

// InstanceRepository persists obligation instances.
type InstanceRepository interface {
	// Create inserts a new instance.  A (client, obligation, competence)
	// uniqueness violation surfaces as ErrCodeInstanceDuplicate so
	// concurrent generator runs can treat it as "already exists, skip".
	Create(ctx context.Context, inst *Instance) error

	FindByID(ctx context.Context, orgID common.OrgID, id common.ID) (*Instance, error)

	// FindByKey fetches the unique instance for one (client, obligation,
	// competence) tuple.  Returns ErrCodeInstanceNotFound when absent.
	FindByKey(ctx context.Context, orgID common.OrgID, clientID, obligationID common.ID, competence Competence) (*Instance, error)

	// Update persists completion state, the status cache, and the
	// notified flag.  InternalTargetAt and the identity columns are never
	// rewritten.
	Update(ctx context.Context, inst *Instance) error

	List(ctx context.Context, orgID common.OrgID, filter InstanceFilter, page common.Pagination) ([]*Instance, int64, error)

	// FindOpenForSweep returns non-done instances whose cached status may
	// have drifted from the time bucket implied by now.
	FindOpenForSweep(ctx context.Context, orgID common.OrgID, now time.Time) ([]*Instance, error)
}
