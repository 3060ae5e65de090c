package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/contabil/fiscore/internal/domain/obligation"
	"github.com/contabil/fiscore/internal/infrastructure/database/postgres"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// CatalogRepository
// ─────────────────────────────────────────────────────────────────────────────

type postgresCatalogRepo struct {
	baseRepo
}

// NewPostgresCatalogRepo builds the obligation-template repository.
func NewPostgresCatalogRepo(conn *postgres.Connection, log logging.Logger) obligation.CatalogRepository {
	return &postgresCatalogRepo{baseRepo: baseRepo{conn: conn, log: log}}
}

const catalogColumns = `
	id, org_id, name, frequency, internal_target_day,
	legal_due_kind, legal_due_offset, fiscal_code, archived,
	created_at, updated_at
`

func (r *postgresCatalogRepo) Save(ctx context.Context, o *obligation.Obligation) error {
	query := `
		INSERT INTO obligations (
			id, org_id, name, frequency, internal_target_day,
			legal_due_kind, legal_due_offset, fiscal_code, archived,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			frequency = EXCLUDED.frequency,
			internal_target_day = EXCLUDED.internal_target_day,
			legal_due_kind = EXCLUDED.legal_due_kind,
			legal_due_offset = EXCLUDED.legal_due_offset,
			fiscal_code = EXCLUDED.fiscal_code,
			archived = EXCLUDED.archived,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.executor().ExecContext(ctx, query,
		o.ID, o.OrgID, o.Name, o.Schedule.Frequency, o.Schedule.InternalTargetDay,
		o.Schedule.LegalDueRule.Kind, o.Schedule.LegalDueRule.OffsetDays,
		nullableString(o.FiscalCode), o.Archived, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save obligation template")
	}
	return nil
}

func (r *postgresCatalogRepo) FindByID(ctx context.Context, orgID common.OrgID, id common.ID) (*obligation.Obligation, error) {
	query := `SELECT ` + catalogColumns + ` FROM obligations WHERE org_id = $1 AND id = $2`
	return scanObligation(r.executor().QueryRowContext(ctx, query, orgID, id))
}

func (r *postgresCatalogRepo) FindByFiscalCode(ctx context.Context, orgID common.OrgID, fiscalCode string) (*obligation.Obligation, error) {
	query := `
		SELECT ` + catalogColumns + `
		FROM obligations
		WHERE org_id = $1 AND fiscal_code = $2 AND NOT archived
		LIMIT 1
	`
	return scanObligation(r.executor().QueryRowContext(ctx, query, orgID, fiscalCode))
}

func (r *postgresCatalogRepo) FindByNameSubstring(ctx context.Context, orgID common.OrgID, fragment string) (*obligation.Obligation, error) {
	query := `
		SELECT ` + catalogColumns + `
		FROM obligations
		WHERE org_id = $1 AND name ILIKE $2 AND NOT archived
		ORDER BY name ASC
		LIMIT 1
	`
	return scanObligation(r.executor().QueryRowContext(ctx, query, orgID, "%"+fragment+"%"))
}

func (r *postgresCatalogRepo) List(ctx context.Context, orgID common.OrgID, includeArchived bool) ([]*obligation.Obligation, error) {
	query := `SELECT ` + catalogColumns + ` FROM obligations WHERE org_id = $1`
	if !includeArchived {
		query += ` AND NOT archived`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.executor().QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list obligation templates")
	}
	defer rows.Close()

	var result []*obligation.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func scanObligation(s scanner) (*obligation.Obligation, error) {
	var (
		o          obligation.Obligation
		fiscalCode sql.NullString
	)
	err := s.Scan(
		&o.ID, &o.OrgID, &o.Name, &o.Schedule.Frequency, &o.Schedule.InternalTargetDay,
		&o.Schedule.LegalDueRule.Kind, &o.Schedule.LegalDueRule.OffsetDays,
		&fiscalCode, &o.Archived, &o.CreatedAt, &o.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeObligationNotFound, "obligation template not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan obligation template")
	}
	o.FiscalCode = fiscalCode.String
	return &o, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ClientRepository
// ─────────────────────────────────────────────────────────────────────────────

type postgresClientRepo struct {
	baseRepo
}

// NewPostgresClientRepo builds the client-directory projection repository.
func NewPostgresClientRepo(conn *postgres.Connection, log logging.Logger) obligation.ClientRepository {
	return &postgresClientRepo{baseRepo: baseRepo{conn: conn, log: log}}
}

const clientColumns = `id, org_id, name, code, cpf_cnpj, nit, active, created_at, updated_at`

func (r *postgresClientRepo) FindByID(ctx context.Context, orgID common.OrgID, id common.ID) (*obligation.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE org_id = $1 AND id = $2`
	return scanClient(r.executor().QueryRowContext(ctx, query, orgID, id))
}

func (r *postgresClientRepo) FindByIdentifier(ctx context.Context, orgID common.OrgID, kind obligation.IdentifierKind, identifier string) (*obligation.Client, error) {
	column := "cpf_cnpj"
	if kind == obligation.IdentifierNIT {
		column = "nit"
	}
	query := `
		SELECT ` + clientColumns + `
		FROM clients
		WHERE org_id = $1 AND ` + column + ` = $2 AND active
		LIMIT 1
	`
	c, err := scanClient(r.executor().QueryRowContext(ctx, query, orgID, identifier))
	if errors.IsCode(err, errors.ErrCodeClientNotFound) {
		return nil, errors.New(errors.ErrCodeClientNotFound,
			"no active client matches identifier "+identifier)
	}
	return c, err
}

func (r *postgresClientRepo) List(ctx context.Context, orgID common.OrgID, onlyActive bool) ([]*obligation.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE org_id = $1`
	if onlyActive {
		query += ` AND active`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.executor().QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list clients")
	}
	defer rows.Close()

	var result []*obligation.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *postgresClientRepo) ListOrgIDs(ctx context.Context) ([]common.OrgID, error) {
	rows, err := r.executor().QueryContext(ctx, `SELECT DISTINCT org_id FROM clients ORDER BY org_id`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list org ids")
	}
	defer rows.Close()

	var result []common.OrgID
	for rows.Next() {
		var org common.OrgID
		if err := rows.Scan(&org); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan org id")
		}
		result = append(result, org)
	}
	return result, rows.Err()
}

func scanClient(s scanner) (*obligation.Client, error) {
	var (
		c            obligation.Client
		cpfCNPJ, nit sql.NullString
	)
	err := s.Scan(&c.ID, &c.OrgID, &c.Name, &c.Code, &cpfCNPJ, &nit, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeClientNotFound, "client not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan client")
	}
	c.CPFCNPJ = cpfCNPJ.String
	c.NIT = nit.String
	return &c, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// LinkRepository
// ─────────────────────────────────────────────────────────────────────────────

type postgresLinkRepo struct {
	baseRepo
}

// NewPostgresLinkRepo builds the client-obligation link repository.
func NewPostgresLinkRepo(conn *postgres.Connection, log logging.Logger) obligation.LinkRepository {
	return &postgresLinkRepo{baseRepo: baseRepo{conn: conn, log: log}}
}

const linkColumns = `id, org_id, client_id, obligation_id, active, schedule_override, created_at, updated_at`

func (r *postgresLinkRepo) Save(ctx context.Context, l *obligation.ClientObligationLink) error {
	var overrideJSON []byte
	if l.ScheduleOverride != nil {
		var err error
		overrideJSON, err = json.Marshal(l.ScheduleOverride)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode schedule override")
		}
	}

	query := `
		INSERT INTO client_obligation_links (
			id, org_id, client_id, obligation_id, active, schedule_override,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			active = EXCLUDED.active,
			schedule_override = EXCLUDED.schedule_override,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.executor().ExecContext(ctx, query,
		l.ID, l.OrgID, l.ClientID, l.ObligationID, l.Active, overrideJSON,
		l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.New(errors.ErrCodeConflict,
				"client is already linked to this obligation")
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save client obligation link")
	}
	return nil
}

func (r *postgresLinkRepo) FindByID(ctx context.Context, orgID common.OrgID, id common.ID) (*obligation.ClientObligationLink, error) {
	query := `SELECT ` + linkColumns + ` FROM client_obligation_links WHERE org_id = $1 AND id = $2`
	return scanLink(r.executor().QueryRowContext(ctx, query, orgID, id))
}

func (r *postgresLinkRepo) FindActive(ctx context.Context, orgID common.OrgID) ([]*obligation.ClientObligationLink, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM client_obligation_links
		WHERE org_id = $1 AND active
		ORDER BY created_at ASC
	`
	return r.queryLinks(ctx, query, orgID)
}

func (r *postgresLinkRepo) ListByClient(ctx context.Context, orgID common.OrgID, clientID common.ID) ([]*obligation.ClientObligationLink, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM client_obligation_links
		WHERE org_id = $1 AND client_id = $2
		ORDER BY created_at ASC
	`
	return r.queryLinks(ctx, query, orgID, clientID)
}

func (r *postgresLinkRepo) queryLinks(ctx context.Context, query string, args ...interface{}) ([]*obligation.ClientObligationLink, error) {
	rows, err := r.executor().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query client obligation links")
	}
	defer rows.Close()

	var result []*obligation.ClientObligationLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func scanLink(s scanner) (*obligation.ClientObligationLink, error) {
	var (
		l            obligation.ClientObligationLink
		overrideJSON []byte
	)
	err := s.Scan(&l.ID, &l.OrgID, &l.ClientID, &l.ObligationID, &l.Active, &overrideJSON, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeNotFound, "client obligation link not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan client obligation link")
	}
	if len(overrideJSON) > 0 {
		var override obligation.Schedule
		if err := json.Unmarshal(overrideJSON, &override); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode schedule override")
		}
		l.ScheduleOverride = &override
	}
	return &l, nil
}

func nullableString(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
