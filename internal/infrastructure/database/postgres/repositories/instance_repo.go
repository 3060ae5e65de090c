package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/contabil/fiscore/internal/domain/obligation"
	"github.com/contabil/fiscore/internal/infrastructure/database/postgres"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

type postgresInstanceRepo struct {
	baseRepo
}

// NewPostgresInstanceRepo builds the obligation-instance repository.
func NewPostgresInstanceRepo(conn *postgres.Connection, log logging.Logger) obligation.InstanceRepository {
	return &postgresInstanceRepo{baseRepo: baseRepo{conn: conn, log: log}}
}

const instanceColumns = `
	id, org_id, client_id, obligation_id, competence, due_at, internal_target_at,
	status, completed_at, completion_notes, completion_source, notified_due_day,
	created_at, updated_at
`

func (r *postgresInstanceRepo) Create(ctx context.Context, inst *obligation.Instance) error {
	query := `
		INSERT INTO obligation_instances (
			id, org_id, client_id, obligation_id, competence, due_at,
			internal_target_at, status, completed_at, completion_notes,
			completion_source, notified_due_day, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.executor().ExecContext(ctx, query,
		inst.ID, inst.OrgID, inst.ClientID, inst.ObligationID, inst.Competence,
		inst.DueAt, inst.InternalTargetAt, inst.Status, inst.CompletedAt,
		nullableString(inst.CompletionNotes), nullableString(string(inst.CompletionSource)),
		inst.NotifiedDueDay, inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.New(errors.ErrCodeInstanceDuplicate, fmt.Sprintf(
				"instance already exists for client %s, obligation %s, competence %s",
				inst.ClientID, inst.ObligationID, inst.Competence))
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create obligation instance")
	}
	return nil
}

func (r *postgresInstanceRepo) FindByID(ctx context.Context, orgID common.OrgID, id common.ID) (*obligation.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM obligation_instances WHERE org_id = $1 AND id = $2`
	return scanInstance(r.executor().QueryRowContext(ctx, query, orgID, id))
}

func (r *postgresInstanceRepo) FindByKey(ctx context.Context, orgID common.OrgID, clientID, obligationID common.ID, competence obligation.Competence) (*obligation.Instance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM obligation_instances
		WHERE org_id = $1 AND client_id = $2 AND obligation_id = $3 AND competence = $4
	`
	return scanInstance(r.executor().QueryRowContext(ctx, query, orgID, clientID, obligationID, competence))
}

func (r *postgresInstanceRepo) Update(ctx context.Context, inst *obligation.Instance) error {
	// Identity columns and internal_target_at are immutable after creation.
	query := `
		UPDATE obligation_instances SET
			status = $1,
			completed_at = $2,
			completion_notes = $3,
			completion_source = $4,
			notified_due_day = $5,
			updated_at = $6
		WHERE org_id = $7 AND id = $8
	`
	result, err := r.executor().ExecContext(ctx, query,
		inst.Status, inst.CompletedAt, nullableString(inst.CompletionNotes),
		nullableString(string(inst.CompletionSource)), inst.NotifiedDueDay,
		inst.UpdatedAt, inst.OrgID, inst.ID,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update obligation instance")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return errors.New(errors.ErrCodeInstanceNotFound, "obligation instance not found")
	}
	return nil
}

func (r *postgresInstanceRepo) List(ctx context.Context, orgID common.OrgID, filter obligation.InstanceFilter, page common.Pagination) ([]*obligation.Instance, int64, error) {
	page = page.Normalize()

	where := "WHERE org_id = $1"
	args := []interface{}{orgID}
	next := 2

	appendCond := func(cond string, value interface{}) {
		where += fmt.Sprintf(" AND "+cond, next)
		args = append(args, value)
		next++
	}

	if filter.ClientID != nil {
		appendCond("client_id = $%d", *filter.ClientID)
	}
	if filter.ObligationID != nil {
		appendCond("obligation_id = $%d", *filter.ObligationID)
	}
	if filter.Competence != nil {
		appendCond("competence = $%d", *filter.Competence)
	}
	if filter.Status != nil {
		appendCond("status = $%d", *filter.Status)
	}
	if filter.DueBefore != nil {
		appendCond("due_at <= $%d", *filter.DueBefore)
	}
	if filter.DueAfter != nil {
		appendCond("due_at >= $%d", *filter.DueAfter)
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM obligation_instances ` + where
	if err := r.executor().QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count obligation instances")
	}

	listQuery := fmt.Sprintf(
		`SELECT %s FROM obligation_instances %s ORDER BY internal_target_at ASC, id ASC LIMIT $%d OFFSET $%d`,
		instanceColumns, where, next, next+1,
	)
	args = append(args, page.PageSize, page.Offset())

	rows, err := r.executor().QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list obligation instances")
	}
	defer rows.Close()

	var result []*obligation.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, inst)
	}
	return result, total, rows.Err()
}

func (r *postgresInstanceRepo) FindOpenForSweep(ctx context.Context, orgID common.OrgID, now time.Time) ([]*obligation.Instance, error) {
	// An open instance's cached status can only drift forward: pending rows
	// entering the 48h window and pending/due_48h rows passing the target.
	query := `
		SELECT ` + instanceColumns + `
		FROM obligation_instances
		WHERE org_id = $1
		  AND completed_at IS NULL
		  AND (
			(status = 'pending' AND internal_target_at <= $2) OR
			(status = 'due_48h' AND internal_target_at < $3)
		  )
		ORDER BY internal_target_at ASC
	`
	rows, err := r.executor().QueryContext(ctx, query, orgID, now.Add(obligation.DueSoonWindow), now)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query instances for sweep")
	}
	defer rows.Close()

	var result []*obligation.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}

func scanInstance(s scanner) (*obligation.Instance, error) {
	var (
		inst             obligation.Instance
		completedAt      sql.NullTime
		notes, source    sql.NullString
	)
	err := s.Scan(
		&inst.ID, &inst.OrgID, &inst.ClientID, &inst.ObligationID, &inst.Competence,
		&inst.DueAt, &inst.InternalTargetAt, &inst.Status, &completedAt,
		&notes, &source, &inst.NotifiedDueDay, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeInstanceNotFound, "obligation instance not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan obligation instance")
	}
	if completedAt.Valid {
		t := completedAt.Time
		inst.CompletedAt = &t
	}
	inst.CompletionNotes = notes.String
	inst.CompletionSource = obligation.CompletionSource(source.String)
	return &inst, nil
}
