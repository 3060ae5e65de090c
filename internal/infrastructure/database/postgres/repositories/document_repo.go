package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/contabil/fiscore/internal/domain/intake"
	"github.com/contabil/fiscore/internal/infrastructure/database/postgres"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

type postgresDocumentRepo struct {
	baseRepo
}

// NewPostgresDocumentRepo builds the permanent-document repository.
func NewPostgresDocumentRepo(conn *postgres.Connection, log logging.Logger) intake.DocumentRepository {
	return &postgresDocumentRepo{baseRepo: baseRepo{conn: conn, log: log}}
}

const documentColumns = `
	id, org_id, client_id, obligation_id, competence, source_upload_id,
	file_name, file_path, amount, due_at,
	delivered_at, delivered_by, delivery_state, viewed_at, deleted_at
`

func (r *postgresDocumentRepo) Create(ctx context.Context, d *intake.Document) error {
	query := `
		INSERT INTO documents (
			id, org_id, client_id, obligation_id, competence, source_upload_id,
			file_name, file_path, amount, due_at,
			delivered_at, delivered_by, delivery_state, viewed_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.executor().ExecContext(ctx, query,
		d.ID, d.OrgID, d.ClientID, d.ObligationID, d.Competence, d.SourceUploadID,
		d.FileName, d.FilePath, decimalOrNil(d.Amount), d.DueAt,
		d.DeliveredAt, d.DeliveredBy, d.DeliveryState, d.ViewedAt, d.DeletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.New(errors.ErrCodeConflict,
				"a document was already promoted from this upload")
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create document")
	}
	return nil
}

func (r *postgresDocumentRepo) FindByID(ctx context.Context, orgID common.OrgID, id common.ID) (*intake.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE org_id = $1 AND id = $2`
	return scanDocument(r.executor().QueryRowContext(ctx, query, orgID, id))
}

func (r *postgresDocumentRepo) FindBySourceUpload(ctx context.Context, orgID common.OrgID, uploadID common.ID) (*intake.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE org_id = $1 AND source_upload_id = $2`
	return scanDocument(r.executor().QueryRowContext(ctx, query, orgID, uploadID))
}

func (r *postgresDocumentRepo) Update(ctx context.Context, d *intake.Document) error {
	query := `
		UPDATE documents SET
			delivery_state = $1,
			viewed_at = $2,
			deleted_at = $3
		WHERE org_id = $4 AND id = $5
	`
	result, err := r.executor().ExecContext(ctx, query,
		d.DeliveryState, d.ViewedAt, d.DeletedAt, d.OrgID, d.ID,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update document")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return errors.New(errors.ErrCodeDocumentNotFound, "document not found")
	}
	return nil
}

func (r *postgresDocumentRepo) List(ctx context.Context, orgID common.OrgID, filter intake.DocumentFilter, page common.Pagination) ([]*intake.Document, int64, error) {
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
	if !filter.IncludeDeleted {
		where += " AND deleted_at IS NULL"
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM documents ` + where
	if err := r.executor().QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count documents")
	}

	listQuery := fmt.Sprintf(
		`SELECT %s FROM documents %s ORDER BY delivered_at DESC, id ASC LIMIT $%d OFFSET $%d`,
		documentColumns, where, next, next+1,
	)
	args = append(args, page.PageSize, page.Offset())

	rows, err := r.executor().QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list documents")
	}
	defer rows.Close()

	var result []*intake.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, d)
	}
	return result, total, rows.Err()
}

func scanDocument(s scanner) (*intake.Document, error) {
	var (
		d        intake.Document
		amount   sql.NullString
		dueAt    sql.NullTime
		viewedAt sql.NullTime
		deleted  sql.NullTime
	)
	err := s.Scan(
		&d.ID, &d.OrgID, &d.ClientID, &d.ObligationID, &d.Competence, &d.SourceUploadID,
		&d.FileName, &d.FilePath, &amount, &dueAt,
		&d.DeliveredAt, &d.DeliveredBy, &d.DeliveryState, &viewedAt, &deleted,
	)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeDocumentNotFound, "document not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan document")
	}
	if amount.Valid {
		dec, err := decimal.NewFromString(amount.String)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode amount")
		}
		d.Amount = &dec
	}
	if dueAt.Valid {
		t := dueAt.Time
		d.DueAt = &t
	}
	if viewedAt.Valid {
		t := viewedAt.Time
		d.ViewedAt = &t
	}
	if deleted.Valid {
		t := deleted.Time
		d.DeletedAt = &t
	}
	return &d, nil
}
