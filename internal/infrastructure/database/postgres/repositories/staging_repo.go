package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/contabil/fiscore/internal/domain/intake"
	"github.com/contabil/fiscore/internal/domain/obligation"
	"github.com/contabil/fiscore/internal/infrastructure/database/postgres"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

type postgresStagingRepo struct {
	baseRepo
}

// NewPostgresStagingRepo builds the staging-upload repository.
func NewPostgresStagingRepo(conn *postgres.Connection, log logging.Logger) intake.StagingRepository {
	return &postgresStagingRepo{baseRepo: baseRepo{conn: conn, log: log}}
}

const stagingColumns = `
	id, org_id, uploaded_by, file_name, file_path, file_size,
	state, ocr_status, ocr_data, ocr_error,
	client_id, obligation_id, competence, amount, due_at,
	created_at, updated_at
`

func (r *postgresStagingRepo) Create(ctx context.Context, u *intake.StagingUpload) error {
	ocrJSON, err := encodeOCRData(u.OCRData)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO staging_uploads (
			id, org_id, uploaded_by, file_name, file_path, file_size,
			state, ocr_status, ocr_data, ocr_error,
			client_id, obligation_id, competence, amount, due_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = r.executor().ExecContext(ctx, query,
		u.ID, u.OrgID, u.UploadedBy, u.FileName, u.FilePath, u.FileSize,
		u.State, u.OCRStatus, ocrJSON, nullableString(u.OCRError),
		u.ClientID, u.ObligationID, u.Competence, decimalOrNil(u.Amount), u.DueAt,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create staging upload")
	}
	return nil
}

func (r *postgresStagingRepo) FindByID(ctx context.Context, orgID common.OrgID, id common.ID) (*intake.StagingUpload, error) {
	query := `SELECT ` + stagingColumns + ` FROM staging_uploads WHERE org_id = $1 AND id = $2`
	return scanStagingUpload(r.executor().QueryRowContext(ctx, query, orgID, id))
}

// Update writes every mutable column.  Only rows still pending in the
// database match: a stale write from an in-flight OCR pass cannot
// regress a row that was classified meanwhile.
func (r *postgresStagingRepo) Update(ctx context.Context, u *intake.StagingUpload) error {
	ocrJSON, err := encodeOCRData(u.OCRData)
	if err != nil {
		return err
	}

	query := `
		UPDATE staging_uploads SET
			file_path = $1,
			state = $2,
			ocr_status = $3,
			ocr_data = $4,
			ocr_error = $5,
			client_id = $6,
			obligation_id = $7,
			competence = $8,
			amount = $9,
			due_at = $10,
			updated_at = $11
		WHERE org_id = $12 AND id = $13 AND state = 'pending'
	`
	result, err := r.executor().ExecContext(ctx, query,
		u.FilePath, u.State, u.OCRStatus, ocrJSON, nullableString(u.OCRError),
		u.ClientID, u.ObligationID, u.Competence, decimalOrNil(u.Amount), u.DueAt,
		u.UpdatedAt, u.OrgID, u.ID,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update staging upload")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return errors.New(errors.ErrCodeUploadNotFound,
			"staging upload not found or no longer pending")
	}
	return nil
}

func (r *postgresStagingRepo) Delete(ctx context.Context, orgID common.OrgID, id common.ID) error {
	query := `DELETE FROM staging_uploads WHERE org_id = $1 AND id = $2 AND state = 'pending'`
	result, err := r.executor().ExecContext(ctx, query, orgID, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete staging upload")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return errors.New(errors.ErrCodeUploadNotFound,
			"staging upload not found or no longer pending")
	}
	return nil
}

func (r *postgresStagingRepo) List(ctx context.Context, orgID common.OrgID, filter intake.StagingFilter, page common.Pagination) ([]*intake.StagingUpload, int64, error) {
	page = page.Normalize()

	where := "WHERE org_id = $1"
	args := []interface{}{orgID}
	next := 2

	appendCond := func(cond string, value interface{}) {
		where += fmt.Sprintf(" AND "+cond, next)
		args = append(args, value)
		next++
	}

	if filter.State != nil {
		appendCond("state = $%d", *filter.State)
	}
	if filter.OCRStatus != nil {
		appendCond("ocr_status = $%d", *filter.OCRStatus)
	}
	if filter.ClientID != nil {
		appendCond("client_id = $%d", *filter.ClientID)
	}
	if filter.ReadyForBatch {
		where += ` AND state = 'pending'
			AND ocr_status NOT IN ('pending', 'processing')
			AND client_id IS NOT NULL
			AND obligation_id IS NOT NULL
			AND competence IS NOT NULL`
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM staging_uploads ` + where
	if err := r.executor().QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count staging uploads")
	}

	listQuery := fmt.Sprintf(
		`SELECT %s FROM staging_uploads %s ORDER BY created_at DESC, id ASC LIMIT $%d OFFSET $%d`,
		stagingColumns, where, next, next+1,
	)
	args = append(args, page.PageSize, page.Offset())

	rows, err := r.executor().QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list staging uploads")
	}
	defer rows.Close()

	var result []*intake.StagingUpload
	for rows.Next() {
		u, err := scanStagingUpload(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, u)
	}
	return result, total, rows.Err()
}

func scanStagingUpload(s scanner) (*intake.StagingUpload, error) {
	var (
		u          intake.StagingUpload
		ocrJSON    []byte
		ocrError   sql.NullString
		clientID   sql.NullString
		obligID    sql.NullString
		competence sql.NullString
		amount     sql.NullString
		dueAt      sql.NullTime
	)
	err := s.Scan(
		&u.ID, &u.OrgID, &u.UploadedBy, &u.FileName, &u.FilePath, &u.FileSize,
		&u.State, &u.OCRStatus, &ocrJSON, &ocrError,
		&clientID, &obligID, &competence, &amount, &dueAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeUploadNotFound, "staging upload not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan staging upload")
	}

	u.OCRError = ocrError.String
	if len(ocrJSON) > 0 {
		var data intake.OCRData
		if err := json.Unmarshal(ocrJSON, &data); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode OCR data")
		}
		u.OCRData = &data
	}
	if clientID.Valid {
		id := common.ID(clientID.String)
		u.ClientID = &id
	}
	if obligID.Valid {
		id := common.ID(obligID.String)
		u.ObligationID = &id
	}
	if competence.Valid {
		c := obligation.Competence(competence.String)
		u.Competence = &c
	}
	if amount.Valid {
		d, err := decimal.NewFromString(amount.String)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode amount")
		}
		u.Amount = &d
	}
	if dueAt.Valid {
		t := dueAt.Time
		u.DueAt = &t
	}
	return &u, nil
}

func encodeOCRData(data *intake.OCRData) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode OCR data")
	}
	return b, nil
}

func decimalOrNil(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}
