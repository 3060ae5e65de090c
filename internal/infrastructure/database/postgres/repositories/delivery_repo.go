package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/contabil/fiscore/internal/domain/delivery"
	"github.com/contabil/fiscore/internal/infrastructure/database/postgres"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

type postgresDeliveryRepo struct {
	baseRepo
}

// NewPostgresDeliveryRepo builds the delivery-queue repository.
func NewPostgresDeliveryRepo(conn *postgres.Connection, log logging.Logger) delivery.QueueRepository {
	return &postgresDeliveryRepo{baseRepo: baseRepo{conn: conn, log: log}}
}

const deliveryColumns = `
	id, org_id, document_id, status, attempts, max_attempts,
	next_retry_at, error_message, created_at, updated_at
`

func (r *postgresDeliveryRepo) Create(ctx context.Context, item *delivery.QueueItem) error {
	query := `
		INSERT INTO delivery_queue (
			id, org_id, document_id, status, attempts, max_attempts,
			next_retry_at, error_message, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.executor().ExecContext(ctx, query,
		item.ID, item.OrgID, item.DocumentID, item.Status, item.Attempts,
		item.MaxAttempts, item.NextRetryAt, nullableString(item.ErrorMessage),
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create delivery queue item")
	}
	return nil
}

func (r *postgresDeliveryRepo) FindByID(ctx context.Context, orgID common.OrgID, id common.ID) (*delivery.QueueItem, error) {
	query := `SELECT ` + deliveryColumns + ` FROM delivery_queue WHERE org_id = $1 AND id = $2`
	return scanQueueItem(r.executor().QueryRowContext(ctx, query, orgID, id))
}

func (r *postgresDeliveryRepo) Update(ctx context.Context, item *delivery.QueueItem) error {
	query := `
		UPDATE delivery_queue SET
			status = $1,
			attempts = $2,
			next_retry_at = $3,
			error_message = $4,
			updated_at = $5
		WHERE org_id = $6 AND id = $7
	`
	result, err := r.executor().ExecContext(ctx, query,
		item.Status, item.Attempts, item.NextRetryAt,
		nullableString(item.ErrorMessage), item.UpdatedAt, item.OrgID, item.ID,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update delivery queue item")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return errors.New(errors.ErrCodeDeliveryNotFound, "delivery queue item not found")
	}
	return nil
}

func (r *postgresDeliveryRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]*delivery.QueueItem, error) {
	// FOR UPDATE SKIP LOCKED lets concurrent dispatchers claim disjoint
	// batches.
	query := `
		SELECT ` + deliveryColumns + `
		FROM delivery_queue
		WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY next_retry_at ASC NULLS FIRST, created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	rows, err := r.executor().QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query due delivery items")
	}
	defer rows.Close()

	var result []*delivery.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func (r *postgresDeliveryRepo) List(ctx context.Context, orgID common.OrgID, status *delivery.Status, page common.Pagination) ([]*delivery.QueueItem, int64, error) {
	page = page.Normalize()

	where := "WHERE org_id = $1"
	args := []interface{}{orgID}
	if status != nil {
		where += " AND status = $2"
		args = append(args, *status)
	}

	var total int64
	if err := r.executor().QueryRowContext(ctx, `SELECT COUNT(*) FROM delivery_queue `+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count delivery queue items")
	}

	listQuery := `SELECT ` + deliveryColumns + ` FROM delivery_queue ` + where +
		` ORDER BY created_at DESC`
	if status != nil {
		listQuery += ` LIMIT $3 OFFSET $4`
	} else {
		listQuery += ` LIMIT $2 OFFSET $3`
	}
	args = append(args, page.PageSize, page.Offset())

	rows, err := r.executor().QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list delivery queue items")
	}
	defer rows.Close()

	var result []*delivery.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, item)
	}
	return result, total, rows.Err()
}

func (r *postgresDeliveryRepo) CountByStatus(ctx context.Context, status delivery.Status) (int64, error) {
	var count int64
	err := r.executor().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_queue WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count delivery queue items")
	}
	return count, nil
}

func scanQueueItem(s scanner) (*delivery.QueueItem, error) {
	var (
		item        delivery.QueueItem
		nextRetryAt sql.NullTime
		errMessage  sql.NullString
	)
	err := s.Scan(
		&item.ID, &item.OrgID, &item.DocumentID, &item.Status, &item.Attempts,
		&item.MaxAttempts, &nextRetryAt, &errMessage, &item.CreatedAt, &item.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeDeliveryNotFound, "delivery queue item not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan delivery queue item")
	}
	if nextRetryAt.Valid {
		t := nextRetryAt.Time
		item.NextRetryAt = &t
	}
	item.ErrorMessage = errMessage.String
	return &item, nil
}
