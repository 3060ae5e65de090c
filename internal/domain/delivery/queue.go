// Package delivery models the notification delivery queue: retry-with-backoff
// dispatch of document notifications with bounded attempts.
package delivery

import (
	"context"
	"time"

	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Status enumeration
// ─────────────────────────────────────────────────────────────────────────────

// Status is the delivery queue item lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no automatic transition leaves this status.
// A failed item with remaining attempts is not terminal.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusCancelled
}

// ─────────────────────────────────────────────────────────────────────────────
// QueueItem entity
// ─────────────────────────────────────────────────────────────────────────────

// QueueItem is one pending notification keyed to a promoted document.
type QueueItem struct {
	ID         common.ID    `json:"id"`
	OrgID      common.OrgID `json:"org_id"`
	DocumentID common.ID    `json:"document_id"`

	Status       Status     `json:"status"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewQueueItem enqueues a notification for one document, due immediately.
func NewQueueItem(orgID common.OrgID, documentID common.ID, maxAttempts int, now time.Time) (*QueueItem, error) {
	if maxAttempts < 1 {
		return nil, errors.New(errors.ErrCodeValidation, "max_attempts must be >= 1")
	}
	retryAt := now
	return &QueueItem{
		ID:          common.NewID(),
		OrgID:       orgID,
		DocumentID:  documentID,
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		NextRetryAt: &retryAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Due reports whether the item is ready for a dispatch attempt.
func (q *QueueItem) Due(now time.Time) bool {
	if q.Status != StatusPending {
		return false
	}
	return q.NextRetryAt == nil || !q.NextRetryAt.After(now)
}

// BeginAttempt claims the item for dispatch.
func (q *QueueItem) BeginAttempt(now time.Time) error {
	if q.Status != StatusPending {
		return errors.New(errors.ErrCodeConflict,
			"delivery item is not pending")
	}
	q.Status = StatusProcessing
	q.Attempts++
	q.UpdatedAt = now
	return nil
}

// MarkSent records a successful dispatch; terminal.
func (q *QueueItem) MarkSent(now time.Time) {
	q.Status = StatusSent
	q.NextRetryAt = nil
	q.ErrorMessage = ""
	q.UpdatedAt = now
}

// MarkFailure records a failed attempt.  Until MaxAttempts is reached the
// item returns to pending with an exponential backoff; afterwards it
// freezes at failed until a manual reprocess.
func (q *QueueItem) MarkFailure(message string, initialBackoff, maxBackoff time.Duration, now time.Time) {
	q.ErrorMessage = message
	q.UpdatedAt = now

	if q.Attempts >= q.MaxAttempts {
		q.Status = StatusFailed
		q.NextRetryAt = nil
		return
	}

	q.Status = StatusPending
	retryAt := now.Add(backoffFor(q.Attempts, initialBackoff, maxBackoff))
	q.NextRetryAt = &retryAt
}

// backoffFor doubles the delay per completed attempt, capped at maxBackoff.
func backoffFor(attempts int, initial, max time.Duration) time.Duration {
	d := initial
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Cancel withdraws a notification; only legal while still pending.
func (q *QueueItem) Cancel(now time.Time) error {
	if q.Status != StatusPending {
		return errors.New(errors.ErrCodeDeliveryNotCancellable,
			"only pending delivery items can be cancelled")
	}
	q.Status = StatusCancelled
	q.NextRetryAt = nil
	q.UpdatedAt = now
	return nil
}

// Reprocess resets a frozen failed item for another full retry cycle.
func (q *QueueItem) Reprocess(now time.Time) error {
	if q.Status != StatusFailed {
		return errors.New(errors.ErrCodeDeliveryNotReprocessable,
			"only failed delivery items can be reprocessed")
	}
	q.Status = StatusPending
	q.Attempts = 0
	q.ErrorMessage = ""
	retryAt := now
	q.NextRetryAt = &retryAt
	q.UpdatedAt = now
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Repository interface
// ─────────────────────────────────────────────────────────────────────────────

// QueueRepository persists delivery queue items.
type QueueRepository interface {
	Create(ctx context.Context, item *QueueItem) error
	FindByID(ctx context.Context, orgID common.OrgID, id common.ID) (*QueueItem, error)
	Update(ctx context.Context, item *QueueItem) error

	// FindDue returns up to limit pending items whose next_retry_at has
	// passed, oldest first.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*QueueItem, error)

	List(ctx context.Context, orgID common.OrgID, status *Status, page common.Pagination) ([]*QueueItem, int64, error)

	// CountByStatus feeds the queue-depth gauge.
	CountByStatus(ctx context.Context, status Status) (int64, error)
}
