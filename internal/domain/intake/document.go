package intake

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/contabil/fiscore/internal/domain/obligation"
	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// DeliveryState enumeration
// ─────────────────────────────────────────────────────────────────────────────

// DeliveryState tracks the client-facing delivery outcome of a document.
type DeliveryState string

const (
	DeliverySent      DeliveryState = "sent"
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryBounced   DeliveryState = "bounced"
	DeliveryFailed    DeliveryState = "failed"
)

// ─────────────────────────────────────────────────────────────────────────────
// Document entity
// ─────────────────────────────────────────────────────────────────────────────

// Document is the permanent record produced when a staged upload is
// promoted.  Documents are only ever created by the promoter, one per
// promoted upload, and soft-deleted at most.
type Document struct {
	ID    common.ID    `json:"id"`
	OrgID common.OrgID `json:"org_id"`

	ClientID     common.ID             `json:"client_id"`
	ObligationID common.ID             `json:"obligation_id"`
	Competence   obligation.Competence `json:"competence"`

	// SourceUploadID links back to the staging upload this document was
	// promoted from, making the promotion auditable and retries
	// idempotent.
	SourceUploadID common.ID `json:"source_upload_id"`

	// FileName is the final stored name, possibly collision-renamed.
	FileName string `json:"file_name"`

	// FilePath is the permanent client-scoped object path.
	FilePath string `json:"file_path"`

	Amount *decimal.Decimal `json:"amount,omitempty"`
	DueAt  *time.Time       `json:"due_at,omitempty"`

	DeliveredAt   time.Time     `json:"delivered_at"`
	DeliveredBy   common.UserID `json:"delivered_by"`
	DeliveryState DeliveryState `json:"delivery_state"`

	ViewedAt  *time.Time `json:"viewed_at,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// NewDocument builds the permanent record for one promoted upload.
func NewDocument(
	upload *StagingUpload,
	finalName, finalPath string,
	deliveredBy common.UserID,
	now time.Time,
) (*Document, error) {
	if upload.ClientID == nil || upload.ObligationID == nil || upload.Competence == nil {
		return nil, errors.New(errors.ErrCodeUploadNotReady,
			"upload is missing resolved client, obligation, or competence")
	}
	if err := upload.Competence.Validate(); err != nil {
		return nil, err
	}

	return &Document{
		ID:             common.NewID(),
		OrgID:          upload.OrgID,
		ClientID:       *upload.ClientID,
		ObligationID:   *upload.ObligationID,
		Competence:     *upload.Competence,
		SourceUploadID: upload.ID,
		FileName:       finalName,
		FilePath:       finalPath,
		Amount:         upload.Amount,
		DueAt:          upload.DueAt,
		DeliveredAt:    now,
		DeliveredBy:    deliveredBy,
		DeliveryState:  DeliverySent,
	}, nil
}

// MarkViewed records the first client view; later views keep the original
// timestamp.
func (d *Document) MarkViewed(now time.Time) {
	if d.ViewedAt == nil {
		d.ViewedAt = &now
	}
}

// SetDeliveryState records the delivery outcome reported by the dispatcher.
func (d *Document) SetDeliveryState(state DeliveryState) {
	d.DeliveryState = state
}

// SoftDelete hides the document without destroying the historical record.
func (d *Document) SoftDelete(now time.Time) error {
	if d.DeletedAt != nil {
		return errors.New(errors.ErrCodeDocumentDeleted, "document is already deleted")
	}
	d.DeletedAt = &now
	return nil
}

// Deleted reports whether the document is soft-deleted.
func (d *Document) Deleted() bool {
	return d.DeletedAt != nil
}
