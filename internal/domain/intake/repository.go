package intake

import (
	"context"

	"github.com/contabil/fiscore/internal/domain/obligation"
	"github.com/contabil/fiscore/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Repository interfaces
// ─────────────────────────────────────────────────────────────────────────────

// StagingFilter narrows staging upload listings.
type StagingFilter struct {
	State     *UploadState
	OCRStatus *OCRStatus
	ClientID  *common.ID

	// ReadyForBatch, when true, restricts to uploads satisfying the batch
	// precondition (OCR finished, client/obligation/competence resolved).
	ReadyForBatch bool
}

// StagingRepository persists uploads awaiting classification.
type StagingRepository interface {
	Create(ctx context.Context, u *StagingUpload) error
	FindByID(ctx context.Context, orgID common.OrgID, id common.ID) (*StagingUpload, error)
	Update(ctx context.Context, u *StagingUpload) error

	// Delete removes the row; callers remove the backing file first.
	// Only pending uploads may be deleted.
	Delete(ctx context.Context, orgID common.OrgID, id common.ID) error

	List(ctx context.Context, orgID common.OrgID, filter StagingFilter, page common.Pagination) ([]*StagingUpload, int64, error)
}

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	ClientID       *common.ID
	ObligationID   *common.ID
	Competence     *obligation.Competence
	IncludeDeleted bool
}

// DocumentRepository persists promoted documents.
type DocumentRepository interface {
	Create(ctx context.Context, d *Document) error
	FindByID(ctx context.Context, orgID common.OrgID, id common.ID) (*Document, error)

	// FindBySourceUpload fetches the document promoted from a given
	// staging upload, if any.  Used for idempotent promotion retries.
	FindBySourceUpload(ctx context.Context, orgID common.OrgID, uploadID common.ID) (*Document, error)

	Update(ctx context.Context, d *Document) error
	List(ctx context.Context, orgID common.OrgID, filter DocumentFilter, page common.Pagination) ([]*Document, int64, error)
}
