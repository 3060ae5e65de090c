package intake

import (
	"context"
	"time"

	"github.com/contabil/fiscore/internal/domain/intake"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/internal/infrastructure/storage/minio"
	"github.com/contabil/fiscore/pkg/types/common"
)

// DocumentService exposes read and lifecycle operations on promoted
// documents.
type DocumentService interface {
	Get(ctx context.Context, orgID common.OrgID, id common.ID) (*intake.Document, error)

	List(ctx context.Context, orgID common.OrgID, filter intake.DocumentFilter, page common.Pagination) ([]*intake.Document, int64, error)

	// View records the client's first view and returns a presigned
	// download URL.
	View(ctx context.Context, orgID common.OrgID, id common.ID) (string, error)

	// SoftDelete hides a document from listings.  The stored file and the
	// row stay for the audit trail.
	SoftDelete(ctx context.Context, orgID common.OrgID, id common.ID) error
}

type documentServiceImpl struct {
	documentRepo intake.DocumentRepository
	files        minio.FileStore
	urlTTL       time.Duration
	logger       logging.Logger
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(documentRepo intake.DocumentRepository, files minio.FileStore, urlTTL time.Duration, logger logging.Logger) DocumentService {
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	return &documentServiceImpl{documentRepo: documentRepo, files: files, urlTTL: urlTTL, logger: logger}
}

func (s *documentServiceImpl) Get(ctx context.Context, orgID common.OrgID, id common.ID) (*intake.Document, error) {
	return s.documentRepo.FindByID(ctx, orgID, id)
}

func (s *documentServiceImpl) List(ctx context.Context, orgID common.OrgID, filter intake.DocumentFilter, page common.Pagination) ([]*intake.Document, int64, error) {
	page = page.Normalize()
	return s.documentRepo.List(ctx, orgID, filter, page)
}

func (s *documentServiceImpl) View(ctx context.Context, orgID common.OrgID, id common.ID) (string, error) {
	doc, err := s.documentRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return "", err
	}

	url, err := s.files.PresignedGetURL(ctx, doc.FilePath, s.urlTTL)
	if err != nil {
		return "", err
	}

	doc.MarkViewed(time.Now().UTC())
	if err := s.documentRepo.Update(ctx, doc); err != nil {
		// The view still happened; losing the timestamp is not worth
		// failing the download.
		s.logger.Warn("failed to record document view",
			logging.String("document_id", string(id)),
			logging.Err(err))
	}
	return url, nil
}

func (s *documentServiceImpl) SoftDelete(ctx context.Context, orgID common.OrgID, id common.ID) error {
	doc, err := s.documentRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return err
	}
	if err := doc.SoftDelete(time.Now().UTC()); err != nil {
		return err
	}
	if err := s.documentRepo.Update(ctx, doc); err != nil {
		return err
	}
	s.logger.Info("document soft-deleted", logging.String("document_id", string(id)))
	return nil
}
