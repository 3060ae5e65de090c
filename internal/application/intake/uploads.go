package intake

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/shopspring/decimal"

	"github.com/contabil/fiscore/internal/domain/intake"
	"github.com/contabil/fiscore/internal/domain/obligation"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/prometheus"
	"github.com/contabil/fiscore/internal/infrastructure/storage/minio"
	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

// CreateUploadRequest registers one file in the staging area.
type CreateUploadRequest struct {
	FileName   string
	Data       []byte
	UploadedBy common.UserID
}

// ResolveUploadRequest applies a staff member's classification values to
// a staged upload, overriding whatever extraction suggested.
type ResolveUploadRequest struct {
	UploadID     common.ID
	ClientID     common.ID
	ObligationID common.ID
	Competence   obligation.Competence
	Amount       *decimal.Decimal
	DueAt        *time.Time
}

// UploadService manages the staging area.
type UploadService interface {
	// Create stores the file under the staging prefix and registers the
	// upload in pending state.
	Create(ctx context.Context, orgID common.OrgID, req CreateUploadRequest) (*intake.StagingUpload, error)

	Get(ctx context.Context, orgID common.OrgID, id common.ID) (*intake.StagingUpload, error)

	List(ctx context.Context, orgID common.OrgID, filter intake.StagingFilter, page common.Pagination) ([]*intake.StagingUpload, int64, error)

	// Resolve applies staff classification values to a pending upload.
	Resolve(ctx context.Context, orgID common.OrgID, req ResolveUploadRequest) (*intake.StagingUpload, error)

	// Delete removes a pending upload: staged file first, then the row.
	// A file already gone from storage does not block the delete.
	Delete(ctx context.Context, orgID common.OrgID, id common.ID) error
}

type uploadServiceImpl struct {
	stagingRepo   intake.StagingRepository
	files         minio.FileStore
	stagingPrefix string
	metrics       *prometheus.AppMetrics
	logger        logging.Logger
}

// NewUploadService constructs an UploadService.
func NewUploadService(
	stagingRepo intake.StagingRepository,
	files minio.FileStore,
	stagingPrefix string,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) UploadService {
	if stagingPrefix == "" {
		stagingPrefix = "staging"
	}
	return &uploadServiceImpl{
		stagingRepo:   stagingRepo,
		files:         files,
		stagingPrefix: stagingPrefix,
		metrics:       metrics,
		logger:        logger,
	}
}

func (s *uploadServiceImpl) Create(ctx context.Context, orgID common.OrgID, req CreateUploadRequest) (*intake.StagingUpload, error) {
	now := time.Now().UTC()
	upload, err := intake.NewStagingUpload(orgID, req.UploadedBy, req.FileName, "", int64(len(req.Data)), now)
	if err != nil {
		s.metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	// Path includes the upload ID so two staged files with the same name
	// never collide before classification.
	upload.FilePath = path.Join(s.stagingPrefix, string(orgID), fmt.Sprintf("%s_%s", upload.ID, upload.FileName))

	contentType := http.DetectContentType(req.Data)
	if err := s.files.Upload(ctx, upload.FilePath, req.Data, contentType); err != nil {
		s.metrics.UploadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := s.stagingRepo.Create(ctx, upload); err != nil {
		// The row is the source of truth; a file without a row is
		// invisible garbage, so best-effort clean it up.
		if delErr := s.files.Delete(ctx, upload.FilePath); delErr != nil {
			s.logger.Warn("failed to remove staged file after create failure",
				logging.String("path", upload.FilePath),
				logging.Err(delErr))
		}
		s.metrics.UploadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	s.metrics.UploadsTotal.WithLabelValues("accepted").Inc()
	s.logger.Info("upload staged",
		logging.String("upload_id", string(upload.ID)),
		logging.String("file_name", upload.FileName),
		logging.Int64("size", upload.FileSize))
	return upload, nil
}

func (s *uploadServiceImpl) Get(ctx context.Context, orgID common.OrgID, id common.ID) (*intake.StagingUpload, error) {
	return s.stagingRepo.FindByID(ctx, orgID, id)
}

func (s *uploadServiceImpl) List(ctx context.Context, orgID common.OrgID, filter intake.StagingFilter, page common.Pagination) ([]*intake.StagingUpload, int64, error) {
	page = page.Normalize()
	return s.stagingRepo.List(ctx, orgID, filter, page)
}

func (s *uploadServiceImpl) Resolve(ctx context.Context, orgID common.OrgID, req ResolveUploadRequest) (*intake.StagingUpload, error) {
	upload, err := s.stagingRepo.FindByID(ctx, orgID, req.UploadID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := upload.Resolve(req.ClientID, req.ObligationID, req.Competence, req.Amount, req.DueAt, now); err != nil {
		return nil, err
	}
	if err := s.stagingRepo.Update(ctx, upload); err != nil {
		return nil, err
	}

	s.logger.Info("upload resolved by staff",
		logging.String("upload_id", string(upload.ID)),
		logging.String("client_id", string(req.ClientID)),
		logging.String("competence", string(req.Competence)))
	return upload, nil
}

func (s *uploadServiceImpl) Delete(ctx context.Context, orgID common.OrgID, id common.ID) error {
	upload, err := s.stagingRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return err
	}
	if !upload.Deletable() {
		return errors.New(errors.ErrCodeUploadNotPending, "only pending uploads can be deleted")
	}

	// File first: a row pointing at a missing file is recoverable noise, a
	// file with no row is unaccounted storage.
	if err := s.files.Delete(ctx, upload.FilePath); err != nil {
		return err
	}
	if err := s.stagingRepo.Delete(ctx, orgID, id); err != nil {
		return err
	}

	s.logger.Info("upload deleted",
		logging.String("upload_id", string(id)),
		logging.String("file_name", upload.FileName))
	return nil
}
