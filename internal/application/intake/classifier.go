package intake

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/contabil/fiscore/internal/domain/delivery"
	"github.com/contabil/fiscore/internal/domain/intake"
	"github.com/contabil/fiscore/internal/domain/obligation"
	"github.com/contabil/fiscore/internal/infrastructure/messaging/kafka"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/prometheus"
	"github.com/contabil/fiscore/internal/infrastructure/storage/minio"
	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

// maxRenameAttempts bounds how many collision-renamed destinations the
// promoter will try before giving up on an upload.
const maxRenameAttempts = 5

// EventPublisher is the slice of the Kafka producer the intake services
// use.
type EventPublisher interface {
	PublishJSON(ctx context.Context, topic, key, eventType string, payload interface{}) error
}

// InstanceCompleter is the cascade-completion hook a successful
// promotion triggers.
type InstanceCompleter interface {
	CompleteFromDocument(ctx context.Context, orgID common.OrgID, clientID, obligationID common.ID, competence obligation.Competence) error
}

// ClassifierService promotes staged uploads into permanent documents.
type ClassifierService interface {
	// Classify promotes one resolved upload: the staged file moves to its
	// permanent client path before the Document row is written, so a
	// failure can orphan a file but never produce a Document without one.
	Classify(ctx context.Context, orgID common.OrgID, uploadID common.ID, deliveredBy common.UserID) (*intake.Document, error)

	// ClassifyBatch promotes every listed upload with per-item isolation:
	// one failing item never stops the rest.  Only uploads that are
	// ReadyForBatch are promoted; the rest land in the failure summary.
	ClassifyBatch(ctx context.Context, orgID common.OrgID, uploadIDs []common.ID, deliveredBy common.UserID) *common.BatchSummary
}

type classifierServiceImpl struct {
	stagingRepo  intake.StagingRepository
	documentRepo intake.DocumentRepository
	queueRepo    delivery.QueueRepository
	files        minio.FileStore
	completer    InstanceCompleter
	publisher    EventPublisher
	maxAttempts  int
	metrics      *prometheus.AppMetrics
	logger       logging.Logger
}

// NewClassifierService constructs a ClassifierService.  maxAttempts is
// the delivery queue's attempt budget for items this service enqueues.
func NewClassifierService(
	stagingRepo intake.StagingRepository,
	documentRepo intake.DocumentRepository,
	queueRepo delivery.QueueRepository,
	files minio.FileStore,
	completer InstanceCompleter,
	publisher EventPublisher,
	maxAttempts int,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) ClassifierService {
	if maxAttempts < 1 {
		maxAttempts = 5
	}
	return &classifierServiceImpl{
		stagingRepo:  stagingRepo,
		documentRepo: documentRepo,
		queueRepo:    queueRepo,
		files:        files,
		completer:    completer,
		publisher:    publisher,
		maxAttempts:  maxAttempts,
		metrics:      metrics,
		logger:       logger,
	}
}

func (s *classifierServiceImpl) Classify(ctx context.Context, orgID common.OrgID, uploadID common.ID, deliveredBy common.UserID) (*intake.Document, error) {
	doc, err := s.classify(ctx, orgID, uploadID, deliveredBy)
	if err != nil {
		s.metrics.ClassificationsTotal.WithLabelValues("single", "error").Inc()
		return nil, err
	}
	s.metrics.ClassificationsTotal.WithLabelValues("single", "ok").Inc()
	return doc, nil
}

func (s *classifierServiceImpl) ClassifyBatch(ctx context.Context, orgID common.OrgID, uploadIDs []common.ID, deliveredBy common.UserID) *common.BatchSummary {
	summary := &common.BatchSummary{}
	for _, id := range uploadIDs {
		fileName := string(id)
		upload, err := s.stagingRepo.FindByID(ctx, orgID, id)
		if err == nil {
			fileName = upload.FileName
			// Batch only takes items whose extraction has finished and
			// whose client, obligation, and competence are resolved; an
			// in-flight OCR pass must never race a promotion.
			if !upload.ReadyForBatch() {
				err = errors.New(errors.ErrCodeUploadNotReady,
					"upload is not ready for batch promotion")
			}
		}
		if err == nil {
			_, err = s.classify(ctx, orgID, id, deliveredBy)
		}
		if err != nil {
			summary.RecordFailure(fileName, err.Error())
			s.metrics.BatchItemsTotal.WithLabelValues("error").Inc()
			s.logger.Warn("batch item failed",
				logging.String("upload_id", string(id)),
				logging.String("file_name", fileName),
				logging.Err(err))
			continue
		}
		summary.RecordSuccess()
		s.metrics.BatchItemsTotal.WithLabelValues("ok").Inc()
	}

	result := "ok"
	if summary.ErrorCount > 0 {
		result = "partial"
	}
	s.metrics.ClassificationsTotal.WithLabelValues("batch", result).Inc()
	s.logger.Info("batch classification finished",
		logging.Int("succeeded", summary.SuccessCount),
		logging.Int("failed", summary.ErrorCount))
	return summary
}

func (s *classifierServiceImpl) classify(ctx context.Context, orgID common.OrgID, uploadID common.ID, deliveredBy common.UserID) (*intake.Document, error) {
	upload, err := s.stagingRepo.FindByID(ctx, orgID, uploadID)
	if err != nil {
		return nil, err
	}
	if upload.State != intake.UploadPending {
		return nil, errors.New(errors.ErrCodeUploadAlreadyClassified, "upload was already classified")
	}
	if upload.ClientID == nil || upload.ObligationID == nil || upload.Competence == nil {
		return nil, errors.New(errors.ErrCodeUploadNotReady,
			"upload is missing resolved client, obligation, or competence")
	}

	// A Document row from an earlier crashed attempt means the promotion
	// already happened; never promote the same upload twice.
	if existing, err := s.documentRepo.FindBySourceUpload(ctx, orgID, uploadID); err == nil && existing != nil {
		return nil, errors.New(errors.ErrCodeUploadAlreadyClassified, "upload was already promoted")
	}

	finalName, finalPath, err := s.moveToPermanent(ctx, orgID, upload)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc, err := intake.NewDocument(upload, finalName, finalPath, deliveredBy, now)
	if err != nil {
		return nil, err
	}
	if err := s.documentRepo.Create(ctx, doc); err != nil {
		// The file already moved; losing track of it is preferable to a
		// Document row pointing at nothing, so surface the error as-is.
		s.logger.Error("document insert failed after file move",
			logging.String("upload_id", string(uploadID)),
			logging.String("final_path", finalPath),
			logging.Err(err))
		return nil, err
	}

	if err := s.enqueueDelivery(ctx, doc); err != nil {
		s.logger.Error("failed to enqueue delivery",
			logging.String("document_id", string(doc.ID)),
			logging.Err(err))
	}

	// Cascade completion is best-effort: the document exists regardless.
	if s.completer != nil {
		if err := s.completer.CompleteFromDocument(ctx, orgID, doc.ClientID, doc.ObligationID, doc.Competence); err != nil {
			s.logger.Warn("cascade completion failed",
				logging.String("document_id", string(doc.ID)),
				logging.Err(err))
		}
	}

	if err := upload.MarkClassified(finalPath, now); err != nil {
		return nil, err
	}
	if err := s.stagingRepo.Update(ctx, upload); err != nil {
		return nil, err
	}

	s.publishPromoted(ctx, doc)
	s.logger.Info("upload promoted",
		logging.String("upload_id", string(uploadID)),
		logging.String("document_id", string(doc.ID)),
		logging.String("final_path", finalPath))
	return doc, nil
}

// moveToPermanent relocates the staged file into the client's permanent
// directory, renaming on collision.  The destination is re-checked by the
// store immediately before each copy, so a concurrent promotion of a
// same-named file surfaces as ErrDestinationExists and triggers another
// rename instead of an overwrite.
func (s *classifierServiceImpl) moveToPermanent(ctx context.Context, orgID common.OrgID, upload *intake.StagingUpload) (string, string, error) {
	dir := path.Join(string(orgID), string(*upload.ClientID))
	name := upload.FileName

	for attempt := 0; attempt < maxRenameAttempts; attempt++ {
		dst := path.Join(dir, name)

		exists, err := s.files.Exists(ctx, dst)
		if err != nil {
			return "", "", err
		}
		if !exists {
			err = s.files.Move(ctx, upload.FilePath, dst)
			if err == nil {
				if attempt > 0 {
					s.metrics.FileCollisionsTotal.WithLabelValues().Inc()
				}
				return name, dst, nil
			}
			if !errors.IsCode(err, errors.ErrCodeConflict) {
				return "", "", err
			}
			// Lost the race for this name; fall through and rename.
		}
		name = collisionRename(upload.FileName)
	}

	return "", "", errors.New(errors.ErrCodeDuplicateFileNameExhausted,
		fmt.Sprintf("could not find a free destination name for %s after %d attempts", upload.FileName, maxRenameAttempts))
}

// collisionRename appends a nanosecond timestamp before the extension:
// darf.pdf becomes darf_20250301T120000.000000001.pdf.
func collisionRename(fileName string) string {
	ext := path.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)
	stamp := time.Now().UTC().Format("20060102T150405.000000000")
	return fmt.Sprintf("%s_%s%s", base, stamp, ext)
}

func (s *classifierServiceImpl) enqueueDelivery(ctx context.Context, doc *intake.Document) error {
	item, err := delivery.NewQueueItem(doc.OrgID, doc.ID, s.maxAttempts, time.Now().UTC())
	if err != nil {
		return err
	}
	return s.queueRepo.Create(ctx, item)
}

func (s *classifierServiceImpl) publishPromoted(ctx context.Context, doc *intake.Document) {
	if s.publisher == nil {
		return
	}
	payload := kafka.DocumentPromotedPayload{
		DocumentID:     string(doc.ID),
		SourceUploadID: string(doc.SourceUploadID),
		OrgID:          string(doc.OrgID),
		ClientID:       string(doc.ClientID),
		ObligationID:   string(doc.ObligationID),
		Competence:     string(doc.Competence),
		FileName:       doc.FileName,
		PromotedAt:     doc.DeliveredAt,
	}
	if err := s.publisher.PublishJSON(ctx, kafka.TopicDocumentPromoted, string(doc.OrgID), "document.promoted", payload); err != nil {
		s.logger.Warn("failed to publish promotion event", logging.Err(err))
	}
}
