package intake

import (
	"context"
	"sync"
	"time"

	"github.com/contabil/fiscore/internal/domain/intake"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/prometheus"
	"github.com/contabil/fiscore/internal/infrastructure/storage/minio"
	"github.com/contabil/fiscore/pkg/types/common"
)

// ProcessorService runs extraction and matching over staged uploads.
type ProcessorService interface {
	// ProcessUpload runs the full extract-and-match pass over one upload.
	// Returns the annotated upload; extraction failures are recorded on
	// the upload, not returned, so workers keep draining the queue.
	ProcessUpload(ctx context.Context, orgID common.OrgID, uploadID common.ID) (*intake.StagingUpload, error)

	// ProcessPending drains every upload still awaiting extraction,
	// fanning out over the configured concurrency.  Returns how many
	// uploads were processed.
	ProcessPending(ctx context.Context, orgID common.OrgID) (int, error)
}

type processorServiceImpl struct {
	stagingRepo intake.StagingRepository
	files       minio.FileStore
	extractor   intake.Extractor
	matcher     MatcherService
	concurrency int
	metrics     *prometheus.AppMetrics
	logger      logging.Logger
}

// NewProcessorService constructs a ProcessorService.
func NewProcessorService(
	stagingRepo intake.StagingRepository,
	files minio.FileStore,
	extractor intake.Extractor,
	matcher MatcherService,
	concurrency int,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) ProcessorService {
	if concurrency <= 0 {
		concurrency = 2
	}
	return &processorServiceImpl{
		stagingRepo: stagingRepo,
		files:       files,
		extractor:   extractor,
		matcher:     matcher,
		concurrency: concurrency,
		metrics:     metrics,
		logger:      logger,
	}
}

func (s *processorServiceImpl) ProcessUpload(ctx context.Context, orgID common.OrgID, uploadID common.ID) (*intake.StagingUpload, error) {
	upload, err := s.stagingRepo.FindByID(ctx, orgID, uploadID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := upload.BeginOCR(now); err != nil {
		return nil, err
	}
	if err := s.stagingRepo.Update(ctx, upload); err != nil {
		return nil, err
	}

	data, err := s.files.Get(ctx, upload.FilePath)
	if err != nil {
		return s.recordFailure(ctx, upload, "staged file unavailable: "+err.Error())
	}

	start := time.Now()
	result, err := s.extractor.Extract(ctx, intake.ExtractionRequest{
		FileName: upload.FileName,
		Data:     data,
	})
	if err != nil {
		s.metrics.OCRExtractionsTotal.WithLabelValues("error").Inc()
		return s.recordFailure(ctx, upload, err.Error())
	}
	s.metrics.OCRExtractionDuration.WithLabelValues(string(result.DocumentType)).Observe(time.Since(start).Seconds())

	ocrData := intake.OCRData{
		DocumentType: result.DocumentType,
		Confidence:   result.Confidence,
		Fields:       result.Fields,
		RawText:      result.RawText,
	}
	if result.DocumentType != intake.DocumentUnknown {
		ocrData.Client = s.matcher.MatchClient(ctx, orgID, result.DocumentType.IdentifierKind(), result.Fields.Identifier)
		ocrData.Obligation = s.matcher.MatchObligation(ctx, orgID, result.Fields.FiscalCode)
	} else {
		ocrData.Client = intake.ClientMatch{Found: false, Reason: "document type not recognized"}
		ocrData.Obligation = intake.ObligationMatch{Found: false, Reason: "document type not recognized"}
	}

	upload.ApplyOCRResult(ocrData, time.Now().UTC())
	if err := s.stagingRepo.Update(ctx, upload); err != nil {
		return nil, err
	}

	s.metrics.OCRExtractionsTotal.WithLabelValues(string(upload.OCRStatus)).Inc()
	s.logger.Info("upload processed",
		logging.String("upload_id", string(upload.ID)),
		logging.String("document_type", string(result.DocumentType)),
		logging.String("ocr_status", string(upload.OCRStatus)))
	return upload, nil
}

func (s *processorServiceImpl) ProcessPending(ctx context.Context, orgID common.OrgID) (int, error) {
	pending := intake.OCRPending
	state := intake.UploadPending
	uploads, _, err := s.stagingRepo.List(ctx, orgID, intake.StagingFilter{
		State:     &state,
		OCRStatus: &pending,
	}, common.Pagination{Page: 1, PageSize: 100})
	if err != nil {
		return 0, err
	}
	if len(uploads) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	processed := 0

	for _, u := range uploads {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(id common.ID) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := s.ProcessUpload(ctx, orgID, id); err != nil {
				s.logger.Warn("failed to process upload",
					logging.String("upload_id", string(id)),
					logging.Err(err))
				return
			}
			mu.Lock()
			processed++
			mu.Unlock()
		}(u.ID)
	}
	wg.Wait()
	return processed, nil
}

func (s *processorServiceImpl) recordFailure(ctx context.Context, upload *intake.StagingUpload, message string) (*intake.StagingUpload, error) {
	upload.FailOCR(message, time.Now().UTC())
	if err := s.stagingRepo.Update(ctx, upload); err != nil {
		return nil, err
	}
	s.logger.Warn("extraction failed",
		logging.String("upload_id", string(upload.ID)),
		logging.String("reason", message))
	return upload, nil
}
