package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	intakeapp "github.com/contabil/fiscore/internal/application/intake"
	"github.com/contabil/fiscore/internal/domain/intake"
	domain "github.com/contabil/fiscore/internal/domain/obligation"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

// UploadHandler serves the staging area: multipart ingestion, listing,
// OCR reprocess, staff classification and promotion.
type UploadHandler struct {
	uploads    intakeapp.UploadService
	processor  intakeapp.ProcessorService
	classifier intakeapp.ClassifierService

	maxUploadBytes int64
	logger         logging.Logger
}

func NewUploadHandler(
	uploads intakeapp.UploadService,
	processor intakeapp.ProcessorService,
	classifier intakeapp.ClassifierService,
	maxUploadBytes int64,
	logger logging.Logger,
) *UploadHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 20 << 20
	}
	return &UploadHandler{
		uploads:        uploads,
		processor:      processor,
		classifier:     classifier,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// ClassifyRequest carries the staff classification for one upload.
// Amount and DueAt are optional overrides on top of extraction.
type ClassifyRequest struct {
	ClientID     string  `json:"client_id"`
	ObligationID string  `json:"obligation_id"`
	Competence   string  `json:"competence"`
	Amount       *string `json:"amount,omitempty"`
	DueAt        *string `json:"due_at,omitempty"`
}

// ClassifyBatchRequest promotes several already-resolved uploads at once.
type ClassifyBatchRequest struct {
	UploadIDs []string `json:"upload_ids"`
}

// Create handles POST /api/v1/uploads (multipart/form-data, field "file").
func (h *UploadHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeValidationError(w, "invalid multipart body or file too large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeValidationError(w, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeValidationError(w, "failed to read uploaded file")
		return
	}

	upload, err := h.uploads.Create(r.Context(), orgFrom(r), intakeapp.CreateUploadRequest{
		FileName:   header.Filename,
		Data:       data,
		UploadedBy: userFrom(r),
	})
	if err != nil {
		writeAppError(w, err)
		return
	}

	// Extraction runs out of band; the client polls the upload state.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := h.processor.ProcessUpload(ctx, upload.OrgID, upload.ID); err != nil {
			h.logger.Warn("post-upload extraction failed",
				logging.String("upload_id", upload.ID.String()), logging.Err(err))
		}
	}()

	writeData(w, http.StatusCreated, upload)
}

// List handles GET /api/v1/uploads.
func (h *UploadHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := stagingFilterFromQuery(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	page := parsePagination(r)
	items, total, err := h.uploads.List(r.Context(), orgFrom(r), filter, page)
	if err != nil {
		h.logger.Error("upload list failed", logging.Err(err))
		writeAppError(w, err)
		return
	}

	writeData(w, http.StatusOK, listResponse[*intake.StagingUpload]{
		Items: items, Total: total, Page: page.Page, PageSize: page.PageSize,
	})
}

// Get handles GET /api/v1/uploads/{id}.
func (h *UploadHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}

	upload, err := h.uploads.Get(r.Context(), orgFrom(r), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, upload)
}

// Reprocess handles POST /api/v1/uploads/{id}/reprocess: re-runs
// extraction over a pending upload.
func (h *UploadHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}

	upload, err := h.processor.ProcessUpload(r.Context(), orgFrom(r), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, upload)
}

// Delete handles DELETE /api/v1/uploads/{id}; legal only while pending.
func (h *UploadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}

	if err := h.uploads.Delete(r.Context(), orgFrom(r), id); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// Classify handles POST /api/v1/uploads/{id}/classify: applies the staff
// values and promotes the upload to a permanent document.
func (h *UploadHandler) Classify(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}

	var req ClassifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	resolveReq, err := req.toResolveRequest(id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	orgID := orgFrom(r)
	if _, err := h.uploads.Resolve(r.Context(), orgID, resolveReq); err != nil {
		writeAppError(w, err)
		return
	}

	doc, err := h.classifier.Classify(r.Context(), orgID, id, userFrom(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, doc)
}

// ClassifyBatch handles POST /api/v1/uploads/classify-batch: promotes
// every listed upload, isolating per-item failures.
func (h *UploadHandler) ClassifyBatch(w http.ResponseWriter, r *http.Request) {
	var req ClassifyBatchRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if len(req.UploadIDs) == 0 {
		writeValidationError(w, "upload_ids must not be empty")
		return
	}

	ids := make([]common.ID, 0, len(req.UploadIDs))
	for _, raw := range req.UploadIDs {
		id, err := common.ParseID(raw)
		if err != nil {
			writeAppError(w, err)
			return
		}
		ids = append(ids, id)
	}

	summary := h.classifier.ClassifyBatch(r.Context(), orgFrom(r), ids, userFrom(r))
	writeData(w, http.StatusOK, summary)
}

func (req ClassifyRequest) toResolveRequest(uploadID common.ID) (intakeapp.ResolveUploadRequest, error) {
	var out intakeapp.ResolveUploadRequest

	clientID, err := common.ParseID(req.ClientID)
	if err != nil {
		return out, errors.New(errors.ErrCodeValidation, "client_id is invalid")
	}
	obligationID, err := common.ParseID(req.ObligationID)
	if err != nil {
		return out, errors.New(errors.ErrCodeValidation, "obligation_id is invalid")
	}
	competence, err := domain.ParseCompetence(req.Competence)
	if err != nil {
		return out, err
	}

	out = intakeapp.ResolveUploadRequest{
		UploadID:     uploadID,
		ClientID:     clientID,
		ObligationID: obligationID,
		Competence:   competence,
	}

	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			return out, errors.New(errors.ErrCodeValidation, "amount is not a valid decimal")
		}
		out.Amount = &amount
	}
	if req.DueAt != nil {
		dueAt, err := time.Parse(time.RFC3339, *req.DueAt)
		if err != nil {
			return out, errors.New(errors.ErrCodeValidation, "due_at must be RFC3339")
		}
		out.DueAt = &dueAt
	}
	return out, nil
}

func stagingFilterFromQuery(r *http.Request) (intake.StagingFilter, error) {
	var filter intake.StagingFilter
	q := r.URL.Query()

	if v := q.Get("state"); v != "" {
		state := intake.UploadState(v)
		switch state {
		case intake.UploadPending, intake.UploadClassified, intake.UploadSent, intake.UploadError:
		default:
			return filter, errors.New(errors.ErrCodeValidation, "unknown state "+v)
		}
		filter.State = &state
	}
	if v := q.Get("ocr_status"); v != "" {
		status := intake.OCRStatus(v)
		switch status {
		case intake.OCRPending, intake.OCRProcessing, intake.OCRSuccess,
			intake.OCRNeedsReview, intake.OCRError:
		default:
			return filter, errors.New(errors.ErrCodeValidation, "unknown ocr_status "+v)
		}
		filter.OCRStatus = &status
	}
	if v := q.Get("client_id"); v != "" {
		id, err := common.ParseID(v)
		if err != nil {
			return filter, err
		}
		filter.ClientID = &id
	}
	filter.ReadyForBatch = q.Get("ready") == "true"
	return filter, nil
}
