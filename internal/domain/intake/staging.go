// Package intake covers the document ingestion pipeline: staged uploads,
// OCR extraction annotations, and the permanent documents they promote into.
package intake

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/contabil/fiscore/internal/domain/obligation"
	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Enumerations
// ─────────────────────────────────────────────────────────────────────────────

// UploadState is the coarse staging lifecycle.  It only ever advances
// pending→classified; it never regresses.
type UploadState string

const (
	UploadPending    UploadState = "pending"
	UploadClassified UploadState = "classified"
	UploadSent       UploadState = "sent"
	UploadError      UploadState = "error"
)

// OCRStatus tracks the extraction sub-lifecycle.  Unlike UploadState it may
// cycle back to processing on a reprocess request.
type OCRStatus string

const (
	OCRPending     OCRStatus = "pending"
	OCRProcessing  OCRStatus = "processing"
	OCRSuccess     OCRStatus = "success"
	OCRNeedsReview OCRStatus = "needs_review"
	OCRError       OCRStatus = "error"
)

// ─────────────────────────────────────────────────────────────────────────────
// StagingUpload entity
// ─────────────────────────────────────────────────────────────────────────────

// StagingUpload is a file awaiting classification, annotated with OCR and
// matching results.  It is owned by the uploader until promoted.
type StagingUpload struct {
	ID         common.ID     `json:"id"`
	OrgID      common.OrgID  `json:"org_id"`
	UploadedBy common.UserID `json:"uploaded_by"`

	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	FileSize int64  `json:"file_size"`

	State     UploadState `json:"state"`
	OCRStatus OCRStatus   `json:"ocr_status"`
	OCRData   *OCRData    `json:"ocr_data,omitempty"`
	OCRError  string      `json:"ocr_error,omitempty"`

	// Resolved classification values: populated by the matcher on success,
	// overridable by staff, and required before batch promotion.
	ClientID     *common.ID             `json:"client_id,omitempty"`
	ObligationID *common.ID             `json:"obligation_id,omitempty"`
	Competence   *obligation.Competence `json:"competence,omitempty"`
	Amount       *decimal.Decimal       `json:"amount,omitempty"`
	DueAt        *time.Time             `json:"due_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStagingUpload registers a freshly uploaded file in pending state with
// OCR not yet started.
func NewStagingUpload(orgID common.OrgID, uploadedBy common.UserID, fileName, filePath string, fileSize int64, now time.Time) (*StagingUpload, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, errors.New(errors.ErrCodeValidation, "file name must not be empty")
	}
	if fileSize <= 0 {
		return nil, errors.New(errors.ErrCodeUploadEmptyFile, "uploaded file is empty")
	}

	return &StagingUpload{
		ID:         common.NewID(),
		OrgID:      orgID,
		UploadedBy: uploadedBy,
		FileName:   fileName,
		FilePath:   filePath,
		FileSize:   fileSize,
		State:      UploadPending,
		OCRStatus:  OCRPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// OCR lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// BeginOCR moves the extraction sub-state to processing.  Legal from any
// OCR status: a reprocess request overwrites a stale in-flight attempt,
// last writer wins.
func (u *StagingUpload) BeginOCR(now time.Time) error {
	if u.State != UploadPending {
		return errors.New(errors.ErrCodeUploadNotPending,
			"only pending uploads can be (re)processed")
	}
	u.OCRStatus = OCRProcessing
	u.OCRError = ""
	u.UpdatedAt = now
	return nil
}

// ApplyOCRResult records the extraction and matching outcome.  When both
// the client and the obligation matched, the resolved classification fields
// are populated and OCR status becomes success; otherwise needs_review.
//
// Resolved values already set by staff are never overwritten.
func (u *StagingUpload) ApplyOCRResult(data OCRData, now time.Time) {
	u.OCRData = &data
	u.OCRError = ""

	if data.Client.Found && u.ClientID == nil {
		if id, err := common.ParseID(data.Client.ClientID); err == nil {
			u.ClientID = &id
		}
	}
	if data.Obligation.Found && u.ObligationID == nil {
		if id, err := common.ParseID(data.Obligation.ObligationID); err == nil {
			u.ObligationID = &id
		}
	}
	if u.Competence == nil && data.Fields.Competence != "" {
		if c, err := obligation.ParseCompetence(data.Fields.Competence); err == nil {
			u.Competence = &c
		}
	}
	if u.Amount == nil && data.Fields.Amount != nil {
		amount := *data.Fields.Amount
		u.Amount = &amount
	}
	if u.DueAt == nil && data.Fields.DueDate != "" {
		if d, err := time.Parse("2006-01-02", data.Fields.DueDate); err == nil {
			du := d.UTC()
			u.DueAt = &du
		}
	}

	if data.Client.Found && data.Obligation.Found {
		u.OCRStatus = OCRSuccess
	} else {
		u.OCRStatus = OCRNeedsReview
	}
	u.UpdatedAt = now
}

// FailOCR records a typed extraction failure; retryable via BeginOCR.
func (u *StagingUpload) FailOCR(message string, now time.Time) {
	u.OCRStatus = OCRError
	u.OCRError = message
	u.UpdatedAt = now
}

// ─────────────────────────────────────────────────────────────────────────────
// Classification
// ─────────────────────────────────────────────────────────────────────────────

// Resolve applies staff-supplied classification values, overriding whatever
// the matcher produced.  Only legal while the upload is still pending.
func (u *StagingUpload) Resolve(clientID, obligationID common.ID, competence obligation.Competence, amount *decimal.Decimal, dueAt *time.Time, now time.Time) error {
	if u.State != UploadPending {
		return errors.New(errors.ErrCodeUploadNotPending,
			"upload has already been classified")
	}
	if err := competence.Validate(); err != nil {
		return err
	}
	u.ClientID = &clientID
	u.ObligationID = &obligationID
	u.Competence = &competence
	u.Amount = amount
	u.DueAt = dueAt
	u.UpdatedAt = now
	return nil
}

// ReadyForBatch reports whether the upload qualifies for batch promotion:
// OCR has finished (in any terminal status) and client, obligation, and
// competence are all resolved.
func (u *StagingUpload) ReadyForBatch() bool {
	if u.State != UploadPending {
		return false
	}
	if u.OCRStatus == OCRPending || u.OCRStatus == OCRProcessing {
		return false
	}
	return u.ClientID != nil && u.ObligationID != nil && u.Competence != nil
}

// MarkClassified finalizes the upload after its document was promoted,
// persisting the final resolved values.  The state only ever advances.
func (u *StagingUpload) MarkClassified(finalPath string, now time.Time) error {
	if u.State != UploadPending {
		return errors.New(errors.ErrCodeUploadAlreadyClassified,
			"upload is already classified")
	}
	u.State = UploadClassified
	u.FilePath = finalPath
	u.UpdatedAt = now
	return nil
}

// Deletable reports whether the upload may still be removed by its owner.
func (u *StagingUpload) Deletable() bool {
	return u.State == UploadPending
}
