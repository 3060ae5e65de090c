package intake

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contabil/fiscore/internal/domain/obligation"
	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestUpload(t *testing.T) *StagingUpload {
	t.Helper()
	u, err := NewStagingUpload(common.OrgID("org-1"), common.UserID("user-1"),
		"darf_marco.pdf", "_staging/org-1/darf_marco.pdf", 48123, testNow)
	require.NoError(t, err)
	return u
}

func matchedOCRData() OCRData {
	amount := decimal.RequireFromString("418.73")
	return OCRData{
		DocumentType: DocumentDARF,
		Confidence:   0.93,
		Fields: ExtractedFields{
			Identifier: "123.456.789-09",
			FiscalCode: "0190",
			Competence: "03/2025",
			DueDate:    "2025-03-31",
			Amount:     &amount,
		},
		Client:     ClientMatch{Found: true, ClientID: string(common.NewID()), ClientName: "Ana Souza", ClientCode: "ANA"},
		Obligation: ObligationMatch{Found: true, ObligationID: string(common.NewID()), ObligationName: "Carnê Leão"},
	}
}

func TestNewStagingUpload_Validation(t *testing.T) {
	_, err := NewStagingUpload(common.OrgID("org-1"), common.UserID("u1"), "  ", "p", 10, testNow)
	assert.Error(t, err)

	_, err = NewStagingUpload(common.OrgID("org-1"), common.UserID("u1"), "a.pdf", "p", 0, testNow)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUploadEmptyFile))

	u := newTestUpload(t)
	assert.Equal(t, UploadPending, u.State)
	assert.Equal(t, OCRPending, u.OCRStatus)
	assert.True(t, u.Deletable())
}

func TestApplyOCRResult_FullMatchBecomesSuccess(t *testing.T) {
	u := newTestUpload(t)
	require.NoError(t, u.BeginOCR(testNow))
	assert.Equal(t, OCRProcessing, u.OCRStatus)

	data := matchedOCRData()
	u.ApplyOCRResult(data, testNow)

	assert.Equal(t, OCRSuccess, u.OCRStatus)
	require.NotNil(t, u.ClientID)
	assert.Equal(t, data.Client.ClientID, string(*u.ClientID))
	require.NotNil(t, u.ObligationID)
	require.NotNil(t, u.Competence)
	assert.Equal(t, obligation.Competence("03/2025"), *u.Competence)
	require.NotNil(t, u.Amount)
	assert.True(t, u.Amount.Equal(decimal.RequireFromString("418.73")))
	require.NotNil(t, u.DueAt)
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), *u.DueAt)
	assert.True(t, u.ReadyForBatch())
}

func TestApplyOCRResult_ClientNotFoundNeedsReview(t *testing.T) {
	u := newTestUpload(t)
	require.NoError(t, u.BeginOCR(testNow))

	data := matchedOCRData()
	data.Client = ClientMatch{Found: false, Reason: "no active client with CPF 12345678909"}
	u.ApplyOCRResult(data, testNow)

	assert.Equal(t, OCRNeedsReview, u.OCRStatus)
	assert.Nil(t, u.ClientID)
	assert.False(t, u.ReadyForBatch(), "unresolved client excludes the item from batch")
}

func TestApplyOCRResult_KeepsStaffResolvedValues(t *testing.T) {
	u := newTestUpload(t)
	staffClient := common.NewID()
	staffObligation := common.NewID()
	require.NoError(t, u.Resolve(staffClient, staffObligation, "02/2025", nil, nil, testNow))

	u.ApplyOCRResult(matchedOCRData(), testNow)

	assert.Equal(t, staffClient, *u.ClientID)
	assert.Equal(t, staffObligation, *u.ObligationID)
	assert.Equal(t, obligation.Competence("02/2025"), *u.Competence)
}

func TestBeginOCR_ReprocessFromErrorAndFromProcessing(t *testing.T) {
	u := newTestUpload(t)
	require.NoError(t, u.BeginOCR(testNow))
	u.FailOCR("extraction service rate limited", testNow)
	assert.Equal(t, OCRError, u.OCRStatus)
	assert.NotEmpty(t, u.OCRError)

	// Retry clears the recorded error.
	require.NoError(t, u.BeginOCR(testNow))
	assert.Equal(t, OCRProcessing, u.OCRStatus)
	assert.Empty(t, u.OCRError)

	// Reprocess while a previous attempt is in flight is allowed.
	require.NoError(t, u.BeginOCR(testNow))
	assert.Equal(t, OCRProcessing, u.OCRStatus)
}

func TestBeginOCR_ClassifiedUploadRejected(t *testing.T) {
	u := newTestUpload(t)
	u.ApplyOCRResult(matchedOCRData(), testNow)
	require.NoError(t, u.MarkClassified("org-1/ana/darf_marco.pdf", testNow))

	err := u.BeginOCR(testNow)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUploadNotPending))
}

func TestResolve_InvalidCompetenceRejected(t *testing.T) {
	u := newTestUpload(t)
	err := u.Resolve(common.NewID(), common.NewID(), "13/2025", nil, nil, testNow)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCompetenceInvalid))
	assert.Nil(t, u.Competence)
}

func TestMarkClassified_AdvancesOnce(t *testing.T) {
	u := newTestUpload(t)
	u.ApplyOCRResult(matchedOCRData(), testNow)

	require.NoError(t, u.MarkClassified("org-1/ana/darf_marco.pdf", testNow))
	assert.Equal(t, UploadClassified, u.State)
	assert.Equal(t, "org-1/ana/darf_marco.pdf", u.FilePath)
	assert.False(t, u.Deletable())
	assert.False(t, u.ReadyForBatch())

	err := u.MarkClassified("elsewhere", testNow)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUploadAlreadyClassified))
}

func TestReadyForBatch_RequiresFinishedOCR(t *testing.T) {
	u := newTestUpload(t)
	require.NoError(t, u.Resolve(common.NewID(), common.NewID(), "03/2025", nil, nil, testNow))

	// OCR still pending: not ready even though everything is resolved.
	assert.False(t, u.ReadyForBatch())

	require.NoError(t, u.BeginOCR(testNow))
	assert.False(t, u.ReadyForBatch())

	// A terminal OCR error still counts as finished.
	u.FailOCR("upstream error", testNow)
	assert.True(t, u.ReadyForBatch())
}

func TestDocumentType_IdentifierKind(t *testing.T) {
	assert.Equal(t, obligation.IdentifierCPFCNPJ, DocumentDARF.IdentifierKind())
	assert.Equal(t, obligation.IdentifierNIT, DocumentGPS.IdentifierKind())
	assert.Equal(t, obligation.IdentifierCPFCNPJ, DocumentUnknown.IdentifierKind())
}
