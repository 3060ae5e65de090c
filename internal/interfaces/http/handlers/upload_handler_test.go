package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	intakeapp "github.com/contabil/fiscore/internal/application/intake"
	"github.com/contabil/fiscore/internal/domain/intake"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

func newUploadHandler(uploads *mockUploadService, processor *mockProcessorService, classifier *mockClassifierService) *UploadHandler {
	return NewUploadHandler(uploads, processor, classifier, 20<<20, logging.NewNopLogger())
}

func testUpload(t *testing.T) *intake.StagingUpload {
	t.Helper()
	upload, err := intake.NewStagingUpload(testOrg, testUser, "darf.pdf", "staging/org-1/darf.pdf", 1024, time.Now().UTC())
	require.NoError(t, err)
	return upload
}

func multipartBody(t *testing.T, fieldName, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(fieldName, fileName)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadCreate_Success(t *testing.T) {
	uploads := &mockUploadService{}
	processor := &mockProcessorService{}
	h := newUploadHandler(uploads, processor, &mockClassifierService{})

	upload := testUpload(t)
	uploads.On("Create", mock.Anything, testOrg, intakeapp.CreateUploadRequest{
		FileName:   "darf.pdf",
		Data:       []byte("%PDF-1.4 fake"),
		UploadedBy: testUser,
	}).Return(upload, nil)
	// Extraction is kicked off in the background after the response.
	processor.On("ProcessUpload", mock.Anything, upload.OrgID, upload.ID).
		Return(upload, nil).Maybe()

	body, contentType := multipartBody(t, "file", "darf.pdf", []byte("%PDF-1.4 fake"))
	r := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	r.Header.Set("Content-Type", contentType)

	w := serveWithTenant(h.Create, r)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, decodeEnvelope(t, w).Success)
	uploads.AssertExpectations(t)
}

func TestUploadCreate_MissingFileField(t *testing.T) {
	h := newUploadHandler(&mockUploadService{}, &mockProcessorService{}, &mockClassifierService{})

	body, contentType := multipartBody(t, "wrong_field", "darf.pdf", []byte("data"))
	r := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	r.Header.Set("Content-Type", contentType)

	w := serveWithTenant(h.Create, r)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestUploadDelete_NoContent(t *testing.T) {
	uploads := &mockUploadService{}
	h := newUploadHandler(uploads, &mockProcessorService{}, &mockClassifierService{})

	id := common.NewID()
	uploads.On("Delete", mock.Anything, testOrg, id).Return(nil)

	r := httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/"+id.String(), nil)
	r = withChiParam(r, "id", id.String())

	w := serveWithTenant(h.Delete, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	uploads.AssertExpectations(t)
}

func TestUploadDelete_ClassifiedConflict(t *testing.T) {
	uploads := &mockUploadService{}
	h := newUploadHandler(uploads, &mockProcessorService{}, &mockClassifierService{})

	id := common.NewID()
	uploads.On("Delete", mock.Anything, testOrg, id).
		Return(errors.New(errors.ErrCodeUploadNotPending, "upload already classified"))

	r := httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/"+id.String(), nil)
	r = withChiParam(r, "id", id.String())

	w := serveWithTenant(h.Delete, r)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUploadClassify_ResolvesThenPromotes(t *testing.T) {
	uploads := &mockUploadService{}
	classifier := &mockClassifierService{}
	h := newUploadHandler(uploads, &mockProcessorService{}, classifier)

	uploadID := common.NewID()
	clientID := common.NewID()
	obligationID := common.NewID()
	upload := testUpload(t)
	doc := &intake.Document{ID: common.NewID(), OrgID: testOrg, FileName: "darf.pdf"}

	uploads.On("Resolve", mock.Anything, testOrg, mock.MatchedBy(func(req intakeapp.ResolveUploadRequest) bool {
		return req.UploadID == uploadID &&
			req.ClientID == clientID &&
			req.ObligationID == obligationID &&
			string(req.Competence) == "03/2025" &&
			req.Amount != nil && req.Amount.String() == "418.73"
	})).Return(upload, nil)
	classifier.On("Classify", mock.Anything, testOrg, uploadID, testUser).Return(doc, nil)

	amount := "418.73"
	body, _ := json.Marshal(ClassifyRequest{
		ClientID:     clientID.String(),
		ObligationID: obligationID.String(),
		Competence:   "03/2025",
		Amount:       &amount,
	})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/uploads/"+uploadID.String()+"/classify", bytes.NewReader(body))
	r = withChiParam(r, "id", uploadID.String())

	w := serveWithTenant(h.Classify, r)
	assert.Equal(t, http.StatusOK, w.Code)
	uploads.AssertExpectations(t)
	classifier.AssertExpectations(t)
}

func TestUploadClassify_InvalidClientID(t *testing.T) {
	h := newUploadHandler(&mockUploadService{}, &mockProcessorService{}, &mockClassifierService{})

	uploadID := common.NewID()
	body, _ := json.Marshal(ClassifyRequest{
		ClientID:     "not-a-uuid",
		ObligationID: common.NewID().String(),
		Competence:   "03/2025",
	})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/uploads/"+uploadID.String()+"/classify", bytes.NewReader(body))
	r = withChiParam(r, "id", uploadID.String())

	w := serveWithTenant(h.Classify, r)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestUploadClassifyBatch_ReturnsSummary(t *testing.T) {
	classifier := &mockClassifierService{}
	h := newUploadHandler(&mockUploadService{}, &mockProcessorService{}, classifier)

	ids := []common.ID{common.NewID(), common.NewID()}
	classifier.On("ClassifyBatch", mock.Anything, testOrg, ids, testUser).
		Return(&common.BatchSummary{SuccessCount: 1, ErrorCount: 1, FailedFileNames: []string{"gps.pdf"}})

	body, _ := json.Marshal(ClassifyBatchRequest{
		UploadIDs: []string{ids[0].String(), ids[1].String()},
	})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/uploads/classify-batch", bytes.NewReader(body))

	w := serveWithTenant(h.ClassifyBatch, r)
	assert.Equal(t, http.StatusOK, w.Code)

	resp := decodeEnvelope(t, w)
	var summary common.BatchSummary
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	assert.Equal(t, 1, summary.SuccessCount)
	assert.Equal(t, []string{"gps.pdf"}, summary.FailedFileNames)
}

func TestUploadClassifyBatch_EmptyIDs(t *testing.T) {
	h := newUploadHandler(&mockUploadService{}, &mockProcessorService{}, &mockClassifierService{})

	body, _ := json.Marshal(ClassifyBatchRequest{})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/uploads/classify-batch", bytes.NewReader(body))

	w := serveWithTenant(h.ClassifyBatch, r)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestUploadList_ReadyFilter(t *testing.T) {
	uploads := &mockUploadService{}
	h := newUploadHandler(uploads, &mockProcessorService{}, &mockClassifierService{})

	uploads.On("List", mock.Anything, testOrg,
		intake.StagingFilter{ReadyForBatch: true},
		common.Pagination{Page: 1, PageSize: 50}).
		Return([]*intake.StagingUpload{}, int64(0), nil)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/uploads?ready=true", nil)
	w := serveWithTenant(h.List, r)
	assert.Equal(t, http.StatusOK, w.Code)
	uploads.AssertExpectations(t)
}
