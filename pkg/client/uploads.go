package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// UploadsClient accesses the staging area.
type UploadsClient struct {
	client *Client
}

// StagingUpload is a file waiting for classification.
type StagingUpload struct {
	ID         string `json:"id"`
	OrgID      string `json:"org_id"`
	UploadedBy string `json:"uploaded_by"`
	FileName   string `json:"file_name"`
	FilePath   string `json:"file_path"`
	FileSize   int64  `json:"file_size"`
	State      string `json:"state"`
	OCRStatus  string `json:"ocr_status"`
	OCRError   string `json:"ocr_error,omitempty"`

	ClientID     *string    `json:"client_id,omitempty"`
	ObligationID *string    `json:"obligation_id,omitempty"`
	Competence   *string    `json:"competence,omitempty"`
	Amount       *string    `json:"amount,omitempty"`
	DueAt        *time.Time `json:"due_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClassifyOptions is the manual resolution applied before promotion.
type ClassifyOptions struct {
	ClientID     string  `json:"client_id"`
	ObligationID string  `json:"obligation_id"`
	Competence   string  `json:"competence"`
	Amount       *string `json:"amount,omitempty"`
	DueAt        *string `json:"due_at,omitempty"`
}

// BatchSummary reports a classify-batch outcome.
type BatchSummary struct {
	SuccessCount    int      `json:"success_count"`
	ErrorCount      int      `json:"error_count"`
	FailedFileNames []string `json:"failed_file_names"`
	Reasons         []string `json:"reasons,omitempty"`
}

// ListUploadsOptions narrows an upload listing.
type ListUploadsOptions struct {
	State     string
	OCRStatus string
	ClientID  string
	Ready     bool
	Page      int
	PageSize  int
}

// Create stages a file.  Extraction starts in the background; poll Get
// until ocr_status leaves "pending".
func (uc *UploadsClient) Create(ctx context.Context, fileName string, data io.Reader) (*StagingUpload, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("fiscore: failed to build multipart body: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return nil, fmt.Errorf("fiscore: failed to read upload data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("fiscore: failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uc.client.baseURL+"/api/v1/uploads", &buf)
	if err != nil {
		return nil, fmt.Errorf("fiscore: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", uc.client.userAgent)
	req.Header.Set(headerOrgID, uc.client.orgID)
	if uc.client.userID != "" {
		req.Header.Set(headerUserID, uc.client.userID)
	}

	resp, err := uc.client.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fiscore: failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, decodeError(resp.StatusCode, respBody)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("fiscore: failed to decode response: %w", err)
	}
	var upload StagingUpload
	if err := json.Unmarshal(env.Data, &upload); err != nil {
		return nil, fmt.Errorf("fiscore: failed to decode response data: %w", err)
	}
	return &upload, nil
}

// List returns staged uploads matching opts.
func (uc *UploadsClient) List(ctx context.Context, opts ListUploadsOptions) (*Page[StagingUpload], error) {
	q := url.Values{}
	if opts.State != "" {
		q.Set("state", opts.State)
	}
	if opts.OCRStatus != "" {
		q.Set("ocr_status", opts.OCRStatus)
	}
	if opts.ClientID != "" {
		q.Set("client_id", opts.ClientID)
	}
	if opts.Ready {
		q.Set("ready", "true")
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(opts.PageSize))
	}

	path := "/api/v1/uploads"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page Page[StagingUpload]
	if err := uc.client.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get fetches a single staged upload.
func (uc *UploadsClient) Get(ctx context.Context, id string) (*StagingUpload, error) {
	var upload StagingUpload
	if err := uc.client.do(ctx, http.MethodGet, "/api/v1/uploads/"+url.PathEscape(id), nil, &upload); err != nil {
		return nil, err
	}
	return &upload, nil
}

// Delete removes a still-pending upload and its staged file.
func (uc *UploadsClient) Delete(ctx context.Context, id string) error {
	return uc.client.do(ctx, http.MethodDelete, "/api/v1/uploads/"+url.PathEscape(id), nil, nil)
}

// Reprocess re-runs vision extraction over one upload.
func (uc *UploadsClient) Reprocess(ctx context.Context, id string) (*StagingUpload, error) {
	var upload StagingUpload
	path := fmt.Sprintf("/api/v1/uploads/%s/reprocess", url.PathEscape(id))
	if err := uc.client.do(ctx, http.MethodPost, path, nil, &upload); err != nil {
		return nil, err
	}
	return &upload, nil
}

// Classify resolves and promotes one upload into a permanent document.
func (uc *UploadsClient) Classify(ctx context.Context, id string, opts ClassifyOptions) (*Document, error) {
	var doc Document
	path := fmt.Sprintf("/api/v1/uploads/%s/classify", url.PathEscape(id))
	if err := uc.client.do(ctx, http.MethodPost, path, opts, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ClassifyBatch promotes every listed upload, isolating per-item failures.
func (uc *UploadsClient) ClassifyBatch(ctx context.Context, ids []string) (*BatchSummary, error) {
	body := map[string][]string{"upload_ids": ids}
	var summary BatchSummary
	if err := uc.client.do(ctx, http.MethodPost, "/api/v1/uploads/classify-batch", body, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
