package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DocumentsClient accesses promoted documents.
type DocumentsClient struct {
	client *Client
}

// Document is a classified fiscal document.
type Document struct {
	ID             string     `json:"id"`
	OrgID          string     `json:"org_id"`
	ClientID       string     `json:"client_id"`
	ObligationID   string     `json:"obligation_id"`
	Competence     string     `json:"competence"`
	SourceUploadID string     `json:"source_upload_id"`
	FileName       string     `json:"file_name"`
	FilePath       string     `json:"file_path"`
	Amount         *string    `json:"amount,omitempty"`
	DueAt          *time.Time `json:"due_at,omitempty"`
	DeliveredAt    time.Time  `json:"delivered_at"`
	DeliveredBy    string     `json:"delivered_by"`
	DeliveryState  string     `json:"delivery_state"`
	ViewedAt       *time.Time `json:"viewed_at,omitempty"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// ListDocumentsOptions narrows a document listing.
type ListDocumentsOptions struct {
	ClientID string
	Page     int
	PageSize int
}

// List returns documents matching opts.
func (dc *DocumentsClient) List(ctx context.Context, opts ListDocumentsOptions) (*Page[Document], error) {
	q := url.Values{}
	if opts.ClientID != "" {
		q.Set("client_id", opts.ClientID)
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(opts.PageSize))
	}

	path := "/api/v1/documents"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page Page[Document]
	if err := dc.client.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get fetches a single document.
func (dc *DocumentsClient) Get(ctx context.Context, id string) (*Document, error) {
	var doc Document
	if err := dc.client.do(ctx, http.MethodGet, "/api/v1/documents/"+url.PathEscape(id), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// MarkViewed records the client's first view and returns a presigned
// download URL.
func (dc *DocumentsClient) MarkViewed(ctx context.Context, id string) (string, error) {
	var result struct {
		URL string `json:"url"`
	}
	path := fmt.Sprintf("/api/v1/documents/%s/viewed", url.PathEscape(id))
	if err := dc.client.do(ctx, http.MethodPost, path, nil, &result); err != nil {
		return "", err
	}
	return result.URL, nil
}

// Delete hides a document from listings.  The file stays for the audit
// trail.
func (dc *DocumentsClient) Delete(ctx context.Context, id string) error {
	return dc.client.do(ctx, http.MethodDelete, "/api/v1/documents/"+url.PathEscape(id), nil, nil)
}
