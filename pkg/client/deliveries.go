package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DeliveriesClient accesses the notification delivery queue.
type DeliveriesClient struct {
	client *Client
}

// QueueItem is one scheduled notification send.
type QueueItem struct {
	ID           string     `json:"id"`
	OrgID        string     `json:"org_id"`
	DocumentID   string     `json:"document_id"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ListDeliveriesOptions narrows a queue listing.
type ListDeliveriesOptions struct {
	Status   string
	Page     int
	PageSize int
}

// List returns queue items matching opts.
func (dc *DeliveriesClient) List(ctx context.Context, opts ListDeliveriesOptions) (*Page[QueueItem], error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(opts.PageSize))
	}

	path := "/api/v1/deliveries"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page Page[QueueItem]
	if err := dc.client.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get fetches a single queue item.
func (dc *DeliveriesClient) Get(ctx context.Context, id string) (*QueueItem, error) {
	var item QueueItem
	if err := dc.client.do(ctx, http.MethodGet, "/api/v1/deliveries/"+url.PathEscape(id), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Cancel withdraws a still-pending item from the queue.
func (dc *DeliveriesClient) Cancel(ctx context.Context, id string) (*QueueItem, error) {
	var item QueueItem
	path := fmt.Sprintf("/api/v1/deliveries/%s/cancel", url.PathEscape(id))
	if err := dc.client.do(ctx, http.MethodPost, path, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Reprocess requeues a failed item with a fresh attempt budget.
func (dc *DeliveriesClient) Reprocess(ctx context.Context, id string) (*QueueItem, error) {
	var item QueueItem
	path := fmt.Sprintf("/api/v1/deliveries/%s/reprocess", url.PathEscape(id))
	if err := dc.client.do(ctx, http.MethodPost, path, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}
