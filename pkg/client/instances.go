package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// InstancesClient accesses obligation instances.
type InstancesClient struct {
	client *Client
}

// Instance is one occurrence of an obligation for one client in one
// competence period.
type Instance struct {
	ID               string     `json:"id"`
	OrgID            string     `json:"org_id"`
	ClientID         string     `json:"client_id"`
	ObligationID     string     `json:"obligation_id"`
	Competence       string     `json:"competence"`
	DueAt            time.Time  `json:"due_at"`
	InternalTargetAt time.Time  `json:"internal_target_at"`
	Status           string     `json:"status"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CompletionNotes  string     `json:"completion_notes,omitempty"`
	CompletionSource string     `json:"completion_source,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// GenerationReport summarises one idempotent generation pass.
type GenerationReport struct {
	Competence       string    `json:"competence"`
	LinksVisited     int       `json:"links_visited"`
	InstancesCreated int       `json:"instances_created"`
	AlreadyExisting  int       `json:"already_existing"`
	Skipped          int       `json:"skipped"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// ListInstancesOptions narrows an instance listing.
type ListInstancesOptions struct {
	Competence string
	ClientID   string
	Status     string
	Page       int
	PageSize   int
}

// List returns instances matching opts.
func (ic *InstancesClient) List(ctx context.Context, opts ListInstancesOptions) (*Page[Instance], error) {
	q := url.Values{}
	if opts.Competence != "" {
		q.Set("competence", opts.Competence)
	}
	if opts.ClientID != "" {
		q.Set("client_id", opts.ClientID)
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(opts.PageSize))
	}

	path := "/api/v1/instances"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page Page[Instance]
	if err := ic.client.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get fetches a single instance.
func (ic *InstancesClient) Get(ctx context.Context, id string) (*Instance, error) {
	var inst Instance
	if err := ic.client.do(ctx, http.MethodGet, "/api/v1/instances/"+url.PathEscape(id), nil, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// Generate runs the idempotent instance generator for one competence
// ("MM/YYYY") and returns the pass report.  An empty competence targets
// the current month.
func (ic *InstancesClient) Generate(ctx context.Context, competence string) (*GenerationReport, error) {
	body := map[string]string{"competence": competence}
	var report GenerationReport
	if err := ic.client.do(ctx, http.MethodPost, "/api/v1/instances/generate", body, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Complete marks an instance as done.  Notes are mandatory and explain how
// the obligation was fulfilled.
func (ic *InstancesClient) Complete(ctx context.Context, id, notes string) (*Instance, error) {
	body := map[string]string{"notes": notes}
	var inst Instance
	path := fmt.Sprintf("/api/v1/instances/%s/complete", url.PathEscape(id))
	if err := ic.client.do(ctx, http.MethodPost, path, body, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// Unmark reverts a completed instance back to its derived open status.
func (ic *InstancesClient) Unmark(ctx context.Context, id string) (*Instance, error) {
	var inst Instance
	path := fmt.Sprintf("/api/v1/instances/%s/unmark", url.PathEscape(id))
	if err := ic.client.do(ctx, http.MethodPost, path, nil, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}
