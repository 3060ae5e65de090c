// Package common holds the shared primitive types used across every layer of
// fiscore: identifiers, pagination envelopes, batch summaries, and the generic
// API response wrapper.  Nothing here may import from internal/.
package common

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ID is a string alias for a UUID v4.
type ID string

// NewID generates a fresh random ID.
func NewID() ID {
	return ID(uuid.New().String())
}

// ParseID validates s and returns it as an ID.
func ParseID(s string) (ID, error) {
	id := ID(s)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// String returns the ID as a plain string.
func (id ID) String() string {
	return string(id)
}

// Validate checks that the ID is a well-formed UUID.
func (id ID) Validate() error {
	if id == "" {
		return fmt.Errorf("ID cannot be empty")
	}
	if _, err := uuid.Parse(string(id)); err != nil {
		return fmt.Errorf("invalid ID format: %w", err)
	}
	return nil
}

// OrgID identifies the accounting organization that owns a record.  Every
// query and every storage path is scoped by it.
type OrgID string

// UserID identifies a staff user (uploader, completer).
type UserID string

// ─────────────────────────────────────────────────────────────────────────────
// Pagination
// ─────────────────────────────────────────────────────────────────────────────

// Pagination defines parameters for paginated requests.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Normalize clamps page and page size into usable ranges.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 50
	}
	if p.PageSize > 500 {
		p.PageSize = 500
	}
	return p
}

// Offset returns the SQL offset for the normalized page.
func (p Pagination) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}

// PageResponse is a generic wrapper for paginated results.
type PageResponse[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewPageResponse assembles a PageResponse from items and a total count.
func NewPageResponse[T any](items []T, total int64, p Pagination) PageResponse[T] {
	n := p.Normalize()
	pages := int(total) / n.PageSize
	if int(total)%n.PageSize != 0 {
		pages++
	}
	return PageResponse[T]{
		Items:      items,
		Total:      total,
		Page:       n.Page,
		PageSize:   n.PageSize,
		TotalPages: pages,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Batch envelopes
// ─────────────────────────────────────────────────────────────────────────────

// BatchSummary is the aggregate result of a per-item-isolated batch operation.
// FailedFileNames carries one entry per failed item so every failure stays
// attributable to a specific file.
type BatchSummary struct {
	SuccessCount    int      `json:"success_count"`
	ErrorCount      int      `json:"error_count"`
	FailedFileNames []string `json:"failed_file_names"`
	Reasons         []string `json:"reasons,omitempty"`
}

// RecordSuccess increments the success counter.
func (b *BatchSummary) RecordSuccess() {
	b.SuccessCount++
}

// RecordFailure registers a failed item with its human-readable reason.
func (b *BatchSummary) RecordFailure(fileName, reason string) {
	b.ErrorCount++
	b.FailedFileNames = append(b.FailedFileNames, fileName)
	b.Reasons = append(b.Reasons, reason)
}

// ─────────────────────────────────────────────────────────────────────────────
// API response wrapper
// ─────────────────────────────────────────────────────────────────────────────

// ErrorDetail provides structured error information for API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// APIResponse is the generic wrapper for all API responses.
type APIResponse[T any] struct {
	Success   bool         `json:"success"`
	Data      T            `json:"data,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Health reporting
// ─────────────────────────────────────────────────────────────────────────────

// HealthStatus indicates the health of a component or service.
type HealthStatus string

const (
	HealthUp       HealthStatus = "up"
	HealthDown     HealthStatus = "down"
	HealthDegraded HealthStatus = "degraded"
)

// ComponentHealth provides health information for a specific component.
type ComponentHealth struct {
	Name    string        `json:"name"`
	Status  HealthStatus  `json:"status"`
	Latency time.Duration `json:"latency"`
	Message string        `json:"message,omitempty"`
}
