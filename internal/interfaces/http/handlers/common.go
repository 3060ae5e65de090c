// Package handlers implements the HTTP handlers for the fiscal API:
// obligation instances, staged uploads, promoted documents and the
// delivery queue.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/contabil/fiscore/internal/interfaces/http/middleware"
	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

// listResponse wraps paginated collections.
type listResponse[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

func orgFrom(r *http.Request) common.OrgID {
	return middleware.ContextOrgID(r.Context())
}

func userFrom(r *http.Request) common.UserID {
	return middleware.ContextUserID(r.Context())
}

// parsePagination reads page/page_size query params; Normalize clamps them.
func parsePagination(r *http.Request) common.Pagination {
	var page common.Pagination
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			page.Page = n
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			page.PageSize = n
		}
	}
	return page.Normalize()
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeData wraps a payload in the standard envelope.
func writeData(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, statusCode, common.APIResponse[interface{}]{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// writeAppError maps an application error onto its HTTP status with the
// structured error body.  Server-side codes are masked.
func writeAppError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatus(err)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = errors.DefaultMessageForCode(errors.ErrCodeInternal)
		code = errors.ErrCodeInternal
	}

	writeJSON(w, status, common.APIResponse[interface{}]{
		Success: false,
		Error: &common.ErrorDetail{
			Code:    code.String(),
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	})
}

func writeValidationError(w http.ResponseWriter, message string) {
	writeAppError(w, errors.New(errors.ErrCodeValidation, message))
}

// pathID parses the {id} path segment as a UUID.
func pathID(r *http.Request, name string) (common.ID, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return "", errors.New(errors.ErrCodeValidation, name+" is required")
	}
	return common.ParseID(raw)
}

func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New(errors.ErrCodeValidation, "invalid request body")
	}
	return nil
}

// decodeBodyOptional is decodeBody for endpoints whose body may be
// omitted entirely.
func decodeBodyOptional(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || err == io.EOF {
		return nil
	}
	return errors.New(errors.ErrCodeValidation, "invalid request body")
}
