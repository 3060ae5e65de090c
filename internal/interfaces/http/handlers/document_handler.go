package handlers

import (
	"net/http"

	intakeapp "github.com/contabil/fiscore/internal/application/intake"
	"github.com/contabil/fiscore/internal/domain/intake"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/pkg/types/common"
)

// DocumentHandler serves promoted documents: listing, view-link issuing
// and soft deletion.
type DocumentHandler struct {
	documents intakeapp.DocumentService
	logger    logging.Logger
}

func NewDocumentHandler(documents intakeapp.DocumentService, logger logging.Logger) *DocumentHandler {
	return &DocumentHandler{documents: documents, logger: logger}
}

// List handles GET /api/v1/documents.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter intake.DocumentFilter
	if v := r.URL.Query().Get("client_id"); v != "" {
		id, err := common.ParseID(v)
		if err != nil {
			writeAppError(w, err)
			return
		}
		filter.ClientID = &id
	}

	page := parsePagination(r)
	items, total, err := h.documents.List(r.Context(), orgFrom(r), filter, page)
	if err != nil {
		h.logger.Error("document list failed", logging.Err(err))
		writeAppError(w, err)
		return
	}

	writeData(w, http.StatusOK, listResponse[*intake.Document]{
		Items: items, Total: total, Page: page.Page, PageSize: page.PageSize,
	})
}

// Get handles GET /api/v1/documents/{id}.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}

	doc, err := h.documents.Get(r.Context(), orgFrom(r), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, doc)
}

// Viewed handles POST /api/v1/documents/{id}/viewed: marks the first
// view and returns a short-lived download URL.
func (h *DocumentHandler) Viewed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}

	url, err := h.documents.View(r.Context(), orgFrom(r), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"url": url})
}

// Delete handles DELETE /api/v1/documents/{id} (soft delete).
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}

	if err := h.documents.SoftDelete(r.Context(), orgFrom(r), id); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
