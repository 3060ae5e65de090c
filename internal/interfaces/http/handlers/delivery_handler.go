package handlers

import (
	"net/http"

	deliveryapp "github.com/contabil/fiscore/internal/application/delivery"
	deliverydomain "github.com/contabil/fiscore/internal/domain/delivery"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/pkg/errors"
)

// DeliveryHandler serves the notification delivery queue: inspection,
// cancel and reprocess.
type DeliveryHandler struct {
	queue  deliveryapp.QueueService
	logger logging.Logger
}

func NewDeliveryHandler(queue deliveryapp.QueueService, logger logging.Logger) *DeliveryHandler {
	return &DeliveryHandler{queue: queue, logger: logger}
}

// List handles GET /api/v1/deliveries.
func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	var status *deliverydomain.Status
	if v := r.URL.Query().Get("status"); v != "" {
		s := deliverydomain.Status(v)
		switch s {
		case deliverydomain.StatusPending, deliverydomain.StatusProcessing,
			deliverydomain.StatusSent, deliverydomain.StatusFailed,
			deliverydomain.StatusCancelled:
		default:
			writeAppError(w, errors.New(errors.ErrCodeValidation, "unknown status "+v))
			return
		}
		status = &s
	}

	page := parsePagination(r)
	items, total, err := h.queue.List(r.Context(), orgFrom(r), status, page)
	if err != nil {
		h.logger.Error("delivery list failed", logging.Err(err))
		writeAppError(w, err)
		return
	}

	writeData(w, http.StatusOK, listResponse[*deliverydomain.QueueItem]{
		Items: items, Total: total, Page: page.Page, PageSize: page.PageSize,
	})
}

// Get handles GET /api/v1/deliveries/{id}.
func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}

	item, err := h.queue.Get(r.Context(), orgFrom(r), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, item)
}

// Cancel handles POST /api/v1/deliveries/{id}/cancel.
func (h *DeliveryHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}

	item, err := h.queue.Cancel(r.Context(), orgFrom(r), id, userFrom(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, item)
}

// Reprocess handles POST /api/v1/deliveries/{id}/reprocess.
func (h *DeliveryHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}

	item, err := h.queue.Reprocess(r.Context(), orgFrom(r), id, userFrom(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, item)
}
