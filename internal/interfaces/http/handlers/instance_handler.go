package handlers

import (
	"net/http"
	"time"

	app "github.com/contabil/fiscore/internal/application/obligation"
	domain "github.com/contabil/fiscore/internal/domain/obligation"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

// InstanceHandler serves obligation-instance endpoints: listing, manual
// completion, unmark, and triggering the monthly generator.
type InstanceHandler struct {
	instances app.InstanceService
	generator app.GeneratorService
	logger    logging.Logger
}

func NewInstanceHandler(
	instances app.InstanceService,
	generator app.GeneratorService,
	logger logging.Logger,
) *InstanceHandler {
	return &InstanceHandler{instances: instances, generator: generator, logger: logger}
}

// GenerateRequest triggers instance generation.  The competence is
// optional; when omitted the generator runs for the current month.
type GenerateRequest struct {
	Competence string `json:"competence"`
}

// CompleteInstanceRequest carries the manual completion note.
type CompleteInstanceRequest struct {
	Notes string `json:"notes"`
}

// List handles GET /api/v1/instances.
func (h *InstanceHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := instanceFilterFromQuery(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	page := parsePagination(r)
	items, total, err := h.instances.List(r.Context(), orgFrom(r), filter, page)
	if err != nil {
		h.logger.Error("instance list failed", logging.Err(err))
		writeAppError(w, err)
		return
	}

	writeData(w, http.StatusOK, listResponse[*domain.Instance]{
		Items: items, Total: total, Page: page.Page, PageSize: page.PageSize,
	})
}

// Get handles GET /api/v1/instances/{id}.
func (h *InstanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}

	inst, err := h.instances.Get(r.Context(), orgFrom(r), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, inst)
}

// Complete handles POST /api/v1/instances/{id}/complete.
func (h *InstanceHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}

	var req CompleteInstanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	inst, err := h.instances.Complete(r.Context(), orgFrom(r), app.CompleteRequest{
		InstanceID: id,
		Notes:      req.Notes,
		Actor:      userFrom(r),
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, inst)
}

// Unmark handles POST /api/v1/instances/{id}/unmark.
func (h *InstanceHandler) Unmark(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}

	inst, err := h.instances.Unmark(r.Context(), orgFrom(r), id, userFrom(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, inst)
}

// Generate handles POST /api/v1/instances/generate.  An empty body (or
// an empty competence) targets the current month.
func (h *InstanceHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := decodeBodyOptional(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	competence := domain.CurrentCompetence(time.Now().UTC())
	if req.Competence != "" {
		var err error
		competence, err = domain.ParseCompetence(req.Competence)
		if err != nil {
			writeAppError(w, err)
			return
		}
	}

	report, err := h.generator.GenerateForCompetence(r.Context(), orgFrom(r), competence)
	if err != nil {
		h.logger.Error("instance generation failed",
			logging.String("competence", string(competence)), logging.Err(err))
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

func instanceFilterFromQuery(r *http.Request) (domain.InstanceFilter, error) {
	var filter domain.InstanceFilter
	q := r.URL.Query()

	if v := q.Get("competence"); v != "" {
		c, err := domain.ParseCompetence(v)
		if err != nil {
			return filter, err
		}
		filter.Competence = &c
	}
	if v := q.Get("client_id"); v != "" {
		id, err := common.ParseID(v)
		if err != nil {
			return filter, err
		}
		filter.ClientID = &id
	}
	if v := q.Get("status"); v != "" {
		status := domain.InstanceStatus(v)
		switch status {
		case domain.StatusPending, domain.StatusDue48h, domain.StatusOverdue,
			domain.StatusOnTimeDone, domain.StatusLateDone:
		default:
			return filter, errors.New(errors.ErrCodeValidation, "unknown status "+v)
		}
		filter.Status = &status
	}
	return filter, nil
}
