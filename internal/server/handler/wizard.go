package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/bondwizard/internal/domain"
	"github.com/alanyoungcy/bondwizard/internal/service"
)

// WizardService defines the methods that the wizard handler requires.
type WizardService interface {
	Create(ctx context.Context, variant domain.Variant, owner string) (service.SessionView, error)
	Get(ctx context.Context, id string) (service.SessionView, error)
	SetFields(ctx context.Context, id string, values map[domain.Field]string) (service.SessionView, error)
	Next(ctx context.Context, id string) (service.SessionView, error)
	Back(ctx context.Context, id string) (service.SessionView, error)
	Prepare(ctx context.Context, id string) (service.SessionView, error)
	RunStep(ctx context.Context, id, step string) (service.StepResult, error)
	Events(ctx context.Context, id string, count int64) ([]json.RawMessage, error)
	Discard(ctx context.Context, id string) error
	Issuance(ctx context.Context, id string) (domain.Issuance, error)
	Issuances(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Issuance, error)
}

// WizardHandler serves the bond creation wizard endpoints.
type WizardHandler struct {
	wizards WizardService
	logger  *slog.Logger
}

// NewWizardHandler creates a WizardHandler with the given service and logger.
func NewWizardHandler(wizards WizardService, logger *slog.Logger) *WizardHandler {
	return &WizardHandler{wizards: wizards, logger: logHandler(logger, "wizard")}
}

type createWizardRequest struct {
	Variant domain.Variant `json:"variant"`
	Owner   string         `json:"owner"`
}

// Create starts a wizard session.
// POST /api/wizards
func (h *WizardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createWizardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := h.wizards.Create(r.Context(), req.Variant, req.Owner)
	if err != nil {
		writeServiceError(w, r, h.logger, "create wizard", err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// Get returns the session state, summary and sequence.
// GET /api/wizards/{id}
func (h *WizardHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "get wizard", h.wizards.Get)
}

// SetFields stores raw form values.
// PUT /api/wizards/{id}/fields
func (h *WizardHandler) SetFields(w http.ResponseWriter, r *http.Request) {
	var raw map[string]string
	if err := decodeJSON(w, r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	values := make(map[domain.Field]string, len(raw))
	for k, v := range raw {
		values[domain.Field(k)] = v
	}
	view, err := h.wizards.SetFields(r.Context(), r.PathValue("id"), values)
	if err != nil {
		writeServiceError(w, r, h.logger, "set fields", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Next advances when the active step validates.
// POST /api/wizards/{id}/next
func (h *WizardHandler) Next(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "next step", h.wizards.Next)
}

// Back moves one step back.
// POST /api/wizards/{id}/back
func (h *WizardHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "previous step", h.wizards.Back)
}

// Prepare builds the transaction sequence and checks the allowance.
// POST /api/wizards/{id}/prepare
func (h *WizardHandler) Prepare(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "prepare", h.wizards.Prepare)
}

// RunStep submits one sequence step and waits for its receipt. A declined
// or reverted transaction is a 200 with the outcome in the body.
// POST /api/wizards/{id}/steps/{step}
func (h *WizardHandler) RunStep(w http.ResponseWriter, r *http.Request) {
	res, err := h.wizards.RunStep(r.Context(), r.PathValue("id"), r.PathValue("step"))
	if err != nil {
		writeServiceError(w, r, h.logger, "run step", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Events replays the session's sequence transitions.
// GET /api/wizards/{id}/events?count=
func (h *WizardHandler) Events(w http.ResponseWriter, r *http.Request) {
	count := queryInt(r, "count", 100)
	events, err := h.wizards.Events(r.Context(), r.PathValue("id"), int64(count))
	if err != nil {
		writeServiceError(w, r, h.logger, "list events", err)
		return
	}
	if events == nil {
		events = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// Discard drops the session.
// DELETE /api/wizards/{id}
func (h *WizardHandler) Discard(w http.ResponseWriter, r *http.Request) {
	if err := h.wizards.Discard(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, h.logger, "discard wizard", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListIssuances returns the issuance records of an owner.
// GET /api/issuances?owner=
func (h *WizardHandler) ListIssuances(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "missing owner")
		return
	}
	list, err := h.wizards.Issuances(r.Context(), owner, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list issuances", err)
		return
	}
	if list == nil {
		list = []domain.Issuance{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"issuances": list,
		"count":     len(list),
	})
}

// GetIssuance returns one issuance record.
// GET /api/issuances/{id}
func (h *WizardHandler) GetIssuance(w http.ResponseWriter, r *http.Request) {
	iss, err := h.wizards.Issuance(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get issuance", err)
		return
	}
	writeJSON(w, http.StatusOK, iss)
}

func (h *WizardHandler) respond(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, string) (service.SessionView, error)) {
	view, err := fn(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
