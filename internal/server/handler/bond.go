package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondwizard/internal/domain"
	"github.com/alanyoungcy/bondwizard/internal/service"
)

// BondService defines the methods that the bond handler requires.
type BondService interface {
	Bonds(ctx context.Context, owner string) ([]domain.BondDetail, error)
	Bond(ctx context.Context, id string) (domain.BondDetail, error)
	Execute(ctx context.Context, req service.ActionRequest) (service.ActionResult, error)
}

// BondHandler serves indexed bond records and bond actions.
type BondHandler struct {
	bonds  BondService
	logger *slog.Logger
}

// NewBondHandler creates a BondHandler with the given service and logger.
func NewBondHandler(bonds BondService, logger *slog.Logger) *BondHandler {
	return &BondHandler{bonds: bonds, logger: logHandler(logger, "bond")}
}

// ListBonds returns the bonds of an issuer, or the most recent bonds when
// no issuer is given.
// GET /api/bonds?issuer=
func (h *BondHandler) ListBonds(w http.ResponseWriter, r *http.Request) {
	bonds, err := h.bonds.Bonds(r.Context(), r.URL.Query().Get("issuer"))
	if err != nil {
		writeServiceError(w, r, h.logger, "list bonds", err)
		return
	}
	if bonds == nil {
		bonds = []domain.BondDetail{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bonds": bonds,
		"count": len(bonds),
	})
}

// GetBond returns a single bond by contract address.
// GET /api/bonds/{id}
func (h *BondHandler) GetBond(w http.ResponseWriter, r *http.Request) {
	b, err := h.bonds.Bond(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get bond", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type actionRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Execute runs pay, withdraw, convert or redeem against a bond.
// POST /api/bonds/{id}/actions/{action}
func (h *BondHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.bonds.Execute(r.Context(), service.ActionRequest{
		Bond:   r.PathValue("id"),
		Action: domain.BondAction(r.PathValue("action")),
		Amount: req.Amount,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "bond action", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
