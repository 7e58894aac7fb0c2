package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/bondwizard/internal/listing"
	"github.com/alanyoungcy/bondwizard/internal/service"
)

// ListingService defines the methods that the offering handler requires.
type ListingService interface {
	Query(ctx context.Context, q service.ListingQuery) (listing.View, error)
}

// OfferingHandler serves the offerings table.
type OfferingHandler struct {
	listings ListingService
	logger   *slog.Logger
}

// NewOfferingHandler creates an OfferingHandler with the given service and logger.
func NewOfferingHandler(listings ListingService, logger *slog.Logger) *OfferingHandler {
	return &OfferingHandler{listings: listings, logger: logHandler(logger, "offering")}
}

// ListOfferings returns one page of the filtered offering table.
// GET /api/offerings?q=&page=&page_size=
func (h *OfferingHandler) ListOfferings(w http.ResponseWriter, r *http.Request) {
	view, err := h.listings.Query(r.Context(), service.ListingQuery{
		Query:    r.URL.Query().Get("q"),
		Page:     queryInt(r, "page", 0),
		PageSize: queryInt(r, "page_size", 0),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "list offerings", err)
		return
	}
	if view.Rows == nil {
		view.Rows = []listing.Row{}
	}
	writeJSON(w, http.StatusOK, view)
}
