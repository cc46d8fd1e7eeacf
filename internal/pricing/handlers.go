package pricing

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/Caqil/oncart-backend/internal/common"
)

// Handler exposes the order total endpoint.
type Handler struct {
	Engine   Engine
	Validate *validator.Validate
}

// Totals handles POST /api/v1/quotes/totals.
func (h *Handler) Totals(w http.ResponseWriter, r *http.Request) {
	var req TotalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid totals request", nil)
		return
	}

	totals, err := h.Engine.Totals(r.Context(), req)
	if err != nil {
		common.RenderError(w, err, "failed to compute order totals")
		return
	}
	common.Data(w, http.StatusOK, totals)
}
