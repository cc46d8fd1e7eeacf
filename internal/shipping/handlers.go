package shipping

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/Caqil/oncart-backend/internal/common"
)

// Handler exposes the shipping quote endpoint.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

// Quote handles POST /api/v1/quotes/shipping.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid quote request", validationDetails(err))
		return
	}

	quote, err := h.Svc.Quote(r.Context(), req)
	if err != nil {
		common.RenderError(w, err, "failed to compute shipping quote")
		return
	}
	common.Data(w, http.StatusOK, quote)
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}
