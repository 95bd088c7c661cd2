package catalog

import (
	"net/http"

	"github.com/noah-isme/backend-merch/internal/common"
)

// Handler exposes public catalog endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Combos handles GET /api/combos.
func (h *Handler) Combos(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "catalog service not configured", nil)
		return
	}
	defs, err := h.service.ActiveCombos(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeDatabase, "failed to load combos", nil)
		return
	}
	if defs == nil {
		defs = []ComboDefinition{}
	}
	common.JSONData(w, http.StatusOK, "", defs)
}
