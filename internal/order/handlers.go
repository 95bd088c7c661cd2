package order

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-merch/internal/common"
	"github.com/noah-isme/backend-merch/internal/obs"
)

// Handler exposes the order HTTP endpoints.
type Handler struct {
	service *Service
	logger  zerolog.Logger
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
	Logger  zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service, logger: cfg.Logger}
}

// Routes returns a router setup for the order endpoints. The given
// middlewares guard order creation only.
func (h *Handler) Routes(create ...func(http.Handler) http.Handler) func(chi.Router) {
	return func(r chi.Router) {
		r.With(create...).Post("/", h.Create)
		r.Get("/{orderCode}", h.Get)
	}
}

// Create handles POST /api/orders.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "order service not configured", nil)
		return
	}
	var in CreateInput
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&in); err != nil {
		message := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			message = "request body is required"
		}
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, message, nil)
		return
	}
	out, err := h.service.CreateOrder(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSONData(w, http.StatusCreated, "Order created successfully", out)
}

// Get handles GET /api/orders/{orderCode}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "order service not configured", nil)
		return
	}
	summary, err := h.service.GetOrderByCode(r.Context(), chi.URLParam(r, "orderCode"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSONData(w, http.StatusOK, "", summary)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := ToAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger := obs.LoggerWithTrace(r.Context(), h.logger)
		logger.Error().Err(err).
			Str("route", r.URL.Path).
			Str("code", appErr.Code).
			Msg("order_request_failed")
	}
	common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
}
