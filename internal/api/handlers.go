package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-bundles/internal/bundle"
	"github.com/noah-isme/toko-bundles/internal/cart"
	"github.com/noah-isme/toko-bundles/internal/cartattr"
	"github.com/noah-isme/toko-bundles/internal/common"
	"github.com/noah-isme/toko-bundles/internal/obs"
)

const (
	maxBodyBytes  = 1 << 20
	maxBatchPrice = 25
)

// Handler exposes the bundle endpoints.
type Handler struct {
	service     *Service
	validate    *validator.Validate
	idempotency func(http.Handler) http.Handler
	logger      zerolog.Logger
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
	// Idempotency guards the add-to-cart route when set.
	Idempotency func(http.Handler) http.Handler
	Logger      *zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		service:     cfg.Service,
		validate:    validate,
		idempotency: cfg.Idempotency,
		logger:      logger,
	}
}

// Routes returns the router to mount under /api/v1.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/bundle/{id}", func(r chi.Router) {
		r.Use(obs.BundleContextMiddleware)
		r.Get("/", h.GetBundle)
		r.Post("/inventory", h.Inventory)
		r.Post("/price", h.Price)
		r.Post("/validate", h.Validate)
		r.Post("/lines", h.Lines)
		r.Post("/refresh", h.Refresh)
		if h.idempotency != nil {
			r.With(h.idempotency).Post("/cart", h.AddToCart)
		} else {
			r.Post("/cart", h.AddToCart)
		}
	})
	r.Post("/bundles/price", h.BatchPrice)
	r.Post("/cart/bundles", h.GroupCart)
	return r
}

type selectionRequest struct {
	SelectedComponents []bundle.Selection `json:"selectedComponents" validate:"omitempty,dive"`
}

type batchPriceRequest struct {
	Requests []PriceRequest `json:"requests" validate:"required,min=1,dive"`
}

type refreshRequest struct {
	BundleIDs []string `json:"bundleIds" validate:"omitempty,dive,required"`
}

type groupRequest struct {
	Lines []cartattr.Line `json:"lines" validate:"required"`
}

// GetBundle handles GET /api/v1/bundle/{id}. ?refresh=true bypasses the cache.
func (h *Handler) GetBundle(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	skip, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	def, err := h.service.Bundle(r.Context(), chi.URLParam(r, "id"), skip)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"bundle": def})
}

// Inventory handles POST /api/v1/bundle/{id}/inventory.
func (h *Handler) Inventory(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req selectionRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	inv, err := h.service.Inventory(r.Context(), chi.URLParam(r, "id"), req.SelectedComponents)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"inventory": inv})
}

// Price handles POST /api/v1/bundle/{id}/price.
func (h *Handler) Price(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req selectionRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	price, err := h.service.Price(r.Context(), chi.URLParam(r, "id"), req.SelectedComponents)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"price": price})
}

// BatchPrice handles POST /api/v1/bundles/price.
func (h *Handler) BatchPrice(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req batchPriceRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(req.Requests) > maxBatchPrice {
		h.writeError(w, r, common.NewError(common.CodeBadRequest, fmt.Sprintf("at most %d bundles per request", maxBatchPrice), nil))
		return
	}
	prices, err := h.service.PriceMany(r.Context(), req.Requests)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"prices": prices})
}

// Validate handles POST /api/v1/bundle/{id}/validate.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req selectionRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.service.Validate(r.Context(), chi.URLParam(r, "id"), req.SelectedComponents)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"validation": res})
}

// Lines handles POST /api/v1/bundle/{id}/lines.
func (h *Handler) Lines(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in cart.Input
	if err := h.decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	lines, err := h.service.Lines(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"lines": lines})
}

// AddToCart handles POST /api/v1/bundle/{id}/cart. A rejected mutation is
// rendered as the result body with 422.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in cart.Input
	if err := h.decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	if key := common.IdempotencyKeyFromContext(r.Context()); key != "" {
		in.IdempotencyKey = key
	}
	res, err := h.service.AddToCart(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	common.JSON(w, status, res)
}

// Refresh handles POST /api/v1/bundle/{id}/refresh. Extra ids in the body are
// warmed with the path id.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req refreshRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ids := append([]string{chi.URLParam(r, "id")}, req.BundleIDs...)
	res, err := h.service.Refresh(r.Context(), ids)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Queued {
		status = http.StatusAccepted
	}
	common.JSON(w, status, res)
}

// GroupCart handles POST /api/v1/cart/bundles.
func (h *Handler) GroupCart(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"groups": cartattr.OrderedGroups(req.Lines)})
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInvalidConfig, "bundle service not configured", nil)
		return false
	}
	return true
}

// decode reads an optional JSON body into dst and validates it. An empty body
// leaves dst at its zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body != nil {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			return common.NewError(common.CodeBadRequest, "invalid request body", err)
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fieldPath(fe.Namespace())] = fe.Tag()
			}
			return common.NewError(common.CodeBadRequest, "validation failed", err).WithDetails(fields)
		}
		return common.NewError(common.CodeBadRequest, "validation failed", err)
	}
	return nil
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if common.StatusFor(common.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.Error().
			Err(err).
			Str("bundle_id", obs.BundleIDFromContext(r.Context())).
			Str("code", common.CodeOf(err)).
			Msg("bundle_request_failed")
	}
	common.WriteError(w, err)
}
