package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/parts-catalog-importer/internal/catalog"
	"github.com/maltedev/parts-catalog-importer/internal/importer"
	"github.com/maltedev/parts-catalog-importer/internal/models"
)

// Importer is the part of *importer.Importer the handlers drive.
type Importer interface {
	Resolve(ctx context.Context, query string) (string, bool, error)
	ImportProduct(ctx context.Context, query string) *importer.Outcome
	ImportBatch(ctx context.Context, queries []string) *importer.Summary
}

type Handlers struct {
	importer Importer
	store    catalog.Store
	logger   *slog.Logger
}

func NewHandlers(imp Importer, store catalog.Store, logger *slog.Logger) *Handlers {
	return &Handlers{
		importer: imp,
		store:    store,
		logger:   logger.With("component", "api"),
	}
}

type ImportRequest struct {
	Query string `json:"query" validate:"required"`
}

type BatchImportRequest struct {
	Queries []string `json:"queries" validate:"required,min=1,max=500,dive,required"`
}

type ResolveResponse struct {
	Query string `json:"query"`
	URL   string `json:"url,omitempty"`
	Found bool   `json:"found"`
}

// Resolve handles GET /api/v1/resolve?q=
func (h *Handlers) Resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		h.respondError(w, http.StatusBadRequest, "q is required")
		return
	}

	u, found, err := h.importer.Resolve(r.Context(), q)
	if err != nil {
		h.logger.Error("failed to resolve query", "query", q, "error", err)
		h.respondError(w, statusForKind(catalog.Kind(err)), err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, ResolveResponse{Query: q, URL: u, Found: found})
}

// Import handles POST /api/v1/import
func (h *Handlers) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !h.decode(w, r, &req) {
		return
	}

	out := h.importer.ImportProduct(r.Context(), req.Query)
	h.respondJSON(w, statusForOutcome(out), out)
}

// ImportBatch handles POST /api/v1/import/batch
func (h *Handlers) ImportBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchImportRequest
	if !h.decode(w, r, &req) {
		return
	}

	summary := h.importer.ImportBatch(r.Context(), req.Queries)
	h.respondJSON(w, http.StatusOK, summary)
}

// GetProduct handles GET /api/v1/products/{article}
func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	article := chi.URLParam(r, "article")

	p, err := h.store.GetByArticle(r.Context(), article)
	if err != nil {
		h.respondStoreError(w, err, "failed to get product")
		return
	}

	h.respondJSON(w, http.StatusOK, p.ToMap())
}

// DeleteProduct handles DELETE /api/v1/products/{article}
func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	article := chi.URLParam(r, "article")

	if err := h.store.Delete(r.Context(), article); err != nil {
		h.respondStoreError(w, err, "failed to delete product")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateStock handles PUT /api/v1/products/{article}/stock. Fields absent
// from the body keep their stored values.
func (h *Handlers) UpdateStock(w http.ResponseWriter, r *http.Request) {
	article := chi.URLParam(r, "article")

	var update models.StockUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.store.UpdateStock(r.Context(), article, update)
	if err != nil {
		h.respondStoreError(w, err, "failed to update stock")
		return
	}

	h.respondJSON(w, http.StatusOK, p.ToMap())
}

type ProductListResponse struct {
	Items []map[string]any `json:"items"`
	*catalog.ProductPage
}

// ListProducts handles GET /api/v1/products?zone=&manufacturer=&low_stock=&search=&page=&per_page=
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := catalog.ListFilter{
		Zone:         q.Get("zone"),
		Manufacturer: q.Get("manufacturer"),
		LowStock:     strings.EqualFold(q.Get("low_stock"), "true"),
		Search:       strings.TrimSpace(q.Get("search")),
	}

	var err error
	if filter.Page, err = intParam(q.Get("page"), 1); err != nil {
		h.respondError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	if filter.PerPage, err = intParam(q.Get("per_page"), catalog.DefaultPerPage); err != nil {
		h.respondError(w, http.StatusBadRequest, "per_page must be a positive integer")
		return
	}

	page, err := h.store.Browse(r.Context(), filter)
	if err != nil {
		h.respondStoreError(w, err, "failed to list products")
		return
	}

	h.respondJSON(w, http.StatusOK, ProductListResponse{Items: toMaps(page.Items), ProductPage: page})
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errors.New("not a positive integer")
	}
	return n, nil
}

// Search handles GET /api/v1/products/search?q=&limit=
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := catalog.DefaultSearchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	products, err := h.store.Search(r.Context(), q, limit)
	if err != nil {
		h.respondStoreError(w, err, "failed to search products")
		return
	}

	h.respondJSON(w, http.StatusOK, toMaps(products))
}

// Stats handles GET /api/v1/stats
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.respondStoreError(w, err, "failed to get stats")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// Export handles GET /api/v1/export
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.List(r.Context())
	if err != nil {
		h.respondStoreError(w, err, "failed to export products")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="catalog.json"`)
	h.respondJSON(w, http.StatusOK, toMaps(products))
}

func toMaps(products []*models.ProductRecord) []map[string]any {
	out := make([]map[string]any, 0, len(products))
	for _, p := range products {
		out = append(out, p.ToMap())
	}
	return out
}

func statusForOutcome(out *importer.Outcome) int {
	switch out.Status {
	case importer.StatusCommitted:
		return http.StatusCreated
	case importer.StatusSkipped:
		return http.StatusConflict
	}
	return statusForKind(out.Reason)
}

func statusForKind(kind string) int {
	switch kind {
	case catalog.KindNotFound:
		return http.StatusNotFound
	case catalog.KindFetch:
		return http.StatusBadGateway
	case catalog.KindConflict:
		return http.StatusConflict
	case catalog.KindValidation:
		return http.StatusUnprocessableEntity
	case catalog.KindCanceled:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	if err := catalog.Validate(v); err != nil {
		var verr *catalog.ValidationError
		if errors.As(err, &verr) {
			h.respondJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "invalid request",
				"fields": verr.Fields,
			})
			return false
		}
		h.respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handlers) respondStoreError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case catalog.Kind(err) == catalog.KindValidation:
		h.respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(message, "error", err)
		h.respondError(w, http.StatusInternalServerError, message)
	}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
