package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/maltedev/review-scraper/internal/database"
	"github.com/maltedev/review-scraper/internal/jobs"
	"github.com/maltedev/review-scraper/internal/models"
	"github.com/maltedev/review-scraper/internal/scraper"
)

// MaxBatchSize bounds the URLs accepted by one batch request.
const MaxBatchSize = 50

type Scraper interface {
	Scrape(ctx context.Context, url string) (*scraper.Result, error)
}

type BatchRunner interface {
	Run(ctx context.Context, urls []string) []jobs.Item
}

// ProductReader loads stored snapshots. GetByURL returns nil for unknown URLs.
type ProductReader interface {
	GetByURL(ctx context.Context, url string) (*database.ProductRecord, error)
}

type Handlers struct {
	scraper  Scraper
	runner   BatchRunner
	products ProductReader
	logger   *slog.Logger
}

// NewHandlers wires the API. products may be nil when no store is configured.
func NewHandlers(s Scraper, runner BatchRunner, products ProductReader, logger *slog.Logger) *Handlers {
	return &Handlers{
		scraper:  s,
		runner:   runner,
		products: products,
		logger:   logger.With("component", "api"),
	}
}

type ScrapeRequest struct {
	URL string `json:"url"`
}

type ErrorResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing,omitempty"`
}

// Scrape runs one scrape synchronously.
func (h *Handlers) Scrape(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.URL) == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	res, err := h.scraper.Scrape(r.Context(), req.URL)
	if err != nil {
		h.respondScrapeError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, res)
}

type BatchRequest struct {
	URLs []string `json:"urls"`
}

type BatchResponse struct {
	Items     []jobs.Item `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// ScrapeBatch scrapes several URLs and reports each outcome.
func (h *Handlers) ScrapeBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.URLs) == 0 {
		h.respondError(w, http.StatusBadRequest, "urls is required")
		return
	}
	if len(req.URLs) > MaxBatchSize {
		h.respondError(w, http.StatusBadRequest, "too many urls")
		return
	}

	items := h.runner.Run(r.Context(), req.URLs)

	resp := BatchResponse{Items: items}
	for _, it := range items {
		if it.Err != nil {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// GetProduct returns the stored snapshot for the url query parameter.
func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	if h.products == nil {
		h.respondError(w, http.StatusServiceUnavailable, "product store not configured")
		return
	}

	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	rec, err := h.products.GetByURL(r.Context(), url)
	if err != nil {
		h.logger.Error("failed to get product", "url", url, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get product")
		return
	}
	if rec == nil {
		h.respondError(w, http.StatusNotFound, "product not found")
		return
	}

	h.respondJSON(w, http.StatusOK, rec)
}

func (h *Handlers) respondScrapeError(w http.ResponseWriter, err error) {
	var incomplete *models.IncompleteSnapshotError
	var persistence *database.PersistenceError

	switch {
	case errors.Is(err, scraper.ErrInvalidURL):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.respondError(w, http.StatusGatewayTimeout, "scrape timed out")
	case errors.As(err, &persistence):
		h.logger.Error("failed to persist snapshot", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to persist snapshot")
	case errors.As(err, &incomplete):
		h.respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   err.Error(),
			Missing: incomplete.Missing,
		})
	default:
		h.logger.Error("scrape failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "scrape failed")
	}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{Error: message})
}
