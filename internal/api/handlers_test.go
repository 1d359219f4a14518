package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/review-scraper/internal/database"
	"github.com/maltedev/review-scraper/internal/jobs"
	"github.com/maltedev/review-scraper/internal/metrics"
	"github.com/maltedev/review-scraper/internal/models"
	"github.com/maltedev/review-scraper/internal/scraper"
)

const productURL = "https://shop.example/goods/A001"

type MockScraper struct {
	mock.Mock
}

func (m *MockScraper) Scrape(ctx context.Context, url string) (*scraper.Result, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scraper.Result), args.Error(1)
}

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, urls []string) []jobs.Item {
	args := m.Called(ctx, urls)
	return args.Get(0).([]jobs.Item)
}

type MockProducts struct {
	mock.Mock
}

func (m *MockProducts) GetByURL(ctx context.Context, url string) (*database.ProductRecord, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.ProductRecord), args.Error(1)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubOutbox struct{ pending, deadLetter int64 }

func (s stubOutbox) GetPendingCount(context.Context) (int64, error)    { return s.pending, nil }
func (s stubOutbox) GetDeadLetterCount(context.Context) (int64, error) { return s.deadLetter, nil }

type testServer struct {
	scraper  *MockScraper
	runner   *MockRunner
	products *MockProducts
	handler  http.Handler
}

func newTestServer(cfg RouterConfig) *testServer {
	ts := &testServer{
		scraper:  new(MockScraper),
		runner:   new(MockRunner),
		products: new(MockProducts),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandlers(ts.scraper, ts.runner, ts.products, logger)
	ts.handler = NewRouter(h, cfg)
	return ts
}

func (ts *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func completeResult() *scraper.Result {
	snap := &models.Snapshot{
		URL:     productURL,
		Name:    "Cream A",
		Price:   19900,
		Rating:  4.6,
		Images:  []string{"https://img.example/1.jpg"},
		Reviews: []models.ReviewRecord{{Text: "good", Rank: 1}},
		Status:  models.StatusComplete,
	}
	return &scraper.Result{Snapshot: snap, Status: snap.Status, ProductID: 42}
}

func TestHandlers_Scrape(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ts := newTestServer(RouterConfig{})
		ts.scraper.On("Scrape", mock.Anything, productURL).Return(completeResult(), nil)

		rec := ts.do(http.MethodPost, "/api/v1/scrape", fmt.Sprintf(`{"url":%q}`, productURL))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		body := decode[map[string]any](t, rec)
		assert.Equal(t, "complete", body["status"])
		assert.Equal(t, float64(42), body["product_id"])
		snap := body["snapshot"].(map[string]any)
		assert.Equal(t, "Cream A", snap["name"])
		ts.scraper.AssertExpectations(t)
	})

	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "malformed body", body: `{`, wantStatus: http.StatusBadRequest, wantError: "invalid request body"},
		{name: "missing url", body: `{"url":"  "}`, wantStatus: http.StatusBadRequest, wantError: "url is required"},
		{
			name:       "invalid url",
			body:       `{"url":"ftp://x"}`,
			err:        fmt.Errorf("%w: scheme must be http or https", scraper.ErrInvalidURL),
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid product url: scheme must be http or https",
		},
		{
			name:       "incomplete snapshot",
			body:       fmt.Sprintf(`{"url":%q}`, productURL),
			err:        &models.IncompleteSnapshotError{URL: productURL, Missing: []string{"price"}},
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "incomplete snapshot for " + productURL + ": missing price",
		},
		{
			name:       "persistence",
			body:       fmt.Sprintf(`{"url":%q}`, productURL),
			err:        &database.PersistenceError{Op: "upsert", Err: errors.New("conn closed")},
			wantStatus: http.StatusInternalServerError,
			wantError:  "failed to persist snapshot",
		},
		{
			name:       "deadline",
			body:       fmt.Sprintf(`{"url":%q}`, productURL),
			err:        fmt.Errorf("scrape of %s cancelled: %w", productURL, context.DeadlineExceeded),
			wantStatus: http.StatusGatewayTimeout,
			wantError:  "scrape timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(RouterConfig{})
			if tt.err != nil {
				ts.scraper.On("Scrape", mock.Anything, mock.Anything).Return(nil, tt.err)
			}

			rec := ts.do(http.MethodPost, "/api/v1/scrape", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decode[ErrorResponse](t, rec).Error)
			if tt.err == nil {
				ts.scraper.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything)
			}
		})
	}

	t.Run("incomplete snapshot lists missing facts", func(t *testing.T) {
		ts := newTestServer(RouterConfig{})
		ts.scraper.On("Scrape", mock.Anything, productURL).
			Return(nil, &models.IncompleteSnapshotError{URL: productURL, Missing: []string{"price", "rating"}})

		rec := ts.do(http.MethodPost, "/api/v1/scrape", fmt.Sprintf(`{"url":%q}`, productURL))

		assert.Equal(t, []string{"price", "rating"}, decode[ErrorResponse](t, rec).Missing)
	})
}

func TestHandlers_ScrapeBatch(t *testing.T) {
	t.Run("reports every item", func(t *testing.T) {
		ts := newTestServer(RouterConfig{})
		urls := []string{productURL, "https://shop.example/goods/B002"}
		ts.runner.On("Run", mock.Anything, urls).Return([]jobs.Item{
			{URL: urls[0], Result: completeResult()},
			{URL: urls[1], Err: errors.New("boom"), Error: "boom"},
		})

		rec := ts.do(http.MethodPost, "/api/v1/scrape/batch", fmt.Sprintf(`{"urls":[%q,%q]}`, urls[0], urls[1]))

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[BatchResponse](t, rec)
		assert.Equal(t, 1, resp.Succeeded)
		assert.Equal(t, 1, resp.Failed)
		require.Len(t, resp.Items, 2)
		assert.Equal(t, "boom", resp.Items[1].Error)
		ts.runner.AssertExpectations(t)
	})

	t.Run("empty batch", func(t *testing.T) {
		ts := newTestServer(RouterConfig{})
		rec := ts.do(http.MethodPost, "/api/v1/scrape/batch", `{"urls":[]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("oversized batch", func(t *testing.T) {
		ts := newTestServer(RouterConfig{})
		urls := make([]string, MaxBatchSize+1)
		for i := range urls {
			urls[i] = fmt.Sprintf("%q", fmt.Sprintf("https://shop.example/goods/%d", i))
		}
		rec := ts.do(http.MethodPost, "/api/v1/scrape/batch", `{"urls":[`+strings.Join(urls, ",")+`]}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "too many urls", decode[ErrorResponse](t, rec).Error)
		ts.runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	})
}

func TestHandlers_GetProduct(t *testing.T) {
	target := "/api/v1/products?url=" + url.QueryEscape(productURL)

	t.Run("found", func(t *testing.T) {
		ts := newTestServer(RouterConfig{})
		ts.products.On("GetByURL", mock.Anything, productURL).Return(&database.ProductRecord{
			ID:       42,
			Snapshot: *completeResult().Snapshot,
		}, nil)

		rec := ts.do(http.MethodGet, target, "")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[map[string]any](t, rec)
		assert.Equal(t, float64(42), body["id"])
		assert.Equal(t, productURL, body["url"])
	})

	t.Run("unknown", func(t *testing.T) {
		ts := newTestServer(RouterConfig{})
		ts.products.On("GetByURL", mock.Anything, productURL).Return(nil, nil)

		rec := ts.do(http.MethodGet, target, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing url", func(t *testing.T) {
		ts := newTestServer(RouterConfig{})
		rec := ts.do(http.MethodGet, "/api/v1/products", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("store error", func(t *testing.T) {
		ts := newTestServer(RouterConfig{})
		ts.products.On("GetByURL", mock.Anything, productURL).Return(nil, errors.New("conn refused"))

		rec := ts.do(http.MethodGet, target, "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("no store configured", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		handler := NewRouter(NewHandlers(new(MockScraper), new(MockRunner), nil, logger), RouterConfig{})

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		cfg        RouterConfig
		wantStatus int
		wantHealth string
	}{
		{name: "no dependencies", cfg: RouterConfig{}, wantStatus: http.StatusOK, wantHealth: "ok"},
		{name: "database down", cfg: RouterConfig{DB: stubPinger{err: errors.New("down")}}, wantStatus: http.StatusServiceUnavailable, wantHealth: "error"},
		{name: "outbox backlog", cfg: RouterConfig{DB: stubPinger{}, Outbox: stubOutbox{pending: 5000}}, wantStatus: http.StatusOK, wantHealth: "warning"},
		{name: "dead letters", cfg: RouterConfig{DB: stubPinger{}, Outbox: stubOutbox{deadLetter: 500}}, wantStatus: http.StatusServiceUnavailable, wantHealth: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(tt.cfg)
			rec := ts.do(http.MethodGet, "/health", "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantHealth, decode[map[string]any](t, rec)["status"])
		})
	}
}

type stubCounter int64

func (c stubCounter) Count(context.Context) (int64, error) { return int64(c), nil }

func TestHealth_ProductCount(t *testing.T) {
	ts := newTestServer(RouterConfig{DB: stubPinger{}, Products: stubCounter(7)})
	rec := ts.do(http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(7), decode[map[string]any](t, rec)["products"])
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.IncRun("complete")
	ts := newTestServer(RouterConfig{Registry: m.Registry})

	rec := ts.do(http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `scraper_runs_total{status="complete"} 1`)
}
