package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xaenox/scout-insights/internal/analytics"
	"github.com/xaenox/scout-insights/internal/chat"
	"github.com/xaenox/scout-insights/internal/insights"
	"github.com/xaenox/scout-insights/internal/llm"
	"github.com/xaenox/scout-insights/internal/llm/llmtest"
	"github.com/xaenox/scout-insights/internal/models"
	"github.com/xaenox/scout-insights/internal/storage"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router  *gin.Engine
	store   *storage.MemoryStorage
	primary *llmtest.Fake
	backup  *llmtest.Fake
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	today := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return today }

	store := storage.NewMemoryStorage()
	if err := storage.Seed(context.Background(), store, storage.DemoDataset(today, 30)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	primary := &llmtest.Fake{Label: "primary", Text: `{"mainInsight":"Sales are steady.","keyPoints":["a"],"recommendations":["b"]}`}
	backup := &llmtest.Fake{Label: "backup", Text: `{"mainInsight":"Backup view.","keyPoints":[],"recommendations":[]}`}
	pair := llm.NewPair(primary, backup, nil)
	logger := zap.NewNop()

	handler := NewHandler(
		analytics.NewService(store, logger).WithClock(clock),
		insights.NewGenerator(store, store, pair, logger, insights.Options{Clock: clock}),
		chat.NewOrchestrator(store, store, pair, logger, chat.Options{Clock: clock}),
		store,
		logger,
	)
	return &testEnv{
		router:  NewRouter(RouterConfig{Handler: handler, Logger: logger}),
		store:   store,
		primary: primary,
		backup:  backup,
	}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealthCheck(t *testing.T) {
	w := setup(t).do(http.MethodGet, "/healthcheck", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestTrendsEndpoint(t *testing.T) {
	w := setup(t).do(http.MethodGet, "/api/analytics/trends?dateRange=last7days&compareMode=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decode[struct {
		Trends     []map[string]any `json:"trends"`
		Summary    map[string]any   `json:"summary"`
		Comparison []map[string]any `json:"comparison"`
	}](t, w)
	if len(body.Trends) != 8 {
		t.Errorf("expected 8 days, got %d", len(body.Trends))
	}
	if len(body.Comparison) != 2 {
		t.Errorf("expected comparison series, got %v", body.Comparison)
	}
	if _, ok := body.Summary["hasBaseline"]; !ok {
		t.Errorf("summary missing hasBaseline: %v", body.Summary)
	}
}

func TestAnalyticsRejectsUnknownFilter(t *testing.T) {
	w := setup(t).do(http.MethodGet, "/api/analytics/products?dateRange=yesterday", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	env := decode[ErrorEnvelope](t, w)
	if env.Error.Code != "invalid_filters" {
		t.Errorf("unexpected error code %q", env.Error.Code)
	}
}

func TestOtherAnalyticsEndpoints(t *testing.T) {
	e := setup(t)
	for _, path := range []string{
		"/api/analytics/products?brand=alaska",
		"/api/analytics/behavior",
		"/api/analytics/geographic?geography=visayas",
	} {
		if w := e.do(http.MethodGet, path, nil); w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d: %s", path, w.Code, w.Body.String())
		}
	}
}

func TestInsightEndpoint(t *testing.T) {
	e := setup(t)
	body := map[string]any{
		"filters":      models.DefaultFilters(),
		"activeModule": "products",
	}

	w := e.do(http.MethodPost, "/api/insights", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	insight := decode[models.Insight](t, w)
	if insight.MainInsight != "Sales are steady." || insight.LLMProvider != "primary" {
		t.Errorf("unexpected insight %+v", insight)
	}

	e.do(http.MethodPost, "/api/insights", body)
	if e.primary.Calls() != 1 {
		t.Errorf("second request should be served from cache, got %d calls", e.primary.Calls())
	}
}

func TestInsightEndpointErrors(t *testing.T) {
	e := setup(t)

	w := e.do(http.MethodPost, "/api/insights", map[string]any{"activeModule": "weather"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown module, got %d", w.Code)
	}

	e.primary.Err = errors.New("down")
	e.backup.Err = errors.New("down too")
	w = e.do(http.MethodPost, "/api/insights", map[string]any{"activeModule": "trends"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502 on total failure, got %d", w.Code)
	}
	if env := decode[ErrorEnvelope](t, w); env.Error.Code != "insight_unavailable" {
		t.Errorf("unexpected error code %q", env.Error.Code)
	}
}

func TestChatEndpoint(t *testing.T) {
	e := setup(t)
	e.primary.Text = "Snacks are trending."

	w := e.do(http.MethodPost, "/api/chat", map[string]any{
		"message": "What is trending?",
		"filters": models.DefaultFilters(),
		"history": []models.ChatMessage{{Role: models.RoleAssistant, Content: chat.Greeting}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	reply := decode[chat.Reply](t, w)
	if reply.Content != "Snacks are trending." || reply.Provider != "primary" {
		t.Errorf("unexpected reply %+v", reply)
	}

	w = e.do(http.MethodGet, "/api/chat/log?limit=10", nil)
	logged := decode[struct {
		Messages []models.ChatLogEntry `json:"messages"`
	}](t, w)
	if len(logged.Messages) != 2 {
		t.Errorf("expected 2 logged rows, got %d", len(logged.Messages))
	}
}

func TestChatEndpointFailure(t *testing.T) {
	e := setup(t)
	e.primary.Err = errors.New("down")
	e.backup.Err = errors.New("down")

	w := e.do(http.MethodPost, "/api/chat", map[string]any{"message": "hi"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if env := decode[ErrorEnvelope](t, w); env.Error.Message != chat.Apology {
		t.Errorf("expected apology text, got %q", env.Error.Message)
	}

	w = e.do(http.MethodPost, "/api/chat", map[string]any{"message": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty message, got %d", w.Code)
	}
}
