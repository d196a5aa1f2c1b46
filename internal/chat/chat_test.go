package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xaenox/scout-insights/internal/llm"
	"github.com/xaenox/scout-insights/internal/llm/llmtest"
	"github.com/xaenox/scout-insights/internal/models"
	"github.com/xaenox/scout-insights/internal/storage"
	"go.uber.org/zap"
)

func seededStore(t *testing.T) *storage.MemoryStorage {
	t.Helper()
	store := storage.NewMemoryStorage()
	today := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	if err := storage.Seed(context.Background(), store, storage.DemoDataset(today, 14)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

func TestSendMessageUsesPrimary(t *testing.T) {
	store := seededStore(t)
	primary := &llmtest.Fake{Label: "claude", Text: "Alaska is up 12%."}
	secondary := &llmtest.Fake{Label: "gpt", Text: "unused"}
	o := NewOrchestrator(store, store, llm.NewPair(primary, secondary, nil), zap.NewNop(), Options{})

	history := []models.ChatMessage{
		{Role: models.RoleAssistant, Content: Greeting},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	}
	f := models.DefaultFilters()
	f.Brand = "alaska"

	reply, err := o.SendMessage(context.Background(), "How is Alaska doing?", f, history)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Content != "Alaska is up 12%." || reply.Provider != "claude" {
		t.Errorf("unexpected reply %+v", reply)
	}
	if secondary.Calls() != 0 {
		t.Error("secondary should not be called")
	}

	req := primary.Requests()[0]
	if len(req.Messages) != 4 || req.Messages[3].Content != "How is Alaska doing?" || req.Messages[3].Role != llm.RoleUser {
		t.Errorf("expected history plus new user turn, got %+v", req.Messages)
	}
	if req.Messages[1].Role != llm.RoleUser || req.Messages[2].Role != llm.RoleAssistant {
		t.Errorf("history roles not preserved: %+v", req.Messages)
	}
	for _, want := range []string{"Brand Filter: alaska", `"trends"`, `"regional"`, `"products"`, "Forecasting and predictions"} {
		if !strings.Contains(req.System, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}

	logged, _ := store.RecentMessages(context.Background(), 10)
	if len(logged) != 2 {
		t.Fatalf("expected two log rows, got %d", len(logged))
	}
	if logged[0].Role != models.RoleUser || logged[0].Metadata["timestamp"] == "" {
		t.Errorf("unexpected user log row %+v", logged[0])
	}
	if logged[1].Role != models.RoleAssistant || logged[1].Metadata["provider"] != "claude" {
		t.Errorf("unexpected assistant log row %+v", logged[1])
	}
}

func TestSendMessageFallsBack(t *testing.T) {
	store := seededStore(t)
	primary := &llmtest.Fake{Label: "claude", Err: errors.New("overloaded")}
	secondary := &llmtest.Fake{Label: "gpt", Text: "fallback answer"}
	o := NewOrchestrator(store, store, llm.NewPair(primary, secondary, nil), zap.NewNop(), Options{})

	reply, err := o.SendMessage(context.Background(), "hello", models.DefaultFilters(), nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Provider != "gpt" || reply.Content != "fallback answer" {
		t.Errorf("unexpected reply %+v", reply)
	}
	if len(secondary.Requests()[0].Messages) != 1 {
		t.Error("secondary should receive the same message sequence")
	}
}

type failingLog struct{ storage.ChatLog }

func (failingLog) LogMessages(ctx context.Context, entries []models.ChatLogEntry) error {
	return errors.New("log store down")
}

func TestSendMessageSwallowsLogFailures(t *testing.T) {
	store := seededStore(t)
	o := NewOrchestrator(store, failingLog{}, llm.NewPair(&llmtest.Fake{Label: "a", Text: "ok"}, nil, nil), zap.NewNop(), Options{})

	reply, err := o.SendMessage(context.Background(), "hello", models.DefaultFilters(), nil)
	if err != nil {
		t.Fatalf("logging failures must not fail the send: %v", err)
	}
	if reply.Content != "ok" {
		t.Errorf("unexpected reply %+v", reply)
	}
}

func TestSendMessageTotalFailureLogsNothing(t *testing.T) {
	store := seededStore(t)
	pair := llm.NewPair(&llmtest.Fake{Label: "a", Err: errors.New("x")}, &llmtest.Fake{Label: "b", Err: errors.New("y")}, nil)
	o := NewOrchestrator(store, store, pair, zap.NewNop(), Options{})

	if _, err := o.SendMessage(context.Background(), "hello", models.DefaultFilters(), nil); !errors.Is(err, llm.ErrAllProvidersFailed) {
		t.Fatalf("expected ErrAllProvidersFailed, got %v", err)
	}
	if logged, _ := store.RecentMessages(context.Background(), 10); len(logged) != 0 {
		t.Errorf("expected no log rows, got %d", len(logged))
	}
}

func TestDashboardContextBounds(t *testing.T) {
	store := seededStore(t)
	o := NewOrchestrator(store, store, nil, zap.NewNop(), Options{})

	dc, err := o.BuildDashboardContext(context.Background())
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if len(dc.Trends) != trendRows || len(dc.Regional) != regionalRows || len(dc.Products) != productRows {
		t.Errorf("unexpected sizes %d/%d/%d", len(dc.Trends), len(dc.Regional), len(dc.Products))
	}
	if dc.Trends[0].Date != "2024-03-10" {
		t.Errorf("expected most recent trend first, got %s", dc.Trends[0].Date)
	}
}

type scriptedSender struct {
	mu      sync.Mutex
	err     error
	block   chan struct{}
	entered chan struct{}
	seen    [][]models.ChatMessage
}

func (s *scriptedSender) SendMessage(ctx context.Context, text string, filters models.FilterContext, history []models.ChatMessage) (*Reply, error) {
	s.mu.Lock()
	s.seen = append(s.seen, history)
	s.mu.Unlock()
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return nil, s.err
	}
	return &Reply{Content: "re: " + text, Provider: "fake"}, nil
}

func TestSessionHistoryGrowsByPairs(t *testing.T) {
	sender := &scriptedSender{}
	s := NewSession(sender)

	const n = 4
	for i := 0; i < n; i++ {
		if _, err := s.Send(context.Background(), "question", models.DefaultFilters()); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	history := s.History()
	if len(history) != 2*n+1 {
		t.Fatalf("expected %d messages, got %d", 2*n+1, len(history))
	}
	if history[0].Role != models.RoleAssistant || history[0].Content != Greeting {
		t.Errorf("expected greeting first, got %+v", history[0])
	}
	for i := 1; i < len(history); i++ {
		want := models.RoleUser
		if i%2 == 0 {
			want = models.RoleAssistant
		}
		if history[i].Role != want {
			t.Errorf("message %d: role %s, want %s", i, history[i].Role, want)
		}
		if history[i].Timestamp.Before(history[i-1].Timestamp) {
			t.Errorf("message %d out of order", i)
		}
	}

	// The sender sees the history before the new user turn.
	if got := len(sender.seen[n-1]); got != 2*(n-1)+1 {
		t.Errorf("last send saw %d prior messages, want %d", got, 2*(n-1)+1)
	}
}

func TestSessionAppendsApologyOnFailure(t *testing.T) {
	s := NewSession(&scriptedSender{err: errors.New("all down")})

	msg, err := s.Send(context.Background(), "hi", models.DefaultFilters())
	if err == nil {
		t.Fatal("expected error")
	}
	if msg.Content != Apology {
		t.Errorf("expected apology, got %q", msg.Content)
	}
	history := s.History()
	if len(history) != 3 || history[2].Content != Apology {
		t.Errorf("apology not appended: %+v", history)
	}
	if s.Busy() {
		t.Error("session should return to idle after a failure")
	}
}

func TestSessionRejectsConcurrentSend(t *testing.T) {
	sender := &scriptedSender{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	s := NewSession(sender)

	done := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "first", models.DefaultFilters())
		done <- err
	}()
	<-sender.entered

	if _, err := s.Send(context.Background(), "second", models.DefaultFilters()); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	close(sender.block)
	if err := <-done; err != nil {
		t.Fatalf("first send: %v", err)
	}
	if len(s.History()) != 3 {
		t.Errorf("rejected send must not touch history, got %d messages", len(s.History()))
	}
}

func TestSessionRejectsEmptyMessage(t *testing.T) {
	s := NewSession(&scriptedSender{})
	if _, err := s.Send(context.Background(), "   ", models.DefaultFilters()); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if len(s.History()) != 1 {
		t.Error("empty message must not be appended")
	}
}

func TestHistoryIsACopy(t *testing.T) {
	s := NewSession(&scriptedSender{})
	h := s.History()
	h[0].Content = "tampered"
	if s.History()[0].Content != Greeting {
		t.Error("History must not expose internal state")
	}
}
