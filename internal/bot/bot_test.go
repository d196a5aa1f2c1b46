package bot

import (
	"errors"
	"strings"
	"testing"

	"github.com/xaenox/scout-insights/internal/chat"
	"github.com/xaenox/scout-insights/internal/models"
	"go.uber.org/zap"
)

func TestApplyFilter(t *testing.T) {
	base := models.DefaultFilters()

	tests := []struct {
		key, value string
		check      func(models.FilterContext) bool
	}{
		{"date", "last7days", func(f models.FilterContext) bool { return f.DateRange == models.DateRangeLast7Days }},
		{"geography", "Visayas", func(f models.FilterContext) bool { return f.Geography == models.GeographyVisayas }},
		{"brand", "alaska", func(f models.FilterContext) bool { return f.Brand == "alaska" }},
		{"category", "snacks", func(f models.FilterContext) bool { return f.Category == "snacks" }},
		{"vibe", "tension", func(f models.FilterContext) bool { return f.VibeContext == models.VibeTension }},
		{"compare", "on", func(f models.FilterContext) bool { return f.CompareMode }},
	}
	for _, tt := range tests {
		got, err := applyFilter(base, tt.key, tt.value)
		if err != nil {
			t.Errorf("applyFilter(%s, %s): %v", tt.key, tt.value, err)
			continue
		}
		if !tt.check(got) {
			t.Errorf("applyFilter(%s, %s) = %+v", tt.key, tt.value, got)
		}
	}
}

func TestApplyFilterRejects(t *testing.T) {
	for _, tt := range []struct{ key, value string }{
		{"geography", "mars"},
		{"date", "yesterday"},
		{"brand", "Al@ska"},
		{"compare", "maybe"},
		{"color", "red"},
	} {
		if _, err := applyFilter(models.DefaultFilters(), tt.key, tt.value); err == nil {
			t.Errorf("applyFilter(%s, %s) should fail", tt.key, tt.value)
		}
	}

	_, err := applyFilter(models.DefaultFilters(), "geography", "mars")
	if !errors.Is(err, models.ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestFormatInsight(t *testing.T) {
	text := formatInsight(models.ModuleGeographic, &models.Insight{
		MainInsight:     "NCR leads revenue (42%).",
		KeyPoints:       []string{"Visayas is growing"},
		Anomaly:         "Mindanao dipped",
		Recommendations: []string{"Restock NCR"},
		LLMProvider:     "OpenAI gpt-4o",
	})

	for _, want := range []string{
		"*Geographic insight*",
		`NCR leads revenue \(42%\)\.`,
		"*Key points:*",
		"*Anomaly:* Mindanao dipped",
		`1\. Restock NCR`,
		`via OpenAI gpt\-4o`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("formatted insight missing %q:\n%s", want, text)
		}
	}
}

func TestFormatFilters(t *testing.T) {
	f := models.DefaultFilters()
	f.CompareMode = true
	text := formatFilters(f, models.ModuleProducts)
	if !strings.Contains(text, "Compare: on") || !strings.Contains(text, "Module: products") {
		t.Errorf("unexpected filters text:\n%s", text)
	}
	if !strings.Contains(text, "Date range: last30days") {
		t.Errorf("expected date range, got:\n%s", text)
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("a_b*c.d!"); got != `a\_b\*c\.d\!` {
		t.Errorf("escapeMarkdown = %q", got)
	}
}

func TestStatePerChat(t *testing.T) {
	b := newBot(nil, nil, nil, zap.NewNop())

	first := b.state(1)
	if first != b.state(1) {
		t.Error("state must be reused for the same chat")
	}
	if first == b.state(2) {
		t.Error("chats must not share state")
	}
	history := first.session.History()
	if len(history) != 1 || history[0].Content != chat.Greeting {
		t.Errorf("new chats start with the greeting, got %+v", history)
	}
	if first.module != models.ModuleTrends || first.filters != models.DefaultFilters() {
		t.Errorf("unexpected defaults %+v", first)
	}
}
