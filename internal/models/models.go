package models

import (
	"time"
)

// InsightRequest asks for one narrative insight over a dashboard module.
type InsightRequest struct {
	Filters      FilterContext `json:"filters"`
	ActiveModule Module        `json:"activeModule"`
	VibeContext  VibeContext   `json:"vibeContext"`
}

// Validate checks filters, module and vibe. Call Filters.Normalize first on user input.
func (r InsightRequest) Validate() error {
	if err := r.Filters.Validate(); err != nil {
		return err
	}
	if !r.ActiveModule.Valid() {
		return &ValidationError{Field: "activeModule", Value: string(r.ActiveModule)}
	}
	if !r.VibeContext.Valid() {
		return &ValidationError{Field: "vibeContext", Value: string(r.VibeContext)}
	}
	return nil
}

// Insight is the normalized LLM output shown in the insight panel.
type Insight struct {
	MainInsight     string    `json:"mainInsight"`
	KeyPoints       []string  `json:"keyPoints"`
	Anomaly         string    `json:"anomaly,omitempty"`
	Recommendations []string  `json:"recommendations"`
	LLMProvider     string    `json:"llmProvider"`
	Timestamp       time.Time `json:"timestamp"`
	TokensUsed      int       `json:"tokensUsed"`
	ResponseTimeMs  int64     `json:"responseTimeMs"`
}

// Clone returns a copy of i that shares no slices with it.
func (i Insight) Clone() Insight {
	out := i
	out.KeyPoints = append([]string(nil), i.KeyPoints...)
	out.Recommendations = append([]string(nil), i.Recommendations...)
	return out
}

// CachedInsight is one append-only row of the insight cache.
type CachedInsight struct {
	ID             string      `json:"id"`
	CacheKey       string      `json:"cache_key"`
	ModuleType     Module      `json:"module_type"`
	Provider       string      `json:"provider"`
	Prompt         string      `json:"prompt,omitempty"`
	Insight        Insight     `json:"insight"`
	VibeContext    VibeContext `json:"vibe_context"`
	TokensUsed     int         `json:"tokens_used"`
	ResponseTimeMs int64       `json:"response_time_ms"`
	CreatedAt      time.Time   `json:"created_at"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn in a conversation.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatLogEntry is one durably logged chat turn.
type ChatLogEntry struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}
