package insights

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xaenox/scout-insights/internal/llm"
	"github.com/xaenox/scout-insights/internal/models"
)

type insightPayload struct {
	MainInsight     string          `json:"mainInsight"`
	KeyPoints       []string        `json:"keyPoints"`
	Anomaly         json.RawMessage `json:"anomaly"`
	Recommendations []string        `json:"recommendations"`
}

// ParseInsight decodes model text into an Insight. Errors wrap
// llm.ErrMalformedOutput. Provider metadata is left for the caller to fill.
func ParseInsight(text string) (*models.Insight, error) {
	var p insightPayload
	if err := llm.DecodeJSON(text, &p); err != nil {
		return nil, err
	}

	main := strings.TrimSpace(p.MainInsight)
	if main == "" {
		return nil, fmt.Errorf("%w: missing mainInsight", llm.ErrMalformedOutput)
	}

	insight := &models.Insight{
		MainInsight:     main,
		KeyPoints:       nonEmpty(p.KeyPoints),
		Anomaly:         anomalyText(p.Anomaly),
		Recommendations: nonEmpty(p.Recommendations),
	}
	return insight, nil
}

// anomalyText accepts a string, null, or any other JSON value (kept compact).
func anomalyText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return buf.String()
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
