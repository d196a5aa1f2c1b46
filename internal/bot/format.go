package bot

import (
	"fmt"
	"strings"

	"github.com/xaenox/scout-insights/internal/models"
)

// applyFilter returns f with one field changed, validated.
func applyFilter(f models.FilterContext, key, value string) (models.FilterContext, error) {
	value = strings.ToLower(strings.TrimSpace(value))

	switch strings.ToLower(key) {
	case "date", "daterange":
		f.DateRange = models.DateRange(value)
	case "geo", "geography", "region":
		f.Geography = models.Geography(value)
	case "brand":
		f.Brand = value
	case "category":
		f.Category = value
	case "vibe", "vibecontext":
		f.VibeContext = models.VibeContext(value)
	case "compare", "comparemode":
		switch value {
		case "on", "true", "yes":
			f.CompareMode = true
		case "off", "false", "no":
			f.CompareMode = false
		default:
			return f, fmt.Errorf("compare must be on or off")
		}
	default:
		return f, fmt.Errorf("unknown filter %q", key)
	}

	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

func moduleList() string {
	names := make([]string, 0, len(models.Modules()))
	for _, m := range models.Modules() {
		names = append(names, string(m))
	}
	return strings.Join(names, ", ")
}

func formatFilters(f models.FilterContext, module models.Module) string {
	compare := "off"
	if f.CompareMode {
		compare = "on"
	}
	lines := []string{
		"*Current filters:*",
		"Date range: " + escapeMarkdown(string(f.DateRange)),
		"Geography: " + escapeMarkdown(string(f.Geography)),
		"Brand: " + escapeMarkdown(f.Brand),
		"Category: " + escapeMarkdown(f.Category),
		"Vibe: " + escapeMarkdown(string(f.VibeContext)),
		"Compare: " + compare,
		"Module: " + escapeMarkdown(string(module)),
	}
	return strings.Join(lines, "\n")
}

func formatInsight(module models.Module, in *models.Insight) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s insight*\n\n", escapeMarkdown(strings.ToUpper(string(module[:1]))+string(module[1:])))
	sb.WriteString(escapeMarkdown(in.MainInsight))
	sb.WriteString("\n")

	if len(in.KeyPoints) > 0 {
		sb.WriteString("\n*Key points:*\n")
		for _, p := range in.KeyPoints {
			sb.WriteString(escapeMarkdown("• "+p) + "\n")
		}
	}
	if in.Anomaly != "" {
		sb.WriteString("\n*Anomaly:* " + escapeMarkdown(in.Anomaly) + "\n")
	}
	if len(in.Recommendations) > 0 {
		sb.WriteString("\n*Recommendations:*\n")
		for i, r := range in.Recommendations {
			sb.WriteString(escapeMarkdown(fmt.Sprintf("%d. %s", i+1, r)) + "\n")
		}
	}
	sb.WriteString("\n_" + escapeMarkdown("via "+in.LLMProvider) + "_")
	return sb.String()
}

// escapeMarkdown escapes special characters for MarkdownV2.
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}
