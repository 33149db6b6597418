package checks

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/spamd/spamd/lib/spamcheck"
)

// DefaultLLMPrompt is a system prompt used by LLM checks if nothing else is configured
const DefaultLLMPrompt = `I'll give you a text from the messaging application and you will return me a json with three fields: {"spam": true/false, "reason":"why this is spam", "confidence":1-100}. Set spam:true only of confidence above 80`

var reThought = regexp.MustCompile(`(?s)<thought>.*?</thought>`)

// llmVerdict is the answer expected from a language model
type llmVerdict struct {
	IsSpam     bool   `json:"spam"`
	Reason     string `json:"reason"`
	Confidence int    `json:"confidence"`
}

// buildSystemPrompt appends custom patterns to the base prompt, numbered
func buildSystemPrompt(base string, custom []string) string {
	if len(custom) == 0 {
		return base
	}
	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\nAlso, specifically check for these patterns:\n")
	for i, p := range custom {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, p)
	}
	return sb.String()
}

// stripThoughtTags removes <thought>...</thought> blocks some models add to the answer
func stripThoughtTags(s string) string {
	return reThought.ReplaceAllString(s, "")
}

// parseLLMVerdict decodes a model answer, tolerating thought blocks and markdown code fences around the json
func parseLLMVerdict(content string) (llmVerdict, error) {
	content = strings.TrimSpace(stripThoughtTags(content))
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}
	var res llmVerdict
	if err := json.Unmarshal([]byte(content), &res); err != nil {
		return llmVerdict{}, fmt.Errorf("can't unmarshal response: %w", err)
	}
	return res, nil
}

// llmResult converts a model verdict or an error to a check result.
// A spam verdict scores its confidence, a ham verdict scores the remaining part of it.
func llmResult(name, model string, v llmVerdict, err error, failOnError bool) spamcheck.Result {
	if err != nil {
		return spamcheck.Result{Name: name, Passed: !failOnError, Score: 0,
			Details: map[string]any{"error": err.Error(), "model": model}}
	}
	conf := clampScore(float64(v.Confidence) / 100)
	score := conf
	if !v.IsSpam {
		score = 1 - conf
	}
	return spamcheck.Result{
		Name:   name,
		Passed: !v.IsSpam,
		Score:  score,
		Details: map[string]any{
			"spam":       v.IsSpam,
			"reason":     strings.TrimSuffix(v.Reason, "."),
			"confidence": v.Confidence,
			"model":      model,
		},
	}
}
