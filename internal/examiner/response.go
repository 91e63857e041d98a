package examiner

import (
	"encoding/json"
	"fmt"
	"strings"

	"ielts-speaking/internal/speaking"
)

// cleanJSONResponse strips markdown fences and any prose around the first
// JSON object in a model reply.
func cleanJSONResponse(response string) string {
	response = strings.ReplaceAll(response, "```json", "")
	response = strings.ReplaceAll(response, "```", "")
	response = strings.TrimSpace(response)

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		response = response[start : end+1]
	}
	return response
}

func decode(raw string, v any) error {
	if err := json.Unmarshal([]byte(cleanJSONResponse(raw)), v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// cleanList trims items, drops blanks and keeps at most limit entries.
func cleanList(items []string, limit int) ([]string, error) {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty list", ErrInvalidResponse)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func validateReport(r *speaking.Report) error {
	for _, c := range r.Criteria() {
		if c.Score < 1 || c.Score > 9 {
			return fmt.Errorf("%w: %s score %.1f out of range", ErrInvalidResponse, c.Name, c.Score)
		}
	}
	if r.OverallScore < 1 || r.OverallScore > 9 {
		r.OverallScore = r.OverallBand()
	}
	r.Summary = strings.TrimSpace(r.Summary)
	return nil
}
