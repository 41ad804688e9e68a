package llm

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

// FactResponse represents a single fact extracted from an LLM response.
type FactResponse struct {
	Text         string   `json:"text"`
	Importance   float64  `json:"importance"`
	Participants []string `json:"participants"`
	Theme        string   `json:"theme"`
}

// extractJSON extracts the first valid JSON object from a string that may contain extra text.
// This handles cases where LLMs add explanations before/after the JSON despite instructions.
func extractJSON(text string) string {
	// Remove common markdown code block markers
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	// Try to find JSON object boundaries
	start := strings.Index(text, "{")
	if start == -1 {
		return text // No JSON found, return as-is and let parser fail
	}

	// Find the matching closing brace
	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		// Handle string escaping
		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}

		// Track if we're inside a string
		if char == '"' {
			inString = !inString
			continue
		}

		// Only count braces outside of strings
		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					// Found complete JSON object, return it
					return text[start : i+1]
				}
			}
		}
	}

	return text // No complete JSON found, return as-is
}

// ParseFactResponse parses fact extraction JSON and filters out invalid entries.
// Entries with empty text or an unparseable shape are skipped rather than
// failing the entire batch; importance outside [0, 1] is clamped and a missing
// importance defaults to 1.0. Returns an error only if the JSON envelope
// itself is malformed.
func ParseFactResponse(jsonStr string) ([]FactResponse, error) {
	cleaned := extractJSON(jsonStr)

	var envelope struct {
		Facts []json.RawMessage `json:"facts"`
	}
	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse fact extraction response: %w", err)
	}

	valid := make([]FactResponse, 0, len(envelope.Facts))
	for _, raw := range envelope.Facts {
		// Importance is a pointer to tell "absent" apart from an explicit 0.0.
		var entry struct {
			Text         string   `json:"text"`
			Importance   *float64 `json:"importance"`
			Participants []string `json:"participants"`
			Theme        string   `json:"theme"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			log.Printf("llm: skipping malformed fact entry: %v", err)
			continue
		}

		text := strings.TrimSpace(entry.Text)
		if text == "" {
			log.Printf("llm: skipping fact with empty text (theme=%q)", entry.Theme)
			continue
		}

		importance := 1.0
		if entry.Importance != nil {
			importance = clampImportance(*entry.Importance)
		}

		valid = append(valid, FactResponse{
			Text:         text,
			Importance:   importance,
			Participants: entry.Participants,
			Theme:        entry.Theme,
		})
	}

	return valid, nil
}

func clampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
