package llm

import (
	"testing"
)

// FuzzParseFactResponse checks that fact extraction parsing never panics,
// whatever the provider sends back.
func FuzzParseFactResponse(f *testing.F) {
	// Seed corpus with interesting inputs
	f.Add(`{"facts": [{"text": "Maria trains for marathons", "importance": 0.8, "participants": ["maria"], "theme": "goals"}]}`)
	f.Add(``)
	f.Add(`{"facts": null}`)
	f.Add(`not json at all`)
	f.Add("```json\n{\"facts\": []}\n```")
	f.Add(`{"facts": []}`)
	f.Add(`{"facts": [{"text": "truncated"`)
	f.Add(`{"facts": [{"text": "", "importance": 0, "participants": [], "theme": ""}]}`)
	f.Add(`{"facts": [{"text": "a", "importance": 0.0, "theme": "x"}, {"text": "b", "importance": 1.0, "theme": "y"}]}`)
	f.Add(`{"facts": [{"text": "clamped high", "importance": 1.5, "theme": "x"}]}`)
	f.Add(`{"facts": [{"text": "clamped low", "importance": -0.5, "theme": "x"}]}`)
	f.Add(`{"facts": [{"text": "José met François in Zürich", "importance": 0.9, "participants": ["josé"], "theme": "travel"}]}`)
	f.Add(`{"facts": [{"text": "He said \"never again\"", "importance": 0.7, "theme": "quotes"}]}`)
	f.Add(`{"facts": [{"text": "line1\nline2", "importance": 0.5, "theme": "multiline"}]}`)
	f.Add(`{"nested": {"facts": [{"text": "buried", "importance": 0.5, "theme": "x"}]}}`)
	f.Add(`{"facts": [{"text": "good", "importance": 0.5, "theme": "x"}, {"text": 42, "importance": "high"}, {"text": "also good", "theme": "y"}]}`)
	f.Add(`{"facts": [{"text": "long_` + string(make([]byte, 1000)) + `", "importance": 0.5, "theme": "x"}]}`)
	f.Add(`{{{`)
	f.Add(`[{"text": "bare array", "importance": 0.5, "theme": "x"}]`)
	f.Add(`{"facts": [{"text": null, "importance": 0.5, "theme": "x"}]}`)
	f.Add(`{"facts": [{"text": "no importance", "theme": "x"}]}`)
	f.Add(`{"facts": [{"text": "stringy", "importance": "0.9", "theme": "x"}]}`)
	f.Add(`{"facts": [{"text": "null importance", "importance": null, "theme": "x"}]}`)
	f.Add("```\n{\"facts\": [{\"text\": \"fenced\", \"importance\": 0.5, \"theme\": \"x\"}]}\n```")
	f.Add(`Here are the facts: {"facts": [{"text": "prose around", "importance": 0.5, "theme": "x"}]} hope that helps!`)
	f.Add(`{"facts": [{"text": "extra fields", "importance": 0.5, "theme": "x", "confidence": 0.9, "source": "chat"}]}`)
	f.Add(`{"facts": [{"text": "   ", "importance": 0.5, "theme": "whitespace only"}]}`)

	f.Fuzz(func(t *testing.T, input string) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("ParseFactResponse panicked on input %q: %v", input, r)
			}
		}()
		_, _ = ParseFactResponse(input)
	})
}

// FuzzExtractJSON checks the brace-matching helper against arbitrary text.
func FuzzExtractJSON(f *testing.F) {
	// Seed corpus with interesting inputs
	f.Add(`{"key": "value"}`)
	f.Add(``)
	f.Add(`just plain text`)
	f.Add("```json\n{\"key\": \"value\"}\n```")
	f.Add("```\n{\"key\": \"value\"}\n```")
	f.Add(`Text before {"key": "value"} text after`)
	f.Add(`{"outer": {"inner": "value"}}`)
	f.Add(`{"text": "He said \"hello\""}`)
	f.Add(`{"path": "C:\\Users\\test"}`)
	f.Add(`{`)
	f.Add(`}`)
	f.Add(`{{{`)
	f.Add(`}}}`)
	f.Add(`{"key": "value"}{"another": "object"}`)
	f.Add("Text with ``` triple backticks but no content")
	f.Add("```json\nincomplete json")
	f.Add(`{"escaped": "\\\"quote\\\""}`)
	f.Add(`{"unicode": "😀🎉🔥"}`)
	f.Add(`Multiple {"objects": 1} and {"more": 2}`)
	f.Add(`{"": ""}`)
	f.Add(`{"key": {"nested": {"deeply": {"object": "value"}}}}`)
	f.Add(string(make([]byte, 10000)))

	f.Fuzz(func(t *testing.T, input string) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("extractJSON panicked on input %q: %v", input, r)
			}
		}()
		_ = extractJSON(input)
	})
}
