// Package llm provides the provider clients (OpenAI, Ollama, Anthropic) and
// text utilities the memory subsystem depends on: chat generation, embeddings,
// fact extraction prompts and parsers, chunking, and keyword extraction.
package llm

import "fmt"

// FactExtractionPrompt generates a strict JSON-only prompt that distills
// durable facts from a conversation transcript. The response parser tolerates
// stray prose, but models follow exact-structure prompts far more reliably.
//
// Each fact carries:
//   - text: one self-contained statement
//   - importance: 0.0-1.0 relevance for long-term recall
//   - participants: usernames the fact is about
//   - theme: a short topic label used as the memory summary
func FactExtractionPrompt(conversation string) string {
	return fmt.Sprintf(`TASK: Extract durable facts worth remembering from a conversation.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO backticks. NO ARRAY - MUST BE OBJECT.

WHAT COUNTS AS A FACT:
- Stable information about participants (preferences, background, plans, relationships)
- Conclusions or decisions the conversation reached
- NOT greetings, filler, or things true only in the moment

REQUIRED JSON STRUCTURE:
Your response MUST start with { and end with }
Your response MUST have a "facts" key with an array value
Each fact MUST have: text, importance, participants, theme

Example structure (EXACT FORMAT REQUIRED):
{
  "facts": [
    {"text":"Maria is training for a marathon in October","importance":0.8,"participants":["maria"],"theme":"personal goals"},
    {"text":"The group agreed to meet on Thursdays","importance":0.6,"participants":["maria","tom"],"theme":"scheduling"}
  ]
}

RULES:
- importance MUST be a number between 0.0 and 1.0
- text MUST be a single self-contained sentence
- Return {"facts": []} if nothing is worth remembering
- NO explanatory text before or after the JSON

CONVERSATION:
%s

JSON response:`, conversation)
}
