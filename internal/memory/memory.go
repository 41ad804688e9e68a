// Package memory implements the three-layer memory model for AI entities:
// short-term conversation chunks, long-term extracted facts, and personality
// background. Services here own all memory writes; retrieval for prompt
// injection goes through the Retriever.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/chorus-chat/chorus/pkg/types"
)

// summaryMaxLen bounds the human-readable summary stored on a memory.
const summaryMaxLen = 200

// NormalizedFactHash returns the dedup digest for a fact: text lowercased,
// whitespace collapsed, then hashed. Two facts that differ only in casing or
// spacing collide on purpose.
func NormalizedFactHash(text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// truncateSummary trims s to the summary length budget, appending an ellipsis
// when content was dropped.
func truncateSummary(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= summaryMaxLen {
		return s
	}
	return s[:summaryMaxLen] + "..."
}

// renderTranscript formats messages as "sender: text" lines, the shape both
// the chunk payload preview and the fact extraction prompt consume.
func renderTranscript(messages []*types.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		sb.WriteString(msg.SenderName)
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

// chunkTranscript reconstructs the "sender: text" transcript recorded in a
// short-term chunk's content payload. Chunks written by other processes may
// round-trip through JSON, so both native and decoded shapes are handled.
func chunkTranscript(m *types.Memory) string {
	if m.Content == nil {
		return ""
	}

	var entries []interface{}
	switch v := m.Content["messages"].(type) {
	case []interface{}:
		entries = v
	case []map[string]interface{}:
		for _, e := range v {
			entries = append(entries, e)
		}
	default:
		return ""
	}

	var sb strings.Builder
	for _, raw := range entries {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		sender, _ := entry["sender"].(string)
		text, _ := entry["text"].(string)
		if sender != "" {
			sb.WriteString(sender)
			sb.WriteString(": ")
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// distinctUserIDs collects the unique human sender ids in order of first
// appearance.
func distinctUserIDs(messages []*types.Message) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, msg := range messages {
		if msg.SenderUserID == "" || seen[msg.SenderUserID] {
			continue
		}
		seen[msg.SenderUserID] = true
		ids = append(ids, msg.SenderUserID)
	}
	return ids
}

// validateIDs rejects blank identifiers before they reach the store.
func validateIDs(entityID, conversationID string) error {
	if entityID == "" {
		return fmt.Errorf("entity id is required")
	}
	if conversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	return nil
}
