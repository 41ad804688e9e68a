// Package decision implements the response decision engine: given an AI
// entity, the latest message, and its chat context, decide whether the entity
// responds. Strategy dispatch is pure; the only shared state is the cooldown
// record, claimed through a single conditional upsert.
package decision

import (
	"strings"
	"unicode/utf8"
)

// questionIndicators are the substrings that classify a message as a
// question. Interrogative words anywhere in the content count; this is a
// deliberate coarse filter, not NLP.
var questionIndicators = []string{
	"?",
	"what",
	"how",
	"why",
	"when",
	"where",
	"who",
	"can you",
	"could you",
}

// IsMentioned reports whether the entity's username occurs anywhere in the
// content, case-insensitively. Unanchored on purpose: "sam" matches inside
// "samantha". The false positive is accepted behavior; usernames are chosen
// to be distinctive.
func IsMentioned(content, username string) bool {
	if username == "" {
		return false
	}
	return strings.Contains(strings.ToLower(content), strings.ToLower(username))
}

// IsQuestion reports whether the content reads as a question: it contains a
// question mark or any interrogative indicator, case-insensitively.
func IsQuestion(content string) bool {
	lower := strings.ToLower(content)
	for _, indicator := range questionIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// isSubstantive reports whether trimmed content is long enough for the
// active strategy to engage with (3+ characters).
func isSubstantive(content string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(content)) >= 3
}
