package assembler

import (
	"regexp"
	"strings"
)

// Prefix patterns shared across entities, ordered most specific first. The
// entity's own username pattern is built per call and tried before these.
var parrotPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^You:\s*`),
	regexp.MustCompile(`(?i)^AI:\s*`),
	regexp.MustCompile(`(?i)^Assistant:\s*`),
	regexp.MustCompile(`^\[.*?\]:\s*`),
	regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*:\s*`),
}

// CleanParroting strips a leading "Name:" style prefix from a generated
// response. Models exposed to "sender: text" context lines tend to copy the
// pattern back; this is the safety net behind the system prompt instruction.
//
// Only the first matching rule applies, and only at the start of the text.
// Colons later in the text are never touched.
func CleanParroting(text, username string) string {
	patterns := parrotPatterns
	if username != "" {
		own := regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(username) + `:\s*`)
		patterns = append([]*regexp.Regexp{own}, parrotPatterns...)
	}

	for _, re := range patterns {
		if loc := re.FindStringIndex(text); loc != nil {
			return strings.TrimSpace(text[loc[1]:])
		}
	}
	return strings.TrimSpace(text)
}
