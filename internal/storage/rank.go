package storage

import (
	"sort"
	"strings"
	"unicode"

	"github.com/chorus-chat/chorus/pkg/types"
)

// KeywordTerms splits a free-form query into lowercase match terms. Very
// short tokens carry no signal in chat text and are dropped.
func KeywordTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// ScoreKeywordMatch counts how many query terms appear in the memory's
// summary or keyword list, case-insensitively.
func ScoreKeywordMatch(m *types.Memory, terms []string) int {
	if len(terms) == 0 {
		return 0
	}

	summary := strings.ToLower(m.Summary)
	keywords := make([]string, len(m.Keywords))
	for i, k := range m.Keywords {
		keywords[i] = strings.ToLower(k)
	}

	score := 0
	for _, term := range terms {
		if strings.Contains(summary, term) {
			score++
			continue
		}
		for _, k := range keywords {
			if strings.Contains(k, term) {
				score++
				break
			}
		}
	}
	return score
}

// RankByKeywords scores candidates against the query terms and returns the
// matches ordered by score descending, then importance descending. Memories
// with no matching term are dropped. Both SQL backends feed their filtered
// candidate sets through this so keyword ranking behaves identically.
func RankByKeywords(candidates []*types.Memory, query string, limit int) []*types.Memory {
	terms := KeywordTerms(query)
	if len(terms) == 0 {
		return nil
	}

	type scored struct {
		memory *types.Memory
		score  int
	}

	matches := make([]scored, 0, len(candidates))
	for _, m := range candidates {
		if score := ScoreKeywordMatch(m, terms); score > 0 {
			matches = append(matches, scored{memory: m, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].memory.ImportanceScore > matches[j].memory.ImportanceScore
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	result := make([]*types.Memory, len(matches))
	for i, m := range matches {
		result[i] = m.memory
	}
	return result
}
