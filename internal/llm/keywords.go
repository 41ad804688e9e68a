package llm

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// englishStopwords is the filter list for keyword candidate selection.
// Compact on purpose: the extractor feeds a keyword index, not a linguist.
var englishStopwords = map[string]bool{
	"a": true, "about": true, "after": true, "again": true, "all": true,
	"also": true, "an": true, "and": true, "any": true, "are": true,
	"as": true, "at": true, "be": true, "because": true, "been": true,
	"before": true, "being": true, "but": true, "by": true, "can": true,
	"could": true, "did": true, "do": true, "does": true, "doing": true,
	"down": true, "during": true, "each": true, "few": true, "for": true,
	"from": true, "further": true, "had": true, "has": true, "have": true,
	"having": true, "he": true, "her": true, "here": true, "hers": true,
	"him": true, "his": true, "how": true, "i": true, "if": true,
	"in": true, "into": true, "is": true, "it": true, "its": true,
	"just": true, "like": true, "me": true, "more": true, "most": true,
	"my": true, "no": true, "nor": true, "not": true, "now": true,
	"of": true, "off": true, "on": true, "once": true, "only": true,
	"or": true, "other": true, "our": true, "out": true, "over": true,
	"own": true, "re": true, "s": true, "same": true, "she": true,
	"should": true, "so": true, "some": true, "such": true, "t": true,
	"than": true, "that": true, "the": true, "their": true, "them": true,
	"then": true, "there": true, "these": true, "they": true, "this": true,
	"those": true, "through": true, "to": true, "too": true, "under": true,
	"until": true, "up": true, "very": true, "was": true, "we": true,
	"were": true, "what": true, "when": true, "where": true, "which": true,
	"while": true, "who": true, "whom": true, "why": true, "will": true,
	"with": true, "would": true, "you": true, "your": true, "yours": true,
}

// StatisticalExtractor is a local, model-free keyword extractor. It scores
// unigram and bigram candidates by frequency with an early-position boost and
// returns the top terms. Runs inline on every short-term chunk, so it must
// never cost a provider round-trip.
type StatisticalExtractor struct{}

// NewKeywordExtractor creates a statistical keyword extractor.
func NewKeywordExtractor() *StatisticalExtractor {
	return &StatisticalExtractor{}
}

type keywordCandidate struct {
	term     string
	score    float64
	firstPos int
}

// ExtractKeywords returns up to max keywords for the text, most salient first.
// Only the "en" stopword list is built in; other language codes skip stopword
// filtering but otherwise score identically. max <= 0 defaults to 10.
func (e *StatisticalExtractor) ExtractKeywords(ctx context.Context, text string, max int, language string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if max <= 0 {
		max = 10
	}

	tokens := tokenizeWords(text)
	if len(tokens) == 0 {
		return []string{}, nil
	}

	stopwords := map[string]bool{}
	if language == "" || strings.HasPrefix(strings.ToLower(language), "en") {
		stopwords = englishStopwords
	}

	total := float64(len(tokens))
	scores := make(map[string]*keywordCandidate)

	record := func(term string, pos int, weight float64) {
		c, ok := scores[term]
		if !ok {
			c = &keywordCandidate{term: term, firstPos: pos}
			scores[term] = c
		}
		// Earlier first mention scores slightly higher.
		c.score += weight * (1.0 + (total-float64(c.firstPos))/total)
	}

	for i, tok := range tokens {
		if stopwords[tok] || len(tok) < 2 || isNumeric(tok) {
			continue
		}
		record(tok, i, 1.0)

		// Bigram of two adjacent content words.
		if i+1 < len(tokens) {
			next := tokens[i+1]
			if !stopwords[next] && len(next) >= 2 && !isNumeric(next) {
				record(tok+" "+next, i, 2.0)
			}
		}
	}

	candidates := make([]*keywordCandidate, 0, len(scores))
	for _, c := range scores {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].firstPos != candidates[j].firstPos {
			return candidates[i].firstPos < candidates[j].firstPos
		}
		return candidates[i].term < candidates[j].term
	})

	if len(candidates) > max {
		candidates = candidates[:max]
	}
	keywords := make([]string, len(candidates))
	for i, c := range candidates {
		keywords[i] = c.term
	}
	return keywords, nil
}

// tokenizeWords lowercases and splits text into letter/digit runs.
func tokenizeWords(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Compile-time assertion.
var _ KeywordExtractor = (*StatisticalExtractor)(nil)
