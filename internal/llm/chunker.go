package llm

import (
	"strings"
	"unicode"
)

// TextChunker splits large content into overlapping pieces sized in estimated
// tokens. It uses sentence-aware splitting to maintain semantic coherence;
// overlap preserves context between adjacent chunks. Sizes are supplied per
// call so archival consolidation and personality uploads can use different
// windows.
type TextChunker struct{}

// NewTextChunker creates a sentence-aware chunker.
func NewTextChunker() *TextChunker {
	return &TextChunker{}
}

// Split splits content into overlapping chunks of at most chunkSize estimated
// tokens with roughly overlap tokens carried between neighbors. Empty and
// duplicate chunks are filtered out. Whitespace-only input yields no chunks.
func (c *TextChunker) Split(content string, chunkSize, overlap int) []string {
	if len(strings.TrimSpace(content)) == 0 {
		return []string{}
	}
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	// If content fits in a single chunk, return it as-is
	if EstimateTokens(content) <= chunkSize {
		return []string{content}
	}

	sentences := splitSentences(content)
	if len(sentences) == 0 {
		return []string{}
	}

	var chunks []string
	var currentChunk strings.Builder
	var currentTokens int
	var previousSentences []string // For overlap

	for _, sentence := range sentences {
		sentenceTokens := EstimateTokens(sentence)

		// If adding this sentence would exceed the limit
		if currentTokens+sentenceTokens > chunkSize && currentTokens > 0 {
			chunks = append(chunks, currentChunk.String())

			// Start new chunk with overlap from previous chunk
			currentChunk.Reset()
			currentTokens = 0

			overlapTokens := 0
			overlapStart := len(previousSentences)

			// Find how many trailing sentences fit in the overlap
			for i := len(previousSentences) - 1; i >= 0; i-- {
				sentTokens := EstimateTokens(previousSentences[i])
				if overlapTokens+sentTokens > overlap {
					break
				}
				overlapTokens += sentTokens
				overlapStart = i
			}

			for i := overlapStart; i < len(previousSentences); i++ {
				currentChunk.WriteString(previousSentences[i])
				currentTokens += EstimateTokens(previousSentences[i])
			}

			previousSentences = previousSentences[overlapStart:]
		}

		currentChunk.WriteString(sentence)
		currentTokens += sentenceTokens
		previousSentences = append(previousSentences, sentence)

		// Keep only sentences that could still matter for overlap
		if len(previousSentences) > 50 {
			previousSentences = previousSentences[len(previousSentences)-50:]
		}
	}

	if currentChunk.Len() > 0 {
		chunks = append(chunks, currentChunk.String())
	}

	return dedupeChunks(chunks)
}

// EstimateTokens estimates the number of tokens in the given text.
// Uses a simple heuristic of approximately 4 characters per token,
// which is a reasonable approximation for English text with GPT-style tokenizers.
func EstimateTokens(text string) int {
	chars := len(text)
	// Ceiling division: (chars + 3) / 4 rounds up
	return (chars + 3) / 4
}

// splitSentences splits text into sentences using common sentence terminators.
// It attempts to preserve sentence boundaries while handling common edge cases
// like abbreviations. Returns a slice of sentences with their terminators included.
func splitSentences(text string) []string {
	if len(text) == 0 {
		return []string{}
	}

	var sentences []string
	var current strings.Builder
	runes := []rune(text)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		// Check for sentence terminators
		if r == '.' || r == '!' || r == '?' {
			// Look ahead to see if this is really the end of a sentence
			if i+1 < len(runes) {
				next := runes[i+1]

				// If followed by whitespace and then an uppercase letter,
				// it's likely a sentence boundary
				if unicode.IsSpace(next) {
					// Include the whitespace
					current.WriteRune(next)
					i++

					if i+1 < len(runes) {
						nextChar := runes[i+1]
						if unicode.IsUpper(nextChar) || i+1 == len(runes)-1 {
							sentence := current.String()
							if len(strings.TrimSpace(sentence)) > 0 {
								sentences = append(sentences, sentence)
							}
							current.Reset()
						}
					} else {
						// End of text
						sentence := current.String()
						if len(strings.TrimSpace(sentence)) > 0 {
							sentences = append(sentences, sentence)
						}
						current.Reset()
					}
				}
			} else {
				// End of text after terminator
				sentence := current.String()
				if len(strings.TrimSpace(sentence)) > 0 {
					sentences = append(sentences, sentence)
				}
				current.Reset()
			}
		}
	}

	// Add any remaining content as a final sentence
	if current.Len() > 0 {
		sentence := current.String()
		if len(strings.TrimSpace(sentence)) > 0 {
			sentences = append(sentences, sentence)
		}
	}

	return sentences
}

// dedupeChunks removes duplicate chunks while preserving order.
func dedupeChunks(chunks []string) []string {
	if len(chunks) == 0 {
		return chunks
	}

	seen := make(map[string]bool, len(chunks))
	result := make([]string, 0, len(chunks))

	for _, chunk := range chunks {
		if !seen[chunk] {
			seen[chunk] = true
			result = append(result, chunk)
		}
	}

	return result
}

// Compile-time assertion.
var _ Chunker = (*TextChunker)(nil)
