package agent

import (
	"strings"

	"github.com/nidhogg/jarvis/internal/classifier"
)

const maxKeywords = 10

// extractKeywords returns up to ten tokens longer than two characters that
// are not stopwords, in message order. Repeats are kept.
func extractKeywords(text string) []string {
	var result []string
	for _, w := range classifier.Tokenize(text) {
		if len(w) <= 2 || stopwords[w] {
			continue
		}
		result = append(result, w)
		if len(result) >= maxKeywords {
			break
		}
	}
	return result
}

// countSentences counts period-separated segments, so text without a
// period is one sentence.
func countSentences(text string) int {
	return strings.Count(text, ".") + 1
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "is": true,
	"are": true, "was": true, "were": true, "be": true, "been": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "this": true, "that": true,
	"these": true, "those": true, "i": true, "you": true, "he": true,
	"she": true, "it": true, "we": true, "they": true, "me": true,
	"him": true, "her": true, "us": true, "them": true,
}
