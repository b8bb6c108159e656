package classifier

import "strings"

// Sentiment labels.
const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

// Sentiment is a lexicon based polarity estimate.
type Sentiment struct {
	Polarity     float64 `json:"polarity"`
	Subjectivity float64 `json:"subjectivity"`
	Label        string  `json:"label"`
}

var positiveWords = map[string]bool{
	"good": true, "great": true, "excellent": true, "amazing": true, "wonderful": true,
	"love": true, "like": true, "happy": true, "nice": true, "awesome": true,
}

var negativeWords = map[string]bool{
	"bad": true, "terrible": true, "awful": true, "hate": true, "dislike": true,
	"sad": true, "angry": true, "horrible": true, "worst": true, "disappointing": true,
}

// AnalyzeSentiment scores text by counting lexicon words.
// Polarity is (pos-neg)/(pos+neg), so a message using only positive words
// scores 1 and a balanced one scores 0. A flat ±0.3 per label would never
// clear the strict ±0.3 personalization thresholds. Tokens split on
// punctuation so "great!" still counts.
func AnalyzeSentiment(text string) Sentiment {
	tokens := Tokenize(text)
	var pos, neg int
	for _, tok := range tokens {
		switch {
		case positiveWords[tok]:
			pos++
		case negativeWords[tok]:
			neg++
		}
	}

	s := Sentiment{Label: LabelNeutral}
	if hits := pos + neg; hits > 0 {
		s.Polarity = float64(pos-neg) / float64(hits)
		s.Subjectivity = float64(hits) / float64(len(tokens))
		if s.Subjectivity > 1 {
			s.Subjectivity = 1
		}
	}
	switch {
	case s.Polarity > 0:
		s.Label = LabelPositive
	case s.Polarity < 0:
		s.Label = LabelNegative
	}
	return s
}

// Tokenize splits text into lowercase word tokens.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '\'' ||
			r > 127)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.ToLower(f))
	}
	return out
}
