// Package classifier scores free text against the topic taxonomy.
package classifier

import (
	"maps"
	"strings"

	"github.com/nidhogg/jarvis/internal/content"
)

// DefaultThreshold is the minimum confidence for a knowledge-base answer.
const DefaultThreshold = 0.1

// Taxonomy supplies the ordered topic table.
type Taxonomy interface {
	Topics() []content.Topic
}

// Result is the outcome of classifying one message.
type Result struct {
	Topic      string             `json:"topic"`
	Score      float64            `json:"score"`
	Confidence float64            `json:"confidence"`
	Matched    map[string]float64 `json:"matched_topics"`
}

// Confident reports whether the winning topic clears threshold.
func (r Result) Confident(threshold float64) bool {
	return r.Score > 0 && r.Confidence >= threshold
}

func (r Result) clone() Result {
	r.Matched = maps.Clone(r.Matched)
	return r
}

// Classifier is a bag-of-keywords scorer. It holds no mutable state.
type Classifier struct {
	topics []content.Topic
}

// New builds a classifier over the taxonomy's current topics.
func New(tax Taxonomy) *Classifier {
	return &Classifier{topics: tax.Topics()}
}

// Classify scores text against every topic. Each keyword phrase counts at
// most once; on equal scores the earlier topic wins.
func (c *Classifier) Classify(text string) Result {
	lower := strings.ToLower(text)
	res := Result{
		Topic:   content.GeneralTopic,
		Matched: make(map[string]float64),
	}

	var best content.Topic
	for _, t := range c.topics {
		score := 0
		for _, kw := range t.Keywords {
			if kw != "" && strings.Contains(lower, kw) {
				score++
			}
		}
		if score == 0 {
			continue
		}
		res.Matched[t.Name] = float64(score)
		if float64(score) > res.Score {
			res.Score = float64(score)
			res.Topic = t.Name
			best = t
		}
	}

	if res.Score > 0 && len(best.Keywords) > 0 {
		res.Confidence = res.Score / float64(len(best.Keywords))
	}
	return res
}
