package agent

import (
	"strings"
)

// Technical levels inferred from recent user turns.
const (
	LevelBeginner = "beginner"
	LevelAdvanced = "advanced"
)

const (
	preferenceWindow = 20
	topicWindow      = 10
	historyWindow    = 10
)

var (
	advancedTerms = []string{"api", "model", "algorithm", "deployment", "architecture"}
	beginnerTerms = []string{"basic", "simple", "explain", "how"}
)

// Preferences are hints about the user derived from the transcript.
type Preferences struct {
	TechnicalLevel string   `json:"technical_level"`
	Interests      []string `json:"interests"`
}

// Map flattens preferences for generators.
func (p Preferences) Map() map[string]string {
	m := map[string]string{"technical_level": p.TechnicalLevel}
	if len(p.Interests) > 0 {
		m["interests"] = strings.Join(p.Interests, ", ")
	}
	return m
}

// inferPreferences scans the user turns among the last twenty turns in
// order; the last turn that mentions a known term decides the level.
func inferPreferences(transcript []Turn) Preferences {
	p := Preferences{TechnicalLevel: LevelBeginner, Interests: recentTopics(transcript)}
	for _, t := range tail(transcript, preferenceWindow) {
		if t.Sender != SenderUser {
			continue
		}
		text := strings.ToLower(t.Text)
		switch {
		case containsAny(text, advancedTerms):
			p.TechnicalLevel = LevelAdvanced
		case containsAny(text, beginnerTerms):
			p.TechnicalLevel = LevelBeginner
		}
	}
	return p
}

// recentTopics lists distinct reply topics of the last ten turns in first
// seen order.
func recentTopics(transcript []Turn) []string {
	seen := make(map[string]bool)
	var topics []string
	for _, t := range tail(transcript, topicWindow) {
		if t.Topic == "" || seen[t.Topic] {
			continue
		}
		seen[t.Topic] = true
		topics = append(topics, t.Topic)
	}
	return topics
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func tail(turns []Turn, n int) []Turn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
