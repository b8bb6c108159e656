package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nidhogg/jarvis/internal/classifier"
)

func TestExtractKeyInfoTool(t *testing.T) {
	a := newTestAgent(t)
	out, err := a.ExecuteTool(context.Background(), ToolExtractKeyInfo,
		`{"text":"The quick brown fox. It jumps over the lazy dog"}`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var info KeyInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"quick", "brown", "fox", "jumps", "over", "lazy", "dog"}
	if len(info.Keywords) != len(want) {
		t.Fatalf("got keywords %v", info.Keywords)
	}
	for i := range want {
		if info.Keywords[i] != want[i] {
			t.Errorf("keyword %d: got %q, want %q", i, info.Keywords[i], want[i])
		}
	}
	if info.WordCount != 10 || info.Sentences != 2 {
		t.Errorf("got word_count %d sentences %d", info.WordCount, info.Sentences)
	}
}

func TestExtractKeywordsLimit(t *testing.T) {
	text := "alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima"
	if got := extractKeywords(text); len(got) != maxKeywords {
		t.Errorf("got %d keywords, want %d", len(got), maxKeywords)
	}
}

func TestAnalyzeSentimentTool(t *testing.T) {
	a := newTestAgent(t)
	out, err := a.ExecuteTool(context.Background(), ToolAnalyzeSentiment, `{"text":"I love this, it is awesome"}`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var s classifier.Sentiment
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Label != classifier.LabelPositive || s.Polarity != 1 {
		t.Errorf("got %+v", s)
	}
}

func TestSearchKnowledgeTool(t *testing.T) {
	a := newTestAgent(t)
	out, err := a.ExecuteTool(context.Background(), ToolSearchKnowledge, `{"query":"python projects"}`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var hits map[string]KnowledgeHit
	if err := json.Unmarshal([]byte(out), &hits); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, topic := range []string{"portfolio", "skills", "coding"} {
		h, ok := hits[topic]
		if !ok {
			t.Errorf("missing topic %q in %v", topic, hits)
			continue
		}
		if h.Relevance < 1 || len(h.Replies) == 0 {
			t.Errorf("%s: got %+v", topic, h)
		}
	}

	if _, err := a.ExecuteTool(context.Background(), ToolSearchKnowledge, `{}`); err == nil {
		t.Error("missing query accepted")
	}
}

func TestGetContextTool(t *testing.T) {
	a := newTestAgent(t)
	a.ProcessMessage(context.Background(), "what model do you use?")
	out, err := a.ExecuteTool(context.Background(), ToolGetContext, "")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var c ConversationContext
	if err := json.Unmarshal([]byte(out), &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.ConversationLength != 2 || c.CurrentSession != "s1" {
		t.Errorf("got %+v", c)
	}
	if c.UserPreferences.TechnicalLevel != LevelAdvanced {
		t.Errorf("got level %q", c.UserPreferences.TechnicalLevel)
	}
	if len(c.RecentTopics) != 1 {
		t.Errorf("got topics %v", c.RecentTopics)
	}
}

func TestToolErrors(t *testing.T) {
	a := newTestAgent(t)
	if _, err := a.ExecuteTool(context.Background(), "nope", "{}"); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("got %v, want ErrUnknownTool", err)
	}
	if _, err := a.ExecuteTool(context.Background(), ToolAnalyzeSentiment, "{not json"); err == nil {
		t.Error("bad arguments accepted")
	}
}
