package content

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("load default: %v", err)
	}

	names := c.ListTopics()
	if len(names) < 2 {
		t.Fatalf("got %d topics, want several", len(names))
	}
	if names[len(names)-1] != GeneralTopic {
		t.Errorf("got last topic %q, want %q", names[len(names)-1], GeneralTopic)
	}

	for _, topic := range c.Topics() {
		if n := len(topic.Suggestions); n < 3 || n > 5 {
			t.Errorf("topic %s: got %d suggestions, want 3..5", topic.Name, n)
		}
		if len(topic.Replies) == 0 {
			t.Errorf("topic %s has no replies", topic.Name)
		}
	}

	if c.ClarifyReply() == "" || c.EmptyReply() == "" {
		t.Error("expected clarify and empty replies")
	}
	if len(c.Snippets()) == 0 {
		t.Error("expected code snippets")
	}
	if len(c.Intents()) == 0 {
		t.Error("expected intents")
	}

	// Questions survive YAML flow lists intact.
	got := c.Suggestions("portfolio")
	if len(got) != 5 || got[2] != "What skills do you have?" || got[3] != "How can I contact you?" {
		t.Errorf("portfolio suggestions = %q", got)
	}
}

func TestGetTopic(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("load default: %v", err)
	}

	topic, err := c.GetTopic("coding")
	if err != nil {
		t.Fatalf("get coding: %v", err)
	}
	if topic.Name != "coding" || len(topic.Keywords) == 0 {
		t.Errorf("unexpected topic %+v", topic)
	}

	_, err = c.GetTopic("astrology")
	if !errors.Is(err, ErrTopicNotFound) {
		t.Errorf("got %v, want ErrTopicNotFound", err)
	}
}

func TestSuggestionsFallbackAndCopy(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("load default: %v", err)
	}

	general := c.Suggestions(GeneralTopic)
	unknown := c.Suggestions("greeting")
	if len(unknown) != len(general) || unknown[0] != general[0] {
		t.Errorf("unknown topic should fall back to general, got %v", unknown)
	}

	unknown[0] = "mutated"
	if c.Suggestions(GeneralTopic)[0] == "mutated" {
		t.Error("Suggestions must return a copy")
	}
}

func TestParseValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"empty", "topics: []"},
		{"no general", "topics:\n  - name: a\n    keywords: [x]\n    replies: [y]\n"},
		{"duplicate", "topics:\n  - name: general\n    keywords: [x]\n    replies: [y]\n  - name: general\n    keywords: [x]\n    replies: [y]\n"},
		{"no keywords", "topics:\n  - name: general\n    replies: [y]\n"},
		{"bad yaml", "topics: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseLowercasesKeywords(t *testing.T) {
	c, err := Parse([]byte("topics:\n  - name: general\n    keywords: [' Hello ', WORLD]\n    replies: [hi]\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	topic, _ := c.GetTopic(GeneralTopic)
	if topic.Keywords[0] != "hello" || topic.Keywords[1] != "world" {
		t.Errorf("got %v, want lower-cased trimmed keywords", topic.Keywords)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topics.yaml")
	data := "topics:\n  - name: general\n    keywords: [hello]\n    replies: [hi]\n    suggestions: [a, b, c]\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := c.ListTopics(); len(got) != 1 || got[0] != GeneralTopic {
		t.Errorf("got %v", got)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
