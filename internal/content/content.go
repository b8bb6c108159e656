// Package content holds the static topic table, intents and code snippets
// the assistant answers from. The table is loaded once and never mutated.
package content

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// GeneralTopic is the catch-all topic every catalog must define.
const GeneralTopic = "general"

//go:embed topics.yaml
var defaultTopics []byte

// ErrTopicNotFound is returned when a topic name is not in the catalog.
var ErrTopicNotFound = errors.New("topic not found")

// Topic is one taxonomy bucket.
type Topic struct {
	Name        string   `yaml:"name" json:"name"`
	Keywords    []string `yaml:"keywords" json:"keywords"`
	Replies     []string `yaml:"replies" json:"replies"`
	Facts       []string `yaml:"facts" json:"facts"`
	Suggestions []string `yaml:"suggestions" json:"suggestions"`
}

// Intent is a conversational pattern answered without the knowledge base.
type Intent struct {
	Name       string   `yaml:"name" json:"name"`
	Category   string   `yaml:"category" json:"category"`
	Confidence float64  `yaml:"confidence" json:"confidence"`
	Triggers   []string `yaml:"triggers" json:"triggers"`
	Replies    []string `yaml:"replies" json:"replies"`
}

// Snippet is a canned code example.
type Snippet struct {
	Name     string   `yaml:"name" json:"name"`
	Triggers []string `yaml:"triggers" json:"triggers"`
	Code     string   `yaml:"code" json:"code"`
}

type document struct {
	Topics                  []Topic   `yaml:"topics"`
	Intents                 []Intent  `yaml:"intents"`
	Snippets                []Snippet `yaml:"snippets"`
	ClarifyReply            string    `yaml:"clarify_reply"`
	EmptyReply              string    `yaml:"empty_reply"`
	CodeSuggestions         []string  `yaml:"code_suggestions"`
	CodeFallbackSuggestions []string  `yaml:"code_fallback_suggestions"`
	InitialSuggestions      []string  `yaml:"initial_suggestions"`
	Capabilities            []string  `yaml:"capabilities"`
}

// Catalog is the loaded content table.
type Catalog struct {
	doc   document
	index map[string]int
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultTopics)
}

// Load reads a catalog from a YAML file. An empty path loads the default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("content %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}
	if len(doc.Topics) == 0 {
		return nil, errors.New("content has no topics")
	}

	index := make(map[string]int, len(doc.Topics))
	for i := range doc.Topics {
		t := &doc.Topics[i]
		if t.Name == "" {
			return nil, fmt.Errorf("topic #%d has no name", i)
		}
		if _, dup := index[t.Name]; dup {
			return nil, fmt.Errorf("duplicate topic %q", t.Name)
		}
		if len(t.Keywords) == 0 || len(t.Replies) == 0 {
			return nil, fmt.Errorf("topic %q needs keywords and replies", t.Name)
		}
		for j, kw := range t.Keywords {
			t.Keywords[j] = strings.ToLower(strings.TrimSpace(kw))
		}
		index[t.Name] = i
	}
	if _, ok := index[GeneralTopic]; !ok {
		return nil, fmt.Errorf("content must define the %q topic", GeneralTopic)
	}
	for i := range doc.Intents {
		for j, tr := range doc.Intents[i].Triggers {
			doc.Intents[i].Triggers[j] = strings.ToLower(tr)
		}
	}
	for i := range doc.Snippets {
		for j, tr := range doc.Snippets[i].Triggers {
			doc.Snippets[i].Triggers[j] = strings.ToLower(tr)
		}
	}

	return &Catalog{doc: doc, index: index}, nil
}

// Topics returns the taxonomy in classification order.
func (c *Catalog) Topics() []Topic {
	return c.doc.Topics
}

// ListTopics returns topic names in classification order.
func (c *Catalog) ListTopics() []string {
	names := make([]string, len(c.doc.Topics))
	for i, t := range c.doc.Topics {
		names[i] = t.Name
	}
	return names
}

// GetTopic looks up a topic by name.
func (c *Catalog) GetTopic(name string) (Topic, error) {
	i, ok := c.index[name]
	if !ok {
		return Topic{}, fmt.Errorf("%w: %s", ErrTopicNotFound, name)
	}
	return c.doc.Topics[i], nil
}

// Suggestions returns a copy of the follow-up prompts for a topic, falling
// back to the general topic for unknown names.
func (c *Catalog) Suggestions(topic string) []string {
	i, ok := c.index[topic]
	if !ok {
		i = c.index[GeneralTopic]
	}
	return clone(c.doc.Topics[i].Suggestions)
}

func (c *Catalog) Intents() []Intent { return c.doc.Intents }
func (c *Catalog) Snippets() []Snippet { return c.doc.Snippets }
func (c *Catalog) ClarifyReply() string { return c.doc.ClarifyReply }
func (c *Catalog) EmptyReply() string { return c.doc.EmptyReply }
func (c *Catalog) CodeSuggestions() []string { return clone(c.doc.CodeSuggestions) }
func (c *Catalog) CodeFallbackSuggestions() []string { return clone(c.doc.CodeFallbackSuggestions) }
func (c *Catalog) InitialSuggestions() []string { return clone(c.doc.InitialSuggestions) }
func (c *Catalog) Capabilities() []string { return clone(c.doc.Capabilities) }

func clone(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
