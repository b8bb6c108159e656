package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nidhogg/jarvis/internal/classifier"
)

// Built-in tool names.
const (
	ToolSearchKnowledge  = "search_knowledge"
	ToolAnalyzeSentiment = "analyze_sentiment"
	ToolExtractKeyInfo   = "extract_key_info"
	ToolGetContext       = "get_context"
)

// KnowledgeHit is one topic matched by search_knowledge.
type KnowledgeHit struct {
	Relevance float64  `json:"relevance"`
	Facts     []string `json:"facts"`
	Replies   []string `json:"replies"`
}

// KeyInfo is the result of extract_key_info.
type KeyInfo struct {
	Keywords  []string `json:"keywords"`
	WordCount int      `json:"word_count"`
	Sentences int      `json:"sentences"`
}

// ConversationContext is the result of get_context.
type ConversationContext struct {
	ConversationLength int         `json:"conversation_length"`
	RecentTopics       []string    `json:"recent_topics"`
	UserPreferences    Preferences `json:"user_preferences"`
	CurrentSession     string      `json:"current_session"`
}

// RegisterBuiltinTools adds the default tools for a to a registry.
func RegisterBuiltinTools(reg *ToolRegistry, a *Agent) {
	reg.Register(Tool{
		Name:        ToolSearchKnowledge,
		Description: "Search the knowledge base for relevant information",
		Parameters:  map[string]string{"query": "string"},
		Required:    []string{"query"},
	}, func(ctx context.Context, args string) (string, error) {
		var p struct {
			Query string `json:"query"`
		}
		if err := decodeArgs(args, &p); err != nil {
			return "", err
		}
		if strings.TrimSpace(p.Query) == "" {
			return "", fmt.Errorf("%s: query is required", ToolSearchKnowledge)
		}
		return encodeResult(a.searchKnowledge(p.Query))
	})

	reg.Register(Tool{
		Name:        ToolAnalyzeSentiment,
		Description: "Analyze the sentiment of text",
		Parameters:  map[string]string{"text": "string"},
		Required:    []string{"text"},
	}, func(ctx context.Context, args string) (string, error) {
		var p struct {
			Text string `json:"text"`
		}
		if err := decodeArgs(args, &p); err != nil {
			return "", err
		}
		return encodeResult(classifier.AnalyzeSentiment(p.Text))
	})

	reg.Register(Tool{
		Name:        ToolExtractKeyInfo,
		Description: "Extract key information from text",
		Parameters:  map[string]string{"text": "string"},
		Required:    []string{"text"},
	}, func(ctx context.Context, args string) (string, error) {
		var p struct {
			Text string `json:"text"`
		}
		if err := decodeArgs(args, &p); err != nil {
			return "", err
		}
		return encodeResult(keyInfo(p.Text))
	})

	reg.Register(Tool{
		Name:        ToolGetContext,
		Description: "Get current conversation context",
		Parameters:  map[string]string{},
	}, func(ctx context.Context, args string) (string, error) {
		return encodeResult(a.Context())
	})
}

func keyInfo(text string) KeyInfo {
	kw := extractKeywords(text)
	if kw == nil {
		kw = []string{}
	}
	return KeyInfo{
		Keywords:  kw,
		WordCount: len(classifier.Tokenize(text)),
		Sentences: countSentences(text),
	}
}

func decodeArgs(args string, v any) error {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(args), v); err != nil {
		return fmt.Errorf("parse args: %w", err)
	}
	return nil
}

func encodeResult(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}
