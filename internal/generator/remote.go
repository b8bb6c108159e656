package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nidhogg/jarvis/internal/content"
	"github.com/nidhogg/jarvis/internal/provider"
	"go.uber.org/zap"
)

const (
	remoteConfidence = 0.8
	defaultPrompt    = "You are Jarvis, the assistant of a data science and AI portfolio site. " +
		"Answer briefly and helpfully. Point visitors to projects and live demos when relevant."
)

// Router sends a chat request for a purpose.
type Router interface {
	Route(ctx context.Context, purpose string, req *provider.ChatRequest) (*provider.ChatResponse, error)
}

// Remote generates replies through the LLM provider router.
type Remote struct {
	router       Router
	systemPrompt string
	maxTokens    int
	logger       *zap.Logger
}

// NewRemote creates a generator backed by router. An empty prompt selects
// the built-in assistant persona.
func NewRemote(router Router, systemPrompt string, logger *zap.Logger) *Remote {
	if systemPrompt == "" {
		systemPrompt = defaultPrompt
	}
	return &Remote{
		router:       router,
		systemPrompt: systemPrompt,
		maxTokens:    1024,
		logger:       logger,
	}
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) GenerateReply(ctx context.Context, message string, rc ReplyContext) (*Reply, error) {
	msgs := []provider.Message{{Role: provider.RoleSystem, Content: r.systemPrompt}}
	if prefs := formatPreferences(rc.Preferences); prefs != "" {
		msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: prefs})
	}
	for _, t := range rc.History {
		role := provider.RoleUser
		if t.Sender == "assistant" {
			role = provider.RoleAssistant
		}
		msgs = append(msgs, provider.Message{Role: role, Content: t.Text})
	}
	msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: message})

	resp, err := r.router.Route(ctx, provider.PurposeReply, &provider.ChatRequest{
		Messages:  msgs,
		MaxTokens: r.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("remote reply: %w", err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return nil, ErrNoReply
	}
	r.logger.Debug("remote reply",
		zap.String("session", rc.SessionID),
		zap.String("model", resp.Model),
		zap.Int("tokens", resp.Usage.TotalTokens))

	return &Reply{
		Text:       text,
		Category:   content.GeneralTopic,
		Confidence: remoteConfidence,
		Model:      resp.Model,
	}, nil
}

func (r *Remote) GenerateCode(ctx context.Context, prompt, language string) (*Code, error) {
	resp, err := r.router.Route(ctx, provider.PurposeCode, &provider.ChatRequest{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: fmt.Sprintf(
				"You write short, working %s examples. Reply with a single fenced code block.", language)},
			{Role: provider.RoleUser, Content: prompt},
		},
		MaxTokens: r.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("remote code: %w", err)
	}
	code := ExtractCode(resp.Content)
	if code == "" {
		return nil, ErrNoReply
	}
	return &Code{Code: code, Model: resp.Model}, nil
}

// ExtractCode returns the body of the first fenced block in text, or the
// trimmed text when it has no fence.
func ExtractCode(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return strings.TrimSpace(text)
	}
	body := text[start+3:]
	// Skip the language tag line.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func formatPreferences(prefs map[string]string) string {
	if len(prefs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("Known user preferences:")
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s: %s", k, prefs[k])
	}
	return b.String()
}
