package generator

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/nidhogg/jarvis/internal/classifier"
	"github.com/nidhogg/jarvis/internal/content"
)

// Model names reported by the local generator.
const (
	LocalReplyModel = "dynamic-generator"
	LocalCodeModel  = "enhanced-knowledge-base"
)

// Library is the content the local generator answers from.
type Library interface {
	Intents() []content.Intent
	Snippets() []content.Snippet
}

// Local answers small talk and code requests from static content. Topical
// questions return ErrNoReply so the knowledge base handles them.
type Local struct {
	lib Library

	mu  sync.Mutex
	rng *rand.Rand
}

// LocalOption configures a Local generator.
type LocalOption func(*Local)

// WithRand sets the source used to pick reply variants.
func WithRand(rng *rand.Rand) LocalOption {
	return func(l *Local) { l.rng = rng }
}

// NewLocal creates a local generator over lib.
func NewLocal(lib Library, opts ...LocalOption) *Local {
	l := &Local{lib: lib}
	for _, o := range opts {
		o(l)
	}
	if l.rng == nil {
		l.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return l
}

func (l *Local) Name() string { return "local" }

func (l *Local) GenerateReply(_ context.Context, message string, _ ReplyContext) (*Reply, error) {
	m := newMatcher(message)
	for _, in := range l.lib.Intents() {
		if len(in.Replies) == 0 || !m.any(in.Triggers) {
			continue
		}
		return &Reply{
			Text:       l.pick(in.Replies),
			Category:   in.Category,
			Confidence: in.Confidence,
			Model:      LocalReplyModel,
		}, nil
	}
	return nil, ErrNoReply
}

func (l *Local) GenerateCode(_ context.Context, prompt, _ string) (*Code, error) {
	m := newMatcher(prompt)
	for _, sn := range l.lib.Snippets() {
		if sn.Code != "" && m.any(sn.Triggers) {
			return &Code{Code: strings.TrimRight(sn.Code, "\n"), Model: LocalCodeModel}, nil
		}
	}
	return nil, ErrNoReply
}

func (l *Local) pick(variants []string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return variants[l.rng.Intn(len(variants))]
}

// matcher checks triggers against a message: multi-word triggers match as
// substrings, single words must match a whole token.
type matcher struct {
	lower  string
	tokens map[string]bool
}

func newMatcher(text string) matcher {
	m := matcher{lower: strings.ToLower(text), tokens: make(map[string]bool)}
	for _, tok := range classifier.Tokenize(text) {
		m.tokens[tok] = true
	}
	return m
}

func (m matcher) any(triggers []string) bool {
	for _, t := range triggers {
		if t == "" {
			continue
		}
		if strings.Contains(t, " ") {
			if strings.Contains(m.lower, t) {
				return true
			}
		} else if m.tokens[t] {
			return true
		}
	}
	return false
}
