package generator

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/nidhogg/jarvis/internal/content"
	"github.com/nidhogg/jarvis/internal/provider"
	"go.uber.org/zap"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	cat, err := content.Default()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	return NewLocal(cat, WithRand(rand.New(rand.NewSource(1))))
}

func TestLocalGreeting(t *testing.T) {
	l := newTestLocal(t)
	r, err := l.GenerateReply(context.Background(), "Hello!", ReplyContext{})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if r.Category != "greeting" || r.Confidence <= 0 || r.Text == "" {
		t.Errorf("unexpected reply %+v", r)
	}
	if r.Model != LocalReplyModel {
		t.Errorf("got model %q", r.Model)
	}
}

func TestLocalWordTriggersNeedWholeTokens(t *testing.T) {
	l := newTestLocal(t)
	// "this" contains "hi" but is not a greeting.
	_, err := l.GenerateReply(context.Background(), "tell me about this project", ReplyContext{})
	if !errors.Is(err, ErrNoReply) {
		t.Errorf("got %v, want ErrNoReply", err)
	}
}

func TestLocalPhraseTrigger(t *testing.T) {
	l := newTestLocal(t)
	r, err := l.GenerateReply(context.Background(), "So, how are you today?", ReplyContext{})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if r.Category != "status" {
		t.Errorf("got category %q, want status", r.Category)
	}
}

func TestLocalCode(t *testing.T) {
	l := newTestLocal(t)
	c, err := l.GenerateCode(context.Background(), "write a fibonacci function", "python")
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if !strings.Contains(c.Code, "def fibonacci") {
		t.Errorf("got code %q", c.Code)
	}
	if c.Model != LocalCodeModel {
		t.Errorf("got model %q", c.Model)
	}

	if _, err := l.GenerateCode(context.Background(), "write a compiler", "python"); !errors.Is(err, ErrNoReply) {
		t.Errorf("got %v, want ErrNoReply", err)
	}
}

type fakeGen struct {
	name  string
	reply *Reply
	code  *Code
	err   error
	calls int
}

func (f *fakeGen) Name() string { return f.name }

func (f *fakeGen) GenerateReply(context.Context, string, ReplyContext) (*Reply, error) {
	f.calls++
	return f.reply, f.err
}

func (f *fakeGen) GenerateCode(context.Context, string, string) (*Code, error) {
	f.calls++
	return f.code, f.err
}

func TestChainFirstSuccessWins(t *testing.T) {
	bad := &fakeGen{name: "bad", err: errors.New("down")}
	empty := &fakeGen{name: "empty", reply: &Reply{}}
	good := &fakeGen{name: "good", reply: &Reply{Text: "hi", Category: "general"}}
	never := &fakeGen{name: "never", reply: &Reply{Text: "late"}}

	c := NewChain(bad, nil, empty, good, never)
	if got := c.Members(); len(got) != 4 {
		t.Fatalf("got members %v", got)
	}
	r, err := c.GenerateReply(context.Background(), "x", ReplyContext{})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if r.Text != "hi" {
		t.Errorf("got %q", r.Text)
	}
	if never.calls != 0 {
		t.Errorf("generator after success was called")
	}
}

func TestChainAllFail(t *testing.T) {
	down := errors.New("down")
	c := NewChain(&fakeGen{name: "a", err: down}, &fakeGen{name: "b", code: &Code{}})
	_, err := c.GenerateCode(context.Background(), "x", "go")
	if !errors.Is(err, ErrNoReply) || !errors.Is(err, down) {
		t.Errorf("got %v, want ErrNoReply wrapping member error", err)
	}

	if _, err := NewChain().GenerateReply(context.Background(), "x", ReplyContext{}); !errors.Is(err, ErrNoReply) {
		t.Errorf("empty chain: got %v", err)
	}
}

func TestChainStopsOnCancelledContext(t *testing.T) {
	g := &fakeGen{name: "g", reply: &Reply{Text: "x"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewChain(g).GenerateReply(ctx, "x", ReplyContext{}); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if g.calls != 0 {
		t.Errorf("generator called after cancel")
	}
}

type fakeRouter struct {
	purpose string
	req     *provider.ChatRequest
	resp    *provider.ChatResponse
	err     error
}

func (f *fakeRouter) Route(_ context.Context, purpose string, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	f.purpose = purpose
	f.req = req
	return f.resp, f.err
}

func TestRemoteReply(t *testing.T) {
	fr := &fakeRouter{resp: &provider.ChatResponse{Model: "gpt-test", Content: "  Sure thing.  "}}
	r := NewRemote(fr, "", zap.NewNop())
	reply, err := r.GenerateReply(context.Background(), "tell me more", ReplyContext{
		History:     []Turn{{Sender: "user", Text: "hi"}, {Sender: "assistant", Text: "hello"}},
		Preferences: map[string]string{"technical_level": "advanced"},
		SessionID:   "s1",
	})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply.Text != "Sure thing." || reply.Model != "gpt-test" || reply.Confidence != 0.8 {
		t.Errorf("unexpected reply %+v", reply)
	}
	if fr.purpose != provider.PurposeReply {
		t.Errorf("got purpose %q", fr.purpose)
	}
	msgs := fr.req.Messages
	// system, preferences, two history turns, message
	if len(msgs) != 5 {
		t.Fatalf("got %d messages, want 5", len(msgs))
	}
	if msgs[3].Role != provider.RoleAssistant || msgs[4].Content != "tell me more" {
		t.Errorf("unexpected messages %+v", msgs)
	}
	if !strings.Contains(msgs[1].Content, "technical_level: advanced") {
		t.Errorf("preferences not passed: %q", msgs[1].Content)
	}
}

func TestRemoteErrors(t *testing.T) {
	r := NewRemote(&fakeRouter{err: provider.ErrNoProvider}, "", zap.NewNop())
	if _, err := r.GenerateReply(context.Background(), "x", ReplyContext{}); !errors.Is(err, provider.ErrNoProvider) {
		t.Errorf("got %v", err)
	}
	r = NewRemote(&fakeRouter{resp: &provider.ChatResponse{Content: "   "}}, "", zap.NewNop())
	if _, err := r.GenerateReply(context.Background(), "x", ReplyContext{}); !errors.Is(err, ErrNoReply) {
		t.Errorf("got %v, want ErrNoReply", err)
	}
}

func TestRemoteCode(t *testing.T) {
	fr := &fakeRouter{resp: &provider.ChatResponse{
		Model:   "m",
		Content: "Here you go:\n```python\nprint('hi')\n```\nEnjoy.",
	}}
	c, err := NewRemote(fr, "", zap.NewNop()).GenerateCode(context.Background(), "hello world", "python")
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if c.Code != "print('hi')" {
		t.Errorf("got %q", c.Code)
	}
	if fr.purpose != provider.PurposeCode {
		t.Errorf("got purpose %q", fr.purpose)
	}
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"x = 1", "x = 1"},
		{"```\ny = 2\n```", "y = 2"},
		{"text ```go\nfunc f() {}\n``` more ```\nz\n```", "func f() {}"},
		{"```python\nunterminated", "unterminated"},
	}
	for _, tt := range tests {
		if got := ExtractCode(tt.in); got != tt.want {
			t.Errorf("ExtractCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
