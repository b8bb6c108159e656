package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/jarvis/internal/classifier"
	"github.com/nidhogg/jarvis/internal/content"
	"github.com/nidhogg/jarvis/internal/memory"
	"go.uber.org/zap"
)

// State represents an agent's current activity.
type State string

const (
	StateIdle       State = "idle"
	StateThinking   State = "thinking"
	StateExecuting  State = "executing"
	StateResponding State = "responding"
)

// Sender identifies who produced a turn.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

const (
	DefaultName          = "Jarvis"
	DefaultTranscriptCap = 200

	exchangeImportance = 0.6
)

// Turn is one line of the conversation transcript.
type Turn struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	SessionID string    `json:"session_id"`
	Topic     string    `json:"topic,omitempty"`
}

// Reply is the answer to one user message.
type Reply struct {
	Response    string               `json:"response"`
	Category    string               `json:"category"`
	Confidence  float64              `json:"confidence"`
	Suggestions []string             `json:"suggestions"`
	Sentiment   classifier.Sentiment `json:"sentiment"`
	Model       string               `json:"model,omitempty"`
	Code        string               `json:"code,omitempty"`
	ChainID     string               `json:"chain_id"`
}

// Exchange is a processed message with its trace, handed to observers.
type Exchange struct {
	AgentID      string
	SessionID    string
	Message      string
	Reply        Reply
	Chain        *ThinkingChain
	GeneratorErr error
	Empty        bool
}

// Status is a point-in-time snapshot of an agent.
type Status struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	SessionID         string    `json:"session_id"`
	State             State     `json:"state"`
	MemoryCount       int       `json:"memory_count"`
	ConversationCount int       `json:"conversation_count"`
	ToolsAvailable    []string  `json:"tools_available"`
	ReasoningSteps    int       `json:"reasoning_steps"`
	LastActivity      time.Time `json:"last_activity"`
}

// Agent holds one session's memory and transcript. Messages are processed
// one at a time; snapshots can be taken while a message is in flight.
type Agent struct {
	ID        string
	Name      string
	SessionID string

	pipeline      *Pipeline
	memory        *memory.Store
	tools         *ToolRegistry
	transcriptCap int
	now           func() time.Time
	logger        *zap.Logger

	run sync.Mutex // serializes Process

	mu         sync.RWMutex
	state      State
	transcript []Turn
	reasoning  []ThinkStep
	lastActive time.Time
}

// Option configures an Agent.
type Option func(*Agent)

// WithName sets the display name.
func WithName(name string) Option {
	return func(a *Agent) {
		if name != "" {
			a.Name = name
		}
	}
}

// WithMemory sets the agent's memory store.
func WithMemory(m *memory.Store) Option {
	return func(a *Agent) { a.memory = m }
}

// WithTranscriptCap bounds the transcript; 0 keeps every turn.
func WithTranscriptCap(n int) Option {
	return func(a *Agent) { a.transcriptCap = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// WithLogger sets the agent logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// New creates an idle agent for a session.
func New(sessionID string, p *Pipeline, opts ...Option) *Agent {
	a := &Agent{
		ID:            uuid.New().String(),
		Name:          DefaultName,
		SessionID:     sessionID,
		pipeline:      p,
		transcriptCap: DefaultTranscriptCap,
		now:           time.Now,
		logger:        zap.NewNop(),
		state:         StateIdle,
	}
	for _, o := range opts {
		o(a)
	}
	if a.memory == nil {
		a.memory = memory.NewStore(memory.WithClock(a.now))
	}
	a.lastActive = a.now()
	a.tools = NewToolRegistry()
	RegisterBuiltinTools(a.tools, a)
	return a
}

// Tools returns the agent's tool registry.
func (a *Agent) Tools() *ToolRegistry { return a.tools }

// ExecuteTool runs a registered tool with JSON arguments.
func (a *Agent) ExecuteTool(ctx context.Context, name, args string) (string, error) {
	return a.tools.Execute(ctx, name, args)
}

// ProcessMessage answers a user message. It always produces a reply.
func (a *Agent) ProcessMessage(ctx context.Context, message string) Reply {
	return a.Process(ctx, message).Reply
}

// Process answers a user message and returns the full exchange.
func (a *Agent) Process(ctx context.Context, message string) *Exchange {
	a.run.Lock()
	defer a.run.Unlock()

	start := a.now()
	chain := &ThinkingChain{
		ID:        uuid.New().String(),
		AgentID:   a.ID,
		SessionID: a.SessionID,
		StartedAt: start,
	}
	ex := &Exchange{AgentID: a.ID, SessionID: a.SessionID, Message: message, Chain: chain}
	defer func() {
		chain.Duration = a.now().Sub(start)
		a.mu.Lock()
		a.reasoning = appendCapped(a.reasoning, chain.Steps, MaxReasoningSteps)
		a.state = StateIdle
		a.lastActive = a.now()
		a.mu.Unlock()
	}()

	a.setState(StateThinking)
	if strings.TrimSpace(message) == "" {
		chain.add(StepAnalysis, "Empty message", 1, a.now())
		out := a.pipeline.Empty()
		ex.Empty = true
		ex.Reply = a.reply(out, classifier.AnalyzeSentiment(""), chain.ID)
		return ex
	}

	// The current message is part of the transcript the pipeline sees.
	a.appendTurn(Turn{Sender: SenderUser, Text: message, CreatedAt: a.now(), SessionID: a.SessionID})
	chain.add(StepAnalysis, "Analyzing user message: "+truncate(message, 50), 0.8, a.now())

	sentiment := classifier.AnalyzeSentiment(message)
	memories := a.memory.Query(message, memory.DefaultQueryLimit)
	transcript := a.Transcript(0)
	in := Input{
		Message:       message,
		SessionID:     a.SessionID,
		History:       tail(transcript, historyWindow),
		TranscriptLen: len(transcript),
		Memories:      memories,
		Preferences:   inferPreferences(transcript),
		Sentiment:     sentiment,
	}

	a.setState(StateExecuting)
	out := a.pipeline.Generate(ctx, in)
	for _, s := range out.Steps {
		chain.add(s, stepNote(s), out.Confidence, a.now())
	}

	a.setState(StateResponding)
	a.memory.Add(memory.Entry{
		Content:    fmt.Sprintf("User asked: %s. I responded about: %s", message, out.Category),
		Importance: exchangeImportance,
		Kind:       memory.KindConversation,
		Tags: map[string]any{
			"sentiment": sentiment.Label,
			"topic":     out.Category,
		},
	})
	a.appendTurn(Turn{
		Sender:    SenderAssistant,
		Text:      out.Response,
		CreatedAt: a.now(),
		SessionID: a.SessionID,
		Topic:     out.Category,
	})
	chain.add(StepResponse, "Responded about "+out.Category, out.Confidence, a.now())

	ex.GeneratorErr = out.GeneratorErr
	ex.Reply = a.reply(out, sentiment, chain.ID)
	a.logger.Debug("message processed",
		zap.String("session", a.SessionID),
		zap.String("category", out.Category),
		zap.Float64("confidence", out.Confidence))
	return ex
}

func (a *Agent) reply(out Output, s classifier.Sentiment, chainID string) Reply {
	suggestions := out.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	return Reply{
		Response:    out.Response,
		Category:    out.Category,
		Confidence:  out.Confidence,
		Suggestions: suggestions,
		Sentiment:   s,
		Model:       out.Model,
		Code:        out.Code,
		ChainID:     chainID,
	}
}

func stepNote(s StepType) string {
	switch s {
	case StepCodeGeneration:
		return "Detected code generation request"
	case StepAIGeneration:
		return "Using generator for response"
	case StepFallback:
		return "Generator failed, using knowledge base"
	case StepKnowledgeBase:
		return "Using knowledge base for response"
	}
	return string(s)
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = s
}

func (a *Agent) appendTurn(t Turn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transcript = append(a.transcript, t)
	if a.transcriptCap > 0 && len(a.transcript) > a.transcriptCap {
		a.transcript = append(a.transcript[:0:0], a.transcript[len(a.transcript)-a.transcriptCap:]...)
	}
}

// Status returns a snapshot of the agent.
func (a *Agent) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Status{
		ID:                a.ID,
		Name:              a.Name,
		SessionID:         a.SessionID,
		State:             a.state,
		MemoryCount:       a.memory.Len(),
		ConversationCount: len(a.transcript),
		ToolsAvailable:    a.tools.Names(),
		ReasoningSteps:    len(a.reasoning),
		LastActivity:      a.lastActive,
	}
}

// Transcript returns up to n of the newest turns, oldest first. n <= 0
// returns the whole transcript.
func (a *Agent) Transcript(n int) []Turn {
	a.mu.RLock()
	defer a.mu.RUnlock()
	src := a.transcript
	if n > 0 {
		src = tail(src, n)
	}
	out := make([]Turn, len(src))
	copy(out, src)
	return out
}

// Reasoning returns the retained reasoning steps, oldest first.
func (a *Agent) Reasoning() []ThinkStep {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]ThinkStep, len(a.reasoning))
	copy(out, a.reasoning)
	return out
}

// Memories returns the agent's memory entries in insertion order.
func (a *Agent) Memories() []memory.Entry { return a.memory.Entries() }

// QueryMemories ranks memories against text.
func (a *Agent) QueryMemories(text string, limit int) []memory.Entry {
	return a.memory.Query(text, limit)
}

// Context reports what the agent currently knows about the conversation.
func (a *Agent) Context() ConversationContext {
	transcript := a.Transcript(0)
	prefs := inferPreferences(transcript)
	topics := prefs.Interests
	if topics == nil {
		topics = []string{}
	}
	return ConversationContext{
		ConversationLength: len(transcript),
		RecentTopics:       topics,
		UserPreferences:    prefs,
		CurrentSession:     a.SessionID,
	}
}

// Reset drops the transcript, memories and reasoning log.
func (a *Agent) Reset() {
	a.run.Lock()
	defer a.run.Unlock()
	a.memory.Clear()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transcript = nil
	a.reasoning = nil
	a.state = StateIdle
}

func (a *Agent) searchKnowledge(query string) map[string]KnowledgeHit {
	res := a.pipeline.classifier.Classify(query)
	hits := make(map[string]KnowledgeHit, len(res.Matched))
	for name, score := range res.Matched {
		t, err := a.pipeline.knowledge.GetTopic(name)
		if err != nil {
			continue
		}
		hits[name] = KnowledgeHit{Relevance: score, Facts: t.Facts, Replies: t.Replies}
	}
	return hits
}

var _ Knowledge = (*content.Catalog)(nil)
