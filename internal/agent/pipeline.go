package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/nidhogg/jarvis/internal/classifier"
	"github.com/nidhogg/jarvis/internal/content"
	"github.com/nidhogg/jarvis/internal/generator"
	"github.com/nidhogg/jarvis/internal/memory"
	"go.uber.org/zap"
)

const (
	CategoryCoding = "coding"

	codeLanguage         = "python"
	codeConfidence       = 0.9
	codeFallbackConf     = 0.7
	maxSuggestions       = 5
	longConversation     = 5
	followUpSuggestion   = "What else would you like to know?"
	concernPrefix        = "I understand your concern. "
	enthusiasticPrefix   = "Great! "
	memoryPrefix         = " Based on our previous conversation, "
	beginnerTip          = "\n\n💡 Tip: I can explain technical concepts in simpler terms if needed!"
	negativeThreshold    = -0.3
	positiveThreshold    = 0.3
	defaultGenTimeout    = 15 * time.Second
	codeFallbackTemplate = "I can help you with code generation! Here's a simple example:\n\n" +
		"```python\ndef example_function():\n    \"\"\"Example function\"\"\"\n    return \"Hello, World!\"\n\n" +
		"print(example_function())\n```\n\nWhat specific code would you like me to generate?"
)

var codeVerbs = []string{"write", "generate", "create", "code", "program", "function", "algorithm", "script"}

// Knowledge is the content the pipeline answers from.
type Knowledge interface {
	GetTopic(name string) (content.Topic, error)
	Suggestions(topic string) []string
	ClarifyReply() string
	EmptyReply() string
	InitialSuggestions() []string
	CodeSuggestions() []string
	CodeFallbackSuggestions() []string
}

// TopicClassifier picks a topic for a message.
type TopicClassifier interface {
	Classify(text string) classifier.Result
}

// Input is everything the pipeline needs for one message.
type Input struct {
	Message       string
	SessionID     string
	History       []Turn
	TranscriptLen int
	Memories      []memory.Entry
	Preferences   Preferences
	Sentiment     classifier.Sentiment
}

// Output is the selected reply and how it was produced.
type Output struct {
	Response     string
	Category     string
	Confidence   float64
	Suggestions  []string
	Model        string
	Code         string
	Steps        []StepType
	GeneratorErr error
}

// Pipeline selects and builds a reply: code requests first, then the
// generator, then the knowledge base.
type Pipeline struct {
	knowledge  Knowledge
	classifier TopicClassifier
	gen        generator.Generator
	threshold  float64
	timeout    time.Duration
	logger     *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithGenerator sets the optional generation capability.
func WithGenerator(g generator.Generator) PipelineOption {
	return func(p *Pipeline) { p.gen = g }
}

// WithRand sets the source used to pick knowledge-base replies.
func WithRand(rng *rand.Rand) PipelineOption {
	return func(p *Pipeline) { p.rng = rng }
}

// WithThreshold sets the minimum classifier confidence.
func WithThreshold(t float64) PipelineOption {
	return func(p *Pipeline) { p.threshold = t }
}

// WithTimeout bounds each generator call.
func WithTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.timeout = d }
}

// NewPipeline creates a response pipeline.
func NewPipeline(k Knowledge, c TopicClassifier, logger *zap.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		knowledge:  k,
		classifier: c,
		threshold:  classifier.DefaultThreshold,
		timeout:    defaultGenTimeout,
		logger:     logger,
	}
	for _, o := range opts {
		o(p)
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if p.timeout <= 0 {
		p.timeout = defaultGenTimeout
	}
	return p
}

// IsCodeRequest reports whether the message asks for code.
func IsCodeRequest(message string) bool {
	return containsAny(strings.ToLower(message), codeVerbs)
}

// Generate produces a reply. It never fails: generator problems are
// reported in Output.GeneratorErr and answered from the knowledge base.
func (p *Pipeline) Generate(ctx context.Context, in Input) Output {
	if IsCodeRequest(in.Message) {
		return p.code(ctx, in)
	}

	if p.gen != nil {
		out, err := p.generated(ctx, in)
		if err == nil {
			return out
		}
		if errors.Is(err, generator.ErrNoReply) && !IsGeneratorTimeout(err) {
			p.logger.Debug("no generated reply, using knowledge base", zap.String("session", in.SessionID))
		} else {
			p.logger.Warn("generator unavailable, using knowledge base",
				zap.String("session", in.SessionID), zap.Error(err))
		}
		kb := p.knowledgeBase(in)
		kb.Steps = []StepType{StepAIGeneration, StepFallback}
		kb.GeneratorErr = err
		return kb
	}

	kb := p.knowledgeBase(in)
	kb.Steps = []StepType{StepKnowledgeBase}
	return kb
}

// Empty answers a blank message with the starter suggestions.
func (p *Pipeline) Empty() Output {
	return Output{
		Response:    p.knowledge.EmptyReply(),
		Category:    content.GeneralTopic,
		Suggestions: limit(p.knowledge.InitialSuggestions(), maxSuggestions),
	}
}

func (p *Pipeline) code(ctx context.Context, in Input) Output {
	out := Output{Category: CategoryCoding, Steps: []StepType{StepCodeGeneration}}
	if p.gen != nil {
		code, err := guard(ctx, p.timeout, func(ctx context.Context) (*generator.Code, error) {
			return p.gen.GenerateCode(ctx, in.Message, codeLanguage)
		})
		if err == nil && code != nil && strings.TrimSpace(code.Code) != "" {
			out.Response = fmt.Sprintf("Here's the code you requested:\n\n```%s\n%s\n```\n\n"+
				"This code demonstrates the concept you asked for. You can copy and run it in your Python environment!",
				codeLanguage, code.Code)
			out.Confidence = codeConfidence
			out.Model = code.Model
			out.Code = code.Code
			out.Suggestions = limit(p.knowledge.CodeSuggestions(), maxSuggestions)
			return out
		}
		if err == nil {
			err = generator.ErrNoReply
		}
		out.GeneratorErr = err
		p.logger.Debug("code generation unavailable", zap.String("session", in.SessionID), zap.Error(err))
	}
	out.Response = codeFallbackTemplate
	out.Confidence = codeFallbackConf
	out.Suggestions = limit(p.knowledge.CodeFallbackSuggestions(), maxSuggestions)
	return out
}

func (p *Pipeline) generated(ctx context.Context, in Input) (Output, error) {
	rc := generator.ReplyContext{
		History:     toGeneratorTurns(tail(in.History, historyWindow)),
		Preferences: in.Preferences.Map(),
		SessionID:   in.SessionID,
	}
	r, err := guard(ctx, p.timeout, func(ctx context.Context) (*generator.Reply, error) {
		return p.gen.GenerateReply(ctx, in.Message, rc)
	})
	if err != nil {
		return Output{}, err
	}
	if r == nil || strings.TrimSpace(r.Text) == "" {
		return Output{}, generator.ErrNoReply
	}
	category := r.Category
	if category == "" {
		category = content.GeneralTopic
	}
	return Output{
		Response:    r.Text,
		Category:    category,
		Confidence:  r.Confidence,
		Model:       r.Model,
		Suggestions: p.suggestions(category, in.TranscriptLen),
		Steps:       []StepType{StepAIGeneration},
	}, nil
}

func (p *Pipeline) knowledgeBase(in Input) Output {
	res := p.classifier.Classify(in.Message)
	if !res.Confident(p.threshold) {
		return Output{
			Response:    p.knowledge.ClarifyReply(),
			Category:    content.GeneralTopic,
			Confidence:  res.Confidence,
			Suggestions: p.suggestions(content.GeneralTopic, in.TranscriptLen),
		}
	}

	topic, err := p.knowledge.GetTopic(res.Topic)
	if err != nil || len(topic.Replies) == 0 {
		return Output{
			Response:    p.knowledge.ClarifyReply(),
			Category:    content.GeneralTopic,
			Suggestions: p.suggestions(content.GeneralTopic, in.TranscriptLen),
		}
	}

	return Output{
		Response:    personalize(p.pick(topic.Replies), in),
		Category:    topic.Name,
		Confidence:  res.Confidence,
		Suggestions: p.suggestions(topic.Name, in.TranscriptLen),
	}
}

func personalize(reply string, in Input) string {
	switch {
	case in.Sentiment.Polarity < negativeThreshold:
		reply = concernPrefix + reply
	case in.Sentiment.Polarity > positiveThreshold:
		reply = enthusiasticPrefix + reply
	}
	if len(in.Memories) > 0 {
		reply = memoryPrefix + reply
	}
	if in.Preferences.TechnicalLevel == LevelBeginner {
		reply += beginnerTip
	}
	return reply
}

func (p *Pipeline) suggestions(topic string, transcriptLen int) []string {
	s := p.knowledge.Suggestions(topic)
	if transcriptLen > longConversation {
		s = append(s, followUpSuggestion)
	}
	return limit(s, maxSuggestions)
}

func (p *Pipeline) pick(variants []string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return variants[p.rng.Intn(len(variants))]
}

// guard runs fn under a timeout and turns a panic into an error. A call
// that ignores its context is abandoned once the deadline passes.
func guard[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("generator panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		ch <- result{v: v, err: err}
	}()

	select {
	case res := <-ch:
		return res.v, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// IsGeneratorTimeout reports whether a generator error was a timeout.
func IsGeneratorTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func toGeneratorTurns(turns []Turn) []generator.Turn {
	out := make([]generator.Turn, len(turns))
	for i, t := range turns {
		out[i] = generator.Turn{Sender: string(t.Sender), Text: t.Text}
	}
	return out
}

func limit(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
