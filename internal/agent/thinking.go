package agent

import (
	"time"
)

// StepType identifies the kind of reasoning step.
type StepType string

const (
	StepAnalysis       StepType = "analysis"
	StepCodeGeneration StepType = "code_generation"
	StepAIGeneration   StepType = "ai_generation"
	StepFallback       StepType = "fallback"
	StepKnowledgeBase  StepType = "knowledge_base"
	StepResponse       StepType = "response"
)

// MaxReasoningSteps bounds the reasoning log kept per agent.
const MaxReasoningSteps = 100

// ThinkingChain records the reasoning trace of one processed message.
type ThinkingChain struct {
	ID        string        `json:"id"`
	AgentID   string        `json:"agent_id"`
	SessionID string        `json:"session_id"`
	Steps     []ThinkStep   `json:"steps"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// ThinkStep is a single step in the thinking chain.
type ThinkStep struct {
	Type       StepType  `json:"type"`
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

func (c *ThinkingChain) add(t StepType, content string, confidence float64, now time.Time) {
	c.Steps = append(c.Steps, ThinkStep{
		Type:       t,
		Content:    content,
		Confidence: confidence,
		Timestamp:  now,
	})
}

// appendCapped appends steps and keeps only the newest max entries.
func appendCapped(log []ThinkStep, steps []ThinkStep, max int) []ThinkStep {
	log = append(log, steps...)
	if max > 0 && len(log) > max {
		log = append(log[:0:0], log[len(log)-max:]...)
	}
	return log
}
