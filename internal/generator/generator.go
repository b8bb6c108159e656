// Package generator provides the optional text and code generation
// capability the response pipeline consults before its knowledge base.
package generator

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoReply is returned when a generator has nothing to say for a message.
var ErrNoReply = errors.New("generator has no reply")

// Turn is one prior exchange line handed to a generator.
type Turn struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// ReplyContext is the bounded context passed along with a message.
type ReplyContext struct {
	History     []Turn            `json:"history"`
	Preferences map[string]string `json:"preferences,omitempty"`
	SessionID   string            `json:"session_id"`
}

// Reply is a generated conversational answer.
type Reply struct {
	Text       string  `json:"text"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Model      string  `json:"model"`
}

// Code is a generated code snippet.
type Code struct {
	Code  string `json:"code"`
	Model string `json:"model"`
}

// Generator produces replies and code. Callers treat every error as the
// capability being unavailable.
type Generator interface {
	Name() string
	GenerateReply(ctx context.Context, message string, rc ReplyContext) (*Reply, error)
	GenerateCode(ctx context.Context, prompt, language string) (*Code, error)
}

// Chain tries generators in order; the first non-empty answer wins.
// Each member gets a single attempt.
type Chain struct {
	gens []Generator
}

// NewChain builds a chain, skipping nil members.
func NewChain(gens ...Generator) *Chain {
	c := &Chain{}
	for _, g := range gens {
		if g != nil {
			c.gens = append(c.gens, g)
		}
	}
	return c
}

func (c *Chain) Name() string { return "chain" }

// Members returns the names of the chained generators in order.
func (c *Chain) Members() []string {
	names := make([]string, len(c.gens))
	for i, g := range c.gens {
		names[i] = g.Name()
	}
	return names
}

func (c *Chain) GenerateReply(ctx context.Context, message string, rc ReplyContext) (*Reply, error) {
	var errs []error
	for _, g := range c.gens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := g.GenerateReply(ctx, message, rc)
		if err == nil && r != nil && r.Text != "" {
			return r, nil
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", g.Name(), err))
		}
	}
	return nil, chainErr(errs)
}

func (c *Chain) GenerateCode(ctx context.Context, prompt, language string) (*Code, error) {
	var errs []error
	for _, g := range c.gens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		code, err := g.GenerateCode(ctx, prompt, language)
		if err == nil && code != nil && code.Code != "" {
			return code, nil
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", g.Name(), err))
		}
	}
	return nil, chainErr(errs)
}

func chainErr(errs []error) error {
	if len(errs) == 0 {
		return ErrNoReply
	}
	return fmt.Errorf("%w: %w", ErrNoReply, errors.Join(errs...))
}
