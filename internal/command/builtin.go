package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/jarvis/internal/agent"
	"github.com/nidhogg/jarvis/internal/content"
	"github.com/nidhogg/jarvis/internal/gateway"
)

// Sessions is the part of the agent registry commands use.
type Sessions interface {
	Status(sessionID string) agent.Status
	ClearSession(sessionID string) bool
	Lookup(sessionID string) (*agent.Agent, bool)
}

// Catalog provides topic content.
type Catalog interface {
	Topics() []content.Topic
	Suggestions(topic string) []string
	InitialSuggestions() []string
}

// StatusProvider provides adapter connection status.
type StatusProvider interface {
	StatusAll() []gateway.AdapterStatus
}

const topicKeywordPreview = 4

// RegisterBuiltins registers /help, /status, /clear, /topics and /suggest.
// adapters may be nil.
func RegisterBuiltins(reg *Registry, sessions Sessions, catalog Catalog, adapters StatusProvider) {
	reg.Register(helpCommand(reg))
	reg.Register(statusCommand(sessions, adapters))
	reg.Register(clearCommand(sessions))
	reg.Register(topicsCommand(catalog))
	reg.Register(suggestCommand(sessions, catalog))
}

func helpCommand(reg *Registry) *Command {
	return &Command{
		Name:        "help",
		Aliases:     []string{"commands"},
		Description: "List all available commands",
		Usage:       "/help",
		Handler: func(_ context.Context, _ string, _ *CommandContext) (*CommandResult, error) {
			var b strings.Builder
			b.WriteString("Available commands:\n")
			for _, c := range reg.List() {
				fmt.Fprintf(&b, "  /%s - %s", c.Name, c.Description)
				if len(c.Aliases) > 0 {
					fmt.Fprintf(&b, " (also /%s)", strings.Join(c.Aliases, ", /"))
				}
				b.WriteString("\n")
				if c.Usage != "" {
					fmt.Fprintf(&b, "    Usage: %s\n", c.Usage)
				}
			}
			return &CommandResult{Content: b.String()}, nil
		},
	}
}

func statusCommand(sessions Sessions, adapters StatusProvider) *Command {
	return &Command{
		Name:        "status",
		Description: "Show this conversation's agent status",
		Usage:       "/status",
		Handler: func(_ context.Context, _ string, cc *CommandContext) (*CommandResult, error) {
			st := sessions.Status(cc.SessionID)
			var b strings.Builder
			fmt.Fprintf(&b, "%s (session %s)\n", st.Name, st.SessionID)
			fmt.Fprintf(&b, "  state: %s\n", st.State)
			fmt.Fprintf(&b, "  turns: %d, memories: %d, reasoning steps: %d\n",
				st.ConversationCount, st.MemoryCount, st.ReasoningSteps)
			fmt.Fprintf(&b, "  tools: %s\n", strings.Join(st.ToolsAvailable, ", "))
			if !st.LastActivity.IsZero() {
				fmt.Fprintf(&b, "  last activity: %s\n", st.LastActivity.Format(time.RFC3339))
			}
			if adapters != nil {
				if list := adapters.StatusAll(); len(list) > 0 {
					b.WriteString("Adapters:\n")
					for _, a := range list {
						state := "disconnected"
						if a.Connected {
							state = "connected"
						}
						fmt.Fprintf(&b, "  %s: %s\n", a.Platform, state)
					}
				}
			}
			return &CommandResult{Content: b.String(), Data: st}, nil
		},
	}
}

func clearCommand(sessions Sessions) *Command {
	return &Command{
		Name:        "clear",
		Aliases:     []string{"reset"},
		Description: "Forget this conversation",
		Usage:       "/clear",
		Handler: func(_ context.Context, _ string, cc *CommandContext) (*CommandResult, error) {
			if !sessions.ClearSession(cc.SessionID) {
				return &CommandResult{Content: "Nothing to clear yet."}, nil
			}
			return &CommandResult{Content: "Conversation cleared. Let's start fresh!"}, nil
		},
	}
}

func topicsCommand(catalog Catalog) *Command {
	return &Command{
		Name:        "topics",
		Description: "List the topics I know about",
		Usage:       "/topics",
		Handler: func(_ context.Context, _ string, _ *CommandContext) (*CommandResult, error) {
			var names []string
			var b strings.Builder
			b.WriteString("Topics I can talk about:\n")
			for _, t := range catalog.Topics() {
				if t.Name == content.GeneralTopic {
					continue
				}
				names = append(names, t.Name)
				kw := t.Keywords
				if len(kw) > topicKeywordPreview {
					kw = kw[:topicKeywordPreview]
				}
				fmt.Fprintf(&b, "  %s (%s)\n", t.Name, strings.Join(kw, ", "))
			}
			if len(names) == 0 {
				return &CommandResult{Content: "No topics loaded."}, nil
			}
			return &CommandResult{Content: b.String(), Data: names}, nil
		},
	}
}

func suggestCommand(sessions Sessions, catalog Catalog) *Command {
	return &Command{
		Name:        "suggest",
		Aliases:     []string{"ideas"},
		Description: "Suggest questions to ask",
		Usage:       "/suggest [topic]",
		Handler: func(_ context.Context, args string, cc *CommandContext) (*CommandResult, error) {
			topic := strings.ToLower(args)
			if topic == "" {
				topic = lastTopic(sessions, cc.SessionID)
			}
			var list []string
			if topic != "" {
				list = catalog.Suggestions(topic)
			} else {
				list = catalog.InitialSuggestions()
			}
			if len(list) == 0 {
				return &CommandResult{Content: "No suggestions right now."}, nil
			}
			var b strings.Builder
			b.WriteString("You could ask:\n")
			for _, s := range list {
				fmt.Fprintf(&b, "  - %s\n", s)
			}
			return &CommandResult{Content: b.String(), Data: list}, nil
		},
	}
}

// lastTopic returns the topic of the session's latest reply, if any.
func lastTopic(sessions Sessions, sessionID string) string {
	a, ok := sessions.Lookup(sessionID)
	if !ok {
		return ""
	}
	turns := a.Transcript(0)
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Topic != "" {
			return turns[i].Topic
		}
	}
	return ""
}
