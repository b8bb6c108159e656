// Package command implements chat slash commands.
package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Command is one slash command. Aliases resolve to the same handler.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Handler     CommandHandler
}

// CommandHandler runs a command with the text after its name.
type CommandHandler func(ctx context.Context, args string, cc *CommandContext) (*CommandResult, error)

// CommandContext describes where a command came from.
type CommandContext struct {
	Platform  string
	ChannelID string
	UserID    string
	UserName  string
	SessionID string
}

// CommandResult is the text shown to the user plus optional structured data.
type CommandResult struct {
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// Registry maps command names and aliases to commands.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Command
	aliases map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]*Command),
		aliases: make(map[string]string),
	}
}

// Register adds cmd, replacing any command or alias with the same name.
func (r *Registry) Register(cmd *Command) {
	name := strings.ToLower(cmd.Name)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.aliases, name)
	r.byName[name] = cmd
	for _, a := range cmd.Aliases {
		a = strings.ToLower(a)
		if _, taken := r.byName[a]; !taken {
			r.aliases[a] = name
		}
	}
}

// IsCommand reports whether input looks like a slash command.
func IsCommand(input string) bool {
	input = strings.TrimSpace(input)
	return len(input) > 1 && input[0] == '/' && input[1] != '/' && input[1] != ' '
}

// parse splits "/name args" into a lower-cased name and trimmed args.
func parse(input string) (name, args string) {
	input = strings.TrimPrefix(strings.TrimSpace(input), "/")
	name, args, _ = strings.Cut(input, " ")
	return strings.ToLower(name), strings.TrimSpace(args)
}

func (r *Registry) lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if target, ok := r.aliases[name]; ok {
		name = target
	}
	cmd, ok := r.byName[name]
	return cmd, ok
}

// Dispatch runs the command named in input. Unknown commands get a hint
// rather than an error so chat users see something useful.
func (r *Registry) Dispatch(ctx context.Context, input string, cc *CommandContext) (*CommandResult, error) {
	name, args := parse(input)
	cmd, ok := r.lookup(name)
	if !ok || cmd.Handler == nil {
		return &CommandResult{
			Content: fmt.Sprintf("Unknown command: /%s. Type /help for available commands.", name),
		}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return cmd.Handler(ctx, args, cc)
}

// List returns the registered commands sorted by name, without aliases.
func (r *Registry) List() []*Command {
	r.mu.RLock()
	out := make([]*Command, 0, len(r.byName))
	for _, cmd := range r.byName {
		out = append(out, cmd)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
