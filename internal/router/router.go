// Package router connects chat gateways to slash commands and session agents.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/jarvis/internal/agent"
	"github.com/nidhogg/jarvis/internal/command"
	"github.com/nidhogg/jarvis/internal/gateway"
	"go.uber.org/zap"
)

const (
	defaultReplyTimeout  = 30 * time.Second
	maxListedSuggestions = 3
)

// Sessions processes a message in a session's conversation.
type Sessions interface {
	ProcessMessage(ctx context.Context, message, sessionID string) *agent.Exchange
}

// Sender delivers replies back to a platform.
type Sender interface {
	Send(ctx context.Context, msg *gateway.OutboundMessage) error
}

// MessageRouter routes inbound messages to a command or the channel's agent.
type MessageRouter struct {
	sessions Sessions
	sender   Sender
	commands *command.Registry
	timeout  time.Duration
	logger   *zap.Logger
}

// New creates a new MessageRouter. A zero timeout uses 30s.
func New(sessions Sessions, sender Sender, commands *command.Registry, timeout time.Duration, logger *zap.Logger) *MessageRouter {
	if timeout <= 0 {
		timeout = defaultReplyTimeout
	}
	return &MessageRouter{
		sessions: sessions,
		sender:   sender,
		commands: commands,
		timeout:  timeout,
		logger:   logger,
	}
}

// Handle routes an inbound message and sends the reply.
// Signature matches gateway.MessageHandler.
func (mr *MessageRouter) Handle(msg *gateway.InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), mr.timeout)
	defer cancel()

	sessionID := msg.SessionID()
	mr.logger.Info("routing message",
		zap.String("platform", msg.Platform),
		zap.String("session", sessionID),
		zap.String("user", msg.UserName),
	)

	mr.sendReply(ctx, msg, mr.Reply(ctx, msg))
}

// Reply computes the text answer for msg without sending it.
func (mr *MessageRouter) Reply(ctx context.Context, msg *gateway.InboundMessage) string {
	sessionID := msg.SessionID()

	// Intercept slash commands before the agent
	if mr.commands != nil && command.IsCommand(msg.Content) {
		cc := &command.CommandContext{
			Platform:  msg.Platform,
			ChannelID: msg.ChannelID,
			UserID:    msg.UserID,
			UserName:  msg.UserName,
			SessionID: sessionID,
		}
		result, err := mr.commands.Dispatch(ctx, msg.Content, cc)
		if err != nil {
			mr.logger.Error("command dispatch error", zap.Error(err))
			return "Command error: " + err.Error()
		}
		return result.Content
	}

	ex := mr.sessions.ProcessMessage(ctx, msg.Content, sessionID)
	return FormatReply(ex.Reply)
}

// FormatReply renders a reply as chat text with a few follow-up suggestions.
func FormatReply(r agent.Reply) string {
	var b strings.Builder
	b.WriteString(r.Response)
	n := len(r.Suggestions)
	if n > maxListedSuggestions {
		n = maxListedSuggestions
	}
	if n > 0 {
		b.WriteString("\n\nYou could ask:")
		for _, s := range r.Suggestions[:n] {
			fmt.Fprintf(&b, "\n• %s", s)
		}
	}
	return b.String()
}

// sendReply sends a text reply back to the originating platform/channel.
func (mr *MessageRouter) sendReply(ctx context.Context, orig *gateway.InboundMessage, text string) {
	err := mr.sender.Send(ctx, &gateway.OutboundMessage{
		Platform:  orig.Platform,
		ChannelID: orig.ChannelID,
		Content:   text,
		ReplyTo:   orig.ReplyTo,
	})
	if err != nil {
		mr.logger.Error("send reply failed",
			zap.String("platform", orig.Platform),
			zap.String("channel", orig.ChannelID),
			zap.Error(err))
	}
}
