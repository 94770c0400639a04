package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bdobrica/yellow/internal/yellow/identity"
	"github.com/bdobrica/yellow/internal/yellow/matrix"
)

// DefaultPrefix starts every message addressed to the bot.
const DefaultPrefix = "!yellow"

// UnknownSenderNotice is sent to users without a stored portal session.
const UnknownSenderNotice = "I don't know you yet. Ask an operator to run " +
	"`yellow import-session <your Matrix ID> <session.json>` for you."

// ChatSender posts answers back into a room.
type ChatSender interface {
	Reply(ctx context.Context, roomID, eventID, html, plain string) error
	SendNotice(ctx context.Context, roomID, text string) error
}

// IdentityLookup resolves chat aliases to identities.
type IdentityLookup interface {
	ByAlias(ctx context.Context, alias string) (*identity.Identity, error)
}

// NewMessageHandler returns the Matrix handler: it strips the prefix, looks
// the sender up and answers through chat.
func NewMessageHandler(engine *Engine, identities IdentityLookup, chat ChatSender, prefix string) matrix.MessageHandler {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return func(ctx context.Context, msg matrix.Message) {
		text, ok := stripPrefix(msg.Body, prefix)
		if !ok {
			return
		}
		if text == "" {
			text = "help"
		}

		ident, err := identities.ByAlias(ctx, msg.Sender)
		if errors.Is(err, identity.ErrNotFound) {
			if err := chat.SendNotice(ctx, msg.RoomID, UnknownSenderNotice); err != nil {
				slog.Error("failed to send notice", "room", msg.RoomID, "err", err)
			}
			return
		}
		if err != nil {
			slog.Error("identity lookup failed", "sender", msg.Sender, "err", err)
			reply(ctx, chat, msg, fmt.Sprintf("❌ Error: %s", err))
			return
		}

		resp, err := engine.Handle(ctx, ident, text, msg.RoomID)
		if err != nil {
			reply(ctx, chat, msg, fmt.Sprintf("❌ Error: %s", err))
			return
		}
		reply(ctx, chat, msg, resp.Text)
	}
}

func reply(ctx context.Context, chat ChatSender, msg matrix.Message, text string) {
	if err := chat.Reply(ctx, msg.RoomID, msg.EventID, FormatHTML(text), text); err != nil {
		slog.Error("failed to send reply", "room", msg.RoomID, "err", err)
	}
}

// stripPrefix returns the text after prefix, compared case-insensitively.
func stripPrefix(body, prefix string) (string, bool) {
	body = strings.TrimSpace(body)
	if len(body) < len(prefix) || !strings.EqualFold(body[:len(prefix)], prefix) {
		return "", false
	}
	rest := body[len(prefix):]
	// "!yellowish" is not addressed to the bot.
	if rest != "" && rest[0] != ' ' && rest[0] != ':' && rest[0] != ',' {
		return "", false
	}
	return strings.TrimSpace(strings.TrimLeft(rest, ":,")), true
}
