package app

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/bdobrica/yellow/common/trace"
	"github.com/bdobrica/yellow/internal/yellow/bot"
	"github.com/bdobrica/yellow/internal/yellow/identity"
	"github.com/bdobrica/yellow/internal/yellow/observability"
	"github.com/bdobrica/yellow/internal/yellow/portal"
	"github.com/bdobrica/yellow/internal/yellow/store"
)

// ProviderFactory builds the data providers for one user's portal session.
type ProviderFactory func(sess portal.Session) (bot.Providers, error)

// PortalProviders returns a ProviderFactory scraping the real portals.
func PortalProviders(cfg portal.Config) ProviderFactory {
	return func(sess portal.Session) (bot.Providers, error) {
		p, err := portal.New(sess, cfg)
		if err != nil {
			return bot.Providers{}, err
		}
		return p.Providers(), nil
	}
}

// RoomLookup finds stored rooms.
type RoomLookup interface {
	GetRoom(ctx context.Context, id string) (*store.Room, error)
}

// Engine answers one chat message for a known user. It is shared by the
// Matrix and HTTP transports.
type Engine struct {
	dispatcher *bot.Dispatcher
	rooms      RoomLookup
	providers  ProviderFactory
}

// NewEngine creates an Engine.
func NewEngine(dispatcher *bot.Dispatcher, rooms RoomLookup, providers ProviderFactory) *Engine {
	return &Engine{dispatcher: dispatcher, rooms: rooms, providers: providers}
}

// ProvidersFor returns the providers acting on behalf of ident.
func (e *Engine) ProvidersFor(ident *identity.Identity) (bot.Providers, error) {
	return e.providers(ident.Session)
}

// Handle dispatches text sent by ident in roomID. An unknown or empty roomID
// means no room. Provider failures are returned as errors.
func (e *Engine) Handle(ctx context.Context, ident *identity.Identity, text, roomID string) (bot.Response, error) {
	ctx, traceID := trace.Start(ctx)
	log := observability.WithTrace(ctx)

	room, err := e.lookupRoom(ctx, roomID)
	if err != nil {
		return bot.Response{}, err
	}
	providers, err := e.ProvidersFor(ident)
	if err != nil {
		return bot.Response{}, fmt.Errorf("portal session: %w", err)
	}

	req, err := bot.NewRequest(NormalizeText(text), room, providers)
	if err != nil {
		return bot.Response{}, err
	}
	log.Debug("dispatching message", "alias", ident.Alias, "room", roomID, "bound", room.Bound())

	resp, err := e.dispatcher.Dispatch(ctx, req)
	if err != nil {
		log.Error("message failed", "alias", ident.Alias, "err", err)
		return bot.Response{}, fmt.Errorf("%w (trace %s)", err, traceID)
	}
	return resp, nil
}

func (e *Engine) lookupRoom(ctx context.Context, roomID string) (*bot.Room, error) {
	if roomID == "" {
		return nil, nil
	}
	r, err := e.rooms.GetRoom(ctx, roomID)
	if errors.Is(err, store.ErrRoomNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.BotRoom(), nil
}

// NormalizeText prepares user text for the command gates, which expect
// lowercase.
func NormalizeText(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// FormatHTML escapes a reply and turns its line breaks into <br/>.
func FormatHTML(text string) string {
	return strings.ReplaceAll(html.EscapeString(text), "\n", "<br/>")
}
