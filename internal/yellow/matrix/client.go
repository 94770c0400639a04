// Package matrix connects the bot to the rooms listed in its bindings file.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Config holds the Matrix account and the rooms the bot serves.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms are joined on start; messages from other rooms are ignored.
	Rooms []string
	// State persists the sync position. When nil, room history is replayed
	// on every restart.
	State SyncState
}

// Message is an incoming text message in a served room.
type Message struct {
	RoomID  string
	EventID string
	Sender  string
	Body    string
}

// MessageHandler processes one incoming message.
type MessageHandler func(ctx context.Context, msg Message)

// Client wraps the mautrix client.
type Client struct {
	client   *mautrix.Client
	config   *Config
	rooms    map[string]bool
	stopCh   chan struct{}
	stopOnce sync.Once
	handler  MessageHandler
}

// New creates a client. It does not contact the homeserver.
func New(config *Config) (*Client, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}

	if config.State != nil {
		client.Store = newDBSyncStore(config.State)
	} else {
		slog.Warn("matrix: no sync state store, history will replay on restart")
	}

	rooms := make(map[string]bool, len(config.Rooms))
	for _, r := range config.Rooms {
		rooms[r] = true
	}

	return &Client{
		client: client,
		config: config,
		rooms:  rooms,
		stopCh: make(chan struct{}),
	}, nil
}

// Start joins the served rooms and syncs in the background until Stop.
func (c *Client) Start(ctx context.Context, handler MessageHandler) error {
	c.handler = handler

	syncer, ok := c.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return errors.New("matrix: unexpected syncer type")
	}
	syncer.OnEventType(event.EventMessage, c.handleEvent)

	for _, roomID := range c.config.Rooms {
		if err := c.joinRoom(ctx, id.RoomID(roomID)); err != nil {
			return fmt.Errorf("failed to join room %s: %w", roomID, err)
		}
	}

	go c.syncLoop()
	return nil
}

// syncLoop restarts the sync after homeserver errors, backing off up to five
// minutes, until Stop is called.
func (c *Client) syncLoop() {
	const (
		backoffMin = 2 * time.Second
		backoffMax = 5 * time.Minute
	)
	backoff := backoffMin
	for {
		started := time.Now()
		err := c.client.Sync()
		if err == nil {
			return
		}
		select {
		case <-c.stopCh:
			return
		default:
		}

		// A sync that ran for a while was healthy; start over from the minimum.
		if time.Since(started) > backoffMax {
			backoff = backoffMin
		}
		slog.Error("matrix sync stopped, reconnecting", "err", err, "backoff", backoff)
		select {
		case <-c.stopCh:
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, backoffMax)
	}
}

// Stop stops syncing. It is safe to call more than once.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.client.StopSync()
	})
}

// Reply answers eventID in roomID with an HTML body and its plain text
// fallback.
func (c *Client) Reply(ctx context.Context, roomID, eventID, html, plain string) error {
	content := event.MessageEventContent{
		MsgType:       event.MsgText,
		Body:          plain,
		Format:        event.FormatHTML,
		FormattedBody: html,
		RelatesTo: &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: id.EventID(eventID)},
		},
	}
	if _, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

// SendNotice posts a notice, which clients render less prominently.
func (c *Client) SendNotice(ctx context.Context, roomID, text string) error {
	content := event.MessageEventContent{MsgType: event.MsgNotice, Body: text}
	if _, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content); err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}
	return nil
}

func (c *Client) handleEvent(ctx context.Context, evt *event.Event) {
	msg, ok := messageFrom(id.UserID(c.config.UserID), c.rooms, evt)
	if !ok || c.handler == nil {
		return
	}
	c.handler(ctx, msg)
}

// messageFrom converts evt into a Message when it is a text message from
// someone else in a served room.
func messageFrom(self id.UserID, rooms map[string]bool, evt *event.Event) (Message, bool) {
	if evt == nil || evt.Sender == self {
		return Message{}, false
	}
	if !rooms[evt.RoomID.String()] {
		return Message{}, false
	}
	content := evt.Content.AsMessage()
	if content == nil || content.MsgType != event.MsgText {
		return Message{}, false
	}
	return Message{
		RoomID:  evt.RoomID.String(),
		EventID: evt.ID.String(),
		Sender:  evt.Sender.String(),
		Body:    content.Body,
	}, true
}

func (c *Client) joinRoom(ctx context.Context, roomID id.RoomID) error {
	_, err := c.client.JoinRoomByID(ctx, roomID)
	if err != nil {
		// Homeservers answer M_FORBIDDEN to members re-joining a room.
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("matrix: join forbidden, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}
