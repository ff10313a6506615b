package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/olakayCoder1/roomie/realtime"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsReadLimit  = 1 << 16
	wsSendBuffer = 32
)

// ClientFrame is what a websocket client sends.
type ClientFrame struct {
	Type       string    `json:"type"` // "message" | "typing" | "read"
	Content    string    `json:"content,omitempty"`
	ReceiverID uuid.UUID `json:"receiver_id,omitempty"`
	// ConversationID is only used on the inbox socket.
	ConversationID uuid.UUID `json:"conversation_id,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	userID uuid.UUID
	conn   *websocket.Conn
	sub    *realtime.Subscription
	// conversation is set when the socket is bound to one conversation.
	conversation *Conversation
	// direct carries replies meant for this socket only.
	direct chan realtime.Event
}

func newUpgrader(allowed []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originAllowed(allowed),
	}
}

// GET /ws/conversations/{id}: participants only.
func wsConversationHandler(a *App, upgrader *websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerID(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		convID, err := pathUUID(r, "id")
		if err != nil {
			writeError(w, err)
			return
		}
		conv, err := a.conversationFor(r.Context(), caller, convID)
		if err != nil {
			writeError(w, err)
			return
		}
		a.serveClient(w, r, upgrader, caller, conv, realtime.ConversationTopic(conv.ID.String()))
	}
}

// GET /ws/inbox: every event addressed to the caller.
func wsInboxHandler(a *App, upgrader *websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerID(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		a.serveClient(w, r, upgrader, caller, nil, realtime.UserTopic(caller.String()))
	}
}

func (a *App) serveClient(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader, caller uuid.UUID, conv *Conversation, topic string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "user_id", caller, "error", err)
		return
	}

	c := &Client{
		userID:       caller,
		conn:         conn,
		sub:          a.hub.Subscribe(wsSendBuffer, topic),
		conversation: conv,
		direct:       make(chan realtime.Event, 4),
	}
	wsClientsActive.Inc()
	defer wsClientsActive.Dec()

	// Announce connection to this client
	c.direct <- realtime.Event{Type: "info", Data: "connected"}

	// The request context ends when the handler returns, so socket work
	// runs on a detached context.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	go a.clientWriter(ctx, c)
	a.clientReader(ctx, c)
}

func (c *Client) reply(evt realtime.Event) {
	select {
	case c.direct <- evt:
	default:
	}
}

func (a *App) clientReader(ctx context.Context, c *Client) {
	defer func() {
		c.sub.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket closed", "user_id", c.userID, "error", err)
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.reply(realtime.Event{Type: "error", Data: "invalid message format"})
			continue
		}
		a.handleFrame(ctx, c, frame)
	}
}

// handleFrame dispatches one inbound frame through the core operations.
func (a *App) handleFrame(ctx context.Context, c *Client, frame ClientFrame) {
	// Each frame is its own unit of work; the upgrade request's loader would
	// otherwise cache projections for the life of the socket.
	ctx = WithDataLoaders(ctx, NewDataLoaders(a.store))

	conv, err := a.frameConversation(ctx, c, frame)
	if err != nil {
		c.reply(errorEvent(err))
		return
	}

	switch frame.Type {
	case "message":
		var receiver uuid.UUID
		switch {
		case conv != nil:
			receiver = conv.Other(c.userID)
		case frame.ReceiverID != uuid.Nil:
			receiver = frame.ReceiverID
		default:
			c.reply(errorEvent(validationError("receiver_id is required")))
			return
		}
		if _, err := a.SendMessage(ctx, c.userID, receiver, frame.Content); err != nil {
			c.reply(errorEvent(err))
		}

	case "typing":
		if conv == nil {
			c.reply(errorEvent(validationError("conversation_id is required")))
			return
		}
		a.publish(ctx, realtime.Event{Type: "typing", From: c.userID.String()},
			realtime.ConversationTopic(conv.ID.String()),
			realtime.UserTopic(conv.Other(c.userID).String()),
		)

	case "read":
		if conv == nil {
			c.reply(errorEvent(validationError("conversation_id is required")))
			return
		}
		if _, err := a.MarkRead(ctx, c.userID, conv.ID); err != nil {
			c.reply(errorEvent(err))
		}

	default:
		c.reply(errorEvent(validationError("unknown message type")))
	}
}

// frameConversation picks the socket's bound conversation, or the one the
// frame names on the inbox socket.
func (a *App) frameConversation(ctx context.Context, c *Client, frame ClientFrame) (*Conversation, error) {
	if c.conversation != nil {
		return c.conversation, nil
	}
	if frame.ConversationID == uuid.Nil {
		return nil, nil
	}
	return a.conversationFor(ctx, c.userID, frame.ConversationID)
}

func errorEvent(err error) realtime.Event {
	appErr := asAppError(err)
	msg := appErr.Message
	if appErr.Kind == KindBackend {
		msg = "internal error"
	}
	return realtime.Event{Type: "error", Data: map[string]string{"error": string(appErr.Kind), "message": msg}}
}

func (a *App) clientWriter(ctx context.Context, c *Client) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(evt realtime.Event) bool {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return c.conn.WriteJSON(evt) == nil
	}

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-c.direct:
			if !write(evt) {
				return
			}
		case evt, ok := <-c.sub.Events():
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
				return
			}
			if !write(evt) {
				return
			}
		case <-ticker.C:
			// ping to keep the connection alive
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
