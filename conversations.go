package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/olakayCoder1/roomie/realtime"
)

const maxMessageLength = 4000

// ResolveConversation returns the one conversation for the unordered pair
// {a, b}, creating it on first contact.
func (a *App) ResolveConversation(ctx context.Context, userA, userB uuid.UUID) (uuid.UUID, error) {
	if userA == userB {
		return uuid.Nil, validationError("cannot start a conversation with yourself")
	}
	id, err := a.store.GetOrCreateConversation(ctx, userA, userB)
	if err != nil {
		return uuid.Nil, backendError(err, "could not resolve conversation")
	}
	return id, nil
}

// ConversationWith returns the existing conversation with other, or nil.
// It never creates one.
func (a *App) ConversationWith(ctx context.Context, caller, other uuid.UUID) (*uuid.UUID, error) {
	if caller == other {
		return nil, validationError("cannot look up a conversation with yourself")
	}
	c, err := a.store.FindConversation(ctx, caller, other)
	if err != nil {
		return nil, backendError(err, "could not look up conversation")
	}
	if c == nil {
		return nil, nil
	}
	return &c.ID, nil
}

func (a *App) requireUser(ctx context.Context, id uuid.UUID, what string) error {
	ok, err := a.store.UserExists(ctx, id)
	if err != nil {
		return backendError(err, "could not look up user")
	}
	if !ok {
		return notFound(what + " not found")
	}
	return nil
}

func normalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", validationError("message content is empty")
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return "", validationError("message content is too long")
	}
	return content, nil
}

// SendMessage persists a message from sender to receiver and notifies
// both sides.
func (a *App) SendMessage(ctx context.Context, sender, receiver uuid.UUID, content string) (*Message, error) {
	content, err := normalizeContent(content)
	if err != nil {
		return nil, err
	}
	if sender == receiver {
		return nil, validationError("cannot message yourself")
	}
	if err := a.requireUser(ctx, receiver, "receiver"); err != nil {
		return nil, err
	}

	convID, err := a.ResolveConversation(ctx, sender, receiver)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		ConversationID: convID,
		SenderID:       sender,
		ReceiverID:     receiver,
		Content:        content,
	}
	if err := a.store.InsertMessage(ctx, msg); err != nil {
		return nil, backendError(err, "could not save message")
	}
	messagesSentTotal.Inc()

	// The message is already stored; a stale conversation timestamp only
	// affects list ordering.
	if err := a.store.TouchConversation(ctx, convID, msg.CreatedAt); err != nil {
		slog.Warn("could not bump conversation timestamp", "conversation_id", convID, "error", err)
	}

	if senders, err := loadProjections(ctx, a.store, []uuid.UUID{sender}); err == nil {
		msg.Sender = senders[sender]
	}

	a.publish(ctx, realtime.Event{Type: "message", From: sender.String(), Data: msg},
		realtime.ConversationTopic(convID.String()),
		realtime.UserTopic(sender.String()),
		realtime.UserTopic(receiver.String()),
	)
	return msg, nil
}

// StartConversation resolves the conversation with receiver and optionally
// sends a first message.
func (a *App) StartConversation(ctx context.Context, caller, receiver uuid.UUID, initial string) (uuid.UUID, *Message, error) {
	if caller == receiver {
		return uuid.Nil, nil, validationError("cannot start a conversation with yourself")
	}
	if err := a.requireUser(ctx, receiver, "receiver"); err != nil {
		return uuid.Nil, nil, err
	}
	if strings.TrimSpace(initial) != "" {
		msg, err := a.SendMessage(ctx, caller, receiver, initial)
		if err != nil {
			return uuid.Nil, nil, err
		}
		return msg.ConversationID, msg, nil
	}
	id, err := a.ResolveConversation(ctx, caller, receiver)
	return id, nil, err
}

// ListConversations returns the caller's conversations, most recent first.
func (a *App) ListConversations(ctx context.Context, caller uuid.UUID) ([]ConversationSummary, error) {
	rows, err := a.store.ListConversationSummaries(ctx, caller)
	if err != nil {
		return nil, backendError(err, "could not list conversations")
	}

	others := make([]uuid.UUID, 0, len(rows))
	for i := range rows {
		others = append(others, rows[i].Other(caller))
	}
	projections, err := loadProjections(ctx, a.store, others)
	if err != nil {
		return nil, backendError(err, "could not load conversation participants")
	}
	for i := range rows {
		rows[i].OtherUser = projections[rows[i].Other(caller)]
	}
	return rows, nil
}

// conversationFor loads a conversation and checks caller takes part in it.
func (a *App) conversationFor(ctx context.Context, caller, conversationID uuid.UUID) (*Conversation, error) {
	c, err := a.store.GetConversation(ctx, conversationID)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound("conversation not found")
	}
	if err != nil {
		return nil, backendError(err, "could not load conversation")
	}
	if !c.HasParticipant(caller) {
		return nil, accessDenied("you are not part of this conversation")
	}
	return c, nil
}

// ListMessages returns the conversation's messages oldest first, each with
// its sender projection.
func (a *App) ListMessages(ctx context.Context, caller, conversationID uuid.UUID) ([]Message, error) {
	c, err := a.conversationFor(ctx, caller, conversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := a.store.ListMessages(ctx, c.ID)
	if err != nil {
		return nil, backendError(err, "could not list messages")
	}

	projections, err := loadProjections(ctx, a.store, []uuid.UUID{c.User1ID, c.User2ID})
	if err != nil {
		return nil, backendError(err, "could not load message senders")
	}
	for i := range msgs {
		msgs[i].Sender = projections[msgs[i].SenderID]
	}
	return msgs, nil
}

// MarkRead flips every unread message addressed to caller in the
// conversation and returns how many changed.
func (a *App) MarkRead(ctx context.Context, caller, conversationID uuid.UUID) (int64, error) {
	c, err := a.conversationFor(ctx, caller, conversationID)
	if err != nil {
		return 0, err
	}
	n, err := a.store.MarkRead(ctx, c.ID, caller)
	if err != nil {
		return 0, backendError(err, "could not mark messages read")
	}
	if n > 0 {
		a.publish(ctx, realtime.Event{
			Type: "read",
			From: caller.String(),
			Data: map[string]any{"conversation_id": c.ID, "reader_id": caller, "count": n},
		},
			realtime.ConversationTopic(c.ID.String()),
			realtime.UserTopic(c.Other(caller).String()),
		)
	}
	return n, nil
}

// --- handlers ---

type SendMessageRequest struct {
	ReceiverID uuid.UUID `json:"receiver_id" validate:"required"`
	Content    string    `json:"content"`
}

type StartConversationRequest struct {
	ReceiverID     uuid.UUID `json:"receiver_id" validate:"required"`
	InitialMessage string    `json:"initial_message"`
}

func sendMessageHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerID(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		var req SendMessageRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		msg, err := a.SendMessage(r.Context(), caller, req.ReceiverID, req.Content)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func startConversationHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerID(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		var req StartConversationRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		id, msg, err := a.StartConversation(r.Context(), caller, req.ReceiverID, req.InitialMessage)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"conversation_id": id, "message": msg})
	}
}

func conversationWithHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerID(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		other, err := pathUUID(r, "userID")
		if err != nil {
			writeError(w, err)
			return
		}
		id, err := a.ConversationWith(r.Context(), caller, other)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversation_id": id})
	}
}

func listConversationsHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerID(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		list, err := a.ListConversations(r.Context(), caller)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func listMessagesHandler(a *App) http.HandlerFunc {
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
		msgs, err := a.ListMessages(r.Context(), caller, convID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func markReadHandler(a *App) http.HandlerFunc {
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
		n, err := a.MarkRead(r.Context(), caller, convID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "marked": n})
	}
}
