package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by Store lookups that match no row.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken is returned by CreateAccount for a duplicate email.
	ErrEmailTaken = errors.New("email already registered")
)

// Store is the persistence boundary. Implementations own atomicity: in
// particular GetOrCreateConversation must never create two rows for one
// unordered pair, whatever the interleaving of callers.
type Store interface {
	// Identity
	CreateAccount(ctx context.Context, email, passwordHash string) (uuid.UUID, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error
	AccountByEmail(ctx context.Context, email string) (*Account, error)

	// Profiles and preferences
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	UserExists(ctx context.Context, id uuid.UUID) (bool, error)
	UsersByIDs(ctx context.Context, ids []uuid.UUID) ([]UserProjection, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) error
	ReplacePreferences(ctx context.Context, id uuid.UUID, prefs []Preference) error
	SetAvatar(ctx context.Context, id uuid.UUID, url, path *string) (previousPath *string, err error)
	ListCandidates(ctx context.Context, exclude uuid.UUID, limit int) ([]User, error)

	// Interest ledger
	ToggleInterest(ctx context.Context, actor, target uuid.UUID) (added bool, err error)
	HasInterest(ctx context.Context, actor, target uuid.UUID) (bool, error)
	InterestTargets(ctx context.Context, actor uuid.UUID) ([]uuid.UUID, error)
	InterestedUsers(ctx context.Context, actor uuid.UUID) ([]User, error)
	UsersInterestedIn(ctx context.Context, target uuid.UUID) ([]User, error)

	// Conversations and messages
	GetOrCreateConversation(ctx context.Context, a, b uuid.UUID) (uuid.UUID, error)
	FindConversation(ctx context.Context, a, b uuid.UUID) (*Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error)
	ListConversationSummaries(ctx context.Context, userID uuid.UUID) ([]ConversationSummary, error)
	InsertMessage(ctx context.Context, m *Message) error
	TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]Message, error)
	MarkRead(ctx context.Context, conversationID, receiverID uuid.UUID) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
