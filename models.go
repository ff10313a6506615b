package main

import (
	"time"

	"github.com/google/uuid"
)

// Preference is one categorical roommate preference tag owned by a user.
// The type set is open-ended (lifestyle, habit, personality, other, ...).
type Preference struct {
	Type  string `json:"preference_type" validate:"required,max=32"`
	Value string `json:"preference_value" validate:"required,max=64"`
}

// User is the full profile row plus its preference tags.
type User struct {
	ID          uuid.UUID    `json:"id"`
	Email       string       `json:"-"`
	FullName    string       `json:"full_name"`
	Age         *int         `json:"age,omitempty"`
	Bio         *string      `json:"bio,omitempty"`
	Location    *string      `json:"location,omitempty"`
	BudgetLow   *int         `json:"budget_low,omitempty"`
	BudgetHigh  *int         `json:"budget_high,omitempty"`
	ProfileURL  *string      `json:"profile_url,omitempty"`
	AvatarPath  *string      `json:"-"`
	Department  *string      `json:"department,omitempty"`
	Level       *string      `json:"level,omitempty"`
	Preferences []Preference `json:"preferences"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// AccountView is the caller's own profile. Other users' emails are never
// serialized; only the owner sees theirs.
type AccountView struct {
	*User
	Email string `json:"email"`
}

func accountView(u *User) AccountView { return AccountView{User: u, Email: u.Email} }

// PreferenceValues flattens the tags into the list the feed shows.
func (u *User) PreferenceValues() []string {
	values := make([]string, 0, len(u.Preferences))
	for _, p := range u.Preferences {
		values = append(values, p.Value)
	}
	return values
}

// UserProjection is the public slice of a user attached to conversations and
// messages.
type UserProjection struct {
	ID         uuid.UUID `json:"id"`
	FullName   string    `json:"full_name"`
	ProfileURL *string   `json:"profile_url,omitempty"`
	Location   *string   `json:"location,omitempty"`
}

// ProfileUpdate carries the optional fields of a profile patch. Nil means
// "leave unchanged".
type ProfileUpdate struct {
	FullName   *string `json:"full_name" validate:"omitempty,min=1,max=120"`
	Age        *int    `json:"age" validate:"omitempty,gte=16,lte=120"`
	Location   *string `json:"location" validate:"omitempty,max=120"`
	Bio        *string `json:"bio" validate:"omitempty,max=2000"`
	BudgetLow  *int    `json:"budget_low" validate:"omitempty,gte=0"`
	BudgetHigh *int    `json:"budget_high" validate:"omitempty,gte=0"`
	Department *string `json:"department" validate:"omitempty,max=120"`
	Level      *string `json:"level" validate:"omitempty,max=60"`
}

// Empty reports whether the patch changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.FullName == nil && p.Age == nil && p.Location == nil && p.Bio == nil &&
		p.BudgetLow == nil && p.BudgetHigh == nil && p.Department == nil && p.Level == nil
}

// Account is the identity record: credentials only.
type Account struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Conversation is the single thread between an unordered pair of users,
// stored with User1ID < User2ID.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	User1ID   uuid.UUID `json:"user1_id"`
	User2ID   uuid.UUID `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasParticipant reports whether userID is one side of the conversation.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID uuid.UUID) uuid.UUID {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// Message belongs to exactly one conversation. Only IsRead ever changes,
// and only from false to true.
type Message struct {
	ID             uuid.UUID       `json:"id"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	SenderID       uuid.UUID       `json:"sender_id"`
	ReceiverID     uuid.UUID       `json:"receiver_id"`
	Content        string          `json:"content"`
	CreatedAt      time.Time       `json:"created_at"`
	IsRead         bool            `json:"is_read"`
	Sender         *UserProjection `json:"sender,omitempty"`
}

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	Conversation
	OtherUser   *UserProjection `json:"other_user,omitempty"`
	LastMessage *Message        `json:"last_message,omitempty"`
	UnreadCount int             `json:"unread_count"`
}

// orderedPair returns the pair as stored: smaller id first.
func orderedPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return a, b
			}
			return b, a
		}
	}
	return a, b
}
