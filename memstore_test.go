package main

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store for operation and handler tests.
type memStore struct {
	mu            sync.Mutex
	accounts      map[uuid.UUID]*Account
	users         map[uuid.UUID]*User
	interests     map[[2]uuid.UUID]time.Time
	conversations map[uuid.UUID]*Conversation
	byPair        map[[2]uuid.UUID]uuid.UUID
	messages      []*Message
	clock         time.Time

	// Failure injection
	failCreateUser  error
	failTouch       error
	failList        error
	usersByIDsCalls atomic.Int32
	createConvCalls atomic.Int32
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		accounts:      make(map[uuid.UUID]*Account),
		users:         make(map[uuid.UUID]*User),
		interests:     make(map[[2]uuid.UUID]time.Time),
		conversations: make(map[uuid.UUID]*Conversation),
		byPair:        make(map[[2]uuid.UUID]uuid.UUID),
		clock:         time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// tick returns a strictly increasing timestamp.
func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) Ping(context.Context) error { return nil }
func (s *memStore) Close() error               { return nil }

// addUser inserts an account plus profile directly.
func (s *memStore) addUser(name string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	email := strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@test.local"
	s.accounts[id] = &Account{ID: id, Email: email}
	u := &User{ID: id, Email: email, FullName: name, Preferences: []Preference{}, CreatedAt: s.tick()}
	u.UpdatedAt = u.CreatedAt
	s.users[id] = u
	return u
}

func copyUser(u *User) User {
	c := *u
	c.Preferences = append([]Preference{}, u.Preferences...)
	return c
}

func (s *memStore) CreateAccount(_ context.Context, email, hash string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			return uuid.Nil, ErrEmailTaken
		}
	}
	id := uuid.New()
	s.accounts[id] = &Account{ID: id, Email: email, PasswordHash: hash, CreatedAt: s.tick()}
	return id, nil
}

func (s *memStore) DeleteAccount(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
	delete(s.users, id)
	return nil
}

func (s *memStore) AccountByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			c := *a
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) CreateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreateUser != nil {
		return s.failCreateUser
	}
	u.CreatedAt = s.tick()
	u.UpdatedAt = u.CreatedAt
	c := copyUser(u)
	s.users[u.ID] = &c
	return nil
}

func (s *memStore) GetUser(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := copyUser(u)
	return &c, nil
}

func (s *memStore) UserExists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[id]
	return ok, nil
}

func (s *memStore) UsersByIDs(_ context.Context, ids []uuid.UUID) ([]UserProjection, error) {
	s.usersByIDsCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []UserProjection
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, UserProjection{ID: u.ID, FullName: u.FullName, ProfileURL: u.ProfileURL, Location: u.Location})
		}
	}
	return out, nil
}

func (s *memStore) UpdateProfile(_ context.Context, id uuid.UUID, upd ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	if upd.FullName != nil {
		u.FullName = *upd.FullName
	}
	if upd.Age != nil {
		u.Age = upd.Age
	}
	if upd.Location != nil {
		u.Location = upd.Location
	}
	if upd.Bio != nil {
		u.Bio = upd.Bio
	}
	if upd.BudgetLow != nil {
		u.BudgetLow = upd.BudgetLow
	}
	if upd.BudgetHigh != nil {
		u.BudgetHigh = upd.BudgetHigh
	}
	if upd.Department != nil {
		u.Department = upd.Department
	}
	if upd.Level != nil {
		u.Level = upd.Level
	}
	u.UpdatedAt = s.tick()
	return nil
}

func (s *memStore) ReplacePreferences(_ context.Context, id uuid.UUID, prefs []Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Preferences = append([]Preference{}, prefs...)
	return nil
}

func (s *memStore) SetAvatar(_ context.Context, id uuid.UUID, url, path *string) (*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	prev := u.AvatarPath
	u.ProfileURL, u.AvatarPath = url, path
	return prev, nil
}

func (s *memStore) ListCandidates(_ context.Context, exclude uuid.UUID, limit int) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList != nil {
		return nil, s.failList
	}
	var out []User
	for _, u := range s.users {
		if u.ID != exclude {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ToggleInterest(_ context.Context, actor, target uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]uuid.UUID{actor, target}
	if _, ok := s.interests[key]; ok {
		delete(s.interests, key)
		return false, nil
	}
	s.interests[key] = s.tick()
	return true, nil
}

func (s *memStore) HasInterest(_ context.Context, actor, target uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.interests[[2]uuid.UUID{actor, target}]
	return ok, nil
}

func (s *memStore) InterestTargets(_ context.Context, actor uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uuid.UUID
	for k := range s.interests {
		if k[0] == actor {
			out = append(out, k[1])
		}
	}
	return out, nil
}

func (s *memStore) interestUsers(match func(k [2]uuid.UUID) (uuid.UUID, bool)) []User {
	type row struct {
		u  User
		at time.Time
	}
	var rows []row
	for k, at := range s.interests {
		if id, ok := match(k); ok {
			if u, ok := s.users[id]; ok {
				rows = append(rows, row{copyUser(u), at})
			}
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].at.After(rows[j].at) })
	out := []User{}
	for _, r := range rows {
		out = append(out, r.u)
	}
	return out
}

func (s *memStore) InterestedUsers(_ context.Context, actor uuid.UUID) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interestUsers(func(k [2]uuid.UUID) (uuid.UUID, bool) { return k[1], k[0] == actor }), nil
}

func (s *memStore) UsersInterestedIn(_ context.Context, target uuid.UUID) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interestUsers(func(k [2]uuid.UUID) (uuid.UUID, bool) { return k[0], k[1] == target }), nil
}

func (s *memStore) GetOrCreateConversation(_ context.Context, a, b uuid.UUID) (uuid.UUID, error) {
	if a == b {
		return uuid.Nil, errors.New("conversation needs two distinct users")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	lo, hi := orderedPair(a, b)
	key := [2]uuid.UUID{lo, hi}
	if id, ok := s.byPair[key]; ok {
		return id, nil
	}
	s.createConvCalls.Add(1)
	now := s.tick()
	c := &Conversation{ID: uuid.New(), User1ID: lo, User2ID: hi, CreatedAt: now, UpdatedAt: now}
	s.conversations[c.ID] = c
	s.byPair[key] = c.ID
	return c.ID, nil
}

func (s *memStore) FindConversation(_ context.Context, a, b uuid.UUID) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lo, hi := orderedPair(a, b)
	id, ok := s.byPair[[2]uuid.UUID{lo, hi}]
	if !ok {
		return nil, nil
	}
	c := *s.conversations[id]
	return &c, nil
}

func (s *memStore) GetConversation(_ context.Context, id uuid.UUID) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cc := *c
	return &cc, nil
}

func (s *memStore) ListConversationSummaries(_ context.Context, userID uuid.UUID) ([]ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []ConversationSummary{}
	for _, c := range s.conversations {
		if !c.HasParticipant(userID) {
			continue
		}
		cs := ConversationSummary{Conversation: *c}
		for _, m := range s.messages {
			if m.ConversationID != c.ID {
				continue
			}
			if cs.LastMessage == nil || !m.CreatedAt.Before(cs.LastMessage.CreatedAt) {
				mc := *m
				cs.LastMessage = &mc
			}
			if m.ReceiverID == userID && !m.IsRead {
				cs.UnreadCount++
			}
		}
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *memStore) InsertMessage(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[m.ConversationID]
	if !ok || !c.HasParticipant(m.SenderID) || c.Other(m.SenderID) != m.ReceiverID {
		return errors.New("participants do not match conversation")
	}
	m.ID = uuid.New()
	m.CreatedAt = s.tick()
	mc := *m
	s.messages = append(s.messages, &mc)
	return nil
}

func (s *memStore) TouchConversation(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTouch != nil {
		return s.failTouch
	}
	if c, ok := s.conversations[id]; ok && at.After(c.UpdatedAt) {
		c.UpdatedAt = at
	}
	return nil
}

func (s *memStore) ListMessages(_ context.Context, conversationID uuid.UUID) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Message{}
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) MarkRead(_ context.Context, conversationID, receiverID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.messages {
		if m.ConversationID == conversationID && m.ReceiverID == receiverID && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}
