package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// pgStore implements Store on PostgreSQL.
type pgStore struct {
	db *sql.DB
}

var _ Store = (*pgStore)(nil)

func newPGStore(db *sql.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *pgStore) Close() error { return s.db.Close() }

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// --- identity ---

func (s *pgStore) CreateAccount(ctx context.Context, email, passwordHash string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO accounts (email, password_hash) VALUES ($1, $2) RETURNING id`,
		email, passwordHash,
	).Scan(&id)
	if isUniqueViolation(err) {
		return uuid.Nil, ErrEmailTaken
	}
	return id, err
}

func (s *pgStore) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	return err
}

func (s *pgStore) AccountByEmail(ctx context.Context, email string) (*Account, error) {
	var a Account
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM accounts WHERE LOWER(email) = LOWER($1)`,
		email,
	).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// --- profiles ---

// userSelect yields every users column plus the preference tags as JSON.
const userSelect = `
	SELECT u.id, u.email, u.full_name, u.age, u.bio, u.location,
	       u.budget_low, u.budget_high, u.profile_url, u.avatar_path,
	       u.department, u.level, u.created_at, u.updated_at,
	       COALESCE((
	           SELECT json_agg(json_build_object(
	                      'preference_type', p.preference_type,
	                      'preference_value', p.preference_value) ORDER BY p.id)
	           FROM roommate_preferences p
	           WHERE p.user_id = u.id
	       ), '[]'::json) AS preferences
	FROM users u`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var prefs []byte
	err := row.Scan(
		&u.ID, &u.Email, &u.FullName, &u.Age, &u.Bio, &u.Location,
		&u.BudgetLow, &u.BudgetHigh, &u.ProfileURL, &u.AvatarPath,
		&u.Department, &u.Level, &u.CreatedAt, &u.UpdatedAt,
		&prefs,
	)
	if err != nil {
		return nil, err
	}
	u.Preferences = []Preference{}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &u.Preferences); err != nil {
			return nil, fmt.Errorf("decode preferences: %w", err)
		}
	}
	return &u, nil
}

func (s *pgStore) queryUsers(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *pgStore) CreateUser(ctx context.Context, u *User) error {
	return s.db.QueryRowContext(ctx,
		`INSERT INTO users (id, email, full_name) VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		u.ID, u.Email, u.FullName,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (s *pgStore) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, userSelect+` WHERE u.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

func (s *pgStore) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (s *pgStore) UsersByIDs(ctx context.Context, ids []uuid.UUID) ([]UserProjection, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, full_name, profile_url, location FROM users WHERE id = ANY($1::uuid[])`,
		pq.Array(idStrings(ids)),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserProjection
	for rows.Next() {
		var p UserProjection
		if err := rows.Scan(&p.ID, &p.FullName, &p.ProfileURL, &p.Location); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *pgStore) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) error {
	sets := []string{}
	args := []any{}
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.FullName != nil {
		add("full_name", *upd.FullName)
	}
	if upd.Age != nil {
		add("age", *upd.Age)
	}
	if upd.Location != nil {
		add("location", *upd.Location)
	}
	if upd.Bio != nil {
		add("bio", *upd.Bio)
	}
	if upd.BudgetLow != nil {
		add("budget_low", *upd.BudgetLow)
	}
	if upd.BudgetHigh != nil {
		add("budget_high", *upd.BudgetHigh)
	}
	if upd.Department != nil {
		add("department", *upd.Department)
	}
	if upd.Level != nil {
		add("level", *upd.Level)
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplacePreferences swaps the whole tag set in one transaction.
func (s *pgStore) ReplacePreferences(ctx context.Context, id uuid.UUID, prefs []Preference) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM roommate_preferences WHERE user_id = $1`, id); err != nil {
			return err
		}
		if len(prefs) > 0 {
			stmt, err := tx.PrepareContext(ctx,
				`INSERT INTO roommate_preferences (user_id, preference_type, preference_value) VALUES ($1, $2, $3)`)
			if err != nil {
				return err
			}
			defer stmt.Close()
			for _, p := range prefs {
				if _, err := stmt.ExecContext(ctx, id, p.Type, p.Value); err != nil {
					return err
				}
			}
		}
		_, err := tx.ExecContext(ctx, `UPDATE users SET updated_at = NOW() WHERE id = $1`, id)
		return err
	})
}

func (s *pgStore) SetAvatar(ctx context.Context, id uuid.UUID, url, path *string) (*string, error) {
	var previous *string
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT avatar_path FROM users WHERE id = $1 FOR UPDATE`, id,
		).Scan(&previous)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET profile_url = $2, avatar_path = $3, updated_at = NOW() WHERE id = $1`,
			id, url, path,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}

func (s *pgStore) ListCandidates(ctx context.Context, exclude uuid.UUID, limit int) ([]User, error) {
	return s.queryUsers(ctx,
		userSelect+` WHERE u.id <> $1 ORDER BY u.created_at DESC, u.id LIMIT $2`,
		exclude, limit,
	)
}

// --- interests ---

// ToggleInterest removes the edge if present, otherwise inserts it. The
// delete-first order makes the check and the write a single step.
func (s *pgStore) ToggleInterest(ctx context.Context, actor, target uuid.UUID) (bool, error) {
	var added bool
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM user_interests WHERE user_id = $1 AND target_user_id = $2`, actor, target)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added = false
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_interests (user_id, target_user_id) VALUES ($1, $2)
			 ON CONFLICT (user_id, target_user_id) DO NOTHING`, actor, target)
		added = true
		return err
	})
	return added, err
}

func (s *pgStore) HasInterest(ctx context.Context, actor, target uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_interests WHERE user_id = $1 AND target_user_id = $2)`,
		actor, target,
	).Scan(&exists)
	return exists, err
}

func (s *pgStore) InterestTargets(ctx context.Context, actor uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_user_id FROM user_interests WHERE user_id = $1`, actor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *pgStore) InterestedUsers(ctx context.Context, actor uuid.UUID) ([]User, error) {
	return s.queryUsers(ctx, userSelect+`
		JOIN user_interests i ON i.target_user_id = u.id
		WHERE i.user_id = $1
		ORDER BY i.created_at DESC`, actor)
}

func (s *pgStore) UsersInterestedIn(ctx context.Context, target uuid.UUID) ([]User, error) {
	return s.queryUsers(ctx, userSelect+`
		JOIN user_interests i ON i.user_id = u.id
		WHERE i.target_user_id = $1
		ORDER BY i.created_at DESC`, target)
}

// --- conversations ---

func (s *pgStore) GetOrCreateConversation(ctx context.Context, a, b uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, `SELECT get_or_create_conversation($1, $2)`, a, b).Scan(&id)
	return id, err
}

const conversationColumns = `id, user1_id, user2_id, created_at, updated_at`

func scanConversation(row rowScanner) (*Conversation, error) {
	var c Conversation
	if err := row.Scan(&c.ID, &c.User1ID, &c.User2ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindConversation returns (nil, nil) when the pair has no conversation yet.
func (s *pgStore) FindConversation(ctx context.Context, a, b uuid.UUID) (*Conversation, error) {
	lo, hi := orderedPair(a, b)
	c, err := scanConversation(s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE user1_id = $1 AND user2_id = $2`, lo, hi))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *pgStore) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	c, err := scanConversation(s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ListConversationSummaries returns the user's conversations, most recently
// active first, each with its latest message and unread count. OtherUser is
// left for the caller to resolve in a batch.
func (s *pgStore) ListConversationSummaries(ctx context.Context, userID uuid.UUID) ([]ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.user1_id, c.user2_id, c.created_at, c.updated_at,
		       lm.id, lm.sender_id, lm.receiver_id, lm.content, lm.created_at, lm.is_read,
		       COALESCE(uc.unread, 0)
		FROM conversations c
		LEFT JOIN LATERAL (
		    SELECT m.id, m.sender_id, m.receiver_id, m.content, m.created_at, m.is_read
		    FROM messages m
		    WHERE m.conversation_id = c.id
		    ORDER BY m.created_at DESC, m.id DESC
		    LIMIT 1
		) lm ON TRUE
		LEFT JOIN LATERAL (
		    SELECT COUNT(*) AS unread
		    FROM messages m
		    WHERE m.conversation_id = c.id AND m.receiver_id = $1 AND m.is_read = FALSE
		) uc ON TRUE
		WHERE c.user1_id = $1 OR c.user2_id = $1
		ORDER BY c.updated_at DESC, c.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ConversationSummary{}
	for rows.Next() {
		var cs ConversationSummary
		var (
			msgID, senderID, receiverID uuid.NullUUID
			content                     sql.NullString
			createdAt                   sql.NullTime
			isRead                      sql.NullBool
		)
		if err := rows.Scan(
			&cs.ID, &cs.User1ID, &cs.User2ID, &cs.CreatedAt, &cs.UpdatedAt,
			&msgID, &senderID, &receiverID, &content, &createdAt, &isRead,
			&cs.UnreadCount,
		); err != nil {
			return nil, err
		}
		if msgID.Valid {
			cs.LastMessage = &Message{
				ID:             msgID.UUID,
				ConversationID: cs.ID,
				SenderID:       senderID.UUID,
				ReceiverID:     receiverID.UUID,
				Content:        content.String,
				CreatedAt:      createdAt.Time,
				IsRead:         isRead.Bool,
			}
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// InsertMessage only writes when sender and receiver are exactly the
// conversation's pair.
func (s *pgStore) InsertMessage(ctx context.Context, m *Message) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, receiver_id, content)
		SELECT c.id, $2, $3, $4
		FROM conversations c
		WHERE c.id = $1
		  AND ((c.user1_id = $2 AND c.user2_id = $3) OR (c.user1_id = $3 AND c.user2_id = $2))
		RETURNING id, created_at, is_read`,
		m.ConversationID, m.SenderID, m.ReceiverID, m.Content,
	).Scan(&m.ID, &m.CreatedAt, &m.IsRead)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("conversation %s does not join %s and %s", m.ConversationID, m.SenderID, m.ReceiverID)
	}
	return err
}

func (s *pgStore) TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = GREATEST(updated_at, $2) WHERE id = $1`, id, at)
	return err
}

func (s *pgStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, receiver_id, content, created_at, is_read
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Content, &m.CreatedAt, &m.IsRead); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *pgStore) MarkRead(ctx context.Context, conversationID, receiverID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE conversation_id = $1 AND receiver_id = $2 AND is_read = FALSE`,
		conversationID, receiverID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
