package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// openDB connects to Postgres and verifies the connection.
func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cannot reach the database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

type migration struct {
	name string
	sql  string
}

// migrations run in order; each one is applied at most once.
var migrations = []migration{
	{
		name: "001_init",
		sql: `
CREATE TABLE IF NOT EXISTS accounts (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	email         TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_key ON accounts (LOWER(email));

CREATE TABLE IF NOT EXISTS users (
	id          UUID PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
	email       TEXT NOT NULL,
	full_name   TEXT NOT NULL DEFAULT '',
	age         INT,
	bio         TEXT,
	location    TEXT,
	budget_low  INT,
	budget_high INT,
	profile_url TEXT,
	avatar_path TEXT,
	department  TEXT,
	level       TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS users_created_at_idx ON users (created_at DESC);

CREATE TABLE IF NOT EXISTS roommate_preferences (
	id               BIGSERIAL PRIMARY KEY,
	user_id          UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	preference_type  TEXT NOT NULL,
	preference_value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS roommate_preferences_user_idx ON roommate_preferences (user_id);

CREATE TABLE IF NOT EXISTS user_interests (
	id             BIGSERIAL PRIMARY KEY,
	user_id        UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	target_user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT user_interests_pair_key UNIQUE (user_id, target_user_id),
	CONSTRAINT user_interests_not_self CHECK (user_id <> target_user_id)
);
CREATE INDEX IF NOT EXISTS user_interests_target_idx ON user_interests (target_user_id);

CREATE TABLE IF NOT EXISTS conversations (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user1_id   UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	user2_id   UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT conversations_ordered_pair CHECK (user1_id < user2_id),
	CONSTRAINT conversations_pair_key UNIQUE (user1_id, user2_id)
);
CREATE INDEX IF NOT EXISTS conversations_user2_idx ON conversations (user2_id);

CREATE TABLE IF NOT EXISTS messages (
	id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	sender_id       UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	receiver_id     UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	content         TEXT NOT NULL CHECK (length(btrim(content)) > 0),
	created_at      TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
	is_read         BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS messages_conversation_created_idx ON messages (conversation_id, created_at, id);
CREATE INDEX IF NOT EXISTS messages_unread_idx ON messages (conversation_id, receiver_id) WHERE is_read = FALSE;
`,
	},
	{
		// Serializes conversation creation per unordered pair. Concurrent
		// callers either insert the row or read the one that won.
		name: "002_get_or_create_conversation",
		sql: `
CREATE OR REPLACE FUNCTION get_or_create_conversation(user_a UUID, user_b UUID)
RETURNS UUID
LANGUAGE plpgsql
AS $$
DECLARE
	lo      UUID := LEAST(user_a, user_b);
	hi      UUID := GREATEST(user_a, user_b);
	conv_id UUID;
BEGIN
	IF user_a = user_b THEN
		RAISE EXCEPTION 'conversation needs two distinct users' USING ERRCODE = '22023';
	END IF;

	INSERT INTO conversations (user1_id, user2_id)
	VALUES (lo, hi)
	ON CONFLICT (user1_id, user2_id) DO NOTHING
	RETURNING id INTO conv_id;

	IF conv_id IS NULL THEN
		SELECT id INTO conv_id
		FROM conversations
		WHERE user1_id = lo AND user2_id = hi;
	END IF;

	RETURN conv_id;
END;
$$;
`,
	},
}

// migrate applies pending migrations, each in its own transaction.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var exists bool
		if err := db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, m.name,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", m.name, err)
		}
		if exists {
			continue
		}

		err := withTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.name)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		slog.Info("applied migration", "name", m.name)
	}
	return nil
}
