package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

type seedConfig struct {
	Count        int
	Seed         int64
	Truncate     bool
	Password     string
	InterestRate float64 // chance that a user is interested in a given other user
	MessageRate  float64 // chance that a mutual pair has exchanged messages
}

var seedOpts seedConfig

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the database with deterministic demo users, interests and messages",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(v)
		if err != nil {
			return err
		}
		db, err := openDB(cmd.Context(), cfg.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := migrate(cmd.Context(), db); err != nil {
			return err
		}
		return runSeed(cmd.Context(), db, seedOpts)
	},
}

func init() {
	f := seedCmd.Flags()
	f.IntVar(&seedOpts.Count, "count", 50, "Number of users to create")
	f.Int64Var(&seedOpts.Seed, "seed", 42, "RNG seed (deterministic)")
	f.BoolVar(&seedOpts.Truncate, "truncate", false, "TRUNCATE roomie tables before running")
	f.StringVar(&seedOpts.Password, "password", "test1234", "Password assigned to all users")
	f.Float64Var(&seedOpts.InterestRate, "interest-rate", 0.15, "Chance of interest per ordered pair (0..1)")
	f.Float64Var(&seedOpts.MessageRate, "message-rate", 0.5, "Chance a mutual pair has a conversation (0..1)")
}

func (c seedConfig) validate() error {
	if c.Count < 2 {
		return errors.New("--count must be at least 2")
	}
	if c.InterestRate < 0 || c.InterestRate > 1 || c.MessageRate < 0 || c.MessageRate > 1 {
		return errors.New("rate flags must be in range 0..1")
	}
	if len(c.Password) < 6 {
		return errors.New("--password must be at least 6 characters")
	}
	return nil
}

// runSeed writes everything in one transaction so a failure leaves no
// partial data behind.
func runSeed(ctx context.Context, db *sql.DB, c seedConfig) error {
	if err := c.validate(); err != nil {
		return err
	}
	r := seedRand(c.Seed)

	pwHash, err := bcrypt.GenerateFromPassword([]byte(c.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("bcrypt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	return withTx(ctx, db, func(tx *sql.Tx) error {
		if c.Truncate {
			if err := truncateAll(ctx, tx); err != nil {
				return fmt.Errorf("truncate: %w", err)
			}
			slog.Info("truncated roomie tables")
		}

		ids, err := insertUsers(ctx, tx, r, c.Count, string(pwHash))
		if err != nil {
			return fmt.Errorf("insert users: %w", err)
		}
		slog.Info("inserted users", "count", len(ids))

		if err := insertPreferences(ctx, tx, r, ids); err != nil {
			return fmt.Errorf("insert preferences: %w", err)
		}

		mutual, err := insertInterests(ctx, tx, r, ids, c.InterestRate)
		if err != nil {
			return fmt.Errorf("insert interests: %w", err)
		}
		slog.Info("inserted interests", "mutual_pairs", len(mutual))

		n, err := insertConversations(ctx, tx, r, mutual, c.MessageRate)
		if err != nil {
			return fmt.Errorf("insert conversations: %w", err)
		}
		slog.Info("seed complete", "conversations", n)
		return nil
	})
}

// seedRand returns the seeder's deterministic source.
func seedRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0))
}

func truncateAll(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		TRUNCATE TABLE messages, conversations, user_interests,
		               roommate_preferences, users, accounts
		RESTART IDENTITY CASCADE`)
	return err
}

var testEmails = []string{"user1@test.local", "user2@test.local"}

func insertUsers(ctx context.Context, tx *sql.Tx, r *rand.Rand, n int, pwHash string) ([]uuid.UUID, error) {
	acctStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO accounts (email, password_hash) VALUES ($1, $2)
		ON CONFLICT ((LOWER(email))) DO UPDATE SET password_hash = EXCLUDED.password_hash
		RETURNING id`)
	if err != nil {
		return nil, err
	}
	defer acctStmt.Close()

	userStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO users (id, email, full_name, age, bio, location, budget_low, budget_high, department, level, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			age = EXCLUDED.age,
			bio = EXCLUDED.bio,
			location = EXCLUDED.location,
			budget_low = EXCLUDED.budget_low,
			budget_high = EXCLUDED.budget_high,
			department = EXCLUDED.department,
			level = EXCLUDED.level,
			updated_at = NOW()`)
	if err != nil {
		return nil, err
	}
	defer userStmt.Close()

	used := make(map[string]struct{}, n)
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		email := ""
		if i < len(testEmails) {
			email = testEmails[i]
		} else {
			email = uniqueEmail(r, used)
		}

		var id uuid.UUID
		if err := acctStmt.QueryRowContext(ctx, email, pwHash).Scan(&id); err != nil {
			return nil, fmt.Errorf("insert account %d (%s): %w", i, email, err)
		}

		low := 200 + 50*r.IntN(10)
		high := low + 100 + 50*r.IntN(10)
		createdAt := time.Now().Add(-time.Duration(r.IntN(30*24)) * time.Hour)
		if _, err := userStmt.ExecContext(ctx,
			id, email, displayName(r), 18+r.IntN(12), sampleBio(r),
			pick(r, seedLocations), low, high, pick(r, seedDepartments), pick(r, seedLevels), createdAt,
		); err != nil {
			return nil, fmt.Errorf("insert user %d (%s): %w", i, email, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func insertPreferences(ctx context.Context, tx *sql.Tx, r *rand.Rand, ids []uuid.UUID) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO roommate_preferences (user_id, preference_type, preference_value) VALUES ($1, $2, $3)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM roommate_preferences WHERE user_id = $1`, id); err != nil {
			return err
		}
		for _, prefType := range seedPreferenceTypes {
			if r.Float64() < 0.3 {
				continue
			}
			if _, err := stmt.ExecContext(ctx, id, prefType, pick(r, seedPreferences[prefType])); err != nil {
				return fmt.Errorf("insert preference for %s: %w", id, err)
			}
		}
	}
	return nil
}

type seedPair struct{ a, b uuid.UUID }

// insertInterests draws a random interest graph. The first two users are
// always mutually interested so there is a ready-made match to log in with.
func insertInterests(ctx context.Context, tx *sql.Tx, r *rand.Rand, ids []uuid.UUID, rate float64) ([]seedPair, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO user_interests (user_id, target_user_id, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, target_user_id) DO NOTHING`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	interested := make(map[seedPair]bool)
	add := func(a, b uuid.UUID) error {
		at := time.Now().Add(-time.Duration(r.IntN(7*24)) * time.Hour)
		if _, err := stmt.ExecContext(ctx, a, b, at); err != nil {
			return fmt.Errorf("interest %s -> %s: %w", a, b, err)
		}
		interested[seedPair{a, b}] = true
		return nil
	}

	if err := add(ids[0], ids[1]); err != nil {
		return nil, err
	}
	if err := add(ids[1], ids[0]); err != nil {
		return nil, err
	}
	for i, a := range ids {
		for j, b := range ids {
			if i == j || (i < 2 && j < 2) {
				continue
			}
			if r.Float64() < rate {
				if err := add(a, b); err != nil {
					return nil, err
				}
			}
		}
	}

	var mutual []seedPair
	for p := range interested {
		lo, hi := orderedPair(p.a, p.b)
		if p.a == lo && interested[seedPair{hi, lo}] {
			mutual = append(mutual, seedPair{lo, hi})
		}
	}
	// Map order is random; sort so the seed stays deterministic.
	sort.Slice(mutual, func(i, j int) bool {
		return mutual[i].a.String()+mutual[i].b.String() < mutual[j].a.String()+mutual[j].b.String()
	})
	return mutual, nil
}

func insertConversations(ctx context.Context, tx *sql.Tx, r *rand.Rand, pairs []seedPair, rate float64) (int, error) {
	msgStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, receiver_id, content, created_at, is_read)
		VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return 0, err
	}
	defer msgStmt.Close()

	created := 0
	for _, p := range pairs {
		if r.Float64() >= rate {
			continue
		}
		var convID uuid.UUID
		if err := tx.QueryRowContext(ctx, `SELECT get_or_create_conversation($1, $2)`, p.a, p.b).Scan(&convID); err != nil {
			return created, fmt.Errorf("conversation %s/%s: %w", p.a, p.b, err)
		}

		at := time.Now().Add(-time.Duration(24+r.IntN(72)) * time.Hour)
		count := 2 + r.IntN(6)
		for k := 0; k < count; k++ {
			sender, receiver := p.a, p.b
			if r.IntN(2) == 0 {
				sender, receiver = receiver, sender
			}
			at = at.Add(time.Duration(1+r.IntN(90)) * time.Minute)
			isRead := k < count-2 || r.IntN(2) == 0
			if _, err := msgStmt.ExecContext(ctx, convID, sender, receiver, pick(r, seedMessages), at, isRead); err != nil {
				return created, fmt.Errorf("message in %s: %w", convID, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = $2 WHERE id = $1`, convID, at); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func pick(r *rand.Rand, opts []string) string {
	return opts[r.IntN(len(opts))]
}

func uniqueEmail(r *rand.Rand, used map[string]struct{}) string {
	for {
		local := randomNameSlug(r)
		domain := []string{"example.com", "mail.test", "campus.local"}[r.IntN(3)]
		email := fmt.Sprintf("%s+%d@%s", local, r.IntN(1000000), domain)
		if _, ok := used[email]; !ok {
			used[email] = struct{}{}
			return email
		}
	}
}

var (
	seedFirstNames  = []string{"Ada", "Tunde", "Chioma", "Sam", "Mia", "Kemi", "Noah", "Olivia", "Leo", "Zainab", "Sara", "Emeka", "Ifeoma", "Luca", "Sofia"}
	seedLastNames   = []string{"Okafor", "Adeyemi", "Bello", "Smith", "Nwosu", "Garcia", "Eze", "Johnson", "Balogun", "Chen"}
	seedLocations   = []string{"Yaba, Lagos", "Akoka, Lagos", "Bodija, Ibadan", "Nsukka", "Zaria", "Ile-Ife", "Wuse, Abuja"}
	seedDepartments = []string{"Computer Science", "Medicine", "Law", "Economics", "Architecture", "Mechanical Engineering", "Mass Communication"}
	seedLevels      = []string{"100L", "200L", "300L", "400L", "500L", "Postgraduate"}
	seedMessages    = []string{
		"Hi! Saw your profile, are you still looking for a roommate?",
		"Yes I am. What area are you considering?",
		"Somewhere close to campus, ideally under my budget.",
		"Do you mind pets?",
		"I'm usually quiet during exams, hope that's fine.",
		"Want to check out a place this weekend?",
		"Sounds good, let's talk details.",
	}
	seedPreferenceTypes = []string{"lifestyle", "habit", "personality", "other"}
	seedPreferences     = map[string][]string{
		"lifestyle":   {"early bird", "night owl", "homebody", "social"},
		"habit":       {"non-smoker", "tidy", "cooks often", "gym regular"},
		"personality": {"introvert", "extrovert", "easygoing"},
		"other":       {"pet friendly", "quiet study hours", "shared groceries"},
	}
)

func randomNameSlug(r *rand.Rand) string {
	return strings.ToLower(fmt.Sprintf("%s.%s", pick(r, seedFirstNames), pick(r, seedLastNames)))
}

func displayName(r *rand.Rand) string {
	return fmt.Sprintf("%s %s", pick(r, seedFirstNames), pick(r, seedLastNames))
}

func sampleBio(r *rand.Rand) string {
	opts := []string{
		"Final year student, quiet and organized. Looking for a clean shared space.",
		"I love cooking and don't mind sharing. Weekends are for football.",
		"Medical student with long hours, need a calm place to rest.",
		"Easygoing, into music and games. Happy to split chores.",
		"Postgrad researcher, mostly in the lab. Respectful of shared spaces.",
	}
	return pick(r, opts)
}
