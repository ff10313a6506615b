package main

import (
	"context"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	minCompatibility = 70
	maxCompatibility = 99
)

// FeedItem wraps one candidate for the discovery feed.
type FeedItem struct {
	ID        string       `json:"id"`
	Type      string       `json:"type"`
	Data      RoommateCard `json:"data"`
	Timestamp time.Time    `json:"timestamp"`
}

// RoommateCard is the display shape of a candidate.
type RoommateCard struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Age              *int      `json:"age"`
	Location         string    `json:"location"`
	Occupation       string    `json:"occupation"`
	Bio              string    `json:"bio"`
	BudgetLow        *int      `json:"budget_low"`
	BudgetHigh       *int      `json:"budget_high"`
	ProfileURL       *string   `json:"profile_url"`
	Preferences      []string  `json:"preferences"`
	Compatibility    int       `json:"compatibility"`
	HasShownInterest bool      `json:"has_shown_interest"`
}

// compatibilityScore is a placeholder score, redrawn on every fetch.
func compatibilityScore() int {
	return minCompatibility + rand.IntN(maxCompatibility-minCompatibility+1)
}

func valueOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

func roommateCard(u *User, interested bool) RoommateCard {
	return RoommateCard{
		ID:               u.ID,
		Name:             u.FullName,
		Age:              u.Age,
		Location:         valueOr(u.Location, "Location not specified"),
		Occupation:       valueOr(u.Department, "Student"),
		Bio:              valueOr(u.Bio, "No bio available"),
		BudgetLow:        u.BudgetLow,
		BudgetHigh:       u.BudgetHigh,
		ProfileURL:       u.ProfileURL,
		Preferences:      u.PreferenceValues(),
		Compatibility:    compatibilityScore(),
		HasShownInterest: interested,
	}
}

// ComposeFeed returns up to the configured page of candidates, excluding
// the caller, each marked with the caller's interest.
func (a *App) ComposeFeed(ctx context.Context, caller uuid.UUID) ([]FeedItem, error) {
	var (
		candidates []User
		targets    []uuid.UUID
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		candidates, err = a.store.ListCandidates(gctx, caller, a.cfg.FeedPageSize)
		return err
	})
	g.Go(func() (err error) {
		targets, err = a.store.InterestTargets(gctx, caller)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, backendError(err, "could not load feed")
	}

	interested := make(map[uuid.UUID]bool, len(targets))
	for _, id := range targets {
		interested[id] = true
	}

	items := make([]FeedItem, 0, len(candidates))
	for i := range candidates {
		u := &candidates[i]
		if u.ID == caller {
			continue
		}
		items = append(items, FeedItem{
			ID:        "user-" + u.ID.String(),
			Type:      "roommate",
			Data:      roommateCard(u, interested[u.ID]),
			Timestamp: u.CreatedAt,
		})
	}
	return items, nil
}

func feedHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerID(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		items, err := a.ComposeFeed(r.Context(), caller)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}
