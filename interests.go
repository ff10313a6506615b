package main

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type InterestState struct {
	Action           string `json:"action"` // "added" | "removed"
	HasShownInterest bool   `json:"has_shown_interest"`
}

type MutualInterest struct {
	Mutual             bool `json:"mutual_interest"`
	User1InterestedIn2 bool `json:"user1_interested_in_user2"`
	User2InterestedIn1 bool `json:"user2_interested_in_user1"`
}

// InterestedUser is a profile annotated with whether the caller has shown
// interest in it.
type InterestedUser struct {
	User
	HasShownInterest bool `json:"has_shown_interest"`
}

// ToggleInterest flips the caller's interest edge toward target.
func (a *App) ToggleInterest(ctx context.Context, caller, target uuid.UUID) (*InterestState, error) {
	if caller == target {
		return nil, validationError("cannot show interest in yourself")
	}
	if err := a.requireUser(ctx, target, "user"); err != nil {
		return nil, err
	}
	added, err := a.store.ToggleInterest(ctx, caller, target)
	if err != nil {
		return nil, backendError(err, "could not toggle interest")
	}
	state := &InterestState{Action: "removed", HasShownInterest: added}
	if added {
		state.Action = "added"
	}
	interestTogglesTotal.WithLabelValues(state.Action).Inc()
	return state, nil
}

// MutualInterestBetween reports both directions of interest between a and b.
func (a *App) MutualInterestBetween(ctx context.Context, userA, userB uuid.UUID) (*MutualInterest, error) {
	var ab, ba bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ab, err = a.store.HasInterest(gctx, userA, userB)
		return err
	})
	g.Go(func() (err error) {
		ba, err = a.store.HasInterest(gctx, userB, userA)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, backendError(err, "could not check interest")
	}
	return &MutualInterest{Mutual: ab && ba, User1InterestedIn2: ab, User2InterestedIn1: ba}, nil
}

// MyInterests lists the users the caller is interested in.
func (a *App) MyInterests(ctx context.Context, caller uuid.UUID) ([]InterestedUser, error) {
	users, err := a.store.InterestedUsers(ctx, caller)
	if err != nil {
		return nil, backendError(err, "could not list interests")
	}
	out := make([]InterestedUser, 0, len(users))
	for _, u := range users {
		out = append(out, InterestedUser{User: u, HasShownInterest: true})
	}
	return out, nil
}

// ReceivedInterests lists the users interested in the caller, flagged with
// whether the caller reciprocates.
func (a *App) ReceivedInterests(ctx context.Context, caller uuid.UUID) ([]InterestedUser, error) {
	var (
		users   []User
		targets []uuid.UUID
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = a.store.UsersInterestedIn(gctx, caller)
		return err
	})
	g.Go(func() (err error) {
		targets, err = a.store.InterestTargets(gctx, caller)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, backendError(err, "could not list received interests")
	}

	mine := make(map[uuid.UUID]bool, len(targets))
	for _, id := range targets {
		mine[id] = true
	}
	out := make([]InterestedUser, 0, len(users))
	for _, u := range users {
		out = append(out, InterestedUser{User: u, HasShownInterest: mine[u.ID]})
	}
	return out, nil
}

// --- handlers ---

func toggleInterestHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerID(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		target, err := pathUUID(r, "id")
		if err != nil {
			writeError(w, err)
			return
		}
		state, err := a.ToggleInterest(r.Context(), caller, target)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

func mutualInterestHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerID(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		other, err := pathUUID(r, "id")
		if err != nil {
			writeError(w, err)
			return
		}
		m, err := a.MutualInterestBetween(r.Context(), caller, other)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func myInterestsHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerID(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		list, err := a.MyInterests(r.Context(), caller)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func receivedInterestsHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerID(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		list, err := a.ReceivedInterests(r.Context(), caller)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
