package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const maxPreferences = 50

// GetUser returns a public profile with its preferences.
func (a *App) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := a.store.GetUser(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound("user not found")
	}
	if err != nil {
		return nil, backendError(err, "could not load user")
	}
	return u, nil
}

// UpdateProfile applies a partial profile update for the caller.
func (a *App) UpdateProfile(ctx context.Context, caller uuid.UUID, upd ProfileUpdate) (*User, error) {
	if upd.FullName != nil {
		name := strings.TrimSpace(*upd.FullName)
		upd.FullName = &name
	}
	if err := validateStruct(&upd); err != nil {
		return nil, err
	}
	if upd.Empty() {
		return nil, validationError("nothing to update")
	}

	current, err := a.GetUser(ctx, caller)
	if err != nil {
		return nil, err
	}
	low, high := current.BudgetLow, current.BudgetHigh
	if upd.BudgetLow != nil {
		low = upd.BudgetLow
	}
	if upd.BudgetHigh != nil {
		high = upd.BudgetHigh
	}
	if low != nil && high != nil && *high < *low {
		return nil, validationError("budget_high must not be below budget_low")
	}

	if err := a.store.UpdateProfile(ctx, caller, upd); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("user not found")
		}
		return nil, backendError(err, "could not update profile")
	}
	return a.GetUser(ctx, caller)
}

// ReplacePreferences swaps the caller's preference tags for prefs.
func (a *App) ReplacePreferences(ctx context.Context, caller uuid.UUID, prefs []Preference) (*User, error) {
	if len(prefs) > maxPreferences {
		return nil, validationError("too many preferences")
	}
	seen := make(map[Preference]bool, len(prefs))
	clean := make([]Preference, 0, len(prefs))
	for _, p := range prefs {
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		p.Value = strings.TrimSpace(p.Value)
		if err := validateStruct(&p); err != nil {
			return nil, err
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		clean = append(clean, p)
	}

	if err := a.store.ReplacePreferences(ctx, caller, clean); err != nil {
		return nil, backendError(err, "could not save preferences")
	}
	return a.GetUser(ctx, caller)
}

// --- handlers ---

func userHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			writeError(w, err)
			return
		}
		u, err := a.GetUser(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func meProfileHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerID(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		var upd ProfileUpdate
		if err := decodeJSON(w, r, &upd); err != nil {
			writeError(w, err)
			return
		}
		u, err := a.UpdateProfile(r.Context(), caller, upd)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, accountView(u))
	}
}

func mePreferencesHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerID(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		var prefs []Preference
		if err := decodeJSON(w, r, &prefs); err != nil {
			writeError(w, err)
			return
		}
		u, err := a.ReplacePreferences(r.Context(), caller, prefs)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, accountView(u))
	}
}
