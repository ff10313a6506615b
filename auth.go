package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	FullName string `json:"full_name" validate:"required,min=1,max=120"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register creates the account and its profile. When the profile insert
// fails the account row is removed again.
func (a *App) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	if err := validateStruct(&req); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, backendError(err, "could not hash password")
	}

	id, err := a.store.CreateAccount(ctx, req.Email, string(hash))
	if errors.Is(err, ErrEmailTaken) {
		return nil, conflict("email already registered")
	}
	if err != nil {
		return nil, backendError(err, "could not create account")
	}

	u := &User{ID: id, Email: req.Email, FullName: req.FullName, Preferences: []Preference{}}
	if err := a.store.CreateUser(ctx, u); err != nil {
		if delErr := a.store.DeleteAccount(ctx, id); delErr != nil {
			slog.Error("orphaned account after failed profile insert", "account_id", id, "error", delErr)
		}
		return nil, backendError(err, "could not create profile")
	}
	slog.Info("user registered", "user_id", id)
	return u, nil
}

// Login verifies credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (a *App) Login(ctx context.Context, req LoginRequest) (*User, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := validateStruct(&req); err != nil {
		return nil, err
	}

	acct, err := a.store.AccountByEmail(ctx, req.Email)
	if errors.Is(err, ErrNotFound) {
		return nil, unauthenticated("invalid credentials")
	}
	if err != nil {
		return nil, backendError(err, "could not look up account")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(req.Password)); err != nil {
		return nil, unauthenticated("invalid credentials")
	}
	return a.CurrentUser(ctx, acct.ID)
}

// CurrentUser loads the caller's profile with preferences.
func (a *App) CurrentUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := a.store.GetUser(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, unauthenticated("account no longer exists")
	}
	if err != nil {
		return nil, backendError(err, "could not load user")
	}
	return u, nil
}

// startSession issues the token and sets the cookie.
func (a *App) startSession(w http.ResponseWriter, u *User) (string, error) {
	token, exp, err := a.sessions.Issue(u.ID)
	if err != nil {
		return "", backendError(err, "could not start session")
	}
	a.sessions.SetCookie(w, token, exp)
	return token, nil
}

func registerHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		u, err := a.Register(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		token, err := a.startSession(w, u)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"user": accountView(u), "token": token})
	}
}

func loginHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		u, err := a.Login(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		token, err := a.startSession(w, u)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": accountView(u), "token": token})
	}
}

func logoutHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.sessions.ClearCookie(w)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func meHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := callerID(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		u, err := a.CurrentUser(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, accountView(u))
	}
}
