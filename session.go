package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionCookieName = "roomie_session"

// Session is the authenticated caller resolved from the request.
type Session struct {
	UserID    uuid.UUID
	ExpiresAt time.Time
}

type sessionKeyType string

const sessionKey sessionKeyType = "session"

func withSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func sessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil
}

// SessionManager issues and verifies the signed session token.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewSessionManager(secret []byte, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{secret: secret, ttl: ttl, secure: secure, now: time.Now}
}

// Issue signs a token for userID valid for the configured TTL.
func (m *SessionManager) Issue(userID uuid.UUID) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies a token and returns its session.
func (m *SessionManager) Parse(tokenStr string) (*Session, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, errors.New("invalid session token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, errors.New("invalid session subject")
	}
	return &Session{UserID: userID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// tokenFromRequest checks the cookie, then the bearer header, then the
// token query parameter (browsers cannot set headers on websockets).
func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// FromRequest resolves the caller's session, if any.
func (m *SessionManager) FromRequest(r *http.Request) (*Session, bool) {
	tok := tokenFromRequest(r)
	if tok == "" {
		return nil, false
	}
	s, err := m.Parse(tok)
	if err != nil {
		return nil, false
	}
	return s, true
}

func (m *SessionManager) SetCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *SessionManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// authenticate rejects requests without a valid session.
func (m *SessionManager) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := m.FromRequest(r)
		if !ok {
			writeError(w, unauthenticated("authentication required"))
			return
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), s)))
	})
}

// callerID returns the authenticated user id or an Unauthenticated error.
func callerID(ctx context.Context) (uuid.UUID, error) {
	s, ok := sessionFromContext(ctx)
	if !ok {
		return uuid.Nil, unauthenticated("authentication required")
	}
	return s.UserID, nil
}
