package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/olakayCoder1/roomie/realtime"
)

func testConfig() *Config {
	return &Config{
		Mode:           "dev",
		Addr:           ":0",
		DSN:            "postgres://unused",
		JWTSecret:      "test-secret",
		SessionTTL:     time.Hour,
		PublicBaseURL:  "http://media.test",
		AllowedOrigins: []string{"http://localhost:3000"},
		FeedPageSize:   20,
		LoginRate:      100,
		LoginBurst:     100,
	}
}

// newTestApp wires an App over the in-memory store, a temp-dir blob store
// and an in-process hub.
func newTestApp(t *testing.T) (*App, *memStore) {
	t.Helper()
	store := newMemStore()
	blobs, err := newFSBlobStore(t.TempDir(), "http://media.test")
	require.NoError(t, err)
	hub := realtime.NewHub()
	return NewApp(testConfig(), store, blobs, hub, realtime.NewLocalBroker(hub)), store
}

// testRouter returns the full HTTP surface for a.
func testRouter(a *App) http.Handler {
	return a.Routes(a.blobs.(*fsBlobStore))
}

func sessionCookie(t *testing.T, a *App, id uuid.UUID) *http.Cookie {
	t.Helper()
	token, _, err := a.sessions.Issue(id)
	require.NoError(t, err)
	return &http.Cookie{Name: sessionCookieName, Value: token}
}

// doJSON sends body as JSON, optionally with a session for caller.
func doJSON(t *testing.T, a *App, h http.Handler, method, path string, caller *User, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		req.AddCookie(sessionCookie(t, a, caller.ID))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "body: %s", rr.Body.String())
	return out
}

// errorKindOf extracts the "error" field of an error response.
func errorKindOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, rr)["error"]
}

// waitEvent reads one event or fails after a short timeout.
func waitEvent(t *testing.T, sub *realtime.Subscription) realtime.Event {
	t.Helper()
	select {
	case evt, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return realtime.Event{}
}

func noEvent(t *testing.T, sub *realtime.Subscription) {
	t.Helper()
	select {
	case evt := <-sub.Events():
		t.Fatalf("unexpected event %q on %s", evt.Type, evt.Topic)
	default:
	}
}
