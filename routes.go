package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Routes builds the HTTP surface.
func (a *App) Routes(media *fsBlobStore) http.Handler {
	r := mux.NewRouter()
	r.Use(recoverer, requestLogger)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, notFound("route not found"))
	})

	// Health check endpoint
	r.HandleFunc("/health", healthHandler(a)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	if media != nil {
		r.PathPrefix("/media/").Handler(mediaHandler(media)).Methods(http.MethodGet, http.MethodHead)
	}

	// Identity
	limiter := newIPLimiter(rate.Limit(a.cfg.LoginRate), a.cfg.LoginBurst)
	r.Handle("/auth/register", limiter.middleware(registerHandler(a))).Methods(http.MethodPost)
	r.Handle("/auth/login", limiter.middleware(loginHandler(a))).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", logoutHandler(a)).Methods(http.MethodPost)

	// Everything below needs a session
	api := r.NewRoute().Subrouter()
	api.Use(a.sessions.authenticate, DataLoaderMiddleware(a.store))

	api.HandleFunc("/me", meHandler(a)).Methods(http.MethodGet)
	api.HandleFunc("/me/profile", meProfileHandler(a)).Methods(http.MethodPatch)
	api.HandleFunc("/me/preferences", mePreferencesHandler(a)).Methods(http.MethodPut)
	api.HandleFunc("/me/avatar", uploadAvatarHandler(a)).Methods(http.MethodPost)
	api.HandleFunc("/me/avatar", removeAvatarHandler(a)).Methods(http.MethodDelete)
	api.HandleFunc("/users/{id}", userHandler(a)).Methods(http.MethodGet)

	api.HandleFunc("/feed", feedHandler(a)).Methods(http.MethodGet)

	api.HandleFunc("/interests", myInterestsHandler(a)).Methods(http.MethodGet)
	api.HandleFunc("/interests/received", receivedInterestsHandler(a)).Methods(http.MethodGet)
	api.HandleFunc("/interests/{id}/toggle", toggleInterestHandler(a)).Methods(http.MethodPost)
	api.HandleFunc("/interests/{id}/mutual", mutualInterestHandler(a)).Methods(http.MethodGet)

	api.HandleFunc("/conversations", listConversationsHandler(a)).Methods(http.MethodGet)
	api.HandleFunc("/conversations", startConversationHandler(a)).Methods(http.MethodPost)
	api.HandleFunc("/conversations/with/{userID}", conversationWithHandler(a)).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", listMessagesHandler(a)).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/read", markReadHandler(a)).Methods(http.MethodPost)
	api.HandleFunc("/messages", sendMessageHandler(a)).Methods(http.MethodPost)

	upgrader := newUpgrader(a.cfg.AllowedOrigins)
	api.HandleFunc("/ws/inbox", wsInboxHandler(a, upgrader)).Methods(http.MethodGet)
	api.HandleFunc("/ws/conversations/{id}", wsConversationHandler(a, upgrader)).Methods(http.MethodGet)

	// CORS wraps the router so preflights reach it before route matching.
	return withCORS(a.cfg.AllowedOrigins)(r)
}

func healthHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
