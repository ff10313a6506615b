package main

import (
	"context"
	"log/slog"

	"github.com/olakayCoder1/roomie/realtime"
)

// App wires the core operations to their collaborators.
type App struct {
	cfg      *Config
	store    Store
	blobs    BlobStore
	hub      *realtime.Hub
	broker   realtime.Broker
	sessions *SessionManager
}

func NewApp(cfg *Config, store Store, blobs BlobStore, hub *realtime.Hub, broker realtime.Broker) *App {
	return &App{
		cfg:      cfg,
		store:    store,
		blobs:    blobs,
		hub:      hub,
		broker:   broker,
		sessions: NewSessionManager([]byte(cfg.JWTSecret), cfg.SessionTTL, cfg.IsProd()),
	}
}

// publish pushes an event to each topic. Failures are logged only: the
// HTTP listing endpoints stay the source of truth.
func (a *App) publish(ctx context.Context, evt realtime.Event, topics ...string) {
	for _, topic := range topics {
		if err := a.broker.Publish(ctx, topic, evt); err != nil {
			slog.Warn("realtime publish failed", "topic", topic, "type", evt.Type, "error", err)
		}
	}
}
