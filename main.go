package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/olakayCoder1/roomie/realtime"
)

var (
	v = viper.New()

	rootCmd = &cobra.Command{
		Use:   "roomie",
		Short: "Roommate matching backend: profiles, interest matching and direct messaging.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is fine; real deployments use the environment.
			_ = godotenv.Load()
			setupLogger(v.GetString("mode"))
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
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
			return migrate(cmd.Context(), db)
		},
	}
)

func init() {
	setConfigDefaults(v)

	// Flag defaults mirror the viper defaults, read before env binding.
	flags := rootCmd.PersistentFlags()
	flags.String("mode", v.GetString("mode"), `mode of server, "dev" or "prod"`)
	flags.String("dsn", v.GetString("dsn"), "PostgreSQL connection string")
	flags.String("redis-addr", "", "Redis address for cross-instance realtime events (empty: in-process only)")

	serveFlags := serveCmd.Flags()
	serveFlags.String("addr", v.GetString("addr"), "listen address")
	serveFlags.String("jwt-secret", v.GetString("jwt-secret"), "HMAC secret for session tokens")
	serveFlags.Duration("session-ttl", v.GetDuration("session-ttl"), "session lifetime")
	serveFlags.String("upload-dir", v.GetString("upload-dir"), "directory for uploaded media")
	serveFlags.String("public-base-url", v.GetString("public-base-url"), "public URL media links are built from")
	serveFlags.StringSlice("allowed-origins", v.GetStringSlice("allowed-origins"), "origins allowed for CORS and websockets")
	serveFlags.Int("feed-page-size", v.GetInt("feed-page-size"), "candidates per feed page")

	bindFlags(flags, "mode", "dsn", "redis-addr")
	bindFlags(serveFlags, "addr", "jwt-secret", "session-ttl", "upload-dir", "public-base-url", "allowed-origins", "feed-page-size")

	v.SetEnvPrefix("ROOMIE")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

func bindFlags(fs *pflag.FlagSet, names ...string) {
	for _, name := range names {
		if err := v.BindPFlag(name, fs.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// serve wires the stores, realtime broker and router, then runs until ctx
// is cancelled.
func serve(ctx context.Context, cfg *Config) error {
	db, err := openDB(ctx, cfg.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := migrate(ctx, db); err != nil {
		return err
	}

	blobs, err := newFSBlobStore(cfg.UploadDir, cfg.PublicBaseURL)
	if err != nil {
		return err
	}

	hub := realtime.NewHub()
	var broker realtime.Broker = realtime.NewLocalBroker(hub)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("cannot reach redis at %s: %w", cfg.RedisAddr, err)
		}
		rb := realtime.NewRedisBroker(client, hub)
		go func() {
			if err := rb.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("redis broker stopped", "error", err)
			}
		}()
		broker = rb
	}

	app := NewApp(cfg, newPGStore(db), blobs, hub, broker)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Routes(blobs),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("roomie listening", "addr", cfg.Addr, "mode", cfg.Mode, "redis", cfg.RedisAddr != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
