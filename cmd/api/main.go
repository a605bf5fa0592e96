package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/lastseen/internal/api"
	"github.com/your-org/lastseen/internal/api/handlers"
	"github.com/your-org/lastseen/internal/api/ws"
	"github.com/your-org/lastseen/internal/auth"
	"github.com/your-org/lastseen/internal/config"
	"github.com/your-org/lastseen/internal/faces"
	"github.com/your-org/lastseen/internal/images"
	"github.com/your-org/lastseen/internal/observability"
	"github.com/your-org/lastseen/internal/queue"
	"github.com/your-org/lastseen/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting LastSeen API service",
		"port", cfg.Server.Port,
		"faces_enabled", cfg.Faces.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	checks := map[string]handlers.Check{
		"postgres": db.Ping,
		"minio":    minioStore.Ping,
	}

	// WebSocket hub
	hub := ws.NewHub(cfg.Server.AllowedOrigins)
	go hub.Run(ctx)

	// Face recognition is optional: without it no NATS connection is made.
	var dispatcher images.FaceDispatcher
	if cfg.Faces.Enabled {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
		dispatcher = faces.NewDispatcher(producer)
		checks["nats"] = func(context.Context) error { return producer.Ping() }

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create event consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		err = consumer.ConsumeEvents(ctx, eventConsumerName(), func(ctx context.Context, msg jetstream.Msg) error {
			userID, err := uuid.Parse(strings.TrimPrefix(msg.Subject(), queue.EventsSubjectBase+"."))
			if err != nil {
				slog.Warn("event with bad subject", "subject", msg.Subject())
				return nil // Don't retry
			}
			hub.SendRaw(userID, msg.Data())
			return nil
		})
		if err != nil {
			slog.Warn("start event consumer", "error", err)
		}
	}

	svc := images.NewService(minioStore, db, dispatcher, images.Options{
		PublicURL:      cfg.Server.PublicURL,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		Images:         svc,
		Users:          db,
		ImageURL:       svc.URL,
		Verifier:       auth.NewVerifier(cfg.Server.JWTSecret),
		Hub:            hub,
		Checks:         checks,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		DevMode:        cfg.Server.DevMode,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	cancel()

	slog.Info("API server stopped")
}

// eventConsumerName gives every API replica its own durable so each one
// sees every event.
func eventConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "api-events"
	}
	return "api-events-" + strings.NewReplacer(".", "-", "*", "-", ">", "-").Replace(host)
}
