package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/lastseen/internal/config"
	"github.com/your-org/lastseen/internal/faces"
	"github.com/your-org/lastseen/internal/models"
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

	if !cfg.Faces.Enabled {
		slog.Error("face recognition is disabled in config, worker has nothing to do")
		os.Exit(1)
	}

	slog.Info("starting LastSeen face worker",
		"workers", cfg.Faces.WorkerCount,
		"face_service", cfg.Faces.URL,
	)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	recognizer := faces.NewRecognizer(faces.NewClient(cfg.Faces), db, producer)

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeFaceTasks(ctx, "face-workers", func(ctx context.Context, msg jetstream.Msg) error {
		var task models.FaceTask
		if err := json.Unmarshal(msg.Data(), &task); err != nil {
			slog.Error("unmarshal face task", "error", err)
			return nil // Don't retry on unmarshal errors
		}

		if err := recognizer.Process(ctx, task); err != nil {
			return fmt.Errorf("process image %s: %w", task.ImageID, err)
		}
		return nil
	}, cfg.Faces.WorkerCount)
	if err != nil {
		slog.Error("start face task consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Faces.MetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if err := producer.Ping(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"nats down"}`))
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.FaceQueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}
