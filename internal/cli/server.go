package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"interactive-video-service/internal/app"
	"interactive-video-service/internal/config"
	"interactive-video-service/internal/domain"
	"interactive-video-service/internal/engine"
	"interactive-video-service/internal/infra/memory"
	pgstore "interactive-video-service/internal/infra/postgres"
	redisstore "interactive-video-service/internal/infra/redis"
	"interactive-video-service/internal/player"
	transport "interactive-video-service/internal/transport/http"
	"interactive-video-service/internal/webhook"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the interactive video server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 30*24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	staticLoader, err := memory.NewStaticVideoLoader(sampleVideos())
	if err != nil {
		return err
	}
	var loader memory.VideoLoader = staticLoader
	if pool != nil {
		loader = pgstore.NewVideoLoader(pool)
	}

	videoTTL := config.TTLDuration(cfg.Video.TTL, 10*time.Minute)
	var videoRepo engine.VideoRepository
	if redisClient != nil {
		videoRepo = redisstore.NewVideoRepository(redisClient, loader, videoTTL)
	} else {
		videoRepo = memory.NewVideoRepository(loader, videoTTL)
	}

	var progressStore engine.ProgressStore
	var attemptStore engine.AttemptStore
	switch {
	case pool != nil:
		progressStore = pgstore.NewProgressStore(pool)
		attemptStore = pgstore.NewAttemptStore(pool)
	case redisClient != nil:
		progressStore = redisstore.NewProgressStore(redisClient, redisTTL)
		attemptStore = redisstore.NewAttemptStore(redisClient, redisTTL)
	default:
		progressStore = memory.NewProgressStore()
		attemptStore = memory.NewAttemptStore()
	}

	var notifier engine.Notifier
	if wh := webhook.New(cfg.Engine.Settings.WebhookURL); wh != nil {
		notifier = wh
	}

	service := app.NewPlayerService(
		videoRepo,
		progressStore,
		attemptStore,
		notifier,
		player.DefaultRegistry(),
		cfg.Engine.Settings,
	)
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting interactive video service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleVideos provides a minimal catalog; swap the loader with a document
// DB-backed one in production.
func sampleVideos() map[string]domain.Video {
	return map[string]domain.Video{
		"intro": {
			ID:        "intro",
			Title:     "Getting Started",
			SourceURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			Duration:  212,
			Elements: []domain.InteractiveElement{
				{
					ID:        "q1",
					Type:      domain.TypeQuiz,
					Title:     "Checkpoint",
					StartTime: 30,
					Duration:  10,
					Options: []domain.Option{
						{ID: "o1", Text: "Continue watching", IsCorrect: true},
						{ID: "o2", Text: "Skip ahead", Action: "jump:120"},
					},
					Behavior: domain.Behavior{PauseVideo: true, AllowSkipping: true, ResumeAfterCompletion: true},
				},
				{
					ID:        "d1",
					Type:      domain.TypeDecision,
					Title:     "Choose your path",
					StartTime: 200,
					Duration:  12,
					Options: []domain.Option{
						{ID: "o1", Text: "Watch the deep dive", Action: "deep-dive"},
						{ID: "o2", Text: "Read the docs", Action: "https://example.com/docs"},
					},
					Behavior: domain.Behavior{PauseVideo: true, AllowSkipping: false},
				},
			},
		},
		"deep-dive": {
			ID:        "deep-dive",
			Title:     "Deep Dive",
			SourceURL: "https://cdn.example.com/media/deep-dive.mp4",
			Duration:  540,
			Elements:  nil,
		},
	}
}
