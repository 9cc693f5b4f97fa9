package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/isurunuwanthilaka/isuma.ai/internal/config"
	"github.com/isurunuwanthilaka/isuma.ai/internal/database"
	"github.com/isurunuwanthilaka/isuma.ai/internal/handlers"
	"github.com/isurunuwanthilaka/isuma.ai/internal/logging"
	"github.com/isurunuwanthilaka/isuma.ai/internal/middleware"
	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
	"github.com/isurunuwanthilaka/isuma.ai/internal/repository"
	"github.com/isurunuwanthilaka/isuma.ai/internal/router"
	"github.com/isurunuwanthilaka/isuma.ai/internal/services"
	"github.com/isurunuwanthilaka/isuma.ai/internal/storage"
	"github.com/isurunuwanthilaka/isuma.ai/internal/websocket"
	"github.com/isurunuwanthilaka/isuma.ai/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	logging.Setup(cfg.Env, cfg.LogLevel)
	log.Info().Str("env", cfg.Env).Msg("starting isuma test session service")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("PostgreSQL connection failed")
	}
	defer pool.Close()

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClients.Close()

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}
	log.Info().Msg("database ready")

	// ──── Repositories ────
	sessionRepo := repository.NewTestSessionRepo(pool)
	eventRepo := repository.NewIntegrityEventRepo(pool)
	snapshotRepo := repository.NewSnapshotRepo(pool)

	// ──── Step 5: Blob Stores ────
	ctx := context.Background()
	local := storage.NewLocalStore(cfg.StoragePath, cfg.PublicUploadsPrefix)
	var blobs storage.BlobStore = local
	if cfg.GCSBucket != "" {
		gcs, err := storage.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile)
		if err != nil {
			log.Warn().Err(err).Msg("GCS unavailable, storing snapshots on local disk only")
		} else {
			blobs = storage.NewFallbackStore(gcs, local)
			log.Info().Str("bucket", cfg.GCSBucket).Msg("GCS blob store enabled with local fallback")
		}
	}

	// ──── Step 6: Scoring Oracle ────
	oracle, err := services.NewOracle(ctx, cfg.LLMProvider, cfg.OracleAPIKey(), cfg.OracleModel(), cfg.OracleConcurrentReqs)
	if err != nil {
		log.Warn().Err(err).Msg("scoring oracle disabled, snapshots will not be reviewed")
	} else {
		defer oracle.Close()
	}

	var alerts services.Alerters
	if cfg.DiscordBotToken != "" && cfg.DiscordChannelID != "" {
		discord, err := services.NewDiscordAlerter(cfg.DiscordBotToken, cfg.DiscordChannelID)
		if err != nil {
			log.Warn().Err(err).Msg("discord alerts disabled")
		} else {
			alerts = append(alerts, discord)
		}
	}
	if len(cfg.AlertEmailTo) > 0 {
		alerts = append(alerts, services.NewEmailAlerter(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.AlertEmailTo))
	}

	// ──── Services ────
	liveFeed := services.NewLiveFeed(redisClients.PubSub)
	jobQueue := services.NewJobQueue(redisClients.Queue)

	var reviewQueue interface {
		Enqueue(ctx context.Context, job *models.Job) error
	}
	if oracle != nil {
		reviewQueue = jobQueue
	}

	sessionService := services.NewSessionService(
		sessionRepo,
		eventRepo,
		snapshotRepo,
		blobs,
		liveFeed,
		reviewQueue,
		nil,
		services.SubmitPolicy{
			EnforceDeadline: cfg.SubmitDeadlineEnforced,
			Grace:           cfg.SubmitGracePeriod,
		},
	)

	// ──── Step 7: Snapshot Review Workers ────
	var workerPool *worker.Pool
	if oracle != nil {
		workerPool = worker.NewPool(redisClients.Queue, oracle, snapshotRepo, liveFeed, jobQueue, alerts, nil, cfg.ReviewWorkers)
		workerPool.Start()
	}

	sweeper := services.NewReviewSweeper(snapshotRepo, nil, services.DefaultSweepInterval, services.DefaultReviewTimeout)
	sweeper.Start()

	// ──── Step 8: WebSocket Hub ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	wsHub := websocket.NewHub(websocket.NewRedisSubscriber(redisClients.PubSub), jwtAuth, middleware.RoleAdmin, middleware.RoleRecruiter)

	// ──── Step 9: HTTP Server ────
	reportLimiter := middleware.NewRateLimiter(cfg.EventRateLimit, time.Minute)
	defer reportLimiter.Stop()

	uploadsDir := ""
	if cfg.PublicUploadsPrefix != "" && cfg.PublicUploadsPrefix[0] == '/' {
		uploadsDir = local.Root()
	}

	r := router.New(router.Deps{
		JWTAuth:        jwtAuth,
		Sessions:       handlers.NewTestSessionHandler(sessionService),
		Review:         handlers.NewReviewHandler(sessionService, nil),
		LiveFeed:       wsHub.HandleWebSocket,
		ReportLimiter:  reportLimiter,
		UploadsDir:     uploadsDir,
		UploadsPrefix:  cfg.PublicUploadsPrefix,
		FrontendURL:    cfg.FrontendURL,
		RequestTimeout: 30 * time.Second,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutting down")
		if workerPool != nil {
			workerPool.Stop()
		}
		sweeper.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Info().Str("port", cfg.Port).Str("blob_store", blobs.Name()).Msg("server ready")

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}
