package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"adaptive-testing-service/internal/app"
	"adaptive-testing-service/internal/config"
	"adaptive-testing-service/internal/domain"
	"adaptive-testing-service/internal/infra/memory"
	pgloader "adaptive-testing-service/internal/infra/postgres"
	redisinfra "adaptive-testing-service/internal/infra/redis"
	transport "adaptive-testing-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the adaptive testing server",
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

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

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
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, 30*time.Minute)
	opTimeout := config.TTLDuration(cfg.Redis.OpTimeout, 3*time.Second)

	var db *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		db, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.PoolLoader = memory.NewStaticPoolLoader(samplePools())
	if db != nil {
		loader = pgloader.NewPoolLoader(db)
	}

	poolTTL := config.TTLDuration(cfg.Pools.TTL, 10*time.Minute)
	var pools app.PoolRepository
	if redisClient != nil {
		pools = redisinfra.NewPoolRepository(redisClient, loader, poolTTL)
	} else {
		pools = memory.NewPoolRepository(loader, poolTTL)
	}

	var sessions app.SessionStore
	if redisClient != nil {
		sessions = redisinfra.NewSessionStore(redisClient, sessionTTL, opTimeout)
	} else {
		sessions = memory.NewSessionStore(sessionTTL)
	}

	engine := app.NewEngine(sessions, pools, cfg.EngineDefaults(), logger)
	handler := transport.NewHandler(engine, logger)
	wsHandler := transport.NewWSHandler(engine, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting adaptive testing service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// samplePools provides a small calibrated pool for running without Postgres.
func samplePools() map[string]domain.Pool {
	return map[string]domain.Pool{
		"demo": {
			ID: "demo",
			Items: []domain.Item{
				{ID: "q1", Difficulty: -1.76, Discrimination: 1.0},
				{ID: "q2", Difficulty: -0.48, Discrimination: 1.2},
				{ID: "q3", Difficulty: -0.22, Discrimination: 0.9},
				{ID: "q4", Difficulty: 0.35, Discrimination: 1.1},
				{ID: "q5", Difficulty: 1.05, Discrimination: 1.3},
				{ID: "q6", Difficulty: 3.09, Discrimination: 0.8},
			},
		},
	}
}
