package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"taskdesk/internal/config"
	apphttp "taskdesk/internal/http"
	"taskdesk/internal/repository"
	"taskdesk/internal/repository/postgres"
	"taskdesk/internal/repository/sqlite"
	"taskdesk/internal/service"
	"taskdesk/internal/session"
)

type storage struct {
	tasks repository.TaskRepository
	users repository.UserRepository
	ping  func(ctx context.Context) error
	close func()
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	configureLogger(logger, cfg)

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer store.close()

	if err := store.tasks.Init(ctx); err != nil {
		logger.Fatalf("init task repository: %v", err)
	}
	if err := store.users.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}

	redisClient := connectRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var revoker session.Revoker = session.NopRevoker{}
	if redisClient != nil {
		revoker = session.NewRedisRevoker(redisClient)
	}
	sessions, err := session.NewManager(session.Config{
		Secret:     cfg.Auth.Secret,
		SessionTTL: cfg.SessionTTL(),
		Revoker:    revoker,
	})
	if err != nil {
		logger.Fatalf("session manager: %v", err)
	}

	taskService := service.NewTaskService(store.tasks)
	userService := service.NewUserService(store.users, service.NewBcryptHasher(cfg.Auth.BcryptCost), sessions, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(apphttp.Config{
		Tasks:          taskService,
		Users:          userService,
		Sessions:       sessions,
		Redis:          redisClient,
		Logger:         logger,
		Ping:           store.ping,
		SecureCookies:  cfg.Auth.SecureCookies,
		ProtectTasks:   cfg.Auth.ProtectTasks,
		AuthRateLimit:  cfg.RateLimit.AuthRequests,
		AuthRateWindow: cfg.AuthRateWindow(),
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s (database %s)", cfg.Server.Addr, cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func configureLogger(logger *logrus.Logger, cfg config.Config) {
	if cfg.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

func openStorage(ctx context.Context, cfg config.Config) (*storage, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		return &storage{
			tasks: postgres.NewTaskRepository(pool),
			users: postgres.NewUserRepository(pool),
			ping:  pool.Ping,
			close: pool.Close,
		}, nil
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		return &storage{
			tasks: sqlite.NewTaskRepository(db),
			users: sqlite.NewUserRepository(db),
			ping:  db.PingContext,
			close: func() { db.Close() },
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// connectRedis returns nil when Redis is not configured or unreachable.
func connectRedis(ctx context.Context, cfg config.Config, logger *logrus.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		logger.Info("redis not configured: rate limiting and session revocation disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warnf("redis unavailable at %s: %v", cfg.Redis.Addr, err)
		client.Close()
		return nil
	}
	return client
}
