package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"todo-api/backend/internal/cache"
	"todo-api/backend/internal/config"
	"todo-api/backend/internal/database"
	"todo-api/backend/internal/middleware"
	"todo-api/backend/internal/monitoring"
	"todo-api/backend/internal/repositories"
	"todo-api/backend/internal/routes"
	"todo-api/backend/internal/serializers"
	"todo-api/backend/internal/services"
	"todo-api/backend/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 30 * time.Second

// app owns every long-lived resource of the serve command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	pool    *database.DatabasePool
	redis   *redis.Client
	cache   *cache.MultiLevelCache
	monitor *monitoring.Monitor
	limiter *middleware.RateLimiter
	auth    *services.AuthServiceImpl
	router  *gin.Engine
}

func openDatabase(cfg *config.Config) (*database.DatabasePool, error) {
	if cfg.Database.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return database.NewDatabasePool(&database.PoolConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.GetDatabaseDSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		LogLevel:        database.ParseLogLevel(cfg.Database.LogLevel),
	})
}

func newApp(cfg *config.Config, logger *slog.Logger, migrate bool) (*app, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	pool, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := pool.Migrate(); err != nil {
			_ = pool.Close()
			return nil, err
		}
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		monitor: monitoring.NewMonitor(),
	}
	a.monitor.RegisterHealthCheck("database", pool.Health)
	a.monitor.RegisterStats("database", pool.Stats)

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		a.redis = cache.NewRedisClient(&cache.CacheConfig{
			Addr:         cfg.GetRedisAddr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		redisCache = cache.NewRedisCacheFromClient(a.redis)
		a.monitor.RegisterHealthCheck("redis", redisCache.Health)
	}

	cacheConfig := cache.DefaultMultiLevelConfig()
	cacheConfig.Breaker.OnStateChange = func(from, to cache.CircuitBreakerState) {
		logger.Warn("cache circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	}
	a.cache = cache.NewMultiLevelCache(redisCache, cacheConfig)
	a.monitor.RegisterStats("cache", a.cache.Stats)
	if err := a.monitor.Register(a.cache.Metrics()); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to register cache metrics: %w", err)
	}

	todoRepo := repositories.NewGormTodoRepository(pool.DB)
	userRepo := repositories.NewGormUserRepository(pool.DB)
	sessionRepo := repositories.NewGormSessionRepository(pool.DB)

	serializer := serializers.NewTodoSerializer(todoRepo)
	todoService := services.NewCachedTodoService(services.NewTodoService(todoRepo, serializer), a.cache, logger)
	a.auth = services.NewAuthService(userRepo, sessionRepo, cfg.Auth)

	if cfg.RateLimit.Enabled {
		a.limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMin: cfg.RateLimit.RequestsPerMin,
			Burst:          cfg.RateLimit.BurstSize,
			IdleTTL:        cfg.RateLimit.CleanupInterval,
		})
	}

	a.router = routes.SetupRouter(routes.Dependencies{
		Config:          cfg,
		Logger:          logger,
		TodoService:     todoService,
		Serializer:      serializer,
		AuthService:     a.auth,
		RegisterService: services.NewRegisterService(userRepo, cfg.Auth.BCryptCost),
		UserService:     services.NewUserService(userRepo, todoService),
		Monitor:         a.monitor,
		RateLimiter:     a.limiter,
	})
	return a, nil
}

// startBackground launches the rate limiter sweeper and session cleanup.
// With Redis, every replica ticks but only the first to claim a cleanup
// window enqueues the job; without Redis, every process purges on its own
// ticker.
func (a *app) startBackground(ctx context.Context) (stop func()) {
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(ctx)

	if a.limiter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.limiter.Run(ctx, a.cfg.RateLimit.CleanupInterval)
		}()
	}

	var w *worker.Worker
	interval := a.cfg.Worker.SessionCleanupInterval
	if a.redis != nil {
		w = worker.NewWorker(worker.Config{
			RedisClient: a.redis,
			Concurrency: a.cfg.Worker.Concurrency,
			Queues:      a.cfg.Worker.Queues,
			Logger:      a.logger,
		})
		w.RegisterHandler(worker.JobTypeSessionCleanup, worker.SessionCleanupHandler(a.auth, a.logger))
		w.Start(ctx)

		queue := worker.NewJobQueue(a.redis)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Every(ctx, interval, a.logger, "enqueue_session_cleanup", func(ctx context.Context) error {
				key := worker.TickKey(string(worker.JobTypeSessionCleanup), time.Now(), interval)
				_, _, err := queue.EnqueueOnce(ctx, key, interval, worker.DefaultQueue, worker.JobTypeSessionCleanup, nil)
				return err
			})
		}()
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Every(ctx, interval, a.logger, "session_cleanup", func(ctx context.Context) error {
				purged, err := a.auth.PurgeExpiredSessions(ctx)
				if err == nil && purged > 0 {
					a.logger.Info("expired sessions purged", slog.Int64("count", purged))
				}
				return err
			})
		}()
	}

	return func() {
		cancel()
		if w != nil {
			w.Stop()
		}
		wg.Wait()
	}
}

// run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *app) run(ctx context.Context) error {
	stopBackground := a.startBackground(ctx)
	defer stopBackground()

	srv := &http.Server{
		Addr:         a.cfg.GetServerAddr(),
		Handler:      a.router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server_listen",
			slog.String("addr", srv.Addr),
			slog.String("environment", a.cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func (a *app) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close cache", slog.String("error", err.Error()))
		}
	} else if a.redis != nil {
		_ = a.redis.Close()
	}
	if err := a.pool.Close(); err != nil {
		a.logger.Error("failed to close database", slog.String("error", err.Error()))
	}
}
