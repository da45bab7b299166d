package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/prompter/internal/config"
	"github.com/xxxsen/prompter/internal/db"
	"github.com/xxxsen/prompter/internal/docindex"
	"github.com/xxxsen/prompter/internal/embedcache"
	"github.com/xxxsen/prompter/internal/filestore"
	"github.com/xxxsen/prompter/internal/handler"
	"github.com/xxxsen/prompter/internal/job"
	"github.com/xxxsen/prompter/internal/middleware"
	"github.com/xxxsen/prompter/internal/repo"
	"github.com/xxxsen/prompter/internal/schedule"
	"github.com/xxxsen/prompter/internal/service"
	"github.com/xxxsen/prompter/internal/vectorindex"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "prompter",
		Short: "prompter document index backend",
	}
	rootCmd.AddCommand(newRunCmd(), newCacheCmd())

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func newRunCmd() *cobra.Command {
	var configPath string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run prompter server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
			return runServer(cfg)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	return runCmd
}

func openCacheStore(cfg *config.Config) (service.CacheStore, *repo.EmbeddingCacheRepo, error) {
	if cfg.Storage.Type != config.StorageDB {
		store, err := filestore.New(cfg.Storage)
		if err != nil {
			return nil, nil, fmt.Errorf("init blob store: %w", err)
		}
		return service.NewFileCacheStore(store), nil, nil
	}
	conn, err := db.Open(cfg.Storage.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn, cfg.Storage.Database.Driver); err != nil {
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	cacheRepo := repo.NewEmbeddingCacheRepo(conn, cfg.Storage.Database.Driver)
	return cacheRepo, cacheRepo, nil
}

func runServer(cfg *config.Config) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("storage", cfg.Storage.Type),
		zap.String("metric", cfg.Index.Metric),
		zap.Int("cache_max_size", cfg.Cache.MaxSize),
	)

	cacheStore, cacheRepo, err := openCacheStore(cfg)
	if err != nil {
		return err
	}
	metric, err := vectorindex.MetricByName(cfg.Index.Metric)
	if err != nil {
		return err
	}
	hasher := embedcache.NewHasher()
	sessions := service.NewSessionService(cacheStore, hasher, service.SessionOptions{
		MaxSize:     cfg.Cache.MaxSize,
		MaxSessions: cfg.Cache.MaxSessions,
		TTL:         time.Duration(cfg.Cache.SessionTTLSeconds) * time.Second,
	})
	runs := service.NewDocumentIndexService(sessions, docindex.NewExecutor(hasher, metric), service.DocumentIndexOptions{
		Timeout:     time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
		Concurrency: cfg.Provider.Concurrency,
	})

	scheduler := schedule.NewCronScheduler()
	flushJob := job.NewSessionFlushJob(sessions)
	if err := scheduler.AddJob(flushJob, cfg.Cache.FlushCron); err != nil {
		return fmt.Errorf("schedule %s: %w", flushJob.Name(), err)
	}
	if cacheRepo != nil {
		cleanupJob := job.NewEmbeddingCacheCleanupJob(cacheRepo, cfg.Cache.MaxAgeDays)
		if err := scheduler.AddJob(cleanupJob, cfg.Cache.CleanupCron); err != nil {
			return fmt.Errorf("schedule %s: %w", cleanupJob.Name(), err)
		}
	}

	deps := handler.RouterDeps{
		EmbeddingCache: handler.NewEmbeddingCacheHandler(sessions),
		DocumentIndex:  handler.NewDocumentIndexHandler(runs),
		RunRateLimit:   time.Duration(cfg.RunRateLimitMs) * time.Millisecond,
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSAllowOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	scheduler.Start(ctx)

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	scheduler.Stop()
	if err := scheduler.RunNow(context.Background(), flushJob.Name()); err != nil {
		logutil.GetLogger(context.Background()).Error("final session flush failed", zap.Error(err))
	}
	return nil
}
