package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/edugen-studio/api/swagger"
	"github.com/noah-isme/edugen-studio/internal/handler"
	internalmiddleware "github.com/noah-isme/edugen-studio/internal/middleware"
	"github.com/noah-isme/edugen-studio/internal/repository"
	"github.com/noah-isme/edugen-studio/internal/service"
	"github.com/noah-isme/edugen-studio/pkg/cache"
	"github.com/noah-isme/edugen-studio/pkg/config"
	"github.com/noah-isme/edugen-studio/pkg/database"
	"github.com/noah-isme/edugen-studio/pkg/logger"
	corsmiddleware "github.com/noah-isme/edugen-studio/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/edugen-studio/pkg/middleware/requestid"
	"github.com/noah-isme/edugen-studio/pkg/storage"
)

// @title EduGen Studio API
// @version 1.0.0
// @description Local studio for generating, reviewing and downloading educational content.
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsSvc := service.NewMetricsService()

	backend, err := service.NewBackendClient(cfg.Backend, nil, metricsSvc, logr.Named("backend"))
	if err != nil {
		logr.Fatal("invalid backend configuration", zap.Error(err))
	}

	workspaceRepo, closeWorkspace := openWorkspaceStore(ctx, cfg, logr)
	defer closeWorkspace()

	journal, closeJournal := openJournal(ctx, cfg, logr)
	defer closeJournal()

	spool, err := storage.NewLocalStorage(cfg.Downloads.TempDir)
	if err != nil {
		logr.Fatal("failed to prepare download spool", zap.Error(err))
	}
	exportStore, err := storage.NewLocalStorage(cfg.Exports.Dir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}

	workspaceSvc := service.NewWorkspaceService(workspaceRepo, metricsSvc, cfg.Workspace.TTL, logr.Named("workspace"))
	formSvc := service.NewFormService(validator.New(), logr.Named("form"))
	generationSvc := service.NewGenerationService(formSvc, workspaceSvc, backend, metricsSvc, logr.Named("generation"))
	historySvc := service.NewHistoryService(backend, logr.Named("history"))
	var downloadJournal service.DownloadJournal
	if journal != nil {
		downloadJournal = journal
	}
	downloadSvc := service.NewDownloadService(backend, spool, downloadJournal, metricsSvc, logr.Named("download"))
	exportSvc := service.NewExportService(
		exportStore,
		storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL},
		logr.Named("export"),
		nil,
		nil,
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr.Named("http"), "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, backend, generationSvc)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), routeHandlers{
		form:    handler.NewFormHandler(generationSvc),
		review:  handler.NewReviewHandler(generationSvc, exportSvc),
		history: handler.NewHistoryHandler(historySvc, downloadSvc),
		metrics: metricsHandler,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("backend", cfg.Backend.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

type routeHandlers struct {
	form    *handler.FormHandler
	review  *handler.ReviewHandler
	history *handler.HistoryHandler
	metrics *handler.MetricsHandler
}

func registerRoutes(api *gin.RouterGroup, h routeHandlers) {
	api.GET("/form", h.form.Get)
	api.PATCH("/form", h.form.Patch)
	api.PUT("/form", h.form.Put)
	api.POST("/generate", h.form.Generate)
	api.DELETE("/workspace", h.form.Reset)

	api.GET("/review", h.review.Get)
	api.DELETE("/review", h.review.Discard)
	api.POST("/review/save", h.review.Save)
	api.POST("/review/export", h.review.Export)
	api.GET("/export/:token", h.review.ServeExport)

	api.GET("/history", h.history.List)
	api.GET("/history/state", h.history.State)
	api.GET("/history/:id/download", h.history.Download)
	api.GET("/downloads", h.history.Journal)

	api.GET("/stats", h.metrics.Stats)
}

// openWorkspaceStore picks the workspace backend, falling back to memory when Redis is unreachable.
func openWorkspaceStore(ctx context.Context, cfg *config.Config, logr *zap.Logger) (service.WorkspaceRepository, func()) {
	if cfg.Workspace.Store != config.WorkspaceStoreRedis {
		return repository.NewMemoryWorkspaceRepository(), func() {}
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, keeping workspace in memory", zap.Error(err))
		return repository.NewMemoryWorkspaceRepository(), func() {}
	}
	repo := repository.NewRedisWorkspaceRepository(client, cfg.Workspace.Key, logr.Named("workspace_store"))
	return repo, func() { closeRedis(repo, logr) }
}

func closeRedis(repo *repository.RedisWorkspaceRepository, logr *zap.Logger) {
	if err := repo.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		logr.Warn("failed to close redis", zap.Error(err))
	}
}

// openJournal connects the optional download journal and starts its background writer.
func openJournal(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*service.JournalWriter, func()) {
	if !cfg.Journal.Enabled {
		return nil, func() {}
	}
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Warn("download journal disabled", zap.Error(err))
		return nil, func() {}
	}
	repo := repository.NewDownloadRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		logr.Warn("download journal disabled", zap.Error(err))
		closeDB(db, logr)
		return nil, func() {}
	}
	writer := service.NewJournalWriter(repo, 3, 2*time.Second, logr.Named("journal"))
	writer.Start(context.WithoutCancel(ctx))
	return writer, func() {
		writer.Stop()
		closeDB(db, logr)
	}
}

func closeDB(db *sqlx.DB, logr *zap.Logger) {
	if err := db.Close(); err != nil {
		logr.Warn("failed to close database", zap.Error(err))
	}
}
