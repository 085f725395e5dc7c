package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/donor-reports-dashboard/api/swagger"
	"github.com/noah-isme/donor-reports-dashboard/internal/handler"
	"github.com/noah-isme/donor-reports-dashboard/internal/middleware"
	"github.com/noah-isme/donor-reports-dashboard/internal/repository"
	"github.com/noah-isme/donor-reports-dashboard/internal/service"
	"github.com/noah-isme/donor-reports-dashboard/pkg/config"
	"github.com/noah-isme/donor-reports-dashboard/pkg/logger"
	corsmiddleware "github.com/noah-isme/donor-reports-dashboard/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/donor-reports-dashboard/pkg/middleware/requestid"
	"github.com/noah-isme/donor-reports-dashboard/pkg/storage"
)

// @title Donor Reports Dashboard
// @version 1.0.0
// @description Upload donor spreadsheets, follow report generation and browse generated donor reports
// @BasePath /
// @schemes http

const shutdownTimeout = 10 * time.Second

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}

	backend, err := repository.NewReportBackendRepository(cfg.Backend.BaseURL, cfg.Backend.Timeout, metricsSvc)
	if err != nil {
		logr.Sugar().Fatalw("invalid report backend configuration", "error", err)
	}
	staging, err := storage.NewStagingArea(cfg.Upload.StagingDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare staging area", "error", err)
	}
	signer := storage.NewLinkSigner(cfg.Reports.SigningSecret, cfg.Reports.DownloadLinkTTL)
	validate := validator.New()

	uploads := service.NewUploadService(staging, backend, metricsSvc, validate, logr, service.UploadServiceConfig{
		MaxFileSize:  cfg.Upload.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Upload.AllowedMIMEs,
		StagingTTL:   cfg.Upload.StagingTTL,
	})

	newDashboard := func(id string) *service.Dashboard {
		poller := service.NewProgressPoller(backend, metricsSvc, logr, service.ProgressPollerConfig{Interval: cfg.Poller.Interval})
		table := service.NewReportTable(backend, logr, service.ReportTableConfig{PageSize: cfg.Reports.PageSize})
		return service.NewDashboard(ctx, id, uploads, poller, table, signer, backend, logr, service.DashboardConfig{
			NotificationTTL:   cfg.Dashboard.NotificationTTL,
			RefreshOnComplete: cfg.Dashboard.RefreshOnComplete,
		})
	}
	sessions := service.NewSessionRegistry(newDashboard, uploads, metricsSvc, logr, service.SessionRegistryConfig{
		IdleTTL:         cfg.Session.IdleTTL,
		CleanupInterval: cfg.Session.CleanupInterval,
	})
	sessions.StartCleanup(ctx)
	defer sessions.Shutdown()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if metricsSvc != nil {
		r.Use(middleware.Metrics(metricsSvc))
	}

	metricsHandler := handler.NewMetricsHandler(metricsSvc, sessions)
	pageHandler := handler.NewPageHandler(sessions, cfg.Session.CookieName, cfg.Session.IdleTTL, cfg.Env == config.EnvProduction)
	dashboardHandler := handler.NewDashboardHandler(validate, cfg.Upload.MaxFileSizeBytes)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if metricsSvc != nil {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.GET("/", pageHandler.Index)
	r.GET("/favicon.ico", pageHandler.Favicon)

	dashboard := r.Group("/dashboard", middleware.Session(sessions, cfg.Session.CookieName))
	dashboard.GET("", dashboardHandler.Show)
	dashboard.POST("/file", dashboardHandler.SelectFile)
	dashboard.DELETE("/file", dashboardHandler.RemoveFile)
	dashboard.POST("/generate", dashboardHandler.Generate)
	dashboard.GET("/progress", dashboardHandler.Progress)
	dashboard.DELETE("/notifications/:kind", dashboardHandler.Dismiss)
	dashboard.GET("/reports", dashboardHandler.Reports)
	dashboard.PUT("/reports/page", dashboardHandler.SetPage)
	dashboard.PUT("/reports/search", dashboardHandler.SetSearch)
	dashboard.POST("/reports/refresh", dashboardHandler.Refresh)
	dashboard.GET("/reports/download", dashboardHandler.Download)

	if err := run(ctx, r, fmt.Sprintf(":%d", cfg.Port), cfg, logr); err != nil {
		logr.Sugar().Errorw("server failed", "error", err)
	}
}

func run(ctx context.Context, h http.Handler, addr string, cfg *config.Config, logr *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "backend", cfg.Backend.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Sugar().Infow("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logr.Sugar().Infow("server stopped")
	return nil
}
