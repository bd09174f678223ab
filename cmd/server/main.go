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

	"github.com/brightwire/cert-portal/config"
	"github.com/brightwire/cert-portal/internal/app/controller"
	"github.com/brightwire/cert-portal/internal/app/repository"
	"github.com/brightwire/cert-portal/internal/app/service"
	"github.com/brightwire/cert-portal/internal/db"
	"github.com/brightwire/cert-portal/internal/middleware"
	"github.com/brightwire/cert-portal/internal/router"
	"github.com/brightwire/cert-portal/internal/scheduler"
	"github.com/brightwire/cert-portal/internal/storage"
	"github.com/brightwire/cert-portal/internal/websocket"
	"github.com/brightwire/cert-portal/pkg/logger"
	"github.com/brightwire/cert-portal/pkg/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	logLevel := "info"
	logFormat := "json"
	if cfg.Server.Environment == "development" {
		logLevel = "debug"
		logFormat = "console"
	}
	logger.Initialize(logger.Config{
		Level:       logLevel,
		Format:      logFormat,
		EnableColor: true,
		Service:     "cert-portal",
	})

	logger.Info("Starting certificate portal server", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   logLevel,
	})

	// Initialize database
	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	// Token blacklist is optional; without it logout is client-side only
	var revoker service.TokenRevoker
	var revocations middleware.RevocationChecker
	if cfg.Redis.Enabled() {
		if err := redis.Init(&cfg.Redis); err != nil {
			logger.Fatal("Failed to initialize Redis", err)
		}
		defer redis.Close()
		tokens := redis.NewTokenStore(redis.GetClient())
		revoker = tokens
		revocations = tokens
	} else {
		logger.Warn("Redis is not configured, access tokens stay valid until they expire")
	}

	var store service.ObjectStore
	if cfg.PDF.RenderURL != "" {
		store = storage.NewS3Storage(cfg.S3.Region, cfg.S3.Bucket, cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, cfg.S3.BaseURL)
	} else {
		logger.Warn("PDF_RENDER_URL is not set, approved certificates will not get a PDF")
	}

	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	// Initialize repositories
	database := db.GetDB()
	userRepo := repository.NewUserRepository(database)
	propertyRepo := repository.NewPropertyRepository(database)
	certRepo := repository.NewCertificateRepository(database)
	requestRepo := repository.NewCertificateRequestRepository(database)
	notificationRepo := repository.NewNotificationRepository(database)

	// Initialize services
	notificationService := service.NewNotificationService(notificationRepo, userRepo, hub)
	propertyService := service.NewPropertyService(propertyRepo)
	authService := service.NewAuthService(
		userRepo,
		propertyRepo,
		revoker,
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)
	pdfService := service.NewPDFService(certRepo, store, notificationService, service.PDFConfig{
		RenderURL:     cfg.PDF.RenderURL,
		RenderTimeout: cfg.PDF.RenderTimeout,
		PresignExpiry: cfg.S3.PresignExpiry,
	})
	certificateService := service.NewCertificateService(certRepo, propertyService, notificationService, pdfService)
	requestService := service.NewCertificateRequestService(requestRepo, certRepo, userRepo, propertyService, notificationService)
	renewalService := service.NewRenewalService(certRepo, notificationService, cfg.Renewal.DefaultHorizonMonths, nil)

	// Initialize controllers
	controllers := router.Controllers{
		Auth:               controller.NewAuthController(authService),
		Certificate:        controller.NewCertificateController(certificateService, pdfService),
		Renewal:            controller.NewRenewalController(renewalService),
		CertificateRequest: controller.NewCertificateRequestController(requestService),
		Property:           controller.NewPropertyController(propertyService, authService),
		Admin:              controller.NewAdminController(authService),
		Notification:       controller.NewNotificationController(notificationService),
		WebSocket:          controller.NewWebSocketController(hub, cfg.CORS.AllowedOrigins),
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret, revocations)
	engine := router.NewRouter(controllers, authMiddleware, cfg).Setup()

	if cfg.Renewal.RemindersEnabled {
		renewalScheduler := scheduler.NewRenewalScheduler(renewalService, cfg.Renewal.CronSpec)
		if err := renewalScheduler.Start(); err != nil {
			logger.Fatal("Failed to start renewal scheduler", err)
		}
		defer renewalScheduler.Stop()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server started successfully", map[string]interface{}{
			"address": srv.Addr,
			"pid":     os.Getpid(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shut down", err)
	}

	// let in-flight renders store their PDF before the database closes
	pdfService.Wait()

	logger.Info("Server stopped successfully")
}
