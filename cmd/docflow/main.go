package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"docflow/internal/api"
	"docflow/internal/api/handlers"
	"docflow/internal/pdf"
	"docflow/internal/repository"
	"docflow/internal/service"
	"docflow/pkg/auth"
	"docflow/pkg/config"
	"docflow/pkg/logger"
	"docflow/pkg/postgres"

	"go.uber.org/zap"
)

// @title DocFlow API
// @version 1.0
// @description Consolidación de documentos contables con extracción asistida por IA

// @contact.name API Support
// @contact.email support@docflow.local

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting DocFlow service")

	// Initialize database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.RunMigrations(&cfg.Database, appLogger); err != nil {
		appLogger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db, appLogger)
	docRepo := repository.NewDocumentRepository(db, appLogger)
	batchRepo := repository.NewBatchRepository(db, appLogger)
	artifactRepo := repository.NewArtifactRepository(db, appLogger)
	auditRepo := repository.NewAuditRepository(db, appLogger)

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration, cfg.JWT.RefreshExp)

	// Initialize services
	auditService := service.NewAuditService(auditRepo, appLogger)
	authService := service.NewAuthService(userRepo, jwtManager, appLogger)

	extractionService, err := service.NewExtractionService(&cfg.GigaChat, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize extraction service", zap.Error(err))
	}
	defer extractionService.Close()

	pdfOps := pdf.NewProcessor()

	splitterService := service.NewSplitterService(docRepo, extractionService, pdfOps, cfg.Extraction, appLogger)
	lifecycleService := service.NewLifecycleService(docRepo, batchRepo, extractionService, splitterService, pdfOps, cfg.Extraction, appLogger)

	aiCorrelator := service.NewAICorrelator(extractionService, appLogger)
	heuristicCorrelator := service.NewHeuristicCorrelator()
	correlationService := service.NewCorrelationService(docRepo, aiCorrelator, heuristicCorrelator, appLogger)

	batchService := service.NewBatchService(docRepo, batchRepo, appLogger)
	consolidationService := service.NewConsolidationService(docRepo, batchRepo, artifactRepo, pdfOps, appLogger)
	statsService := service.NewStatsService(docRepo, batchRepo, artifactRepo)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, auditService, appLogger)
	docHandler := handlers.NewDocumentHandler(lifecycleService, correlationService, auditService, cfg.Upload, appLogger)
	batchHandler := handlers.NewBatchHandler(batchService, consolidationService, auditService, appLogger)
	adminHandler := handlers.NewAdminHandler(authService, auditService, statsService, appLogger)

	// Setup router
	app := api.SetupRouter(authHandler, docHandler, batchHandler, adminHandler, jwtManager, int(cfg.Upload.MaxTotalSize), appLogger)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
