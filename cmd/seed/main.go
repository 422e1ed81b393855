package main

import (
	"context"
	"log"
	"time"

	"docflow/internal/models"
	"docflow/internal/repository"
	"docflow/pkg/auth"
	"docflow/pkg/config"
	"docflow/pkg/logger"
	"docflow/pkg/postgres"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Seeds the initial accounts. Safe to run repeatedly: existing emails
// are skipped.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.RunMigrations(&cfg.Database, appLogger); err != nil {
		appLogger.Fatal("Failed to run migrations", zap.Error(err))
	}

	userRepo := repository.NewUserRepository(db, appLogger)

	seeds := []struct {
		email    string
		name     string
		password string
		role     models.Role
	}{
		{"admin@docflow.local", "Administrador", "admin12345", models.RoleAdmin},
		{"operativo@docflow.local", "Operativo", "operativo12345", models.RoleOperator},
		{"revisor@docflow.local", "Revisor", "revisor12345", models.RoleReviewer},
	}

	for _, seed := range seeds {
		if _, err := userRepo.GetByEmail(ctx, seed.email); err == nil {
			appLogger.Info("User already exists, skipping", zap.String("email", seed.email))
			continue
		} else if err != repository.ErrNotFound {
			appLogger.Fatal("Failed to check user", zap.String("email", seed.email), zap.Error(err))
		}

		hash, err := auth.HashPassword(seed.password)
		if err != nil {
			appLogger.Fatal("Failed to hash password", zap.Error(err))
		}

		now := time.Now()
		user := &models.User{
			ID:        uuid.New(),
			Email:     seed.email,
			Name:      seed.name,
			Password:  hash,
			Role:      seed.role,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := userRepo.Create(ctx, user); err != nil {
			appLogger.Fatal("Failed to create user", zap.String("email", seed.email), zap.Error(err))
		}
		appLogger.Info("User created",
			zap.String("email", seed.email),
			zap.String("role", string(seed.role)),
		)
	}

	appLogger.Info("Seeding completed")
}
