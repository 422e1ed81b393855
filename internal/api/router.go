package api

import (
	"docflow/docs"
	"docflow/internal/api/handlers"
	"docflow/internal/models"
	"docflow/pkg/auth"
	"docflow/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"
)

func SetupRouter(
	authHandler *handlers.AuthHandler,
	docHandler *handlers.DocumentHandler,
	batchHandler *handlers.BatchHandler,
	adminHandler *handlers.AdminHandler,
	jwtManager *auth.JWTManager,
	bodyLimit int,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit: bodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(logger.New())

	_ = docs.SwaggerInfo // ensure docs package is imported and init() is called
	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Public
	authGroup := app.Group("/api/auth")
	authGroup.Post("/login", authHandler.Login)

	// Authenticated
	protected := app.Group("/api", middleware.AuthMiddleware(jwtManager, appLogger))
	protected.Get("/auth/me", authHandler.Me)

	documents := protected.Group("/documents")
	documents.Post("/upload", docHandler.Upload)
	documents.Get("", docHandler.List)
	documents.Post("/analyze-all", docHandler.AnalyzeAll)
	documents.Get("/suggest-batches", docHandler.SuggestBatches)
	documents.Get("/:id", docHandler.Get)
	documents.Get("/:id/download", docHandler.Download)
	documents.Post("/:id/analyze", docHandler.Analyze)
	documents.Put("/:id/replace", docHandler.Replace)
	documents.Delete("/:id", docHandler.Delete)

	batches := protected.Group("/batches")
	batches.Post("", batchHandler.Create)
	batches.Get("", batchHandler.List)
	batches.Get("/:id", batchHandler.Get)
	batches.Post("/:id/members", batchHandler.AddMember)
	batches.Delete("/:id/members/:documentId", batchHandler.RemoveMember)
	batches.Post("/:id/generate-pdf", batchHandler.GeneratePDF)
	batches.Post("/:id/regenerate-pdf", batchHandler.RegeneratePDF)

	pdfs := protected.Group("/pdfs")
	pdfs.Get("", batchHandler.ListArtifacts)
	pdfs.Get("/:id/download", batchHandler.DownloadArtifact)

	// Admin
	admin := protected.Group("/admin")
	admin.Post("/users", middleware.RequireRoles(string(models.RoleAdmin)), adminHandler.CreateUser)
	admin.Get("/users", middleware.RequireRoles(string(models.RoleAdmin)), adminHandler.ListUsers)
	admin.Put("/users/:id/active", middleware.RequireRoles(string(models.RoleAdmin)), adminHandler.SetUserActive)
	admin.Get("/audit", middleware.RequireRoles(string(models.RoleAdmin), string(models.RoleReviewer)), adminHandler.AuditLogs)
	admin.Get("/dashboard", middleware.RequireRoles(string(models.RoleAdmin), string(models.RoleReviewer)), adminHandler.Dashboard)

	return app
}
