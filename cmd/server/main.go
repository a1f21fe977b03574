package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nhalege/backend/internal/config"
	"github.com/nhalege/backend/internal/database"
	"github.com/nhalege/backend/internal/handlers"
	"github.com/nhalege/backend/internal/middleware"
	"github.com/nhalege/backend/internal/services"
	"github.com/nhalege/backend/internal/storage"
	"github.com/nhalege/backend/pkg/logger"
	"github.com/nhalege/backend/pkg/utils"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.PendingTTL)
	utils.ConfigureHashing(cfg.Server.BcryptCost)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Printf("database close failed: %v", err)
		}
	}()

	var storageClient *storage.MinIOClient
	if cfg.Audit.ExportEnabled {
		storageClient, err = storage.NewMinIOClient(cfg.MinIO)
		if err != nil {
			log.Fatalf("minio initialization failed: %v", err)
		}
		if err := storageClient.EnsureBucket(context.Background()); err != nil {
			log.Fatalf("failed ensuring minio bucket: %v", err)
		}
	}

	auditService := services.NewAuditService(db, storageClient)
	auditService.StartExporter(cfg.Audit.ExportInterval)
	otpService := services.NewOTPService(db, services.NewLogSender(), cfg.OTP)

	authHandler := handlers.NewAuthHandler(db, auditService)
	mfaHandler := handlers.NewMFAHandler(db, otpService, auditService)
	usersHandler := handlers.NewUsersHandler(db, auditService)
	statusHandler := handlers.NewStatusHandler(db)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{AppName: "Nhalege Capital API"})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Get("/", handlers.Root)
	api.Post("/status", statusHandler.Create)
	api.Get("/status", statusHandler.List)

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	mfaRoutes := api.Group("/mfa")
	mfaRoutes.Post("/send-code", mfaHandler.SendCode)
	mfaRoutes.Post("/verify-code", mfaHandler.VerifyCode)
	mfaRoutes.Post("/send-admin-code", authMiddleware.RequireAuth, middleware.RequireAdmin, mfaHandler.SendAdminCode)
	mfaRoutes.Post("/verify-admin-code", authMiddleware.RequireAuth, middleware.RequireAdmin, mfaHandler.VerifyAdminCode)

	api.Put("/user/settings", authMiddleware.RequireAuth, usersHandler.UpdateSettings)

	adminRoutes := api.Group("/admin", authMiddleware.RequireAuth, middleware.RequireAdmin)
	adminRoutes.Get("/users", usersHandler.List)
	adminRoutes.Get("/otp-log", usersHandler.OTPLog)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
