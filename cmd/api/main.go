package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/keyforge/backend/internal/config"
	"github.com/keyforge/backend/internal/database"
	"github.com/keyforge/backend/internal/handlers"
	"github.com/keyforge/backend/internal/keygen"
	"github.com/keyforge/backend/internal/middleware"
	"github.com/keyforge/backend/internal/models"
	"github.com/keyforge/backend/internal/queue"
	"github.com/keyforge/backend/internal/services"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg := config.Load()

	db, rdb, err := database.Connect(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db, rdb)

	if err := models.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	seedAdminUser(db, logger)

	blacklist := database.NewTokenBlacklist(rdb)

	// Core engine
	gen := keygen.NewGenerator(db)
	gate := services.NewGate(db)
	ledger := services.NewLedger(db)
	catalog := services.NewCatalog(db)
	licenses := services.NewLicenseService(db, gen, ledger, logger)
	renewals := services.NewRenewalEngine(db, gen)

	// Renewal reminder worker backed by the Redis queue
	reminderQueue := queue.NewRedis(rdb, "renewal-reminders")
	reminderService := services.NewReminderService(db, licenses, reminderQueue,
		services.LogNotifier{Logger: logger}, logger,
		time.Duration(cfg.ReminderIntervalMinutes)*time.Minute,
		cfg.ReminderLeadDays, cfg.ReminderBatchSize)
	reminderService.Start()

	app := fiber.New(fiber.Config{
		AppName:      "Keyforge API v1.0",
		ServerHeader: "Keyforge",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(middleware.Logger(logger))
	app.Use(middleware.CORS())

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "keyforge-api",
		})
	})

	// Initialize handlers
	licenseAPIHandler := handlers.NewLicenseAPIHandler(gate, ledger, catalog, cfg, db, logger)
	authHandler := handlers.NewAuthHandler(cfg, db, blacklist)
	twoFAHandler := handlers.NewTwoFAHandler(db)
	productHandler := handlers.NewProductHandler(db)
	licenseHandler := handlers.NewLicenseHandler(db, licenses, renewals, ledger, logger)
	releaseHandler := handlers.NewReleaseHandler(db)
	orderHandler := handlers.NewOrderHandler(db, licenses, logger)

	// API routes
	api := app.Group("/api")
	api.Use(middleware.RateLimiter(300, 1*time.Minute))

	// Public license endpoints consumed by installed products
	license := api.Group("/license")
	license.Post("/activate", licenseAPIHandler.Activate)
	license.Get("/activate", licenseAPIHandler.Activate)
	license.Post("/deactivate", licenseAPIHandler.Deactivate)
	license.Get("/deactivate", licenseAPIHandler.Deactivate)
	license.Get("/version", licenseAPIHandler.Version)
	license.Get("/download", licenseAPIHandler.Download)
	license.Get("/download/verify", licenseAPIHandler.VerifyDownload)

	// Public product endpoints
	api.Get("/products/:id/info", licenseAPIHandler.ProductInfo)
	api.Get("/products/:id/changelog", licenseAPIHandler.Changelog)

	// Admin login
	api.Post("/auth/login", authHandler.Login)

	// Protected admin routes
	protected := api.Group("", middleware.AuthRequired(cfg, db, blacklist))

	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/auth/me", authHandler.Me)
	protected.Post("/auth/refresh", authHandler.RefreshToken)
	protected.Put("/auth/password", authHandler.ChangePassword)

	protected.Get("/auth/2fa/status", twoFAHandler.Status)
	protected.Post("/auth/2fa/setup", twoFAHandler.Setup)
	protected.Post("/auth/2fa/verify", twoFAHandler.Verify)
	protected.Post("/auth/2fa/disable", twoFAHandler.Disable)

	products := protected.Group("/products")
	products.Get("/", productHandler.List)
	products.Get("/:id", productHandler.Get)
	products.Post("/", middleware.AdminOnly(), productHandler.Create)
	products.Put("/:id", middleware.AdminOnly(), productHandler.Update)
	products.Delete("/:id", middleware.AdminOnly(), productHandler.Delete)

	licenseKeys := protected.Group("/licenses")
	licenseKeys.Get("/", licenseHandler.List)
	licenseKeys.Get("/:id", licenseHandler.Get)
	licenseKeys.Post("/", middleware.AdminOnly(), licenseHandler.Create)
	licenseKeys.Post("/:id/disable", middleware.AdminOnly(), licenseHandler.Disable)
	licenseKeys.Get("/:id/renewal", licenseHandler.RenewalQuote)
	licenseKeys.Post("/:id/renew", middleware.AdminOnly(), licenseHandler.Renew)
	licenseKeys.Get("/:id/activations", licenseHandler.ListActivations)
	licenseKeys.Post("/:id/activations/:activationId/deactivate", licenseHandler.DeactivateActivation)

	releases := protected.Group("/releases")
	releases.Get("/", releaseHandler.List)
	releases.Get("/:id", releaseHandler.Get)
	releases.Post("/", middleware.AdminOnly(), releaseHandler.Create)
	releases.Put("/:id", middleware.AdminOnly(), releaseHandler.Update)
	releases.Post("/:id/publish", middleware.AdminOnly(), releaseHandler.Publish)
	releases.Post("/:id/pause", middleware.AdminOnly(), releaseHandler.Pause)
	releases.Post("/:id/archive", middleware.AdminOnly(), releaseHandler.Archive)

	orders := protected.Group("/orders")
	orders.Get("/", orderHandler.List)
	orders.Get("/:id", orderHandler.Get)
	orders.Post("/", orderHandler.Create)
	orders.Post("/:id/complete", orderHandler.Complete)
	orders.Post("/:id/refund", middleware.AdminOnly(), orderHandler.Refund)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info().Msg("shutting down server")
		reminderService.Stop()
		app.Shutdown()
	}()

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	logger.Info().Str("addr", addr).Msg("starting keyforge api server")
	if err := app.Listen(addr); err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}
}

func seedAdminUser(db *gorm.DB, logger zerolog.Logger) {
	var count int64
	db.Model(&models.User{}).Where("user_type = ?", models.UserTypeAdmin).Count(&count)
	if count > 0 {
		return
	}

	logger.Info().Msg("creating default admin user")

	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)

	admin := models.User{
		Username: "admin",
		Password: string(hashedPassword),
		Email:    "admin@keyforge.local",
		FullName: "System Administrator",
		UserType: models.UserTypeAdmin,
		IsActive: true,
	}

	if err := db.Create(&admin).Error; err != nil {
		logger.Error().Err(err).Msg("failed to create admin user")
		return
	}
	logger.Info().Msg("admin user created (username: admin, password: admin123)")
}
