package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/vidinsight/api/internal/client"
	"github.com/vidinsight/api/internal/config"
	"github.com/vidinsight/api/internal/handler"
	"github.com/vidinsight/api/internal/middleware"
	"github.com/vidinsight/api/internal/pipeline"
	"github.com/vidinsight/api/internal/store"
	ws "github.com/vidinsight/api/internal/websocket"
	"github.com/vidinsight/api/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client (notification bus)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}
	notifier := store.NewNotifier(redisClient)

	// Job record store
	recordStore, err := store.Open(cfg.Postgres.DSN, notifier)
	if err != nil {
		log.Fatalf("Failed to open job record store: %v", err)
	}
	defer recordStore.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub and start relaying change events
	hub := ws.NewHub()
	go hub.Run()
	go hub.Relay(ctx, notifier)

	// External clients
	geminiClient := client.NewGeminiClient(&cfg.Gemini)
	if !geminiClient.IsConfigured() {
		log.Println("Warning: Gemini API key not configured, analysis will fail")
	}

	// Initialize R2 client (optional - continues if not configured)
	var storageClient client.StorageClient
	if cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.Storage)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			storageClient = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, uploads disabled")
	}

	// Pipeline orchestrator + dispatcher
	orch := pipeline.NewOrchestrator(recordStore, storageClient, geminiClient)
	dispatcher := pipeline.NewDispatcher(orch, notifier)
	go dispatcher.Start(ctx)

	// Handlers
	analyzeHandler := handler.NewAnalyzeHandler(orch)
	videoHandler := handler.NewVideoHandler(recordStore, storageClient, validate)

	// Rate limiting
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    512 * 1024 * 1024, // videos are big
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"gemini":  geminiClient.IsConfigured(),
				"storage": storageClient != nil,
				"redis":   redisClient.Ping(c.Context()).Err() == nil,
			},
		})
	})

	// API routes
	api := app.Group("/api")

	// Pipeline trigger (store webhook or direct invocation)
	api.Post("/analyze", rateLimiter.AnalyzeLimit(30), analyzeHandler.Trigger)

	// Video routes
	api.Post("/videos", rateLimiter.UploadLimit(20), videoHandler.Create)
	api.Get("/videos/:id", videoHandler.Get)
	api.Delete("/videos/:id", videoHandler.Delete)
	api.Get("/videos/:id/analysis", videoHandler.GetAnalysis)
	api.Get("/analysis/latest", videoHandler.Latest)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/videos/:id", websocket.New(func(c *websocket.Conn) {
		videoID := c.Params("id")
		hub.HandleConnection(c, videoID)
	}))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(response.ErrorResponse{
		Error: message,
	})
}
