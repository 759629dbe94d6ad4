package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"document-insights-backend/internal/ai"
	"document-insights-backend/internal/config"
	"document-insights-backend/internal/logger"
	"document-insights-backend/internal/telemetry"
	"document-insights-backend/middleware"
	"document-insights-backend/routes"
	"document-insights-backend/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("document-insights-backend", cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("Tracing disabled", "error", err)
		} else {
			defer shutdown()
		}
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Gemini client backing both the answer stream and visualization requests
	geminiClient, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTier)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer geminiClient.Close()

	// Retrieval, optionally wrapped with the Redis result cache
	var retriever services.Retriever = services.NewMongoRetriever(db, cfg)
	if cfg.CacheEnabled {
		rdb, err := config.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Retrieval cache disabled", "error", err)
		} else {
			defer rdb.Close()
			retriever = services.NewCachedRetriever(retriever, rdb, time.Duration(cfg.CacheTTL)*time.Second)
		}
	}

	store := services.NewJobStore()

	var viz *services.VisualizationService
	if cfg.VizEnabled {
		viz = services.NewVisualizationService(geminiClient, cfg.VizContextChars, metrics)
	}

	orchestrator := services.NewOrchestrator(store, retriever, geminiClient, viz, cfg.RetrievalTopK, metrics)

	// Periodic job eviction
	cleanup, err := services.NewCleanupService(store,
		time.Duration(cfg.JobMaxAge)*time.Second,
		time.Duration(cfg.JobSweepInterval)*time.Second)
	if err != nil {
		log.Fatal("Failed to schedule job eviction:", err)
	}
	cleanup.Start()
	defer cleanup.Stop()

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(otelgin.Middleware("document-insights-backend"))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":            "healthy",
			"gemini_configured": cfg.GeminiAPIKey != "",
			"gemini_model":      cfg.GeminiModel,
			"timestamp":         time.Now(),
		})
	})

	// Setup routes
	routes.SetupAskRoutes(router, store, metrics)
	routes.SetupStreamRoutes(router, store, orchestrator)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
