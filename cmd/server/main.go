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
	"github.com/pixelmint/pixelmint-server/internal/api"
	"github.com/pixelmint/pixelmint-server/internal/config"
	"github.com/pixelmint/pixelmint-server/internal/imagegen"
	"github.com/pixelmint/pixelmint-server/internal/payment"
	"github.com/pixelmint/pixelmint-server/internal/ratelimit"
	"github.com/pixelmint/pixelmint-server/internal/repository"
	"github.com/pixelmint/pixelmint-server/internal/service"
	"github.com/pixelmint/pixelmint-server/internal/utils"
	"github.com/pixelmint/pixelmint-server/internal/worker"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Set up database connection
	db, err := config.SetupDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to set up database: %v", err)
	}
	defer db.Close()

	// Set up Redis (rate-limit counters)
	redisClient, err := config.SetupRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to set up redis: %v", err)
	}
	defer redisClient.Close()

	// Create repository
	repo := repository.NewPostgresRepository(db)

	// Create collaborators
	limiter := ratelimit.NewRedisLimiter(redisClient, cfg.Credits.RateLimitMax, cfg.Credits.RateLimitWindow)
	payments := payment.NewOfflineProcessor()
	generator := imagegen.NewSimulatedGenerator()

	// Create service
	svc := service.NewDefaultService(repo, limiter, payments, cfg.Credits, cfg.Auth.JWTSecret)

	// Start the background job processor
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	processor := worker.NewProcessor(repo, generator, svc.Credits(), utils.NewLogger("worker"), cfg.Worker)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		processor.Run(ctx)
	}()

	// Create API handler
	handler := api.NewHandler(svc)

	// Set up Gin router
	router := gin.Default()

	// Add middleware for JWT secret
	router.Use(func(c *gin.Context) {
		c.Set("jwtSecret", []byte(cfg.Auth.JWTSecret))
		c.Next()
	})

	// Set up routes
	handler.SetupRoutes(router)

	// Start server
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{Addr: serverAddr, Handler: router}

	go func() {
		log.Printf("Starting server on %s", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal, then drain the server and the worker
	<-ctx.Done()
	log.Printf("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	<-workerDone
}
