package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"dev/bravebird/page-verifier/pkg/api"
	"dev/bravebird/page-verifier/pkg/database"
	"dev/bravebird/page-verifier/pkg/logging"
)

func main() {
	logger, err := logging.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Page Verification API Server")

	// Get configuration from environment
	port := getEnvOrDefault("API_PORT", "8090")
	mysqlDSN := getEnvOrDefault("MYSQL_DSN", "verifier:verifier@tcp(localhost:3306)/verifier?parseTime=true")
	temporalHost := getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	screenshotDir := getEnvOrDefault("SCREENSHOT_DIR", "/tmp/screenshots")

	// Initialize database
	var store api.RunStore
	db, err := database.New(mysqlDSN)
	if err != nil {
		logger.Warn("Failed to connect to database, running without persistence", zap.Error(err))
	} else {
		defer db.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := db.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
		cancel()
		store = db
	}

	// Initialize Temporal client
	temporalClient, err := client.Dial(client.Options{
		HostPort: temporalHost,
		Logger:   logging.NewTemporalLogger(logger),
	})
	if err != nil {
		logger.Fatal("Failed to create Temporal client", zap.Error(err))
	}
	defer temporalClient.Close()

	handlers := api.NewHandlers(store, temporalClient, screenshotDir, logger)
	router := api.NewRouter(handlers)

	// Setup CORS
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      c.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("API server listening", zap.String("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("Server stopped")
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
