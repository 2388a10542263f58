package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/safemindhq/safemind/internal/api"
	"github.com/safemindhq/safemind/internal/config"
	"github.com/safemindhq/safemind/internal/core"
	"github.com/safemindhq/safemind/internal/store"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	logger := newLogger(config.AppConfig.LogLevel)
	defer logger.Sync()

	// Command line flag for corpus ingestion
	ingestPath := flag.String("ingest", "", "Ingest a plain-text corpus file into the knowledge collection and exit")
	flag.Parse()

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer dbStore.Close()

	// Initialize LLM service
	llmService, err := core.NewLLMService(logger)
	if err != nil {
		logger.Fatal("failed to initialize LLM service", zap.Error(err))
	}
	defer llmService.Close()

	// Handle corpus ingestion if requested
	if *ingestPath != "" {
		logger.Info("starting corpus ingestion", zap.String("path", *ingestPath))
		numIngested, err := core.IngestPassagesFromFile(context.Background(), dbStore, llmService, *ingestPath, logger)
		if err != nil {
			logger.Fatal("corpus ingestion failed", zap.Error(err))
		}
		logger.Info("corpus ingestion complete, exiting", zap.Int("passages", numIngested))
		os.Exit(0)
	}

	// Initialize retrieval and turn pipeline
	retriever, err := core.NewEmbeddingRetriever(dbStore, llmService, logger)
	if err != nil {
		logger.Fatal("failed to initialize retriever", zap.Error(err))
	}
	ragService := core.NewRAGService(retriever, llmService, logger)
	classifier := core.NewClassifier(llmService, logger)
	turnService := core.NewTurnService(dbStore, classifier, ragService, llmService, llmService, logger)

	// Initialize Chat service, API Handler and Router
	chatService := core.NewChatService(dbStore, logger)
	apiHandler := api.NewAPIHandler(chatService, turnService, logger)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: turn responses stream for as long as generation runs.
		IdleTimeout: 120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("starting server", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give active connections (including in-flight streams) time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting gracefully")
}

func newLogger(level string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if level == "DEBUG" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	return logger
}
