package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/channel-access-ledger/internal/api_gateway"
	"github.com/channel-access-ledger/internal/api_gateway/handler"
	"github.com/channel-access-ledger/internal/api_gateway/service"
	"github.com/channel-access-ledger/internal/config"
	"github.com/channel-access-ledger/internal/data/mongo"
	"github.com/channel-access-ledger/internal/data/postgres"
	"github.com/channel-access-ledger/internal/logger"
	"github.com/channel-access-ledger/internal/platform/messaging/producers"
	"github.com/channel-access-ledger/internal/platform/persistence"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	operationProducer, err := producers.NewOperationRequestProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize operation producer", "error", err)
		os.Exit(1)
	}

	stateRepo := postgres.NewStateRepository(log, postgresDB)
	journalRepo := mongo.NewJournalRepository(log, mongoDB.Database())
	if indexed, ok := journalRepo.(*mongo.JournalRepository); ok {
		if err := indexed.EnsureIndexes(appCtx); err != nil {
			log.Error("Failed to create journal indexes", "error", err)
			os.Exit(1)
		}
	}

	queryService := service.NewLedgerQueryService(log, stateRepo)
	operationService := service.NewOperationService(log, journalRepo, operationProducer)

	server := api_gateway.NewServer(log, cfg, queryService, operationService, map[string]handler.Pinger{
		"postgres": postgresDB,
		"mongodb":  mongoDB,
	})
	log.Info("REST server initialized")

	errChan := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Stop accepting requests before closing what the handlers use
	var shutdownErr error
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
		shutdownErr = err
	}

	if err := operationProducer.Close(); err != nil {
		log.Error("Error closing operation producer", "error", err)
		shutdownErr = err
	}

	postgresDB.Close()

	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
		shutdownErr = err
	}

	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if shutdownErr != nil {
		log.Error("Server shutdown completed with errors")
		os.Exit(1)
	}
	log.Info("Server shutdown completed successfully")
}
