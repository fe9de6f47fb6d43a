package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/channel-access-ledger/internal/config"
	"github.com/channel-access-ledger/internal/data/mongo"
	"github.com/channel-access-ledger/internal/data/postgres"
	"github.com/channel-access-ledger/internal/logger"
	"github.com/channel-access-ledger/internal/operation_processor/components"
	"github.com/channel-access-ledger/internal/operation_processor/consumer"
	"github.com/channel-access-ledger/internal/operation_processor/outbox_poller"
	"github.com/channel-access-ledger/internal/operation_processor/service"
	"github.com/channel-access-ledger/internal/platform/messaging/consumers"
	"github.com/channel-access-ledger/internal/platform/messaging/producers"
	"github.com/channel-access-ledger/internal/platform/persistence"
)

const shutdownTimeout = 30 * time.Second

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("operation_processor")
	if err != nil {
		// logger is not initialized yet
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Operation Processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

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

	stateRepo := postgres.NewStateRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	payoutRepo := postgres.NewPayoutRepository(log, postgresDB)
	journalRepo := mongo.NewJournalRepository(log, mongoDB.Database())
	if indexed, ok := journalRepo.(*mongo.JournalRepository); ok {
		if err := indexed.EnsureIndexes(appCtx); err != nil {
			log.Error("Failed to create journal indexes", "error", err)
			os.Exit(1)
		}
	}

	payoutProducer, err := producers.NewPayoutProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize payout producer", "error", err)
		os.Exit(1)
	}

	committer := components.NewLedgerCommitter(postgresDB.Pool(), stateRepo, outboxRepo, payoutRepo, log)
	ledger, err := components.LoadLedger(appCtx, &cfg.Ledger, stateRepo, payoutProducer, committer, log)
	if err != nil {
		log.Error("Failed to load ledger", "error", err)
		os.Exit(1)
	}

	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)

	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	// A nil *DLQProducer must not reach the handler as a non-nil interface
	var deadLetters producers.DeadLetterPublisher
	if dlqProducer != nil {
		deadLetters = dlqProducer
	}

	processingService := components.CreateProcessingService(ledger, outboxRepo, journalRepo, log, cfg)

	operationEventHandler := consumer.NewOperationEventHandler(log, processingService, deadLetters)

	journalPublisher := outbox_poller.NewJournalPublisher(outboxRepo, journalRepo, log)
	poller := outbox_poller.NewPoller(&cfg.Outbox, outboxRepo, journalPublisher, log)
	payoutRelay := outbox_poller.NewPayoutRelay(&cfg.Outbox, postgresDB.Pool(), payoutRepo, outboxRepo, payoutProducer, log)

	// No withdrawal is in flight yet, so every unsettled payout left by the
	// previous run can go out now.
	if err := payoutRelay.Relay(appCtx, 0); err != nil {
		log.Error("Failed to relay payouts left by the previous run", "error", err)
	}

	errChan := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Kafka consumer",
			"topic", cfg.Kafka.OperationTopic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := kafkaConsumer.Subscribe(appCtx, cfg.Kafka.OperationTopic, cfg.Kafka.ConsumerGroup, operationEventHandler.HandleMessage); err != nil {
			errChan <- fmt.Errorf("kafka consumer error: %w", err)
			return
		}
		// Hold the group open until the in-flight operation has committed
		<-kafkaConsumer.Done()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Outbox Poller",
			"interval", cfg.Outbox.PollingInterval.String(),
			"batch_size", cfg.Outbox.BatchSize,
		)
		poller.Start(appCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Payout Relay", "retry_after", cfg.Outbox.PayoutRetryAfter.String())
		payoutRelay.Start(appCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	stopped := true
	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
		stopped = false
	}

	// The consumer has stopped handing out work, so the pool can drain.
	// After a timeout the pool may still be applying, so it is left running.
	if wpService, ok := processingService.(*service.WorkerPoolProcessingService); ok && stopped {
		log.Info("Shutting down worker pool", "running_workers", wpService.Running())
		wpService.Shutdown()
	}

	var shutdownErr error
	if deadLetters != nil {
		if err := deadLetters.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
			shutdownErr = err
		}
	}

	if err := payoutProducer.Close(); err != nil {
		log.Error("Error closing payout producer", "error", err)
		shutdownErr = err
	}

	if err := kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
		shutdownErr = err
	}

	postgresDB.Close()

	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
		shutdownErr = err
	}

	if serviceErr != nil {
		log.Error("Operation Processor shutdown with errors", "error", serviceErr)
	}
	if shutdownErr != nil {
		log.Error("Operation Processor shutdown completed with errors")
		os.Exit(1)
	}
	log.Info("Operation Processor shutdown completed successfully")
}
