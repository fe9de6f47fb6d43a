package components

import (
	"log/slog"

	"github.com/channel-access-ledger/internal/config"
	"github.com/channel-access-ledger/internal/domain/journal"
	"github.com/channel-access-ledger/internal/domain/outbox"
	"github.com/channel-access-ledger/internal/operation_processor/service"
)

// CreateProcessingService creates a new ProcessingService with all its dependencies.
func CreateProcessingService(
	ledger service.AccessLedger,
	outboxRepo outbox.Repository,
	journalRepo journal.Repository,
	logger *slog.Logger,
	cfg *config.Config,
) service.ProcessingService {
	validator := NewOperationValidator(journalRepo, outboxRepo, logger)
	failureRecorder := NewFailureRecorder(journalRepo, logger)

	baseService := service.NewProcessingService(
		ledger,
		validator,
		failureRecorder,
		cfg.Ledger.ApplyTimeout,
		logger,
	)

	workerPoolService, err := service.NewWorkerPoolProcessingService(
		baseService,
		service.WorkerPoolConfig{
			Size: cfg.WorkerPool.Size,
		},
		logger.With("component", "worker_pool"),
	)
	if err != nil {
		logger.Error("Failed to create worker pool service, falling back to base service", "error", err)
		return baseService
	}

	logger.Info("Created worker pool processing service", "pool_size", cfg.WorkerPool.Size)
	return workerPoolService
}
