package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/channel-access-ledger/internal/config"
	"github.com/channel-access-ledger/internal/domain/access"
)

// LoadLedger restores the ledger persisted in repo. When nothing was persisted
// yet, the configured genesis metadata is saved first. Persisted metadata always
// wins over configuration.
func LoadLedger(
	ctx context.Context,
	cfg *config.LedgerConfig,
	repo access.Repository,
	transferer access.FundTransferer,
	committer access.Committer,
	logger *slog.Logger,
) (*access.Ledger, error) {
	snap, err := repo.LoadSnapshot(ctx)
	if errors.Is(err, access.ErrLedgerNotInitialized) {
		meta := access.Metadata{
			Administrator: access.Principal(cfg.Administrator),
			Name:          cfg.Name,
			Symbol:        cfg.Symbol,
		}
		logger.Info("No persisted ledger, saving genesis",
			"administrator", meta.Administrator,
			"name", meta.Name,
			"symbol", meta.Symbol,
		)
		if err := repo.SaveGenesis(ctx, meta); err != nil {
			return nil, fmt.Errorf("failed to save ledger genesis: %w", err)
		}
		snap, err = repo.LoadSnapshot(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger snapshot: %w", err)
	}

	if string(snap.Administrator) != cfg.Administrator {
		logger.Warn("Configured administrator differs from persisted ledger, using persisted",
			"configured", cfg.Administrator,
			"persisted", snap.Administrator,
		)
	}

	ledger, err := access.Restore(logger.With("component", "access_ledger"), snap, transferer, committer)
	if err != nil {
		return nil, fmt.Errorf("failed to restore ledger: %w", err)
	}

	logger.Info("Ledger loaded",
		"name", ledger.Name(),
		"total_channels", ledger.TotalChannels(),
		"total_memberships", ledger.TotalMemberships(),
		"custodial_balance", ledger.CustodialBalance(),
	)
	return ledger, nil
}
