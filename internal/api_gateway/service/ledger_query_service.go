package service

import (
	"context"
	"log/slog"

	"github.com/channel-access-ledger/internal/domain/access"
)

type LedgerQueryServiceImpl struct {
	stateRepo access.Repository
	logger    *slog.Logger
}

func NewLedgerQueryService(logger *slog.Logger, stateRepo access.Repository) LedgerQueryService {
	return &LedgerQueryServiceImpl{
		stateRepo: stateRepo,
		logger:    logger,
	}
}

func (s *LedgerQueryServiceImpl) GetSummary(ctx context.Context) (*access.Summary, error) {
	return s.stateRepo.GetSummary(ctx)
}

func (s *LedgerQueryServiceImpl) GetChannel(ctx context.Context, id access.ChannelID) (*access.Channel, error) {
	return s.stateRepo.GetChannel(ctx, id)
}

// ListChannels reads the page and the channel counter separately; the total
// may run ahead of the page while operations are being applied.
func (s *LedgerQueryServiceImpl) ListChannels(ctx context.Context, page, perPage int) ([]*access.Channel, uint64, error) {
	offset := (page - 1) * perPage

	channels, err := s.stateRepo.ListChannels(ctx, perPage, offset)
	if err != nil {
		s.logger.Error("Failed to list channels", "page", page, "per_page", perPage, "error", err)
		return nil, 0, err
	}

	summary, err := s.stateRepo.GetSummary(ctx)
	if err != nil {
		s.logger.Error("Failed to read channel total", "error", err)
		return nil, 0, err
	}

	return channels, summary.TotalChannels, nil
}

func (s *LedgerQueryServiceImpl) GetMembership(ctx context.Context, id access.MembershipID) (*access.Membership, error) {
	return s.stateRepo.GetMembership(ctx, id)
}

func (s *LedgerQueryServiceImpl) HasJoined(ctx context.Context, channelID access.ChannelID, principal access.Principal) (bool, error) {
	return s.stateRepo.HasJoined(ctx, channelID, principal)
}
