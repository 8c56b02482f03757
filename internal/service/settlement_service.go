package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/omenmarkets/core/internal/domain"
)

// claimLockTTL bounds how long a claim holds its distributed lock. The lock
// is released as soon as the claim transaction finishes; the TTL only guards
// against a crashed holder.
const claimLockTTL = 10 * time.Second

// SettlementService computes whether, and how much, a user may claim after an
// option resolves, and marks positions claimed exactly once.
//
// Per (user, option), a position moves through: unresolved -> resolved but
// inside the dispute window -> claimable -> claimed. The dispute transition
// is purely time-based; the claim transition happens at most once, enforced
// by a row lock plus the is_claimed check-and-set.
type SettlementService struct {
	markets   domain.MarketStore
	positions domain.PositionStore
	tx        domain.TxRunner
	locks     domain.LockManager // may be nil
	logger    *slog.Logger
	nowFn     func() time.Time
}

// NewSettlementService creates a SettlementService with all required
// dependencies. locks may be nil when distributed locking is not available;
// the store row lock alone still guarantees claim-once.
func NewSettlementService(
	markets domain.MarketStore,
	positions domain.PositionStore,
	tx domain.TxRunner,
	locks domain.LockManager,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		markets:   markets,
		positions: positions,
		tx:        tx,
		locks:     locks,
		logger:    logger.With(slog.String("component", "settlement_service")),
		nowFn:     time.Now,
	}
}

// Claim settles a user's position on a resolved option and returns the
// payout: the share count held on the winning side, one smallest currency
// unit per share. Losing-side shares pay zero; there is no LMSR repricing at
// settlement.
//
// Errors: domain.ErrMarketNotResolved before resolution,
// domain.ErrDisputeWindowActive before the dispute deadline,
// domain.ErrPositionNotFound when the user never traded the option, and
// domain.ErrNoWinningShares when the position holds nothing on the winning
// side or was already claimed.
func (s *SettlementService) Claim(ctx context.Context, userID, optionID string) (domain.PayoutResult, error) {
	if userID == "" || optionID == "" {
		return domain.PayoutResult{}, domain.ErrValidation
	}

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "claim:"+userID+":"+optionID, claimLockTTL)
		if err != nil {
			return domain.PayoutResult{}, fmt.Errorf("settlement_service: lock claim %s/%s: %w",
				userID, optionID, err)
		}
		defer unlock()
	}

	var result domain.PayoutResult
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		opt, err := s.markets.GetOption(ctx, optionID)
		if err != nil {
			return fmt.Errorf("settlement_service: get option %s: %w", optionID, err)
		}

		if !opt.IsResolved || !opt.WinningSide.Valid() {
			return domain.ErrMarketNotResolved
		}

		now := s.nowFn()
		if opt.DisputeDeadline != nil && now.Before(*opt.DisputeDeadline) {
			return domain.ErrDisputeWindowActive
		}

		pos, err := s.positions.GetForUpdate(ctx, userID, optionID)
		if err != nil {
			return err
		}
		if pos.IsClaimed {
			return domain.ErrNoWinningShares
		}

		payout := pos.SharesOn(opt.WinningSide)
		if payout <= 0 {
			return domain.ErrNoWinningShares
		}

		if err := s.positions.MarkClaimed(ctx, userID, optionID); err != nil {
			return err
		}

		result = domain.PayoutResult{Amount: payout}
		return nil
	})
	if err != nil {
		return domain.PayoutResult{}, err
	}

	s.logger.InfoContext(ctx, "settlement_service: claim paid",
		slog.String("user_id", userID),
		slog.String("option_id", optionID),
		slog.Int64("amount", result.Amount),
	)
	return result, nil
}

// Positions returns a user's positions with pagination.
func (s *SettlementService) Positions(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	positions, err := s.positions.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("settlement_service: list positions %s: %w", userID, err)
	}
	return positions, nil
}

// Preview reports the claimable state of a position without mutating it:
// the payout the user would receive if they claimed now, or the error a claim
// would fail with.
func (s *SettlementService) Preview(ctx context.Context, userID, optionID string) (domain.PayoutResult, error) {
	opt, err := s.markets.GetOption(ctx, optionID)
	if err != nil {
		return domain.PayoutResult{}, fmt.Errorf("settlement_service: get option %s: %w", optionID, err)
	}
	if !opt.IsResolved || !opt.WinningSide.Valid() {
		return domain.PayoutResult{}, domain.ErrMarketNotResolved
	}
	if opt.DisputeDeadline != nil && s.nowFn().Before(*opt.DisputeDeadline) {
		return domain.PayoutResult{}, domain.ErrDisputeWindowActive
	}

	pos, err := s.positions.Get(ctx, userID, optionID)
	if err != nil {
		return domain.PayoutResult{}, err
	}
	if pos.IsClaimed || pos.SharesOn(opt.WinningSide) <= 0 {
		return domain.PayoutResult{}, domain.ErrNoWinningShares
	}
	return domain.PayoutResult{Amount: pos.SharesOn(opt.WinningSide)}, nil
}
