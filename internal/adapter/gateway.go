package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

// maxAllowance is the allowance granted to the oracle the first time a reward
// token is used. Granting the maximum once avoids re-approving on every
// request.
var maxAllowance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// priceRequest carries everything the gateway needs to file one request round
// with the oracle.
type priceRequest struct {
	payer         common.Address
	timestamp     int64
	ancillaryData []byte
	rewardToken   common.Address
	reward        *big.Int
	bond          *big.Int
	liveness      uint64
}

// requestPrice is the only path by which a price request may be created.
// Initialize, UpdateQuestion, and reset all funnel through it, so every
// request round carries identical configuration semantics.
func (a *Adapter) requestPrice(ctx context.Context, req priceRequest) error {
	reward := req.reward
	if reward == nil {
		reward = big.NewInt(0)
	}

	if reward.Sign() > 0 {
		// When the payer is the adapter itself the reward is already in
		// custody (reset and update paths) and must not be pulled twice.
		if req.payer != a.cfg.Address {
			if err := a.tokens.TransferFrom(ctx, req.rewardToken, req.payer, a.cfg.Address, reward); err != nil {
				return fmt.Errorf("adapter: pull reward: %w: %w", domain.ErrTransferFailed, err)
			}
		}

		// The oracle pulls the reward from the adapter. Only ever raise the
		// allowance when it is insufficient; never reset it to zero first.
		allowance, err := a.tokens.Allowance(ctx, req.rewardToken, a.cfg.Address, a.cfg.OracleAddress)
		if err != nil {
			return fmt.Errorf("adapter: read oracle allowance: %w", err)
		}
		if allowance.Cmp(reward) < 0 {
			if err := a.tokens.Approve(ctx, req.rewardToken, a.cfg.OracleAddress, maxAllowance); err != nil {
				return fmt.Errorf("adapter: approve oracle: %w", err)
			}
		}
	}

	if err := a.oracle.RequestPrice(ctx, domain.YesOrNoIdentifier, req.timestamp, req.ancillaryData, req.rewardToken, reward); err != nil {
		return fmt.Errorf("adapter: request price: %w", err)
	}

	// Event-based requests are settled on demand rather than polled by the
	// oracle, and only the disputed callback is observed by this system.
	if err := a.oracle.SetEventBased(ctx, domain.YesOrNoIdentifier, req.timestamp, req.ancillaryData); err != nil {
		return fmt.Errorf("adapter: set event based: %w", err)
	}
	if err := a.oracle.SetCallbacks(ctx, domain.YesOrNoIdentifier, req.timestamp, req.ancillaryData, false, true, false); err != nil {
		return fmt.Errorf("adapter: set callbacks: %w", err)
	}

	if req.bond != nil && req.bond.Sign() > 0 {
		if err := a.oracle.SetBond(ctx, domain.YesOrNoIdentifier, req.timestamp, req.ancillaryData, req.bond); err != nil {
			return fmt.Errorf("adapter: set bond: %w", err)
		}
	}
	if req.liveness > 0 {
		if err := a.oracle.SetCustomLiveness(ctx, domain.YesOrNoIdentifier, req.timestamp, req.ancillaryData, req.liveness); err != nil {
			return fmt.Errorf("adapter: set custom liveness: %w", err)
		}
	}

	a.logger.DebugContext(ctx, "adapter: price request filed",
		slog.Int64("timestamp", req.timestamp),
		slog.String("reward", reward.String()),
	)
	return nil
}
