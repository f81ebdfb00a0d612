package ethereum

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DisputeEvent is a decoded oracle dispute notification.
type DisputeEvent struct {
	Requester     common.Address
	Proposer      common.Address
	Disputer      common.Address
	Timestamp     int64
	AncillaryData []byte
	ProposedPrice *big.Int
}

// WatchDisputes subscribes to the oracle's dispute event, filtered to
// requests filed by the given requester, and delivers decoded events until
// the context is cancelled. Requires a websocket RPC endpoint.
func (o *OptimisticOracle) WatchDisputes(ctx context.Context, requester common.Address) (<-chan DisputeEvent, error) {
	event, ok := oracleABI.Events["DisputePrice"]
	if !ok {
		return nil, fmt.Errorf("ethereum: dispute event missing from oracle abi")
	}

	query := goethereum.FilterQuery{
		Addresses: []common.Address{o.address},
		Topics: [][]common.Hash{
			{event.ID},
			{common.BytesToHash(requester.Bytes())},
		},
	}

	logs := make(chan types.Log, 64)
	sub, err := o.client.eth.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, fmt.Errorf("ethereum: subscribe dispute logs: %w", err)
	}

	out := make(chan DisputeEvent, 64)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				o.logger.ErrorContext(ctx, "oracle: dispute subscription failed",
					slog.String("error", err.Error()),
				)
				return
			case lg := <-logs:
				ev, err := o.decodeDispute(lg)
				if err != nil {
					o.logger.WarnContext(ctx, "oracle: undecodable dispute log",
						slog.String("tx", lg.TxHash.Hex()),
						slog.String("error", err.Error()),
					)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (o *OptimisticOracle) decodeDispute(lg types.Log) (DisputeEvent, error) {
	if len(lg.Topics) < 4 {
		return DisputeEvent{}, fmt.Errorf("expected 4 topics, got %d", len(lg.Topics))
	}

	var decoded struct {
		Requester     common.Address
		Proposer      common.Address
		Disputer      common.Address
		Identifier    [32]byte
		Timestamp     *big.Int
		AncillaryData []byte
		ProposedPrice *big.Int
	}
	if err := o.contract.UnpackLog(&decoded, "DisputePrice", lg); err != nil {
		return DisputeEvent{}, fmt.Errorf("unpack dispute log: %w", err)
	}

	return DisputeEvent{
		Requester:     decoded.Requester,
		Proposer:      decoded.Proposer,
		Disputer:      decoded.Disputer,
		Timestamp:     decoded.Timestamp.Int64(),
		AncillaryData: decoded.AncillaryData,
		ProposedPrice: decoded.ProposedPrice,
	}, nil
}
