// Package local provides in-process stand-ins for the on-chain collaborators,
// letting the whole service run end-to-end without an RPC endpoint. Prices
// are proposed and disputed through explicit methods instead of transactions.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

type requestKey struct {
	identifier string
	timestamp  int64
	dataHash   domain.QuestionID
}

type request struct {
	rewardToken common.Address
	reward      *big.Int
	bond        *big.Int
	liveness    uint64
	eventBased  bool
	onDisputed  bool

	proposer common.Address
	disputer common.Address
	price    *big.Int
	proposed bool
	settled  bool
}

// Oracle is an in-memory optimistic oracle. Proposals arrive through
// ProposePrice and disputes through DisputePrice; both are driven by the
// simulation HTTP surface or tests.
type Oracle struct {
	address common.Address
	logger  *slog.Logger

	mu       sync.Mutex
	requests map[requestKey]*request
	disputes chan DisputeNotice
}

// DisputeNotice mirrors the callback the on-chain oracle would deliver.
type DisputeNotice struct {
	Timestamp     int64
	AncillaryData []byte
	Disputer      common.Address
}

var _ domain.PriceOracle = (*Oracle)(nil)

// NewOracle creates the simulation oracle with the given synthetic identity.
func NewOracle(address common.Address, logger *slog.Logger) *Oracle {
	return &Oracle{
		address:  address,
		logger:   logger.With(slog.String("component", "local_oracle")),
		requests: make(map[requestKey]*request),
		disputes: make(chan DisputeNotice, 64),
	}
}

// Address returns the oracle's synthetic identity.
func (o *Oracle) Address() common.Address { return o.address }

// Disputes exposes the dispute notification feed.
func (o *Oracle) Disputes() <-chan DisputeNotice { return o.disputes }

func key(identifier string, timestamp int64, data []byte) requestKey {
	return requestKey{
		identifier: identifier,
		timestamp:  timestamp,
		dataHash:   domain.DeriveQuestionID(data),
	}
}

func (o *Oracle) get(identifier string, timestamp int64, data []byte) (*request, error) {
	r, ok := o.requests[key(identifier, timestamp, data)]
	if !ok {
		return nil, fmt.Errorf("local oracle: no request for %s at %d", identifier, timestamp)
	}
	return r, nil
}

// RequestPrice files a new request round.
func (o *Oracle) RequestPrice(ctx context.Context, identifier string, timestamp int64, ancillaryData []byte, rewardToken common.Address, reward *big.Int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	k := key(identifier, timestamp, ancillaryData)
	if _, ok := o.requests[k]; ok {
		return fmt.Errorf("local oracle: duplicate request for %s at %d", identifier, timestamp)
	}
	o.requests[k] = &request{
		rewardToken: rewardToken,
		reward:      new(big.Int).Set(reward),
	}
	return nil
}

// SetBond records the proposal bond for a request round.
func (o *Oracle) SetBond(ctx context.Context, identifier string, timestamp int64, ancillaryData []byte, bond *big.Int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, err := o.get(identifier, timestamp, ancillaryData)
	if err != nil {
		return err
	}
	r.bond = new(big.Int).Set(bond)
	return nil
}

// SetCustomLiveness records the liveness override for a request round.
func (o *Oracle) SetCustomLiveness(ctx context.Context, identifier string, timestamp int64, ancillaryData []byte, liveness uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, err := o.get(identifier, timestamp, ancillaryData)
	if err != nil {
		return err
	}
	r.liveness = liveness
	return nil
}

// SetEventBased marks a request round as event-based.
func (o *Oracle) SetEventBased(ctx context.Context, identifier string, timestamp int64, ancillaryData []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, err := o.get(identifier, timestamp, ancillaryData)
	if err != nil {
		return err
	}
	r.eventBased = true
	return nil
}

// SetCallbacks records callback interest for a request round.
func (o *Oracle) SetCallbacks(ctx context.Context, identifier string, timestamp int64, ancillaryData []byte, onProposed, onDisputed, onSettled bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, err := o.get(identifier, timestamp, ancillaryData)
	if err != nil {
		return err
	}
	r.onDisputed = onDisputed
	return nil
}

// HasPrice reports whether a settled price can be served.
func (o *Oracle) HasPrice(ctx context.Context, requester common.Address, identifier string, timestamp int64, ancillaryData []byte) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.requests[key(identifier, timestamp, ancillaryData)]
	if !ok {
		return false, nil
	}
	return r.proposed, nil
}

// GetRequest returns the oracle's view of a request round.
func (o *Oracle) GetRequest(ctx context.Context, requester common.Address, identifier string, timestamp int64, ancillaryData []byte) (domain.OracleRequest, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, err := o.get(identifier, timestamp, ancillaryData)
	if err != nil {
		return domain.OracleRequest{}, err
	}
	return domain.OracleRequest{
		Proposer:      r.proposer,
		Disputer:      r.disputer,
		ProposedPrice: cloneBig(r.price),
		ResolvedPrice: cloneBig(r.price),
		Settled:       r.settled,
		Disputed:      r.disputer != (common.Address{}),
	}, nil
}

// SettleAndGetPrice settles a request round and returns its price.
func (o *Oracle) SettleAndGetPrice(ctx context.Context, identifier string, timestamp int64, ancillaryData []byte) (*big.Int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, err := o.get(identifier, timestamp, ancillaryData)
	if err != nil {
		return nil, err
	}
	if !r.proposed {
		return nil, fmt.Errorf("local oracle: no price proposed for %s at %d", identifier, timestamp)
	}
	r.settled = true
	return new(big.Int).Set(r.price), nil
}

// ProposePrice records a price proposal for a request round. Part of the
// simulation control surface, not the domain.PriceOracle contract.
func (o *Oracle) ProposePrice(proposer common.Address, identifier string, timestamp int64, ancillaryData []byte, price *big.Int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, err := o.get(identifier, timestamp, ancillaryData)
	if err != nil {
		return err
	}
	if r.proposed {
		return fmt.Errorf("local oracle: price already proposed for %s at %d", identifier, timestamp)
	}
	r.proposer = proposer
	r.price = new(big.Int).Set(price)
	r.proposed = true

	o.logger.Info("local oracle: price proposed",
		slog.Int64("timestamp", timestamp),
		slog.String("price", price.String()),
	)
	return nil
}

// DisputePrice records a dispute and emits a notice on the dispute feed.
func (o *Oracle) DisputePrice(disputer common.Address, identifier string, timestamp int64, ancillaryData []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, err := o.get(identifier, timestamp, ancillaryData)
	if err != nil {
		return err
	}
	if !r.proposed {
		return fmt.Errorf("local oracle: nothing to dispute for %s at %d", identifier, timestamp)
	}
	if r.settled {
		return fmt.Errorf("local oracle: request already settled for %s at %d", identifier, timestamp)
	}
	r.disputer = disputer
	r.proposed = false
	r.price = nil

	if r.onDisputed {
		select {
		case o.disputes <- DisputeNotice{
			Timestamp:     timestamp,
			AncillaryData: append([]byte(nil), ancillaryData...),
			Disputer:      disputer,
		}:
		default:
			o.logger.Warn("local oracle: dispute feed full, notice dropped",
				slog.Int64("timestamp", timestamp),
			)
		}
	}

	o.logger.Info("local oracle: price disputed",
		slog.Int64("timestamp", timestamp),
		slog.String("disputer", disputer.Hex()),
	)
	return nil
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
