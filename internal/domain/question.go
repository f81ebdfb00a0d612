// Package domain defines the core entities of the oracle-resolution adapter:
// questions, payout vectors, collaborator interfaces, and store contracts.
package domain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MaxAncillaryData is the maximum accepted ancillary data length in bytes.
// The optimistic oracle enforces 8192 bytes for the full request payload;
// we reserve headroom for the data the oracle appends on dispute.
const MaxAncillaryData = 8139

// YesOrNoIdentifier is the price identifier under which every question is
// filed with the optimistic oracle.
const YesOrNoIdentifier = "YES_OR_NO_QUERY"

// QuestionID uniquely identifies a question. It is the keccak256 hash of the
// question's ancillary data, so identical resolution criteria always map to
// the same question.
type QuestionID [32]byte

// DeriveQuestionID computes the question identifier for the given ancillary
// data payload.
func DeriveQuestionID(ancillaryData []byte) QuestionID {
	return QuestionID(crypto.Keccak256Hash(ancillaryData))
}

// Hex returns the 0x-prefixed hex encoding of the ID.
func (id QuestionID) Hex() string {
	return "0x" + hex.EncodeToString(id[:])
}

// String implements fmt.Stringer.
func (id QuestionID) String() string { return id.Hex() }

// Bytes32 returns the ID as a common.Hash for on-chain calls.
func (id QuestionID) Bytes32() common.Hash { return common.Hash(id) }

// IsZero reports whether the ID is the zero value.
func (id QuestionID) IsZero() bool { return id == QuestionID{} }

// ParseQuestionID decodes a hex question ID (with or without 0x prefix).
func ParseQuestionID(s string) (QuestionID, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return QuestionID{}, fmt.Errorf("domain: parse question id: %w", err)
	}
	if len(raw) != 32 {
		return QuestionID{}, fmt.Errorf("domain: parse question id: want 32 bytes, got %d", len(raw))
	}
	var id QuestionID
	copy(id[:], raw)
	return id, nil
}

// MarshalText implements encoding.TextMarshaler so IDs render as hex in JSON.
func (id QuestionID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *QuestionID) UnmarshalText(text []byte) error {
	parsed, err := ParseQuestionID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// QuestionData is the full lifecycle record for a single binary question.
// One record exists per QuestionID; records are never deleted, resolved
// records persist for audit.
type QuestionData struct {
	QuestionID QuestionID

	// Creator is the principal that initialized the question. Immutable.
	Creator common.Address

	// AncillaryData describes what is being resolved. A question is
	// considered initialized iff this is non-empty.
	AncillaryData []byte

	// RewardToken and Reward pay the oracle's price proposer.
	RewardToken common.Address
	Reward      *big.Int

	// ProposalBond is the extra collateral required of oracle responders.
	// Zero means the oracle default applies.
	ProposalBond *big.Int

	// Liveness is a custom dispute window in seconds; zero uses the oracle
	// default.
	Liveness uint64

	// RequestTimestamp tags the current in-flight price request. It is the
	// join key into the oracle's request table and is refreshed on reset.
	RequestTimestamp int64

	// ResolutionTime is the nominal time the question is expected to be
	// resolvable. Zero means no nominal time is tracked.
	ResolutionTime int64

	// EarlyResolutionEnabled allows a price request to be filed before the
	// nominal resolution time; once ResolutionTime has passed, standard
	// timing applies again.
	EarlyResolutionEnabled bool

	Paused   bool
	Resolved bool

	// SettledTime is non-zero once the oracle price has been pulled but the
	// payout has not yet been reported (two-step flow). Settle and report
	// must happen in different rounds.
	SettledTime int64

	// SettledPrice is the price locked in by Settle, nil until then.
	SettledPrice *big.Int

	// Reset is true once the current request round replaced an earlier one.
	Reset bool

	// EmergencyResolutionTimestamp is zero until the question is flagged;
	// afterwards it holds the earliest time emergency resolution is allowed.
	EmergencyResolutionTimestamp int64

	// Payouts holds the reported payout vector after resolution.
	Payouts []uint64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Initialized reports whether the record represents an initialized question.
// Uninitialized records are indistinguishable from absent ones.
func (q *QuestionData) Initialized() bool {
	return len(q.AncillaryData) > 0
}

// Flagged reports whether the question has been flagged for emergency
// resolution.
func (q *QuestionData) Flagged() bool {
	return q.EmergencyResolutionTimestamp != 0
}

// Settled reports whether a price has been pulled but not yet reported.
func (q *QuestionData) Settled() bool {
	return q.SettledTime != 0
}

// Clone returns a deep copy so callers can mutate freely without aliasing
// stored state.
func (q QuestionData) Clone() QuestionData {
	out := q
	out.AncillaryData = append([]byte(nil), q.AncillaryData...)
	if q.Reward != nil {
		out.Reward = new(big.Int).Set(q.Reward)
	}
	if q.ProposalBond != nil {
		out.ProposalBond = new(big.Int).Set(q.ProposalBond)
	}
	if q.SettledPrice != nil {
		out.SettledPrice = new(big.Int).Set(q.SettledPrice)
	}
	if q.Payouts != nil {
		out.Payouts = append([]uint64(nil), q.Payouts...)
	}
	return out
}
