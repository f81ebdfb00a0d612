package domain

import "math/big"

// Oracle prices are fixed-point with 18 decimals: 0 means NO, 1e18 means YES,
// and exactly half means the oracle could not determine an outcome.
var (
	PriceNo      = big.NewInt(0)
	PriceUnknown = new(big.Int).SetUint64(5e17)
	PriceYes     = new(big.Int).SetUint64(1e18)

	// PriceIgnore is the oracle's "decline to answer" sentinel
	// (minimum int256). A settled ignore price triggers a reset rather
	// than a resolution.
	PriceIgnore = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
)

// Payout vectors for the two outcome slots [YES, NO]. A slot share of 1
// entitles the holder to the full unit of collateral; [1,1] splits it.
var (
	PayoutsYes     = [2]uint64{1, 0}
	PayoutsNo      = [2]uint64{0, 1}
	PayoutsUnknown = [2]uint64{1, 1}
)

// PayoutsForPrice maps a settled oracle price to its payout vector. The match
// is exact, with no rounding or tolerance band; any other value returns
// ErrInvalidOOPrice.
func PayoutsForPrice(price *big.Int) ([2]uint64, error) {
	switch {
	case price == nil:
		return [2]uint64{}, ErrInvalidOOPrice
	case price.Cmp(PriceNo) == 0:
		return PayoutsNo, nil
	case price.Cmp(PriceUnknown) == 0:
		return PayoutsUnknown, nil
	case price.Cmp(PriceYes) == 0:
		return PayoutsYes, nil
	default:
		return [2]uint64{}, ErrInvalidOOPrice
	}
}

// ValidPayouts reports whether an emergency payout vector is acceptable:
// exactly two elements and one of YES, NO, or the 50/50 split. Vectors such
// as [0,0] would burn all collateral and are rejected.
func ValidPayouts(payouts []uint64) bool {
	if len(payouts) != 2 {
		return false
	}
	v := [2]uint64{payouts[0], payouts[1]}
	return v == PayoutsYes || v == PayoutsNo || v == PayoutsUnknown
}
