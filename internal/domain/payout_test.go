package domain

import (
	"errors"
	"math/big"
	"testing"
)

func TestPayoutsForPrice(t *testing.T) {
	cases := []struct {
		name    string
		price   *big.Int
		want    [2]uint64
		wantErr bool
	}{
		{"no", big.NewInt(0), [2]uint64{0, 1}, false},
		{"unknown", new(big.Int).SetUint64(5e17), [2]uint64{1, 1}, false},
		{"yes", new(big.Int).SetUint64(1e18), [2]uint64{1, 0}, false},
		{"off-scale", new(big.Int).SetUint64(3e17), [2]uint64{}, true},
		{"negative", big.NewInt(-1), [2]uint64{}, true},
		{"just-below-yes", new(big.Int).SetUint64(1e18 - 1), [2]uint64{}, true},
		{"nil", nil, [2]uint64{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := PayoutsForPrice(tc.price)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidOOPrice) {
					t.Fatalf("err=%v want ErrInvalidOOPrice", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("err=%v", err)
			}
			if got != tc.want {
				t.Fatalf("payouts=%v want %v", got, tc.want)
			}
		})
	}
}

func TestPayoutsForPriceIgnoreSentinelIsNotResolvable(t *testing.T) {
	if _, err := PayoutsForPrice(PriceIgnore); !errors.Is(err, ErrInvalidOOPrice) {
		t.Fatalf("ignore sentinel must not map to a payout, err=%v", err)
	}
}

func TestValidPayouts(t *testing.T) {
	valid := [][]uint64{{1, 0}, {0, 1}, {1, 1}}
	for _, p := range valid {
		if !ValidPayouts(p) {
			t.Fatalf("ValidPayouts(%v)=false want true", p)
		}
	}
	invalid := [][]uint64{nil, {}, {1}, {1, 0, 0}, {0, 0}, {2, 0}, {1, 2}}
	for _, p := range invalid {
		if ValidPayouts(p) {
			t.Fatalf("ValidPayouts(%v)=true want false", p)
		}
	}
}
