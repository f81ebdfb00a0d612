package domain

import (
	"math/big"
	"testing"
)

func TestDeriveQuestionIDDeterministic(t *testing.T) {
	data := []byte("q: title: Will it rain tomorrow?, description: ..., res_data: p1: 0, p2: 1, p3: 0.5")

	a := DeriveQuestionID(data)
	b := DeriveQuestionID(data)
	if a != b {
		t.Fatalf("same ancillary data produced different IDs: %s vs %s", a, b)
	}

	c := DeriveQuestionID(append([]byte(nil), append(data, '!')...))
	if a == c {
		t.Fatalf("different ancillary data produced the same ID")
	}
}

func TestQuestionIDHexRoundTrip(t *testing.T) {
	id := DeriveQuestionID([]byte("round trip"))

	parsed, err := ParseQuestionID(id.Hex())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if parsed != id {
		t.Fatalf("parsed=%s want %s", parsed, id)
	}

	// Without the 0x prefix.
	parsed, err = ParseQuestionID(id.Hex()[2:])
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if parsed != id {
		t.Fatalf("parsed=%s want %s", parsed, id)
	}
}

func TestParseQuestionIDRejectsBadInput(t *testing.T) {
	for _, s := range []string{"", "0x12", "zz", "0x" + string(make([]byte, 64))} {
		if _, err := ParseQuestionID(s); err == nil {
			t.Fatalf("ParseQuestionID(%q) succeeded, want error", s)
		}
	}
}

func TestQuestionDataPredicates(t *testing.T) {
	var q QuestionData
	if q.Initialized() {
		t.Fatalf("empty record must not be initialized")
	}
	q.AncillaryData = []byte("x")
	if !q.Initialized() {
		t.Fatalf("record with ancillary data must be initialized")
	}
	if q.Flagged() || q.Settled() {
		t.Fatalf("fresh record must be neither flagged nor settled")
	}
	q.EmergencyResolutionTimestamp = 100
	q.SettledTime = 200
	if !q.Flagged() || !q.Settled() {
		t.Fatalf("predicates did not reflect set fields")
	}
}

func TestQuestionDataCloneIsDeep(t *testing.T) {
	q := QuestionData{
		AncillaryData: []byte("abc"),
		Reward:        big.NewInt(10),
		ProposalBond:  big.NewInt(5),
		SettledPrice:  big.NewInt(1),
		Payouts:       []uint64{1, 0},
	}
	c := q.Clone()
	c.AncillaryData[0] = 'z'
	c.Reward.SetInt64(99)
	c.Payouts[0] = 7

	if q.AncillaryData[0] != 'a' || q.Reward.Int64() != 10 || q.Payouts[0] != 1 {
		t.Fatalf("Clone aliases original state: %+v", q)
	}
}
