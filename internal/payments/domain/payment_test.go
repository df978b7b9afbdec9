package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusClaimed, true},
		{StatusPending, StatusVerified, false},
		{StatusClaimed, StatusVerified, true},
		{StatusClaimed, StatusRejected, true},
		{StatusClaimed, StatusPending, false},
		{StatusVerified, StatusRejected, false},
		{StatusRejected, StatusClaimed, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSplitCapsAtLedgerTotal(t *testing.T) {
	claimable, remainder := Split(decimal.NewFromInt(1000), decimal.NewFromInt(600))
	if !claimable.Equal(decimal.NewFromInt(600)) || !remainder.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("expected 600/400, got %s/%s", claimable, remainder)
	}

	claimable, remainder = Split(decimal.NewFromInt(300), decimal.NewFromInt(600))
	if !claimable.Equal(decimal.NewFromInt(300)) || !remainder.IsZero() {
		t.Fatalf("expected 300/0, got %s/%s", claimable, remainder)
	}
}

func TestReviewActionTarget(t *testing.T) {
	if s, ok := ActionReject.Target(); !ok || s != StatusRejected {
		t.Fatalf("reject should target rejected, got %s %v", s, ok)
	}
	if _, ok := ReviewAction("approve").Target(); ok {
		t.Fatal("unknown action should not resolve")
	}
}
