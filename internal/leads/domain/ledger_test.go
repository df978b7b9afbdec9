package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func entry(gov, prof, stamp, other int64) FeeEntry {
	return FeeEntry{
		ID:      uuid.New(),
		Buckets: FeeBuckets{Government: d(gov), Professional: d(prof), Stamp: d(stamp), Other: d(other)},
	}
}

func assertBuckets(t *testing.T, e FeeEntry, gov, prof, stamp, other int64) {
	t.Helper()
	want := FeeBuckets{Government: d(gov), Professional: d(prof), Stamp: d(stamp), Other: d(other)}
	for _, k := range DeductionOrder {
		if !e.Buckets.Get(k).Equal(want.Get(k)) {
			t.Fatalf("bucket %s: expected %s, got %s", k, want.Get(k), e.Buckets.Get(k))
		}
	}
}

func TestDeductPaysOldestEntryFirst(t *testing.T) {
	entries := []FeeEntry{entry(100, 0, 0, 0), entry(0, 200, 0, 0)}

	out, deducted := Deduct(entries, d(150))

	if !deducted.Equal(d(150)) {
		t.Fatalf("expected 150 deducted, got %s", deducted)
	}
	assertBuckets(t, out[0], 0, 0, 0, 0)
	assertBuckets(t, out[1], 0, 150, 0, 0)
}

func TestDeductFollowsBucketOrderWithinEntry(t *testing.T) {
	entries := []FeeEntry{entry(10, 20, 30, 40)}

	out, deducted := Deduct(entries, d(45))

	if !deducted.Equal(d(45)) {
		t.Fatalf("expected 45 deducted, got %s", deducted)
	}
	assertBuckets(t, out[0], 0, 0, 15, 40)
}

func TestDeductTruncatesWhenLedgerInsufficient(t *testing.T) {
	entries := []FeeEntry{entry(10, 0, 0, 5), entry(0, 0, 20, 0)}

	out, deducted := Deduct(entries, d(100))

	if !deducted.Equal(d(35)) {
		t.Fatalf("expected 35 deducted, got %s", deducted)
	}
	if !LedgerTotal(out).IsZero() {
		t.Fatalf("expected empty ledger, got %s", LedgerTotal(out))
	}
}

func TestDeductDoesNotMutateInput(t *testing.T) {
	entries := []FeeEntry{entry(100, 0, 0, 0)}

	_, _ = Deduct(entries, d(60))

	assertBuckets(t, entries[0], 100, 0, 0, 0)
}

func TestDeductZeroAmountIsNoop(t *testing.T) {
	entries := []FeeEntry{entry(5, 5, 5, 5)}

	out, deductions := DeductWithBreakdown(entries, decimal.Zero)

	if len(deductions) != 0 {
		t.Fatalf("expected no deductions, got %d", len(deductions))
	}
	assertBuckets(t, out[0], 5, 5, 5, 5)
}

func TestDeductWithBreakdownNamesEntriesAndBuckets(t *testing.T) {
	entries := []FeeEntry{entry(100, 0, 0, 0), entry(0, 200, 0, 0)}

	_, deductions := DeductWithBreakdown(entries, d(150))

	if len(deductions) != 2 {
		t.Fatalf("expected 2 deductions, got %d", len(deductions))
	}
	if deductions[0].EntryID != entries[0].ID || deductions[0].Bucket != BucketGovernment || !deductions[0].Amount.Equal(d(100)) {
		t.Fatalf("unexpected first deduction %+v", deductions[0])
	}
	if deductions[1].EntryID != entries[1].ID || deductions[1].Bucket != BucketProfessional || !deductions[1].Amount.Equal(d(50)) {
		t.Fatalf("unexpected second deduction %+v", deductions[1])
	}
}

func TestLedgerTotalAndValidate(t *testing.T) {
	entries := []FeeEntry{entry(1, 2, 3, 4), entry(10, 0, 0, 0)}
	if !LedgerTotal(entries).Equal(d(20)) {
		t.Fatalf("expected total 20, got %s", LedgerTotal(entries))
	}

	bad := FeeBuckets{Stamp: d(-1)}
	if err := bad.Validate(); err != ErrNegativeBucket {
		t.Fatalf("expected ErrNegativeBucket, got %v", err)
	}
}
