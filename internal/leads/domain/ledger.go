package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bucket names one of the four fee buckets of a fee entry.
type Bucket string

const (
	BucketGovernment   Bucket = "government"
	BucketProfessional Bucket = "professional"
	BucketStamp        Bucket = "stamp"
	BucketOther        Bucket = "other"
)

// DeductionOrder is the fixed order buckets are paid down within an entry.
var DeductionOrder = [4]Bucket{BucketGovernment, BucketProfessional, BucketStamp, BucketOther}

var ErrNegativeBucket = errors.New("fee buckets must be non-negative")

// FeeBuckets holds the four charges of a single fee entry.
type FeeBuckets struct {
	Government   decimal.Decimal `json:"government"`
	Professional decimal.Decimal `json:"professional"`
	Stamp        decimal.Decimal `json:"stamp"`
	Other        decimal.Decimal `json:"other"`
}

// Total sums the four buckets.
func (b FeeBuckets) Total() decimal.Decimal {
	return b.Government.Add(b.Professional).Add(b.Stamp).Add(b.Other)
}

// Validate rejects negative buckets.
func (b FeeBuckets) Validate() error {
	for _, k := range DeductionOrder {
		if b.Get(k).IsNegative() {
			return ErrNegativeBucket
		}
	}
	return nil
}

// Get returns the value of bucket k.
func (b FeeBuckets) Get(k Bucket) decimal.Decimal {
	switch k {
	case BucketGovernment:
		return b.Government
	case BucketProfessional:
		return b.Professional
	case BucketStamp:
		return b.Stamp
	default:
		return b.Other
	}
}

func (b *FeeBuckets) set(k Bucket, v decimal.Decimal) {
	switch k {
	case BucketGovernment:
		b.Government = v
	case BucketProfessional:
		b.Professional = v
	case BucketStamp:
		b.Stamp = v
	default:
		b.Other = v
	}
}

// FeeEntry is one charge record on a lead's ledger.
type FeeEntry struct {
	ID          uuid.UUID
	Buckets     FeeBuckets
	Description string
	CreatedBy   *uuid.UUID
	CreatedAt   time.Time
}

// Deduction records how much was taken from one bucket of one entry.
type Deduction struct {
	EntryID uuid.UUID
	Bucket  Bucket
	Amount  decimal.Decimal
}

// LedgerTotal sums every bucket of every entry.
func LedgerTotal(entries []FeeEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Buckets.Total())
	}
	return total
}

// Deduct pays down amount from entries, oldest entry first and buckets in
// DeductionOrder within an entry. It returns a mutated copy of entries and
// the amount actually deducted, which is less than amount when the ledger
// runs out. The input slice is not modified.
func Deduct(entries []FeeEntry, amount decimal.Decimal) ([]FeeEntry, decimal.Decimal) {
	out, deductions := DeductWithBreakdown(entries, amount)
	deducted := decimal.Zero
	for _, d := range deductions {
		deducted = deducted.Add(d.Amount)
	}
	return out, deducted
}

// DeductWithBreakdown is Deduct returning each non-zero bucket deduction.
func DeductWithBreakdown(entries []FeeEntry, amount decimal.Decimal) ([]FeeEntry, []Deduction) {
	out := make([]FeeEntry, len(entries))
	copy(out, entries)

	remaining := amount
	var deductions []Deduction
	for i := range out {
		if !remaining.IsPositive() {
			break
		}
		for _, k := range DeductionOrder {
			if !remaining.IsPositive() {
				break
			}
			value := out[i].Buckets.Get(k)
			if !value.IsPositive() {
				continue
			}
			take := decimal.Min(value, remaining)
			out[i].Buckets.set(k, value.Sub(take))
			remaining = remaining.Sub(take)
			deductions = append(deductions, Deduction{EntryID: out[i].ID, Bucket: k, Amount: take})
		}
	}
	return out, deductions
}
