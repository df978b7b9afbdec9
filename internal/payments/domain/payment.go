package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusClaimed  Status = "claimed"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

type Method string

const (
	MethodCash Method = "cash"
	MethodBank Method = "bank"
)

// ReviewAction is the admin decision on a claimed payment.
type ReviewAction string

const (
	ActionVerify ReviewAction = "verify"
	ActionReject ReviewAction = "reject"
)

func IsKnownStatus(s Status) bool {
	switch s {
	case StatusPending, StatusClaimed, StatusVerified, StatusRejected:
		return true
	}
	return false
}

func IsKnownMethod(m Method) bool {
	return m == MethodCash || m == MethodBank
}

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// CanTransition encodes pending -> claimed -> {verified | rejected}.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusClaimed
	case StatusClaimed:
		return to == StatusVerified || to == StatusRejected
	}
	return false
}

// Target returns the status a review action moves a claimed payment to.
func (a ReviewAction) Target() (Status, bool) {
	switch a {
	case ActionVerify:
		return StatusVerified, true
	case ActionReject:
		return StatusRejected, true
	}
	return "", false
}

// Payment is money received that still has to be matched to a lead.
type Payment struct {
	ID            uuid.UUID
	Amount        decimal.Decimal
	Method        Method
	Reference     string
	ReceiptURL    string
	LeadID        *uuid.UUID
	Status        Status
	ClaimedBy     *uuid.UUID
	ClaimedAmount decimal.Decimal
	ClaimedAt     *time.Time
	ReviewedBy    *uuid.UUID
	ReviewedAt    *time.Time
	ReviewNotes   string
	ParentID      *uuid.UUID
	CreatedBy     *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Split returns the amount claimable against a ledger holding ledgerTotal and
// the remainder that goes back into the pool.
func Split(amount, ledgerTotal decimal.Decimal) (claimable, remainder decimal.Decimal) {
	claimable = decimal.Min(amount, ledgerTotal)
	if claimable.IsNegative() {
		claimable = decimal.Zero
	}
	return claimable, amount.Sub(claimable)
}
