// Package claims lets agents claim pending payments against their leads and
// lets admins verify or reject those claims.
package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	agentsrepo "leaddesk_backend/internal/agents/repository"
	"leaddesk_backend/internal/events"
	leaddomain "leaddesk_backend/internal/leads/domain"
	leadsrepo "leaddesk_backend/internal/leads/repository"
	"leaddesk_backend/internal/payments/domain"
	"leaddesk_backend/internal/payments/repository"
	"leaddesk_backend/platform/apperr"
	"leaddesk_backend/platform/logger"
	"leaddesk_backend/platform/sanitize"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	opClaim  = "payments.claims.claim"
	opReview = "payments.claims.review"
	opRecord = "payments.claims.record"

	ledgerRetries = 5
)

// LeadStore is the part of the lead repository the claim flow reads and
// writes.
type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (leadsrepo.Lead, error)
	leadsrepo.LedgerStore
}

// AgentStore is the part of the agent repository the claim flow touches.
type AgentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (agentsrepo.Agent, error)
	agentsrepo.CollectionCounter
}

type Service struct {
	payments repository.PaymentsRepository
	leads    LeadStore
	agents   AgentStore
	eventBus events.Bus
	log      *logger.Logger
	minimum  decimal.Decimal
	now      func() time.Time
}

func New(payments repository.PaymentsRepository, leads LeadStore, agents AgentStore, eventBus events.Bus, minimum decimal.Decimal, log *logger.Logger) *Service {
	return &Service{
		payments: payments,
		leads:    leads,
		agents:   agents,
		eventBus: eventBus,
		log:      log,
		minimum:  minimum,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type ClaimRequest struct {
	PaymentID uuid.UUID
	LeadID    uuid.UUID
	AgentID   uuid.UUID
}

type ClaimResult struct {
	Payment       domain.Payment
	ClaimedAmount decimal.Decimal
	Remainder     *domain.Payment
	Lead          leadsrepo.Lead
}

// Claim binds a pending payment to one of the agent's leads. The claimed
// amount is capped at the lead's ledger total; any excess becomes a new
// unbound pending payment.
func (s *Service) Claim(ctx context.Context, req ClaimRequest) (ClaimResult, error) {
	payment, err := s.payments.GetByID(ctx, req.PaymentID)
	if err != nil {
		return ClaimResult{}, mapPaymentErr(err, opClaim)
	}
	if payment.Status != domain.StatusPending {
		return ClaimResult{}, s.alreadyClaimed(ctx, payment)
	}

	lead, err := s.leads.GetByID(ctx, req.LeadID)
	if err != nil {
		return ClaimResult{}, mapLeadErr(err, opClaim)
	}
	if !lead.IsAssignedTo(req.AgentID) {
		return ClaimResult{}, s.notYourLead(ctx, lead)
	}
	if payment.LeadID != nil && *payment.LeadID != lead.ID {
		return ClaimResult{}, apperr.Validation(fmt.Sprintf("payment %s is bound to lead %s", payment.ID, *payment.LeadID)).WithOp(opClaim)
	}

	available := leaddomain.LedgerTotal(lead.FeeEntries)
	if available.LessThan(s.minimum) {
		return ClaimResult{}, s.belowMinimum(lead.ID, available)
	}

	planned, _ := domain.Split(payment.Amount, available)

	claimed, err := s.payments.ClaimIfPending(ctx, repository.ClaimParams{
		PaymentID:     payment.ID,
		LeadID:        lead.ID,
		AgentID:       req.AgentID,
		ClaimedAmount: planned,
		ClaimedAt:     s.now(),
	})
	if errors.Is(err, repository.ErrStatusChanged) {
		current, getErr := s.payments.GetByID(ctx, payment.ID)
		if getErr != nil {
			return ClaimResult{}, mapPaymentErr(getErr, opClaim)
		}
		return ClaimResult{}, s.alreadyClaimed(ctx, current)
	}
	if err != nil {
		return ClaimResult{}, mapPaymentErr(err, opClaim)
	}

	// The payment is held by this agent from here on. The amount actually
	// claimed is whatever the committed ledger version could cover.
	updated, claimable, err := s.deductLedger(ctx, lead, planned)
	if err != nil {
		s.release(ctx, payment, req.AgentID)
		return ClaimResult{}, err
	}

	if !claimable.Equal(planned) {
		claimed, err = s.payments.SettleClaim(ctx, repository.SettleParams{
			PaymentID:     payment.ID,
			AgentID:       req.AgentID,
			ClaimedAmount: claimable,
		})
		if err != nil {
			return ClaimResult{}, apperr.Persistence("settle claimed amount", err).WithOp(opClaim)
		}
	}

	result := ClaimResult{Payment: claimed, ClaimedAmount: claimable, Lead: updated}

	if remainder := payment.Amount.Sub(claimable); remainder.IsPositive() {
		parentID := payment.ID
		spawned, err := s.payments.Create(ctx, repository.CreateParams{
			Amount:     remainder,
			Method:     payment.Method,
			Reference:  payment.Reference,
			ReceiptURL: payment.ReceiptURL,
			ParentID:   &parentID,
			CreatedBy:  payment.CreatedBy,
		})
		if err != nil {
			return result, apperr.Persistence("create remainder payment", err).WithOp(opClaim)
		}
		result.Remainder = &spawned
	}

	if err := s.agents.AddCollection(ctx, req.AgentID, claimable); err != nil {
		return result, apperr.Persistence("update agent collection", err).WithOp(opClaim)
	}

	if s.eventBus != nil {
		var remainderID *uuid.UUID
		if result.Remainder != nil {
			id := result.Remainder.ID
			remainderID = &id
		}
		s.eventBus.Publish(ctx, events.PaymentClaimed{
			BaseEvent:     events.NewBaseEvent(),
			PaymentID:     claimed.ID,
			LeadID:        lead.ID,
			AgentID:       req.AgentID,
			ClaimedAmount: claimable,
			RemainderID:   remainderID,
		})
	}

	return result, nil
}

// deductLedger pays up to amount down on the lead's fee entries and returns
// the amount it committed. A concurrent ledger write makes the save fail on
// the version check; the lead is then re-read and the claim re-capped at the
// fresh ledger total.
func (s *Service) deductLedger(ctx context.Context, lead leadsrepo.Lead, amount decimal.Decimal) (leadsrepo.Lead, decimal.Decimal, error) {
	current := lead
	for attempt := 0; attempt < ledgerRetries; attempt++ {
		if attempt > 0 {
			fresh, err := s.leads.GetByID(ctx, lead.ID)
			if err != nil {
				return leadsrepo.Lead{}, decimal.Zero, apperr.Persistence("reload lead ledger", err).WithOp(opClaim)
			}
			current = fresh
		}

		available := leaddomain.LedgerTotal(current.FeeEntries)
		if available.LessThan(s.minimum) {
			return leadsrepo.Lead{}, decimal.Zero, s.belowMinimum(lead.ID, available)
		}
		take := decimal.Min(amount, available)
		entries, _ := leaddomain.Deduct(current.FeeEntries, take)

		saved, err := s.leads.SaveLedger(ctx, current.ID, current.LedgerVersion, entries)
		if errors.Is(err, leadsrepo.ErrConflict) {
			continue
		}
		if err != nil {
			return leadsrepo.Lead{}, decimal.Zero, apperr.Persistence("save lead ledger", err).WithOp(opClaim)
		}
		if take.LessThan(amount) && s.log != nil {
			s.log.Warn("claim re-capped after concurrent ledger change",
				"leadId", lead.ID,
				"requested", amount.StringFixed(2),
				"claimed", take.StringFixed(2),
			)
		}
		return saved, take, nil
	}
	return leadsrepo.Lead{}, decimal.Zero, apperr.Persistence("save lead ledger", leadsrepo.ErrConflict).WithOp(opClaim)
}

// release hands a held payment back to pending after the ledger could not be
// charged.
func (s *Service) release(ctx context.Context, payment domain.Payment, agentID uuid.UUID) {
	_, err := s.payments.ReleaseClaim(ctx, repository.ReleaseParams{
		PaymentID: payment.ID,
		AgentID:   agentID,
		LeadID:    payment.LeadID,
	})
	if err != nil && s.log != nil {
		s.log.Error("failed to release claimed payment", "paymentId", payment.ID, "agentId", agentID, "error", err)
	}
}

func (s *Service) belowMinimum(leadID uuid.UUID, available decimal.Decimal) error {
	return apperr.Precondition(fmt.Sprintf("lead %s has %s available to claim; the minimum is %s",
		leadID, available.StringFixed(2), s.minimum.StringFixed(2))).
		WithOp(opClaim).
		WithCode(apperr.CodeBelowMinimumThreshold).
		WithDetails(map[string]string{"available": available.StringFixed(2), "minimum": s.minimum.StringFixed(2)})
}

type ReviewRequest struct {
	PaymentID  uuid.UUID
	Action     domain.ReviewAction
	Notes      string
	ReviewerID uuid.UUID
}

// Review verifies or rejects a claimed payment. A rejection takes the claimed
// amount back off the agent's cumulative collection; the ledger deduction and
// any remainder payment stay as they are.
func (s *Service) Review(ctx context.Context, req ReviewRequest) (domain.Payment, error) {
	target, ok := req.Action.Target()
	if !ok {
		return domain.Payment{}, apperr.Validation(fmt.Sprintf("unknown review action %q", req.Action)).WithOp(opReview)
	}
	notes := sanitize.Text(req.Notes)

	reviewed, err := s.payments.ReviewIfClaimed(ctx, repository.ReviewParams{
		PaymentID:  req.PaymentID,
		To:         target,
		ReviewerID: req.ReviewerID,
		Notes:      notes,
		ReviewedAt: s.now(),
	})
	if errors.Is(err, repository.ErrStatusChanged) {
		current, getErr := s.payments.GetByID(ctx, req.PaymentID)
		if getErr != nil {
			return domain.Payment{}, mapPaymentErr(getErr, opReview)
		}
		return domain.Payment{}, apperr.Precondition(fmt.Sprintf("payment %s is %s; only claimed payments can be reviewed", current.ID, current.Status)).
			WithOp(opReview).
			WithCode(apperr.CodeInvalidTransition)
	}
	if err != nil {
		return domain.Payment{}, mapPaymentErr(err, opReview)
	}

	if target == domain.StatusRejected && reviewed.ClaimedBy != nil {
		if err := s.agents.AddCollection(ctx, *reviewed.ClaimedBy, reviewed.ClaimedAmount.Neg()); err != nil {
			return reviewed, apperr.Persistence("reverse agent collection", err).WithOp(opReview)
		}
	}

	if s.eventBus != nil && reviewed.ClaimedBy != nil {
		s.eventBus.Publish(ctx, events.ClaimReviewed{
			BaseEvent:     events.NewBaseEvent(),
			PaymentID:     reviewed.ID,
			AgentID:       *reviewed.ClaimedBy,
			ReviewerID:    req.ReviewerID,
			Verified:      target == domain.StatusVerified,
			ClaimedAmount: reviewed.ClaimedAmount,
			Notes:         notes,
		})
	}

	return reviewed, nil
}

type RecordRequest struct {
	Amount     decimal.Decimal
	Method     domain.Method
	Reference  string
	ReceiptURL string
	LeadID     *uuid.UUID
	CreatedBy  *uuid.UUID
}

// Record registers incoming money as a pending payment.
func (s *Service) Record(ctx context.Context, req RecordRequest) (domain.Payment, error) {
	if !req.Amount.IsPositive() {
		return domain.Payment{}, apperr.Validation("amount must be greater than zero").WithOp(opRecord)
	}
	if !domain.IsKnownMethod(req.Method) {
		return domain.Payment{}, apperr.Validation(fmt.Sprintf("unknown payment method %q", req.Method)).WithOp(opRecord)
	}
	if req.LeadID != nil {
		if _, err := s.leads.GetByID(ctx, *req.LeadID); err != nil {
			return domain.Payment{}, mapLeadErr(err, opRecord)
		}
	}

	payment, err := s.payments.Create(ctx, repository.CreateParams{
		Amount:     req.Amount.Round(2),
		Method:     req.Method,
		Reference:  sanitize.Text(req.Reference),
		ReceiptURL: req.ReceiptURL,
		LeadID:     req.LeadID,
		CreatedBy:  req.CreatedBy,
	})
	if err != nil {
		return domain.Payment{}, apperr.Persistence("record payment", err).WithOp(opRecord)
	}
	return payment, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Payment, error) {
	payment, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return domain.Payment{}, mapPaymentErr(err, "payments.claims.get")
	}
	return payment, nil
}

type ListRequest struct {
	Status    *domain.Status
	LeadID    *uuid.UUID
	ClaimedBy *uuid.UUID
	Page      int
	PageSize  int
}

func (s *Service) List(ctx context.Context, req ListRequest) ([]domain.Payment, int, error) {
	if req.Status != nil && !domain.IsKnownStatus(*req.Status) {
		return nil, 0, apperr.Validation(fmt.Sprintf("unknown status %q", *req.Status))
	}
	page, pageSize := req.Page, req.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	items, total, err := s.payments.List(ctx, repository.ListParams{
		Status:    req.Status,
		LeadID:    req.LeadID,
		ClaimedBy: req.ClaimedBy,
		Offset:    (page - 1) * pageSize,
		Limit:     pageSize,
	})
	if err != nil {
		return nil, 0, apperr.Persistence("list payments", err)
	}
	return items, total, nil
}

func (s *Service) alreadyClaimed(ctx context.Context, payment domain.Payment) error {
	claimant := "unknown agent"
	if payment.ClaimedBy != nil {
		claimant = s.agentLabel(ctx, *payment.ClaimedBy)
	}
	return apperr.Conflict(fmt.Sprintf("payment %s already claimed by %s (status %s)", payment.ID, claimant, payment.Status)).
		WithOp(opClaim).
		WithCode(apperr.CodeAlreadyClaimed).
		WithDetails(map[string]any{"paymentId": payment.ID, "claimedBy": payment.ClaimedBy, "status": payment.Status})
}

func (s *Service) notYourLead(ctx context.Context, lead leadsrepo.Lead) error {
	owner := "no agent"
	if lead.AssignedAgentID != nil {
		owner = s.agentLabel(ctx, *lead.AssignedAgentID)
	}
	return apperr.Forbidden(fmt.Sprintf("lead %s is assigned to %s", lead.ID, owner)).
		WithOp(opClaim).
		WithCode(apperr.CodeNotYourLead).
		WithDetails(map[string]any{"leadId": lead.ID, "assignedAgentId": lead.AssignedAgentID})
}

func (s *Service) agentLabel(ctx context.Context, id uuid.UUID) string {
	agent, err := s.agents.GetByID(ctx, id)
	if err != nil || agent.Name == "" {
		return "agent " + id.String()
	}
	return fmt.Sprintf("agent %s (%s)", agent.Name, id)
}

func mapPaymentErr(err error, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("payment not found").WithOp(op)
	}
	return apperr.Persistence("payment store", err).WithOp(op)
}

func mapLeadErr(err error, op string) error {
	if errors.Is(err, leadsrepo.ErrNotFound) {
		return apperr.NotFound("lead not found").WithOp(op)
	}
	return apperr.Persistence("lead store", err).WithOp(op)
}
