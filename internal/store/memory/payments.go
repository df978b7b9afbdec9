package memory

import (
	"context"

	"leaddesk_backend/internal/payments/domain"
	paymentsrepo "leaddesk_backend/internal/payments/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentRepository struct {
	s *Store
}

func clonePayment(p *domain.Payment) domain.Payment {
	out := *p
	out.LeadID = cloneID(p.LeadID)
	out.ClaimedBy = cloneID(p.ClaimedBy)
	out.ClaimedAt = cloneTime(p.ClaimedAt)
	out.ReviewedBy = cloneID(p.ReviewedBy)
	out.ReviewedAt = cloneTime(p.ReviewedAt)
	out.ParentID = cloneID(p.ParentID)
	out.CreatedBy = cloneID(p.CreatedBy)
	return out
}

func (r *PaymentRepository) Create(_ context.Context, params paymentsrepo.CreateParams) (domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	p := &domain.Payment{
		ID:         uuid.New(),
		Amount:     params.Amount,
		Method:     params.Method,
		Reference:  params.Reference,
		ReceiptURL: params.ReceiptURL,
		LeadID:     cloneID(params.LeadID),
		Status:     domain.StatusPending,
		ParentID:   cloneID(params.ParentID),
		CreatedBy:  cloneID(params.CreatedBy),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.s.payments[p.ID] = p
	r.s.paymentOrder = append(r.s.paymentOrder, p.ID)
	return clonePayment(p), nil
}

func (r *PaymentRepository) GetByID(_ context.Context, id uuid.UUID) (domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.payments[id]
	if !ok {
		return domain.Payment{}, paymentsrepo.ErrNotFound
	}
	return clonePayment(p), nil
}

func (r *PaymentRepository) List(_ context.Context, params paymentsrepo.ListParams) ([]domain.Payment, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	matched := make([]domain.Payment, 0)
	for _, id := range r.s.paymentOrder {
		p := r.s.payments[id]
		if params.Status != nil && p.Status != *params.Status {
			continue
		}
		if params.LeadID != nil && !sameID(p.LeadID, params.LeadID) {
			continue
		}
		if params.ClaimedBy != nil && !sameID(p.ClaimedBy, params.ClaimedBy) {
			continue
		}
		matched = append(matched, clonePayment(p))
	}

	start, end := page(len(matched), params.Offset, params.Limit)
	return matched[start:end], len(matched), nil
}

func (r *PaymentRepository) ClaimIfPending(_ context.Context, params paymentsrepo.ClaimParams) (domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.payments[params.PaymentID]
	if !ok {
		return domain.Payment{}, paymentsrepo.ErrNotFound
	}
	if p.Status != domain.StatusPending || (p.LeadID != nil && *p.LeadID != params.LeadID) {
		return domain.Payment{}, paymentsrepo.ErrStatusChanged
	}

	agentID := params.AgentID
	leadID := params.LeadID
	claimedAt := params.ClaimedAt
	p.Status = domain.StatusClaimed
	p.ClaimedBy = &agentID
	p.ClaimedAmount = params.ClaimedAmount
	p.ClaimedAt = &claimedAt
	if p.LeadID == nil {
		p.LeadID = &leadID
	}
	p.UpdatedAt = r.s.now()
	return clonePayment(p), nil
}

func (r *PaymentRepository) SettleClaim(_ context.Context, params paymentsrepo.SettleParams) (domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.payments[params.PaymentID]
	if !ok {
		return domain.Payment{}, paymentsrepo.ErrNotFound
	}
	if !heldBy(p, params.AgentID) {
		return domain.Payment{}, paymentsrepo.ErrStatusChanged
	}
	p.ClaimedAmount = params.ClaimedAmount
	p.UpdatedAt = r.s.now()
	return clonePayment(p), nil
}

func (r *PaymentRepository) ReleaseClaim(_ context.Context, params paymentsrepo.ReleaseParams) (domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.payments[params.PaymentID]
	if !ok {
		return domain.Payment{}, paymentsrepo.ErrNotFound
	}
	if !heldBy(p, params.AgentID) {
		return domain.Payment{}, paymentsrepo.ErrStatusChanged
	}
	p.Status = domain.StatusPending
	p.ClaimedBy = nil
	p.ClaimedAmount = decimal.Zero
	p.ClaimedAt = nil
	p.LeadID = cloneID(params.LeadID)
	p.UpdatedAt = r.s.now()
	return clonePayment(p), nil
}

func heldBy(p *domain.Payment, agentID uuid.UUID) bool {
	return p.Status == domain.StatusClaimed && p.ClaimedBy != nil && *p.ClaimedBy == agentID
}

func (r *PaymentRepository) ReviewIfClaimed(_ context.Context, params paymentsrepo.ReviewParams) (domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.payments[params.PaymentID]
	if !ok {
		return domain.Payment{}, paymentsrepo.ErrNotFound
	}
	if p.Status != domain.StatusClaimed {
		return domain.Payment{}, paymentsrepo.ErrStatusChanged
	}

	reviewer := params.ReviewerID
	reviewedAt := params.ReviewedAt
	p.Status = params.To
	p.ReviewedBy = &reviewer
	p.ReviewedAt = &reviewedAt
	p.ReviewNotes = params.Notes
	p.UpdatedAt = r.s.now()
	return clonePayment(p), nil
}
