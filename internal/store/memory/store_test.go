package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	agentsrepo "leaddesk_backend/internal/agents/repository"
	"leaddesk_backend/internal/leads/domain"
	leadsrepo "leaddesk_backend/internal/leads/repository"
	paydomain "leaddesk_backend/internal/payments/domain"
	paymentsrepo "leaddesk_backend/internal/payments/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestIncrementLoadIsAtomic(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	agent, _ := s.Agents().Create(ctx, agentsrepo.CreateAgentParams{Name: "Ann", Status: agentsrepo.StatusOnline})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Agents().IncrementLoad(ctx, agent.ID, 2)
		}()
	}
	wg.Wait()

	got, _ := s.Agents().GetByID(ctx, agent.ID)
	if got.LeadsAssigned != 100 || got.LeadsPending != 100 {
		t.Fatalf("expected 100/100, got %d/%d", got.LeadsAssigned, got.LeadsPending)
	}
}

func TestDecrementPendingStopsAtZero(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	agent, _ := s.Agents().Create(ctx, agentsrepo.CreateAgentParams{Name: "Ann"})
	_ = s.Agents().IncrementLoad(ctx, agent.ID, 1)

	if err := s.Agents().DecrementPending(ctx, agent.ID); err != nil {
		t.Fatalf("DecrementPending: %v", err)
	}
	if err := s.Agents().DecrementPending(ctx, agent.ID); !errors.Is(err, agentsrepo.ErrNoPendingLeads) {
		t.Fatalf("expected ErrNoPendingLeads, got %v", err)
	}
	got, _ := s.Agents().GetByID(ctx, agent.ID)
	if got.LeadsAssigned != 1 || got.LeadsPending != 0 {
		t.Fatalf("unexpected counters %d/%d", got.LeadsAssigned, got.LeadsPending)
	}
}

func TestClaimIfPendingHasOneWinner(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	payment, _ := s.Payments().Create(ctx, paymentsrepo.CreateParams{Amount: decimal.NewFromInt(100), Method: paydomain.MethodCash})
	leadID := uuid.New()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Payments().ClaimIfPending(ctx, paymentsrepo.ClaimParams{
				PaymentID:     payment.ID,
				LeadID:        leadID,
				AgentID:       uuid.New(),
				ClaimedAmount: decimal.NewFromInt(100),
				ClaimedAt:     time.Now(),
			})
			if err == nil {
				wins.Add(1)
			} else if !errors.Is(err, paymentsrepo.ErrStatusChanged) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
	got, _ := s.Payments().GetByID(ctx, payment.ID)
	if got.Status != paydomain.StatusClaimed || got.LeadID == nil || *got.LeadID != leadID {
		t.Fatalf("unexpected payment: %+v", got)
	}
}

func TestAppendFeeEntryRejectsStaleVersion(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	lead, _ := s.Leads().Create(ctx, leadsrepo.CreateLeadParams{FirstName: "Lead", Phone: "0612345678", PhoneKeys: []string{"0612345678"}})
	entry := leadsrepo.NewFeeEntry{Buckets: domain.FeeBuckets{Stamp: decimal.NewFromInt(5)}}

	if _, err := s.Leads().AppendFeeEntry(ctx, lead.ID, 0, entry); err != nil {
		t.Fatalf("AppendFeeEntry: %v", err)
	}
	if _, err := s.Leads().AppendFeeEntry(ctx, lead.ID, 0, entry); !errors.Is(err, leadsrepo.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, _ := s.Leads().GetByID(ctx, lead.ID)
	if got.LedgerVersion != 1 || !got.ClaimSummary.Total.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("unexpected ledger: version=%d total=%s", got.LedgerVersion, got.ClaimSummary.Total)
	}
}

func TestAssignIfUnchangedRefusesNumberOwnedElsewhere(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	owner := uuid.New()
	at := time.Now()

	_, _ = s.Leads().Create(ctx, leadsrepo.CreateLeadParams{
		FirstName:       "First",
		Phone:           "0612345678",
		PhoneKeys:       []string{"0612345678"},
		AssignedAgentID: &owner,
		AssignedAt:      &at,
	})
	second, _ := s.Leads().Create(ctx, leadsrepo.CreateLeadParams{FirstName: "Second", Phone: "06-12345678", PhoneKeys: []string{"0612345678"}})

	_, err := s.Leads().AssignIfUnchanged(ctx, leadsrepo.AssignParams{LeadID: second.ID, AgentID: uuid.New(), AssignedAt: at})
	if !errors.Is(err, leadsrepo.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if _, err := s.Leads().AssignIfUnchanged(ctx, leadsrepo.AssignParams{LeadID: second.ID, AgentID: owner, AssignedAt: at}); err != nil {
		t.Fatalf("owner should receive the lead: %v", err)
	}

	ownership, found, _ := s.Leads().FindAssignedByPhone(ctx, "0612345678")
	if !found || ownership.AgentID != owner {
		t.Fatalf("unexpected ownership: %+v found=%v", ownership, found)
	}
}
