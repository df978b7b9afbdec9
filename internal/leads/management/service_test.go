package management

import (
	"context"
	"testing"

	agentsrepo "leaddesk_backend/internal/agents/repository"
	"leaddesk_backend/internal/events"
	"leaddesk_backend/internal/leads/assignment"
	"leaddesk_backend/internal/leads/transport"
	"leaddesk_backend/internal/store/memory"
	"leaddesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newService(t *testing.T, agentNames ...string) (*Service, *memory.Store, []uuid.UUID, *events.InMemoryBus) {
	t.Helper()
	store := memory.NewStore()
	ids := make([]uuid.UUID, 0, len(agentNames))
	for _, name := range agentNames {
		agent, err := store.Agents().Create(context.Background(), agentsrepo.CreateAgentParams{Name: name, Status: agentsrepo.StatusOnline})
		if err != nil {
			t.Fatalf("create agent: %v", err)
		}
		ids = append(ids, agent.ID)
	}
	bus := events.NewInMemoryBus(nil)
	cursor := assignment.NewCursor(store.Agents(), nil)
	return New(store.Leads(), store.Agents(), cursor, bus, nil), store, ids, bus
}

func TestCreateRotatesAgentsAndUpdatesCounters(t *testing.T) {
	svc, store, ids, bus := newService(t, "Ann", "Bob")
	ctx := context.Background()

	received := make(chan events.LeadsAssigned, 4)
	bus.Subscribe(events.LeadsAssigned{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		received <- e.(events.LeadsAssigned)
		return nil
	}))

	var got []uuid.UUID
	for i := 0; i < 4; i++ {
		// The same number on purpose: this path does not check ownership.
		lead, err := svc.Create(ctx, transport.CreateLeadRequest{FirstName: "Lead", Phone: "06 1234 5678"}, nil)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if lead.AssignedAgentID == nil || lead.AssignedAt == nil {
			t.Fatalf("lead should be assigned: %+v", lead)
		}
		got = append(got, *lead.AssignedAgentID)
	}
	want := []uuid.UUID{ids[0], ids[1], ids[0], ids[1]}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("turn %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	for _, id := range ids {
		agent, _ := store.Agents().GetByID(ctx, id)
		if agent.LeadsAssigned != 2 || agent.LeadsPending != 2 {
			t.Fatalf("agent %s counters: assigned=%d pending=%d", agent.Name, agent.LeadsAssigned, agent.LeadsPending)
		}
	}

	bus.Wait()
	if len(received) != 4 {
		t.Fatalf("expected one event per created lead, got %d", len(received))
	}
	if evt := <-received; !evt.SingleLead || len(evt.LeadIDs) != 1 {
		t.Fatalf("unexpected event: %+v", evt)
	}
}

func TestCreateWithoutAgentsLeavesLeadUnassigned(t *testing.T) {
	svc, _, _, _ := newService(t)

	lead, err := svc.Create(context.Background(), transport.CreateLeadRequest{
		FirstName: "Lead",
		Phone:     "0612345678",
		Phones:    []string{" ", "020-1234567"},
	}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if lead.AssignedAgentID != nil {
		t.Fatalf("expected unassigned lead, got %s", lead.AssignedAgentID)
	}
	if len(lead.Phones) != 1 || lead.Phones[0] != "020-1234567" {
		t.Fatalf("blank extra numbers should be dropped: %v", lead.Phones)
	}
	if lead.Status != transport.LeadStatusOpen || !lead.ClaimTotal.IsZero() {
		t.Fatalf("new lead should be open with an empty ledger: %+v", lead)
	}
}

func TestAddFeeEntry(t *testing.T) {
	svc, _, _, _ := newService(t, "Ann")
	ctx := context.Background()
	lead, _ := svc.Create(ctx, transport.CreateLeadRequest{FirstName: "Lead", Phone: "0612345678"}, nil)

	_, err := svc.AddFeeEntry(ctx, lead.ID, transport.AddFeeEntryRequest{Government: decimal.NewFromInt(-5)}, nil)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("negative bucket should be rejected, got %v", err)
	}
	_, err = svc.AddFeeEntry(ctx, lead.ID, transport.AddFeeEntryRequest{}, nil)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("empty entry should be rejected, got %v", err)
	}

	updated, err := svc.AddFeeEntry(ctx, lead.ID, transport.AddFeeEntryRequest{
		Government:   decimal.NewFromInt(100),
		Professional: decimal.RequireFromString("49.999"),
		Description:  "<i>registration</i>",
	}, nil)
	if err != nil {
		t.Fatalf("AddFeeEntry: %v", err)
	}
	if len(updated.FeeEntries) != 1 || updated.FeeEntries[0].Description != "registration" {
		t.Fatalf("unexpected entries: %+v", updated.FeeEntries)
	}
	if !updated.ClaimTotal.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected total 150, got %s", updated.ClaimTotal)
	}

	if _, err := svc.AddFeeEntry(ctx, uuid.New(), transport.AddFeeEntryRequest{Other: decimal.NewFromInt(1)}, nil); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("unknown lead should be not found, got %v", err)
	}
}

func TestCloseReleasesPendingCounter(t *testing.T) {
	svc, store, ids, _ := newService(t, "Ann", "Bob")
	ctx := context.Background()
	lead, _ := svc.Create(ctx, transport.CreateLeadRequest{FirstName: "Lead", Phone: "0612345678"}, nil)

	if _, err := svc.Close(ctx, lead.ID, ids[1], false); !apperr.HasCode(err, apperr.CodeNotYourLead) {
		t.Fatalf("other agent must not close the lead, got %v", err)
	}

	closed, err := svc.Close(ctx, lead.ID, ids[0], false)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if closed.Status != transport.LeadStatusClosed {
		t.Fatalf("expected closed, got %s", closed.Status)
	}
	agent, _ := store.Agents().GetByID(ctx, ids[0])
	if agent.LeadsAssigned != 1 || agent.LeadsPending != 0 {
		t.Fatalf("unexpected counters: assigned=%d pending=%d", agent.LeadsAssigned, agent.LeadsPending)
	}

	if _, err := svc.Close(ctx, lead.ID, uuid.New(), true); !apperr.HasCode(err, apperr.CodeInvalidTransition) {
		t.Fatalf("closing twice should fail, got %v", err)
	}
	if _, err := svc.AddFeeEntry(ctx, lead.ID, transport.AddFeeEntryRequest{Other: decimal.NewFromInt(1)}, nil); !apperr.Is(err, apperr.KindPrecondition) {
		t.Fatalf("closed lead should not take fee entries, got %v", err)
	}
}

func TestLookupOwner(t *testing.T) {
	svc, _, ids, _ := newService(t, "Ann")
	ctx := context.Background()
	lead, _ := svc.Create(ctx, transport.CreateLeadRequest{FirstName: "Lead", Phone: "0612345678", Phones: []string{"020 123 4567"}}, nil)

	resp, err := svc.LookupOwner(ctx, "(020)-1234567")
	if err != nil {
		t.Fatalf("LookupOwner: %v", err)
	}
	if !resp.Owned || *resp.AgentID != ids[0] || *resp.LeadID != lead.ID || resp.Phone != "0201234567" {
		t.Fatalf("unexpected lookup: %+v", resp)
	}

	resp, err = svc.LookupOwner(ctx, "0699999999")
	if err != nil || resp.Owned {
		t.Fatalf("unknown number should not be owned: %+v err=%v", resp, err)
	}

	if _, err := svc.LookupOwner(ctx, "  "); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("blank number should be rejected, got %v", err)
	}
}

func TestListFiltersByAgent(t *testing.T) {
	svc, _, ids, _ := newService(t, "Ann", "Bob")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, transport.CreateLeadRequest{FirstName: "Lead", Phone: "0612345678"}, nil); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	resp, err := svc.List(ctx, transport.ListLeadsRequest{AssignedAgentID: ids[0].String()})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if resp.Total != 2 || len(resp.Items) != 2 || resp.Page != 1 || resp.PageSize != 20 || resp.TotalPages != 1 {
		t.Fatalf("unexpected page: %+v", resp)
	}
}
