package claims

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	agentsrepo "leaddesk_backend/internal/agents/repository"
	"leaddesk_backend/internal/events"
	leaddomain "leaddesk_backend/internal/leads/domain"
	leadsrepo "leaddesk_backend/internal/leads/repository"
	"leaddesk_backend/internal/payments/domain"
	"leaddesk_backend/internal/store/memory"
	"leaddesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type fixture struct {
	store *memory.Store
	svc   *Service
	bus   *events.InMemoryBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	bus := events.NewInMemoryBus(nil)
	return &fixture{
		store: store,
		svc:   New(store.Payments(), store.Leads(), store.Agents(), bus, dec(1), nil),
		bus:   bus,
	}
}

func (f *fixture) agent(t *testing.T, name string) uuid.UUID {
	t.Helper()
	agent, err := f.store.Agents().Create(context.Background(), agentsrepo.CreateAgentParams{Name: name, Status: agentsrepo.StatusOnline})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return agent.ID
}

// lead creates a lead assigned to agentID with one fee entry per bucket set.
func (f *fixture) lead(t *testing.T, agentID uuid.UUID, entries ...leaddomain.FeeBuckets) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	lead, err := f.store.Leads().Create(ctx, leadsrepo.CreateLeadParams{
		FirstName:       "Lead",
		Phone:           "0612345678",
		PhoneKeys:       []string{"0612345678"},
		AssignedAgentID: &agentID,
	})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	for i, buckets := range entries {
		if _, err := f.store.Leads().AppendFeeEntry(ctx, lead.ID, int64(i), leadsrepo.NewFeeEntry{Buckets: buckets}); err != nil {
			t.Fatalf("append fee entry: %v", err)
		}
	}
	return lead.ID
}

func (f *fixture) payment(t *testing.T, amount int64) uuid.UUID {
	t.Helper()
	p, err := f.svc.Record(context.Background(), RecordRequest{Amount: dec(amount), Method: domain.MethodBank, Reference: "TX-1"})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	return p.ID
}

func (f *fixture) collection(t *testing.T, agentID uuid.UUID) decimal.Decimal {
	t.Helper()
	agent, err := f.store.Agents().GetByID(context.Background(), agentID)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	return agent.CumulativeCollection
}

func TestClaimCapsAtLedgerTotalAndSpawnsRemainder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agentID := f.agent(t, "Ann")
	leadID := f.lead(t, agentID, leaddomain.FeeBuckets{Government: dec(100), Professional: dec(500)})
	paymentID := f.payment(t, 1000)

	result, err := f.svc.Claim(ctx, ClaimRequest{PaymentID: paymentID, LeadID: leadID, AgentID: agentID})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !result.ClaimedAmount.Equal(dec(600)) || !result.Payment.ClaimedAmount.Equal(dec(600)) {
		t.Fatalf("expected claimed 600, got %s", result.ClaimedAmount)
	}
	if result.Payment.Status != domain.StatusClaimed || result.Payment.LeadID == nil || *result.Payment.LeadID != leadID {
		t.Fatalf("payment not bound as claimed: %+v", result.Payment)
	}
	if result.Remainder == nil {
		t.Fatal("expected a remainder payment")
	}
	rem := result.Remainder
	if !rem.Amount.Equal(dec(400)) || rem.Status != domain.StatusPending || rem.LeadID != nil {
		t.Fatalf("unexpected remainder: %+v", rem)
	}
	if rem.ParentID == nil || *rem.ParentID != paymentID || rem.Method != domain.MethodBank || rem.Reference != "TX-1" {
		t.Fatalf("remainder should carry origin and metadata: %+v", rem)
	}
	if !result.Lead.ClaimSummary.Total.IsZero() {
		t.Fatalf("ledger should be exhausted, got %s", result.Lead.ClaimSummary.Total)
	}
	if got := f.collection(t, agentID); !got.Equal(dec(600)) {
		t.Fatalf("expected collection 600, got %s", got)
	}
}

func TestClaimSufficientLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agentID := f.agent(t, "Ann")
	leadID := f.lead(t, agentID,
		leaddomain.FeeBuckets{Government: dec(100)},
		leaddomain.FeeBuckets{Professional: dec(200), Stamp: dec(300)},
	)

	result, err := f.svc.Claim(ctx, ClaimRequest{PaymentID: f.payment(t, 300), LeadID: leadID, AgentID: agentID})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !result.ClaimedAmount.Equal(dec(300)) || result.Remainder != nil {
		t.Fatalf("expected 300 with no remainder, got %s remainder=%v", result.ClaimedAmount, result.Remainder)
	}

	lead, _ := f.store.Leads().GetByID(ctx, leadID)
	if !lead.ClaimSummary.Total.Equal(dec(300)) {
		t.Fatalf("expected ledger total 300, got %s", lead.ClaimSummary.Total)
	}
	if !lead.FeeEntries[0].Buckets.Government.IsZero() ||
		!lead.FeeEntries[1].Buckets.Professional.IsZero() ||
		!lead.FeeEntries[1].Buckets.Stamp.Equal(dec(300)) {
		t.Fatalf("deduction order not respected: %+v", lead.FeeEntries)
	}
}

func TestClaimTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agentID := f.agent(t, "Ann")
	leadID := f.lead(t, agentID, leaddomain.FeeBuckets{Other: dec(1000)})
	paymentID := f.payment(t, 200)

	if _, err := f.svc.Claim(ctx, ClaimRequest{PaymentID: paymentID, LeadID: leadID, AgentID: agentID}); err != nil {
		t.Fatalf("first Claim: %v", err)
	}
	_, err := f.svc.Claim(ctx, ClaimRequest{PaymentID: paymentID, LeadID: leadID, AgentID: agentID})
	if !apperr.HasCode(err, apperr.CodeAlreadyClaimed) {
		t.Fatalf("expected already_claimed, got %v", err)
	}
	if !strings.Contains(err.Error(), paymentID.String()) || !strings.Contains(err.Error(), "Ann") {
		t.Fatalf("error should name payment and claimant: %v", err)
	}
	if got := f.collection(t, agentID); !got.Equal(dec(200)) {
		t.Fatalf("collection incremented twice: %s", got)
	}
}

func TestConcurrentClaimsSucceedOnce(t *testing.T) {
	f := newFixture(t)
	agentID := f.agent(t, "Ann")
	leadID := f.lead(t, agentID, leaddomain.FeeBuckets{Government: dec(5000)})
	paymentID := f.payment(t, 250)

	const racers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, conflicts := 0, 0
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Claim(context.Background(), ClaimRequest{PaymentID: paymentID, LeadID: leadID, AgentID: agentID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperr.HasCode(err, apperr.CodeAlreadyClaimed):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || conflicts != racers-1 {
		t.Fatalf("expected exactly one success, got %d successes %d conflicts", successes, conflicts)
	}
	if got := f.collection(t, agentID); !got.Equal(dec(250)) {
		t.Fatalf("expected collection 250, got %s", got)
	}
	lead, _ := f.store.Leads().GetByID(context.Background(), leadID)
	if !lead.ClaimSummary.Total.Equal(dec(4750)) {
		t.Fatalf("expected ledger 4750, got %s", lead.ClaimSummary.Total)
	}
}

// barrierLeads holds the first n lead reads until all n have arrived, so
// every claim plans against the same ledger version.
type barrierLeads struct {
	LeadStore
	n     int32
	reads atomic.Int32
	ready sync.WaitGroup
}

func newBarrierLeads(inner LeadStore, n int) *barrierLeads {
	b := &barrierLeads{LeadStore: inner, n: int32(n)}
	b.ready.Add(n)
	return b
}

func (b *barrierLeads) GetByID(ctx context.Context, id uuid.UUID) (leadsrepo.Lead, error) {
	if b.reads.Add(1) <= b.n {
		b.ready.Done()
		b.ready.Wait()
	}
	return b.LeadStore.GetByID(ctx, id)
}

func TestConcurrentClaimsOnOneLeadNeverExceedLedger(t *testing.T) {
	f := newFixture(t)
	agentID := f.agent(t, "Ann")
	leadID := f.lead(t, agentID, leaddomain.FeeBuckets{Government: dec(600)})
	payments := []uuid.UUID{f.payment(t, 500), f.payment(t, 500)}

	svc := New(f.store.Payments(), newBarrierLeads(f.store.Leads(), len(payments)), f.store.Agents(), nil, dec(1), nil)

	results := make([]ClaimResult, len(payments))
	errs := make([]error, len(payments))
	var wg sync.WaitGroup
	for i, id := range payments {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			results[i], errs[i] = svc.Claim(context.Background(), ClaimRequest{PaymentID: id, LeadID: leadID, AgentID: agentID})
		}(i, id)
	}
	wg.Wait()

	claimed, remainders := decimal.Zero, decimal.Zero
	for i, err := range errs {
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		claimed = claimed.Add(results[i].ClaimedAmount)
		stored, _ := f.svc.Get(context.Background(), payments[i])
		if !stored.ClaimedAmount.Equal(results[i].ClaimedAmount) {
			t.Fatalf("payment %d stores %s but the claim reported %s", i, stored.ClaimedAmount, results[i].ClaimedAmount)
		}
		if results[i].Remainder != nil {
			remainders = remainders.Add(results[i].Remainder.Amount)
		}
	}

	if !claimed.Equal(dec(600)) {
		t.Fatalf("claimed %s against a ledger of 600", claimed)
	}
	if !remainders.Equal(dec(400)) {
		t.Fatalf("expected 400 split into remainders, got %s", remainders)
	}
	if got := f.collection(t, agentID); !got.Equal(dec(600)) {
		t.Fatalf("expected collection 600, got %s", got)
	}
	lead, _ := f.store.Leads().GetByID(context.Background(), leadID)
	if !lead.ClaimSummary.Total.IsZero() {
		t.Fatalf("expected an exhausted ledger, got %s", lead.ClaimSummary.Total)
	}
}

// drainingLeads empties the ledger through the inner store right before the
// first save, as a concurrent claim on another payment would.
type drainingLeads struct {
	LeadStore
	leave   decimal.Decimal
	drained bool
}

func (d *drainingLeads) SaveLedger(ctx context.Context, leadID uuid.UUID, expectedVersion int64, entries []leaddomain.FeeEntry) (leadsrepo.Lead, error) {
	if !d.drained {
		d.drained = true
		current, err := d.LeadStore.GetByID(ctx, leadID)
		if err != nil {
			return leadsrepo.Lead{}, err
		}
		take := leaddomain.LedgerTotal(current.FeeEntries).Sub(d.leave)
		drained, _ := leaddomain.Deduct(current.FeeEntries, take)
		if _, err := d.LeadStore.SaveLedger(ctx, leadID, current.LedgerVersion, drained); err != nil {
			return leadsrepo.Lead{}, err
		}
	}
	return d.LeadStore.SaveLedger(ctx, leadID, expectedVersion, entries)
}

func TestClaimRecapsWhenLedgerShrinksBeforeDeduction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agentID := f.agent(t, "Ann")
	leadID := f.lead(t, agentID, leaddomain.FeeBuckets{Professional: dec(600)})
	paymentID := f.payment(t, 500)

	svc := New(f.store.Payments(), &drainingLeads{LeadStore: f.store.Leads(), leave: dec(150)}, f.store.Agents(), nil, dec(1), nil)

	result, err := svc.Claim(ctx, ClaimRequest{PaymentID: paymentID, LeadID: leadID, AgentID: agentID})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !result.ClaimedAmount.Equal(dec(150)) || !result.Payment.ClaimedAmount.Equal(dec(150)) {
		t.Fatalf("expected the claim re-capped to 150, got %s / %s", result.ClaimedAmount, result.Payment.ClaimedAmount)
	}
	if result.Remainder == nil || !result.Remainder.Amount.Equal(dec(350)) {
		t.Fatalf("expected a 350 remainder, got %+v", result.Remainder)
	}
	if got := f.collection(t, agentID); !got.Equal(dec(150)) {
		t.Fatalf("expected collection 150, got %s", got)
	}
}

func TestClaimReleasesPaymentWhenLedgerDrainedBeforeDeduction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agentID := f.agent(t, "Ann")
	leadID := f.lead(t, agentID, leaddomain.FeeBuckets{Stamp: dec(600)})
	paymentID := f.payment(t, 500)

	svc := New(f.store.Payments(), &drainingLeads{LeadStore: f.store.Leads(), leave: decimal.Zero}, f.store.Agents(), nil, dec(1), nil)

	_, err := svc.Claim(ctx, ClaimRequest{PaymentID: paymentID, LeadID: leadID, AgentID: agentID})
	if !apperr.HasCode(err, apperr.CodeBelowMinimumThreshold) {
		t.Fatalf("expected below_minimum_threshold, got %v", err)
	}

	p, _ := f.svc.Get(ctx, paymentID)
	if p.Status != domain.StatusPending || p.ClaimedBy != nil || p.LeadID != nil || !p.ClaimedAmount.IsZero() {
		t.Fatalf("payment should be back to pending and unbound: %+v", p)
	}
	if got := f.collection(t, agentID); !got.IsZero() {
		t.Fatalf("collection must stay untouched, got %s", got)
	}
}

func TestClaimBelowMinimum(t *testing.T) {
	f := newFixture(t)
	agentID := f.agent(t, "Ann")
	leadID := f.lead(t, agentID)
	paymentID := f.payment(t, 100)

	_, err := f.svc.Claim(context.Background(), ClaimRequest{PaymentID: paymentID, LeadID: leadID, AgentID: agentID})
	if !apperr.HasCode(err, apperr.CodeBelowMinimumThreshold) {
		t.Fatalf("expected below_minimum_threshold, got %v", err)
	}
	if !strings.Contains(err.Error(), "0.00") {
		t.Fatalf("error should name the available amount: %v", err)
	}

	p, _ := f.svc.Get(context.Background(), paymentID)
	if p.Status != domain.StatusPending {
		t.Fatalf("payment must stay pending, got %s", p.Status)
	}
}

func TestClaimNotYourLead(t *testing.T) {
	f := newFixture(t)
	owner := f.agent(t, "Ann")
	other := f.agent(t, "Bob")
	leadID := f.lead(t, owner, leaddomain.FeeBuckets{Government: dec(100)})

	_, err := f.svc.Claim(context.Background(), ClaimRequest{PaymentID: f.payment(t, 50), LeadID: leadID, AgentID: other})
	if !apperr.HasCode(err, apperr.CodeNotYourLead) {
		t.Fatalf("expected not_your_lead, got %v", err)
	}
	if !strings.Contains(err.Error(), "Ann") {
		t.Fatalf("error should name the owner: %v", err)
	}
	if got := f.collection(t, other); !got.IsZero() {
		t.Fatalf("no collection change expected, got %s", got)
	}
}

func TestClaimRejectsPaymentBoundToAnotherLead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agentID := f.agent(t, "Ann")
	boundLead := f.lead(t, agentID, leaddomain.FeeBuckets{Government: dec(100)})
	otherLead := f.lead(t, agentID, leaddomain.FeeBuckets{Government: dec(100)})

	p, err := f.svc.Record(ctx, RecordRequest{Amount: dec(50), Method: domain.MethodCash, LeadID: &boundLead})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	_, err = f.svc.Claim(ctx, ClaimRequest{PaymentID: p.ID, LeadID: otherLead, AgentID: agentID})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.svc.Claim(ctx, ClaimRequest{PaymentID: p.ID, LeadID: boundLead, AgentID: agentID}); err != nil {
		t.Fatalf("claim against bound lead: %v", err)
	}
}

func TestReviewRejectReversesCollectionOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agentID := f.agent(t, "Ann")
	reviewer := uuid.New()
	leadID := f.lead(t, agentID, leaddomain.FeeBuckets{Government: dec(600)})
	paymentID := f.payment(t, 1000)

	if _, err := f.svc.Claim(ctx, ClaimRequest{PaymentID: paymentID, LeadID: leadID, AgentID: agentID}); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	reviewed, err := f.svc.Review(ctx, ReviewRequest{PaymentID: paymentID, Action: domain.ActionReject, Notes: "<b>wrong</b> receipt", ReviewerID: reviewer})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if reviewed.Status != domain.StatusRejected || reviewed.ReviewNotes != "wrong receipt" {
		t.Fatalf("unexpected review result: %+v", reviewed)
	}
	if got := f.collection(t, agentID); !got.IsZero() {
		t.Fatalf("rejection should reverse the collection, got %s", got)
	}

	lead, _ := f.store.Leads().GetByID(ctx, leadID)
	if !lead.ClaimSummary.Total.IsZero() {
		t.Fatalf("ledger deduction is not restored on rejection, got %s", lead.ClaimSummary.Total)
	}
	pending := domain.StatusPending
	remainders, _, _ := f.svc.List(ctx, ListRequest{Status: &pending})
	if len(remainders) != 1 || !remainders[0].Amount.Equal(dec(400)) {
		t.Fatalf("remainder payment should survive rejection, got %+v", remainders)
	}

	_, err = f.svc.Review(ctx, ReviewRequest{PaymentID: paymentID, Action: domain.ActionVerify, ReviewerID: reviewer})
	if !apperr.HasCode(err, apperr.CodeInvalidTransition) {
		t.Fatalf("terminal payment must not be reviewed again, got %v", err)
	}
}

func TestReviewVerifyKeepsCollection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agentID := f.agent(t, "Ann")
	leadID := f.lead(t, agentID, leaddomain.FeeBuckets{Stamp: dec(80)})
	paymentID := f.payment(t, 80)

	if _, err := f.svc.Claim(ctx, ClaimRequest{PaymentID: paymentID, LeadID: leadID, AgentID: agentID}); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := f.svc.Review(ctx, ReviewRequest{PaymentID: paymentID, Action: domain.ActionVerify, ReviewerID: uuid.New()}); err != nil {
		t.Fatalf("Review: %v", err)
	}
	if got := f.collection(t, agentID); !got.Equal(dec(80)) {
		t.Fatalf("verification keeps the collection, got %s", got)
	}
}

func TestReviewPendingPaymentFails(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Review(context.Background(), ReviewRequest{PaymentID: f.payment(t, 10), Action: domain.ActionVerify, ReviewerID: uuid.New()})
	if !apperr.Is(err, apperr.KindPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}

	_, err = f.svc.Review(context.Background(), ReviewRequest{PaymentID: uuid.New(), Action: "approve"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for unknown action, got %v", err)
	}
}

func TestRecordValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Record(ctx, RecordRequest{Amount: dec(0), Method: domain.MethodCash}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("zero amount should be rejected, got %v", err)
	}
	if _, err := f.svc.Record(ctx, RecordRequest{Amount: dec(10), Method: "card"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("unknown method should be rejected, got %v", err)
	}
	missing := uuid.New()
	if _, err := f.svc.Record(ctx, RecordRequest{Amount: dec(10), Method: domain.MethodCash, LeadID: &missing}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("unknown lead should be rejected, got %v", err)
	}
}

func TestClaimPublishesEvent(t *testing.T) {
	f := newFixture(t)
	agentID := f.agent(t, "Ann")
	leadID := f.lead(t, agentID, leaddomain.FeeBuckets{Government: dec(10)})

	got := make(chan events.PaymentClaimed, 1)
	f.bus.Subscribe(events.PaymentClaimed{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		got <- e.(events.PaymentClaimed)
		return nil
	}))

	if _, err := f.svc.Claim(context.Background(), ClaimRequest{PaymentID: f.payment(t, 25), LeadID: leadID, AgentID: agentID}); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	f.bus.Wait()

	evt := <-got
	if evt.AgentID != agentID || !evt.ClaimedAmount.Equal(dec(10)) || evt.RemainderID == nil {
		t.Fatalf("unexpected event: %+v", evt)
	}
}
