package notification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"leaddesk_backend/internal/events"
	"leaddesk_backend/internal/notification/inapp"
	notificationoutbox "leaddesk_backend/internal/notification/outbox"
	"leaddesk_backend/internal/store/memory"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type failingInbox struct {
	inapp.Store
	failures int
}

func (f *failingInbox) Create(ctx context.Context, p inapp.CreateParams) (inapp.Notification, error) {
	if f.failures > 0 {
		f.failures--
		return inapp.Notification{}, errors.New("inbox unavailable")
	}
	return f.Store.Create(ctx, p)
}

func newTestModule(t *testing.T, withOutbox bool) (*Module, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	m := New(store.Inbox(), nil)
	if withOutbox {
		m.SetNotificationOutbox(store.Outbox())
	}
	return m, store
}

func TestDomainEventWritesOutboxRecord(t *testing.T) {
	m, store := newTestModule(t, true)
	ctx := context.Background()
	agentID := uuid.New()

	err := m.Handle(ctx, events.PaymentClaimed{
		PaymentID:     uuid.New(),
		LeadID:        uuid.New(),
		AgentID:       agentID,
		ClaimedAmount: decimal.RequireFromString("150"),
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	due, err := store.Outbox().ClaimPending(ctx, 10)
	if err != nil {
		t.Fatalf("ClaimPending: %v", err)
	}
	if len(due) != 1 || due[0].AgentID != agentID || due[0].Kind != outboxKindInApp {
		t.Fatalf("unexpected outbox records: %+v", due)
	}

	if err := m.Handle(ctx, events.NotificationOutboxDue{OutboxID: due[0].ID}); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	items, total, err := m.InAppService().List(ctx, agentID, 1, 20)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || items[0].Kind != KindPaymentClaimed || !strings.Contains(items[0].Content, "150.00") {
		t.Fatalf("unexpected inbox: %+v", items)
	}

	rec, _ := store.Outbox().GetByID(ctx, due[0].ID)
	if rec.Status != notificationoutbox.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", rec.Status)
	}

	// A redelivered due event for a finished record is a no-op.
	if err := m.Handle(ctx, events.NotificationOutboxDue{OutboxID: rec.ID}); err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	if _, total, _ := m.InAppService().List(ctx, agentID, 1, 20); total != 1 {
		t.Fatalf("expected a single notification, got %d", total)
	}
}

func TestDomainEventWithoutOutboxDeliversDirectly(t *testing.T) {
	m, _ := newTestModule(t, false)
	ctx := context.Background()
	agentID := uuid.New()

	err := m.Handle(ctx, events.LeadsAssigned{
		AgentID:    agentID,
		LeadIDs:    []uuid.UUID{uuid.New(), uuid.New()},
		Reassigned: 1,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	items, total, _ := m.InAppService().List(ctx, agentID, 1, 20)
	if total != 1 || items[0].Title != "2 leads assigned" {
		t.Fatalf("unexpected inbox: %+v", items)
	}
}

func TestDeliveryFailureSchedulesRetry(t *testing.T) {
	store := memory.NewStore()
	inbox := &failingInbox{Store: store.Inbox(), failures: 1}
	m := New(inbox, nil)
	m.SetNotificationOutbox(store.Outbox())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }
	ctx := context.Background()

	_ = m.Handle(ctx, events.ClaimReviewed{
		PaymentID:     uuid.New(),
		AgentID:       uuid.New(),
		Verified:      true,
		ClaimedAmount: decimal.NewFromInt(10),
	})
	due, _ := store.Outbox().ClaimPending(ctx, 10)
	if len(due) != 1 {
		t.Fatalf("expected one record, got %d", len(due))
	}

	if err := m.Handle(ctx, events.NotificationOutboxDue{OutboxID: due[0].ID}); err == nil {
		t.Fatal("expected delivery error")
	}
	rec, _ := store.Outbox().GetByID(ctx, due[0].ID)
	if rec.Status != notificationoutbox.StatusPending || !rec.RunAt.Equal(fixed.Add(time.Minute)) {
		t.Fatalf("expected retry in one minute, got status=%s runAt=%s", rec.Status, rec.RunAt)
	}

	if err := m.Handle(ctx, events.NotificationOutboxDue{OutboxID: rec.ID}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	rec, _ = store.Outbox().GetByID(ctx, rec.ID)
	if rec.Status != notificationoutbox.StatusSucceeded || rec.Attempts != 2 {
		t.Fatalf("unexpected record after retry: %+v", rec)
	}
}

func TestDeliveryGivesUpAfterMaxAttempts(t *testing.T) {
	store := memory.NewStore()
	m := New(&failingInbox{Store: store.Inbox(), failures: maxOutboxRetryAttempts}, nil)
	m.SetNotificationOutbox(store.Outbox())
	ctx := context.Background()

	id, err := store.Outbox().Insert(ctx, notificationoutbox.InsertParams{
		AgentID: uuid.New(),
		Kind:    outboxKindInApp,
		Payload: inAppOutboxPayload{Kind: KindLeadsAssigned, Title: "t", Content: "c"},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	for i := 0; i < maxOutboxRetryAttempts; i++ {
		_ = m.Handle(ctx, events.NotificationOutboxDue{OutboxID: id})
	}
	rec, _ := store.Outbox().GetByID(ctx, id)
	if rec.Status != notificationoutbox.StatusFailed {
		t.Fatalf("expected failed after %d attempts, got %s", maxOutboxRetryAttempts, rec.Status)
	}
}

func TestUnsupportedKindIsMarkedFailed(t *testing.T) {
	m, store := newTestModule(t, true)
	ctx := context.Background()

	id, _ := store.Outbox().Insert(ctx, notificationoutbox.InsertParams{AgentID: uuid.New(), Kind: "sms", Payload: map[string]string{}})
	if err := m.Handle(ctx, events.NotificationOutboxDue{OutboxID: id}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	rec, _ := store.Outbox().GetByID(ctx, id)
	if rec.Status != notificationoutbox.StatusFailed {
		t.Fatalf("expected failed, got %s", rec.Status)
	}
}

func TestComputeOutboxRetryDelay(t *testing.T) {
	cases := map[int]time.Duration{
		0:  time.Minute,
		1:  time.Minute,
		2:  2 * time.Minute,
		4:  8 * time.Minute,
		10: outboxRetryMaxDelay,
	}
	for attempt, want := range cases {
		if got := computeOutboxRetryDelay(attempt); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}
}

func TestClaimReviewedMessage(t *testing.T) {
	msg := claimReviewedMessage(events.ClaimReviewed{
		PaymentID:     uuid.New(),
		AgentID:       uuid.New(),
		ClaimedAmount: decimal.NewFromInt(25),
		Notes:         "receipt missing",
	})
	if msg.payload.Title != "Claim rejected" || !strings.Contains(msg.payload.Content, "receipt missing") {
		t.Fatalf("unexpected message: %+v", msg.payload)
	}
}
