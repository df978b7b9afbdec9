// Package notification turns domain events into agent notifications.
// Events are written to the outbox; the scheduler enqueues due records and
// the worker publishes NotificationOutboxDue, which this module delivers to
// the agent's in-app inbox and live SSE stream. Delivery failures are logged
// and retried with backoff, never returned to the code that raised the event.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"leaddesk_backend/internal/events"
	apphttp "leaddesk_backend/internal/http"
	notifhandler "leaddesk_backend/internal/notification/handler"
	"leaddesk_backend/internal/notification/inapp"
	notificationoutbox "leaddesk_backend/internal/notification/outbox"
	"leaddesk_backend/internal/notification/sse"
	"leaddesk_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	KindLeadsAssigned  = "leads_assigned"
	KindPaymentClaimed = "payment_claimed"
	KindClaimReviewed  = "claim_reviewed"

	outboxKindInApp = "inapp"

	invalidOutboxPayloadPrefix = "invalid payload: "
	maxOutboxRetryAttempts     = 5
	outboxRetryBaseDelay       = time.Minute
	outboxRetryMaxDelay        = 60 * time.Minute
)

// Module handles all notification-related event subscriptions.
type Module struct {
	log                *logger.Logger
	sse                *sse.Service
	notificationOutbox notificationoutbox.Store
	inAppService       *inapp.Service
	inAppHandler       *notifhandler.HTTPHandler
	now                func() time.Time
}

// New creates a new notification module backed by the given inbox store.
func New(inbox inapp.Store, log *logger.Logger) *Module {
	inAppSvc := inapp.NewService(inbox, log)

	return &Module{
		log:          log,
		inAppService: inAppSvc,
		inAppHandler: notifhandler.NewHTTPHandler(inAppSvc, nil),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// RegisterRoutes registers notification API routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	if m.inAppHandler == nil {
		return
	}

	notifications := ctx.Protected.Group("/notifications")
	m.inAppHandler.RegisterRoutes(notifications)
}

// SetSSE injects the SSE service so notifications are pushed to connected agents.
func (m *Module) SetSSE(s *sse.Service) {
	m.sse = s
	m.inAppService.SetSSE(s)
	m.inAppHandler = notifhandler.NewHTTPHandler(m.inAppService, s)
}

// InAppService exposes the inbox service.
func (m *Module) InAppService() *inapp.Service { return m.inAppService }

// SetNotificationOutbox injects the outbox. Without one, notifications are
// delivered to the inbox directly from the event handler.
func (m *Module) SetNotificationOutbox(store notificationoutbox.Store) {
	m.notificationOutbox = store
}

// RegisterHandlers subscribes to all relevant domain events on the event bus.
func (m *Module) RegisterHandlers(bus events.Bus) {
	// Lead events
	bus.Subscribe(events.LeadsAssigned{}.EventName(), m)

	// Payment events
	bus.Subscribe(events.PaymentClaimed{}.EventName(), m)
	bus.Subscribe(events.ClaimReviewed{}.EventName(), m)

	// Scheduler events
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), m)

	if m.log != nil {
		m.log.Info("notification module registered event handlers")
	}
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadsAssigned:
		return m.dispatch(ctx, e.EventName(), leadsAssignedMessage(e))
	case events.PaymentClaimed:
		return m.dispatch(ctx, e.EventName(), paymentClaimedMessage(e))
	case events.ClaimReviewed:
		return m.dispatch(ctx, e.EventName(), claimReviewedMessage(e))
	case events.NotificationOutboxDue:
		return m.handleNotificationOutboxDue(ctx, e)
	default:
		if m.log != nil {
			m.log.Warn("unhandled event type", "event", event.EventName())
		}
		return nil
	}
}

// inAppOutboxPayload is the JSON stored in the outbox for an inbox message.
type inAppOutboxPayload struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type message struct {
	agentID uuid.UUID
	payload inAppOutboxPayload
}

func leadsAssignedMessage(e events.LeadsAssigned) message {
	payload := inAppOutboxPayload{Kind: KindLeadsAssigned}
	switch {
	case e.SingleLead && len(e.LeadIDs) == 1:
		payload.Title = "New lead assigned"
		payload.Content = fmt.Sprintf("Lead %s was assigned to you.", e.LeadIDs[0])
	default:
		payload.Title = fmt.Sprintf("%d leads assigned", len(e.LeadIDs))
		payload.Content = fmt.Sprintf("You received %d leads, %d of them on numbers you already own.", len(e.LeadIDs), e.Reassigned)
	}
	return message{agentID: e.AgentID, payload: payload}
}

func paymentClaimedMessage(e events.PaymentClaimed) message {
	content := fmt.Sprintf("You claimed %s of payment %s against lead %s. The claim awaits review.",
		e.ClaimedAmount.StringFixed(2), e.PaymentID, e.LeadID)
	if e.RemainderID != nil {
		content += fmt.Sprintf(" The unclaimed rest is available as payment %s.", *e.RemainderID)
	}
	return message{agentID: e.AgentID, payload: inAppOutboxPayload{
		Kind:    KindPaymentClaimed,
		Title:   "Payment claimed",
		Content: content,
	}}
}

func claimReviewedMessage(e events.ClaimReviewed) message {
	title, verdict := "Claim rejected", "rejected"
	if e.Verified {
		title, verdict = "Claim verified", "verified"
	}
	content := fmt.Sprintf("Your claim of %s on payment %s was %s.", e.ClaimedAmount.StringFixed(2), e.PaymentID, verdict)
	if e.Notes != "" {
		content += " Note: " + e.Notes
	}
	return message{agentID: e.AgentID, payload: inAppOutboxPayload{
		Kind:    KindClaimReviewed,
		Title:   title,
		Content: content,
	}}
}

// dispatch writes msg to the outbox, or straight to the inbox when no outbox
// is configured. Errors are logged and swallowed.
func (m *Module) dispatch(ctx context.Context, eventName string, msg message) error {
	if msg.agentID == uuid.Nil {
		return nil
	}

	if m.notificationOutbox == nil {
		if err := m.deliver(ctx, msg.agentID, msg.payload); err != nil && m.log != nil {
			m.log.NotificationFailed(msg.agentID.String(), eventName, err)
		}
		return nil
	}

	id, err := m.notificationOutbox.Insert(ctx, notificationoutbox.InsertParams{
		AgentID: msg.agentID,
		Kind:    outboxKindInApp,
		Payload: msg.payload,
		RunAt:   m.now(),
	})
	if err != nil {
		if m.log != nil {
			m.log.NotificationFailed(msg.agentID.String(), eventName, err)
		}
		return nil
	}
	if m.log != nil {
		m.log.Info("outbox message enqueued", "outboxId", id.String(), "kind", outboxKindInApp, "agentId", msg.agentID, "event", eventName)
	}
	return nil
}

func (m *Module) deliver(ctx context.Context, agentID uuid.UUID, payload inAppOutboxPayload) error {
	return m.inAppService.Send(ctx, inapp.SendParams{
		AgentID: agentID,
		Kind:    payload.Kind,
		Title:   payload.Title,
		Content: payload.Content,
	})
}

func (m *Module) handleNotificationOutboxDue(ctx context.Context, e events.NotificationOutboxDue) error {
	if m.notificationOutbox == nil {
		if m.log != nil {
			m.log.Debug("notification outbox repository not configured; skipping outbox due event", "outboxId", e.OutboxID)
		}
		return nil
	}
	rec, process, err := m.prepareOutboxRecord(ctx, e.OutboxID)
	if err != nil || !process {
		if err != nil && m.log != nil {
			m.log.Error("failed to prepare outbox record", "outboxId", e.OutboxID, "error", err)
		}
		return err
	}

	if rec.Kind != outboxKindInApp {
		_ = m.notificationOutbox.MarkFailed(ctx, rec.ID, "unsupported kind: "+rec.Kind)
		if m.log != nil {
			m.log.Warn("unsupported outbox kind", "outboxId", rec.ID.String(), "kind", rec.Kind)
		}
		return nil
	}

	var payload inAppOutboxPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		_ = m.notificationOutbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+err.Error())
		return nil
	}

	if err := m.deliver(ctx, rec.AgentID, payload); err != nil {
		m.handleOutboxDeliveryError(ctx, rec, err)
		return err
	}

	if err := m.notificationOutbox.MarkSucceeded(ctx, rec.ID); err != nil {
		return err
	}
	if m.log != nil {
		m.log.Info("outbox record processed successfully", "outboxId", rec.ID.String(), "kind", rec.Kind)
	}
	return nil
}

func (m *Module) handleOutboxDeliveryError(ctx context.Context, rec notificationoutbox.Record, deliveryErr error) {
	// MarkProcessing already counted this attempt.
	attempt := rec.Attempts + 1
	if attempt >= maxOutboxRetryAttempts {
		_ = m.notificationOutbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		if m.log != nil {
			m.log.NotificationFailed(rec.AgentID.String(), "outbox exhausted retries", deliveryErr)
		}
		return
	}

	retryAt := m.now().Add(computeOutboxRetryDelay(attempt))
	if err := m.notificationOutbox.ScheduleRetry(ctx, rec.ID, retryAt, deliveryErr.Error()); err != nil {
		_ = m.notificationOutbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		if m.log != nil {
			m.log.Error("notification outbox retry scheduling failed; marked failed",
				"outboxId", rec.ID.String(),
				"attempt", attempt,
				"error", err,
			)
		}
		return
	}

	if m.log != nil {
		m.log.Warn("notification outbox scheduled retry",
			"outboxId", rec.ID.String(),
			"attempt", attempt,
			"maxAttempts", maxOutboxRetryAttempts,
			"retryAt", retryAt,
			"error", deliveryErr,
		)
	}
}

func computeOutboxRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := outboxRetryBaseDelay << (attempt - 1)
	if delay > outboxRetryMaxDelay {
		return outboxRetryMaxDelay
	}
	return delay
}

func (m *Module) prepareOutboxRecord(ctx context.Context, outboxID uuid.UUID) (notificationoutbox.Record, bool, error) {
	rec, err := m.notificationOutbox.GetByID(ctx, outboxID)
	if err != nil {
		return notificationoutbox.Record{}, false, err
	}
	if rec.Status == notificationoutbox.StatusSucceeded {
		if m.log != nil {
			m.log.Debug("outbox record already succeeded; skipping", "outboxId", rec.ID.String())
		}
		return rec, false, nil
	}
	if err := m.notificationOutbox.MarkProcessing(ctx, rec.ID); err != nil {
		return notificationoutbox.Record{}, false, err
	}
	return rec, true, nil
}
