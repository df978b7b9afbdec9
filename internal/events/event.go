// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"leaddesk_backend/platform/events"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadsAssigned is published once per agent after a batch or single-lead
// assignment has been written.
type LeadsAssigned struct {
	BaseEvent
	AgentID    uuid.UUID   `json:"agentId"`
	LeadIDs    []uuid.UUID `json:"leadIds"`
	AssignedBy *uuid.UUID  `json:"assignedBy,omitempty"`
	Reassigned int         `json:"reassigned"`
	SingleLead bool        `json:"singleLead"`
	AssignedAt time.Time   `json:"assignedAt"`
}

func (e LeadsAssigned) EventName() string { return "leads.assigned" }

// =============================================================================
// Payments Domain Events
// =============================================================================

// PaymentClaimed is published after a claim has been committed.
type PaymentClaimed struct {
	BaseEvent
	PaymentID     uuid.UUID       `json:"paymentId"`
	LeadID        uuid.UUID       `json:"leadId"`
	AgentID       uuid.UUID       `json:"agentId"`
	ClaimedAmount decimal.Decimal `json:"claimedAmount"`
	RemainderID   *uuid.UUID      `json:"remainderId,omitempty"`
}

func (e PaymentClaimed) EventName() string { return "payments.claimed" }

// ClaimReviewed is published after an admin verified or rejected a claim.
type ClaimReviewed struct {
	BaseEvent
	PaymentID     uuid.UUID       `json:"paymentId"`
	AgentID       uuid.UUID       `json:"agentId"`
	ReviewerID    uuid.UUID       `json:"reviewerId"`
	Verified      bool            `json:"verified"`
	ClaimedAmount decimal.Decimal `json:"claimedAmount"`
	Notes         string          `json:"notes,omitempty"`
}

func (e ClaimReviewed) EventName() string { return "payments.claim_reviewed" }

// =============================================================================
// Notification Events
// =============================================================================

// NotificationOutboxDue is published by the scheduler worker when an outbox
// record is ready for delivery.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }
