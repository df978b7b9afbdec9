package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"leaddesk_backend/internal/notification/inapp"
	"leaddesk_backend/internal/notification/outbox"

	"github.com/google/uuid"
)

var errOutboxNotFound = errors.New("outbox record not found")

type outboxRow struct {
	outbox.Record
	lastError *string
}

type OutboxRepository struct {
	s *Store
}

func (r *OutboxRepository) Insert(_ context.Context, p outbox.InsertParams) (uuid.UUID, error) {
	if err := outbox.ValidateInsert(&p); err != nil {
		return uuid.Nil, err
	}
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal payload: %w", err)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row := &outboxRow{Record: outbox.Record{
		ID:      uuid.New(),
		AgentID: p.AgentID,
		Kind:    p.Kind,
		Payload: payload,
		RunAt:   p.RunAt,
		Status:  outbox.StatusPending,
	}}
	r.s.outbox[row.ID] = row
	r.s.outboxOrder = append(r.s.outboxOrder, row.ID)
	return row.ID, nil
}

func (r *OutboxRepository) GetByID(_ context.Context, id uuid.UUID) (outbox.Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.outbox[id]
	if !ok {
		return outbox.Record{}, errOutboxNotFound
	}
	return row.Record, nil
}

func (r *OutboxRepository) ClaimPending(_ context.Context, limit int) ([]outbox.Record, error) {
	if limit < 1 {
		limit = 50
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	due := make([]*outboxRow, 0)
	for _, id := range r.s.outboxOrder {
		row := r.s.outbox[id]
		if row.Status == outbox.StatusPending && !row.RunAt.After(now) {
			due = append(due, row)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	results := make([]outbox.Record, 0, len(due))
	for _, row := range due {
		row.Status = outbox.StatusEnqueued
		results = append(results, row.Record)
	}
	return results, nil
}

func (r *OutboxRepository) MarkPending(_ context.Context, id uuid.UUID, lastError *string) error {
	return r.mark(id, func(row *outboxRow) {
		row.Status = outbox.StatusPending
		row.lastError = lastError
	})
}

func (r *OutboxRepository) MarkProcessing(_ context.Context, id uuid.UUID) error {
	return r.mark(id, func(row *outboxRow) {
		row.Status = outbox.StatusProcessing
		row.Attempts++
	})
}

func (r *OutboxRepository) MarkSucceeded(_ context.Context, id uuid.UUID) error {
	return r.mark(id, func(row *outboxRow) {
		row.Status = outbox.StatusSucceeded
		row.lastError = nil
	})
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	return r.mark(id, func(row *outboxRow) {
		row.Status = outbox.StatusFailed
		row.lastError = &lastError
	})
}

func (r *OutboxRepository) ScheduleRetry(_ context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	return r.mark(id, func(row *outboxRow) {
		row.Status = outbox.StatusPending
		row.RunAt = runAt
		row.lastError = &lastError
	})
}

func (r *OutboxRepository) mark(id uuid.UUID, fn func(*outboxRow)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.outbox[id]
	if !ok {
		return errOutboxNotFound
	}
	fn(row)
	return nil
}

type InboxRepository struct {
	s *Store
}

func (r *InboxRepository) Create(_ context.Context, p inapp.CreateParams) (inapp.Notification, error) {
	if err := inapp.ValidateCreate(p); err != nil {
		return inapp.Notification{}, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := inapp.Notification{
		ID:        uuid.New(),
		AgentID:   p.AgentID,
		Kind:      p.Kind,
		Title:     p.Title,
		Content:   p.Content,
		CreatedAt: r.s.now(),
	}
	r.s.inbox = append(r.s.inbox, n)
	return n, nil
}

func (r *InboxRepository) List(_ context.Context, agentID uuid.UUID, limit, offset int) ([]inapp.Notification, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	matched := make([]inapp.Notification, 0)
	for i := len(r.s.inbox) - 1; i >= 0; i-- {
		if r.s.inbox[i].AgentID == agentID {
			matched = append(matched, r.s.inbox[i])
		}
	}

	start, end := page(len(matched), offset, limit)
	return matched[start:end], len(matched), nil
}

func (r *InboxRepository) CountUnread(_ context.Context, agentID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	count := 0
	for _, n := range r.s.inbox {
		if n.AgentID == agentID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *InboxRepository) MarkRead(_ context.Context, agentID, notificationID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for i := range r.s.inbox {
		if r.s.inbox[i].ID == notificationID && r.s.inbox[i].AgentID == agentID {
			r.s.inbox[i].IsRead = true
		}
	}
	return nil
}
