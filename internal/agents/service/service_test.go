package service

import (
	"context"
	"testing"

	"leaddesk_backend/internal/agents/repository"
	"leaddesk_backend/internal/agents/transport"
	"leaddesk_backend/internal/store/memory"
	"leaddesk_backend/platform/apperr"

	"github.com/google/uuid"
)

type fakeRotation struct{ resets int }

func (f *fakeRotation) Reset(context.Context) error {
	f.resets++
	return nil
}

func TestCreateRejectsDuplicates(t *testing.T) {
	svc := New(memory.NewStore().Agents(), nil, nil)
	ctx := context.Background()
	id := uuid.New()

	agent, err := svc.Create(ctx, transport.CreateAgentRequest{ID: id, Name: "Ann", Email: "ann@example.com"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if agent.Status != repository.StatusOffline || !agent.Assignable {
		t.Fatalf("new agent should default to offline and assignable: %+v", agent)
	}

	_, err = svc.Create(ctx, transport.CreateAgentRequest{ID: uuid.New(), Name: "Ann 2", Email: "ann@example.com"})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("duplicate email should conflict, got %v", err)
	}
	_, err = svc.Create(ctx, transport.CreateAgentRequest{ID: id, Name: "Ann 3", Email: "other@example.com"})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("duplicate id should conflict, got %v", err)
	}
}

func TestUpdateStatusPermissions(t *testing.T) {
	svc := New(memory.NewStore().Agents(), nil, nil)
	ctx := context.Background()
	ann, _ := svc.Create(ctx, transport.CreateAgentRequest{ID: uuid.New(), Name: "Ann", Email: "ann@example.com"})
	bob, _ := svc.Create(ctx, transport.CreateAgentRequest{ID: uuid.New(), Name: "Bob", Email: "bob@example.com"})

	if _, err := svc.UpdateStatus(ctx, bob.ID, repository.StatusOnline, ann.ID, false); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("agent must not change another agent's status, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, ann.ID, repository.StatusBlocked, ann.ID, false); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("agent must not block themselves, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, ann.ID, "away", ann.ID, true); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("unknown status should be rejected, got %v", err)
	}

	onLeave, err := svc.UpdateStatus(ctx, ann.ID, repository.StatusOnLeave, ann.ID, false)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if onLeave.Assignable {
		t.Fatal("an agent on leave is not assignable")
	}

	blocked, err := svc.UpdateStatus(ctx, bob.ID, repository.StatusBlocked, ann.ID, true)
	if err != nil || blocked.Status != repository.StatusBlocked {
		t.Fatalf("admin should block: %+v err=%v", blocked, err)
	}
	if _, err := svc.UpdateStatus(ctx, bob.ID, repository.StatusOnline, bob.ID, false); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("blocked agent must not unblock themselves, got %v", err)
	}
}

func TestResetRotation(t *testing.T) {
	rotation := &fakeRotation{}
	svc := New(memory.NewStore().Agents(), rotation, nil)

	if err := svc.ResetRotation(context.Background()); err != nil {
		t.Fatalf("ResetRotation: %v", err)
	}
	if rotation.resets != 1 {
		t.Fatalf("expected one reset, got %d", rotation.resets)
	}
}
