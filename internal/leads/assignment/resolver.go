// Package assignment decides which agent receives a lead. It holds the phone
// ownership resolver, the batch allocator and the single-lead round-robin
// cursor.
package assignment

import (
	"context"

	"leaddesk_backend/internal/leads/repository"
	"leaddesk_backend/platform/phone"
)

// Resolver answers "which agent owns this phone number". Ownership is
// derived from the assigned leads on every call and never cached.
type Resolver struct {
	leads repository.OwnershipFinder
}

func NewResolver(leads repository.OwnershipFinder) *Resolver {
	return &Resolver{leads: leads}
}

// Resolve normalizes number and returns the owning agent and lead, if any.
// When several assigned leads share the number the oldest assignment wins.
func (r *Resolver) Resolve(ctx context.Context, number string) (repository.Ownership, bool, error) {
	key := phone.Normalize(number)
	if key == "" {
		return repository.Ownership{}, false, nil
	}
	return r.leads.FindAssignedByPhone(ctx, key)
}

// ResolveKey looks up an already-normalized key.
func (r *Resolver) ResolveKey(ctx context.Context, key string) (repository.Ownership, bool, error) {
	return r.leads.FindAssignedByPhone(ctx, key)
}
