// Package membership tracks who may take part in governance.
//
// Each member carries:
//   - JoinedAt: when the owner admitted them
//   - Reputation: non-negative engagement score
//   - Active / Blacklisted: removal deactivates and blacklists together
//
// The owner is bootstrapped once with OwnerStartingReputation, is always
// active, and can never be removed or blacklisted.
//
// Mutating methods come in two halves: Prepare* validates and returns the
// resulting record without touching the registry, Put installs it. The
// governance engine commits the prepared record to storage in between.
package membership

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tutu-network/guild/internal/domain"
)

// ─── Registry ───────────────────────────────────────────────────────────────

// Registry holds every account that was ever admitted.
// Thread-safe via RWMutex.
type Registry struct {
	mu      sync.RWMutex
	owner   string
	members map[string]domain.Member // memberID → record
}

// NewRegistry creates an empty registry governed by owner.
func NewRegistry(owner string) *Registry {
	return &Registry{
		owner:   owner,
		members: make(map[string]domain.Member),
	}
}

// Owner returns the owner's identifier.
func (r *Registry) Owner() string {
	return r.owner
}

// IsOwner reports whether id is the owner.
func (r *Registry) IsOwner(id string) bool {
	return id != "" && id == r.owner
}

// Bootstrap returns the owner's initial record. It is a one-time exception
// to the normal starting reputation.
func (r *Registry) Bootstrap(now time.Time) domain.Member {
	return domain.Member{
		ID:         r.owner,
		JoinedAt:   now,
		Reputation: domain.OwnerStartingReputation,
		Active:     true,
	}
}

// ─── Preparation ────────────────────────────────────────────────────────────

// PrepareAdd validates admitting id on behalf of actor and returns the
// record to commit.
func (r *Registry) PrepareAdd(actor, id string, now time.Time) (domain.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.IsOwner(actor) {
		return domain.Member{}, fmt.Errorf("add member: %s is not the owner: %w", actor, domain.ErrUnauthorized)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Member{}, fmt.Errorf("add member: empty identifier: %w", domain.ErrInvalidTarget)
	}
	existing, ok := r.members[id]
	if ok && existing.Active {
		return domain.Member{}, fmt.Errorf("add member %s: %w", id, domain.ErrAlreadyMember)
	}
	if ok && existing.Blacklisted {
		return domain.Member{}, fmt.Errorf("add member %s: %w", id, domain.ErrBlacklisted)
	}

	return domain.Member{
		ID:         id,
		JoinedAt:   now,
		Reputation: domain.MemberStartingReputation,
		Active:     true,
	}, nil
}

// PrepareRemove validates removing id on behalf of actor and returns the
// deactivated, blacklisted record to commit.
func (r *Registry) PrepareRemove(actor, id string) (domain.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.IsOwner(actor) {
		return domain.Member{}, fmt.Errorf("remove member: %s is not the owner: %w", actor, domain.ErrUnauthorized)
	}
	if r.IsOwner(id) {
		return domain.Member{}, fmt.Errorf("remove member %s: %w", id, domain.ErrCannotRemoveOwner)
	}
	m, ok := r.members[id]
	if !ok || !m.Active {
		return domain.Member{}, fmt.Errorf("remove member %s: %w", id, domain.ErrNotAMember)
	}

	m.Active = false
	m.Blacklisted = true
	return m, nil
}

// AdjustReputation returns id's record with delta applied. Downward
// adjustments saturate at zero.
func (r *Registry) AdjustReputation(id string, delta int64) (domain.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[id]
	if !ok {
		return domain.Member{}, fmt.Errorf("adjust reputation of %s: %w", id, domain.ErrNotAMember)
	}
	return m.WithReputation(delta), nil
}

// ─── Installation ───────────────────────────────────────────────────────────

// Put installs a committed record.
func (r *Registry) Put(m domain.Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[m.ID] = m
}

// Load replaces the registry content with persisted records.
func (r *Registry) Load(members []domain.Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members = make(map[string]domain.Member, len(members))
	for _, m := range members {
		r.members[m.ID] = m
	}
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Get returns a member's record.
func (r *Registry) Get(id string) (domain.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	return m, ok
}

// IsEligibleVoter reports whether id is active and not blacklisted.
func (r *Registry) IsEligibleVoter(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	return ok && m.Eligible()
}

// ActiveCount returns the number of eligible members.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, m := range r.members {
		if m.Eligible() {
			n++
		}
	}
	return n
}

// List returns every record, oldest first.
func (r *Registry) List() []domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Top returns eligible members by reputation, highest first. Ties go to
// the earlier ID. limit <= 0 returns all of them.
func (r *Registry) Top(limit int) []domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Member, 0, len(r.members))
	for _, m := range r.members {
		if m.Eligible() {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Reputation != out[j].Reputation {
			return out[i].Reputation > out[j].Reputation
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}
