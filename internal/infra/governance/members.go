package governance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tutu-network/guild/internal/domain"
)

// ─── Membership ─────────────────────────────────────────────────────────────

// AddMember admits newMember. Only the owner may call it.
func (e *Engine) AddMember(ctx context.Context, actor, newMember string) (domain.Member, error) {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkPaused("add member"); err != nil {
		return domain.Member{}, err
	}

	now := e.now()
	m, err := e.members.PrepareAdd(actor, newMember, now)
	if err != nil {
		return domain.Member{}, err
	}

	cs := &domain.Changeset{Members: []domain.Member{m}}
	e.record(cs, domain.Event{
		Type:   domain.EventMemberAdded,
		At:     now,
		Actor:  actor,
		Member: m.ID,
		Attrs:  map[string]string{"reputation": fmt.Sprint(m.Reputation)},
	})
	if err := e.commit(ctx, cs); err != nil {
		return domain.Member{}, err
	}

	e.log.Info("member added", zap.String("member", m.ID))
	return m, nil
}

// RemoveMember deactivates and blacklists member. Only the owner may call
// it, and the owner can never be removed.
func (e *Engine) RemoveMember(ctx context.Context, actor, member string) error {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkPaused("remove member"); err != nil {
		return err
	}

	m, err := e.members.PrepareRemove(actor, member)
	if err != nil {
		return err
	}

	cs := &domain.Changeset{Members: []domain.Member{m}}
	e.record(cs, domain.Event{
		Type:   domain.EventMemberRemoved,
		At:     e.now(),
		Actor:  actor,
		Member: m.ID,
	})
	if err := e.commit(ctx, cs); err != nil {
		return err
	}

	e.log.Info("member removed", zap.String("member", m.ID))
	return nil
}

// IsEligibleVoter reports whether member is active and not blacklisted.
func (e *Engine) IsEligibleVoter(member string) bool {
	return e.members.IsEligibleVoter(member)
}
