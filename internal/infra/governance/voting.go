package governance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tutu-network/guild/internal/domain"
)

// ─── Voting ─────────────────────────────────────────────────────────────────

// Vote records actor's ballot on proposal id. Each member votes at most
// once per proposal, and only before the deadline. Voting never triggers
// execution.
func (e *Engine) Vote(ctx context.Context, actor string, id uint64, support bool) error {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkPaused("vote"); err != nil {
		return err
	}

	p, ok := e.proposals.get(id)
	if !ok {
		return fmt.Errorf("vote on proposal %d: %w", id, domain.ErrNotFound)
	}
	if !e.members.IsEligibleVoter(actor) {
		return fmt.Errorf("vote on proposal %d: %s is not an eligible member: %w", id, actor, domain.ErrUnauthorized)
	}
	now := e.now()
	if !p.VotingOpen(now) {
		return fmt.Errorf("vote on proposal %d: deadline %s: %w", id, p.Deadline.UTC().Format("2006-01-02 15:04:05"), domain.ErrVotingClosed)
	}
	if _, voted := e.ballots.get(id, actor); voted {
		return fmt.Errorf("vote on proposal %d by %s: %w", id, actor, domain.ErrDuplicateVote)
	}

	voter, err := e.members.AdjustReputation(actor, domain.ReputationForVote)
	if err != nil {
		return err
	}

	choice := domain.ChoiceOf(support)
	if choice == domain.ChoiceFor {
		p.ForVotes++
	} else {
		p.AgainstVotes++
	}
	ballot := domain.Ballot{
		ProposalID: id,
		Member:     actor,
		Choice:     choice,
		CastAt:     now,
	}

	cs := &domain.Changeset{
		Proposals: []domain.Proposal{p},
		Ballots:   []domain.Ballot{ballot},
	}
	e.record(cs, domain.Event{
		Type:       domain.EventVoteCast,
		At:         now,
		Actor:      actor,
		ProposalID: id,
		Attrs: map[string]string{
			"choice":  choice.String(),
			"for":     fmt.Sprint(p.ForVotes),
			"against": fmt.Sprint(p.AgainstVotes),
		},
	})
	e.recordReputation(cs, voter, domain.ReputationForVote, "vote", now)

	if err := e.commit(ctx, cs); err != nil {
		return err
	}

	e.log.Debug("vote cast",
		zap.Uint64("proposal", id),
		zap.String("voter", actor),
		zap.Stringer("choice", choice),
	)
	return nil
}
