package governance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tutu-network/guild/internal/domain"
)

// ─── Proposal Creation ──────────────────────────────────────────────────────

// ProposalInput describes a new proposal.
type ProposalInput struct {
	Description string
	Kind        domain.ProposalKind
	Target      string // Treasury only: recipient
	Amount      uint64 // Treasury only: amount to pay
}

// CreateProposal opens a proposal on behalf of actor and returns its id.
// Treasury proposals must name a recipient and an amount the treasury can
// currently cover; the amount is checked again at execution.
func (e *Engine) CreateProposal(ctx context.Context, actor string, in ProposalInput) (uint64, error) {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkPaused("create proposal"); err != nil {
		return 0, err
	}
	if !e.members.IsEligibleVoter(actor) {
		return 0, fmt.Errorf("create proposal: %s is not an eligible member: %w", actor, domain.ErrUnauthorized)
	}

	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return 0, fmt.Errorf("create proposal: %w", domain.ErrEmptyDescription)
	}

	switch in.Kind {
	case domain.KindGeneral, domain.KindMembershipChange, domain.KindConstitutional:
		in.Target, in.Amount = "", 0
	case domain.KindTreasury:
		in.Target = strings.TrimSpace(in.Target)
		if in.Target == "" {
			return 0, fmt.Errorf("create treasury proposal: empty recipient: %w", domain.ErrInvalidTarget)
		}
		if in.Amount == 0 {
			return 0, fmt.Errorf("create treasury proposal: zero amount: %w", domain.ErrInvalidAmount)
		}
		if !e.treasury.Covers(in.Amount) {
			return 0, fmt.Errorf("create treasury proposal: amount %d exceeds balance %d: %w",
				in.Amount, e.treasury.Balance(), domain.ErrInvalidAmount)
		}
	default:
		return 0, fmt.Errorf("create proposal: unknown kind %d: %w", in.Kind, domain.ErrInvalidTarget)
	}

	proposer, err := e.members.AdjustReputation(actor, domain.ReputationForProposal)
	if err != nil {
		return 0, err
	}

	now := e.now()
	p := domain.Proposal{
		ID:          e.proposals.nextID(),
		Description: desc,
		Proposer:    actor,
		CreatedAt:   now,
		Deadline:    now.Add(e.config.VotingPeriod),
		Kind:        in.Kind,
		Target:      in.Target,
		Amount:      in.Amount,
	}

	cs := &domain.Changeset{Proposals: []domain.Proposal{p}}
	e.record(cs, domain.Event{
		Type:       domain.EventProposalCreated,
		At:         now,
		Actor:      actor,
		ProposalID: p.ID,
		Amount:     p.Amount,
		Attrs: map[string]string{
			"kind":     p.Kind.String(),
			"deadline": p.Deadline.UTC().Format(time.RFC3339),
			"target":   p.Target,
		},
	})
	e.recordReputation(cs, proposer, domain.ReputationForProposal, "proposal", now)

	if err := e.commit(ctx, cs); err != nil {
		return 0, err
	}

	e.log.Info("proposal created",
		zap.Uint64("proposal", p.ID),
		zap.String("proposer", actor),
		zap.Stringer("kind", p.Kind),
		zap.Time("deadline", p.Deadline),
	)
	return p.ID, nil
}
