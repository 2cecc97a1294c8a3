package governance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tutu-network/guild/internal/domain"
)

// ─── Quorum + Threshold Math ────────────────────────────────────────────────

// QuorumRequired returns ceil(members × quorumPercent / 100).
func QuorumRequired(members int, quorumPercent uint64) uint64 {
	if members <= 0 {
		return 0
	}
	return (uint64(members)*quorumPercent + 99) / 100
}

// ForPercentage returns floor(forVotes × 100 / total), or 0 without votes.
func ForPercentage(forVotes, total uint64) uint64 {
	if total == 0 {
		return 0
	}
	return forVotes * 100 / total
}

// Tally is the evaluation of a proposal against a parameter snapshot.
type Tally struct {
	TotalVotes     uint64 `json:"total_votes"`
	QuorumRequired uint64 `json:"quorum_required"`
	QuorumReached  bool   `json:"quorum_reached"`
	ForPercentage  uint64 `json:"for_percentage"`
	Passed         bool   `json:"passed"`
}

// Evaluate computes the tally of p for a group of members eligible voters
// under params. It reads nothing else.
func Evaluate(p domain.Proposal, members int, params domain.Params) Tally {
	t := Tally{
		TotalVotes:     p.TotalVotes(),
		QuorumRequired: QuorumRequired(members, params.QuorumPercent),
	}
	t.QuorumReached = t.TotalVotes > 0 && t.TotalVotes >= t.QuorumRequired
	t.ForPercentage = ForPercentage(p.ForVotes, t.TotalVotes)
	t.Passed = t.QuorumReached && t.ForPercentage >= params.PassThresholdPercent
	return t
}

// ─── Execution ──────────────────────────────────────────────────────────────

// ExecutionResult describes a committed execution.
type ExecutionResult struct {
	Proposal   domain.Proposal     `json:"proposal"`
	Tally      Tally               `json:"tally"`
	Withdrawal *domain.LedgerEntry `json:"withdrawal,omitempty"`
}

// Execute closes proposal id once its deadline has passed and quorum is
// met. Anyone may call it. Every check reads stored state only.
//
// ErrQuorumNotReached leaves the proposal untouched so the call can be
// retried. A passed treasury proposal that the balance no longer covers
// is committed as UNFUNDED and the call returns the result together with
// ErrInsufficientFunds. Payouts run after the state is committed and the
// engine lock is released.
func (e *Engine) Execute(ctx context.Context, caller string, id uint64) (*ExecutionResult, error) {
	res, err := e.execute(ctx, caller, id)
	if err != nil || res.Withdrawal == nil || e.payout == nil {
		return res, err
	}

	w := res.Withdrawal
	if err := e.payout.Transfer(ctx, w.Counterparty, w.Amount); err != nil {
		e.log.Error("treasury payout failed",
			zap.Uint64("proposal", id),
			zap.String("recipient", w.Counterparty),
			zap.Uint64("amount", w.Amount),
			zap.Error(err),
		)
		return res, fmt.Errorf("proposal %d payout to %s: %w: %v", id, w.Counterparty, domain.ErrPayoutFailed, err)
	}
	return res, nil
}

func (e *Engine) execute(ctx context.Context, caller string, id uint64) (*ExecutionResult, error) {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.proposals.get(id)
	if !ok {
		return nil, fmt.Errorf("execute proposal %d: %w", id, domain.ErrNotFound)
	}
	if p.Executed {
		return nil, fmt.Errorf("execute proposal %d: %w", id, domain.ErrAlreadyExecuted)
	}
	now := e.now()
	if now.Before(p.Deadline) {
		return nil, fmt.Errorf("execute proposal %d: deadline %s: %w", id, p.Deadline.UTC().Format("2006-01-02 15:04:05"), domain.ErrVotingStillOpen)
	}

	tally := Evaluate(p, e.members.ActiveCount(), e.params)
	if !tally.QuorumReached {
		return nil, fmt.Errorf("execute proposal %d: %d of %d votes: %w", id, tally.TotalVotes, tally.QuorumRequired, domain.ErrQuorumNotReached)
	}

	p.Executed = true
	p.Outcome = domain.OutcomeRejected
	cs := &domain.Changeset{}
	res := &ExecutionResult{Tally: tally}
	var shortfall error

	if tally.Passed {
		p.Outcome = domain.OutcomePassed

		if p.Kind == domain.KindTreasury {
			entry, err := e.treasury.PrepareWithdraw(p.Target, p.Amount, p.ID, now)
			if err != nil {
				p.Outcome = domain.OutcomeUnfunded
				shortfall = fmt.Errorf("execute proposal %d: %w", id, err)
			} else {
				cs.Treasury = &entry.Balance
				cs.Ledger = append(cs.Ledger, entry)
				res.Withdrawal = &entry
			}
		}
	}

	cs.Proposals = append(cs.Proposals, p)
	e.record(cs, domain.Event{
		Type:       domain.EventProposalExecuted,
		At:         now,
		Actor:      caller,
		ProposalID: p.ID,
		Attrs: map[string]string{
			"outcome":         p.Outcome.String(),
			"passed":          fmt.Sprint(tally.Passed),
			"for_percentage":  fmt.Sprint(tally.ForPercentage),
			"total_votes":     fmt.Sprint(tally.TotalVotes),
			"quorum_required": fmt.Sprint(tally.QuorumRequired),
		},
	})
	if res.Withdrawal != nil {
		e.record(cs, domain.Event{
			Type:       domain.EventFundsWithdrawn,
			At:         now,
			Actor:      caller,
			Member:     p.Target,
			ProposalID: p.ID,
			Amount:     p.Amount,
		})
	}
	if p.Outcome == domain.OutcomePassed && e.members.IsEligibleVoter(p.Proposer) {
		if proposer, err := e.members.AdjustReputation(p.Proposer, domain.ReputationForPassedMotion); err == nil {
			e.recordReputation(cs, proposer, domain.ReputationForPassedMotion, "passed", now)
		}
	}

	if err := e.commit(ctx, cs); err != nil {
		return nil, err
	}
	res.Proposal = p

	e.log.Info("proposal executed",
		zap.Uint64("proposal", p.ID),
		zap.Stringer("outcome", p.Outcome),
		zap.Uint64("for_pct", tally.ForPercentage),
		zap.Uint64("votes", tally.TotalVotes),
		zap.Uint64("quorum", tally.QuorumRequired),
	)
	return res, shortfall
}
