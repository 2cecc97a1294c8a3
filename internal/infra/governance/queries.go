package governance

import (
	"fmt"
	"sort"
	"time"

	"github.com/tutu-network/guild/internal/domain"
)

// ─── Queries ────────────────────────────────────────────────────────────────
// Queries never mutate state and are not gated by the pause switch.

// GetProposal returns proposal id with its derived state at the current
// time.
func (e *Engine) GetProposal(id uint64) (domain.ProposalView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.proposals.get(id)
	if !ok {
		return domain.ProposalView{}, fmt.Errorf("proposal %d: %w", id, domain.ErrNotFound)
	}
	return e.view(p, e.now()), nil
}

// view derives the time-dependent fields of p. Must be called with e.mu
// held.
func (e *Engine) view(p domain.Proposal, now time.Time) domain.ProposalView {
	t := Evaluate(p, e.members.ActiveCount(), e.params)
	return domain.ProposalView{
		Proposal:       p,
		State:          domain.StateAt(p, now, t.QuorumReached),
		QuorumRequired: t.QuorumRequired,
		ForPercentage:  t.ForPercentage,
	}
}

// IsProposalActive reports whether proposal id still accepts ballots.
func (e *Engine) IsProposalActive(id uint64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.proposals.get(id)
	if !ok {
		return false, fmt.Errorf("proposal %d: %w", id, domain.ErrNotFound)
	}
	return p.VotingOpen(e.now()), nil
}

// ListProposals returns every proposal in id order, optionally filtered
// by derived state.
func (e *Engine) ListProposals(state *domain.ProposalState) []domain.ProposalView {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var out []domain.ProposalView
	for _, p := range e.proposals.all() {
		v := e.view(p, now)
		if state != nil && v.State != *state {
			continue
		}
		out = append(out, v)
	}
	return out
}

// DueProposals returns the ids of proposals that an Execute call would
// close right now.
func (e *Engine) DueProposals() []uint64 {
	due := domain.StateExpired
	views := e.ListProposals(&due)
	ids := make([]uint64, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.ID)
	}
	return ids
}

// Ballots returns every ballot on proposal id, oldest first.
func (e *Engine) Ballots(id uint64) ([]domain.Ballot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.proposals.get(id); !ok {
		return nil, fmt.Errorf("proposal %d: %w", id, domain.ErrNotFound)
	}
	out := e.ballots.forProposal(id)
	sort.Slice(out, func(i, j int) bool {
		if out[i].CastAt.Equal(out[j].CastAt) {
			return out[i].Member < out[j].Member
		}
		return out[i].CastAt.Before(out[j].CastAt)
	})
	return out, nil
}

// VoteChoice returns member's choice on proposal id and whether a ballot
// exists.
func (e *Engine) VoteChoice(id uint64, member string) (domain.Choice, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.proposals.get(id); !ok {
		return 0, false, fmt.Errorf("proposal %d: %w", id, domain.ErrNotFound)
	}
	b, ok := e.ballots.get(id, member)
	return b.Choice, ok, nil
}

// GetMember returns a member's record, including removed members.
func (e *Engine) GetMember(id string) (domain.Member, error) {
	m, ok := e.members.Get(id)
	if !ok {
		return domain.Member{}, fmt.Errorf("member %s: %w", id, domain.ErrNotAMember)
	}
	return m, nil
}

// ListMembers returns every member record, oldest first.
func (e *Engine) ListMembers() []domain.Member {
	return e.members.List()
}

// TopMembers returns the eligible members with the highest reputation.
func (e *Engine) TopMembers(limit int) []domain.Member {
	return e.members.Top(limit)
}

// Stats returns the group-wide dashboard snapshot.
func (e *Engine) Stats() domain.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	s := domain.Stats{
		Owner:           e.config.Owner,
		MemberCount:     e.members.ActiveCount(),
		ProposalCount:   e.proposals.count(),
		TotalVotesCast:  e.ballots.count(),
		TreasuryBalance: e.treasury.Balance(),
		Params:          e.params,
		Paused:          e.paused,
	}
	s.TotalDeposited, s.TotalWithdrawn = e.treasury.Totals()
	for _, p := range e.proposals.all() {
		switch {
		case p.Executed:
			s.Executed++
		case p.VotingOpen(now):
			s.ActiveProposals++
		}
	}
	return s
}
