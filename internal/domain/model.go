// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture: it depends on nothing.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// ─── Reputation Constants ───────────────────────────────────────────────────

const (
	// OwnerStartingReputation is granted once, when the owner is bootstrapped.
	OwnerStartingReputation uint64 = 100

	// MemberStartingReputation is granted to every member added by the owner.
	MemberStartingReputation uint64 = 50

	// Participation rewards.
	ReputationForProposal     int64 = 5
	ReputationForVote         int64 = 2
	ReputationForPassedMotion int64 = 10
)

// ─── Member Types ───────────────────────────────────────────────────────────

// Member is a participant of the group.
// Blacklisted members are never active.
type Member struct {
	ID          string    `json:"id"`
	JoinedAt    time.Time `json:"joined_at"`
	Reputation  uint64    `json:"reputation"`
	Active      bool      `json:"active"`
	Blacklisted bool      `json:"blacklisted"`
}

// Eligible reports whether the member may propose and vote.
func (m Member) Eligible() bool {
	return m.Active && !m.Blacklisted
}

// WithReputation returns a copy of m with delta applied to its reputation.
// Downward adjustments saturate at zero.
func (m Member) WithReputation(delta int64) Member {
	switch {
	case delta >= 0:
		m.Reputation += uint64(delta)
	case uint64(-delta) >= m.Reputation:
		m.Reputation = 0
	default:
		m.Reputation -= uint64(-delta)
	}
	return m
}

// ─── Proposal Types ─────────────────────────────────────────────────────────

// ProposalKind classifies what a proposal asks for.
type ProposalKind int

const (
	KindGeneral ProposalKind = iota
	KindTreasury
	KindMembershipChange
	KindConstitutional
)

// String returns the wire name of the kind.
func (k ProposalKind) String() string {
	switch k {
	case KindGeneral:
		return "GENERAL"
	case KindTreasury:
		return "TREASURY"
	case KindMembershipChange:
		return "MEMBERSHIP_CHANGE"
	case KindConstitutional:
		return "CONSTITUTIONAL"
	default:
		return "UNKNOWN"
	}
}

// ParseProposalKind is the inverse of ProposalKind.String (case-insensitive).
func ParseProposalKind(s string) (ProposalKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GENERAL", "":
		return KindGeneral, nil
	case "TREASURY":
		return KindTreasury, nil
	case "MEMBERSHIP_CHANGE":
		return KindMembershipChange, nil
	case "CONSTITUTIONAL":
		return KindConstitutional, nil
	default:
		return 0, fmt.Errorf("unknown proposal kind %q", s)
	}
}

// Choice is a ballot choice.
type Choice int

const (
	ChoiceAgainst Choice = iota
	ChoiceFor
)

// String returns "FOR" or "AGAINST".
func (c Choice) String() string {
	if c == ChoiceFor {
		return "FOR"
	}
	return "AGAINST"
}

// ChoiceOf maps a support flag to a Choice.
func ChoiceOf(support bool) Choice {
	if support {
		return ChoiceFor
	}
	return ChoiceAgainst
}

// Outcome is recorded once a proposal is executed.
type Outcome int

const (
	OutcomeNone     Outcome = iota // Not executed yet
	OutcomePassed                  // Threshold met, side effects applied
	OutcomeRejected                // Threshold not met
	OutcomeUnfunded                // Threshold met, treasury could not cover the amount
)

// String returns a human-readable outcome label.
func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "NONE"
	case OutcomePassed:
		return "PASSED"
	case OutcomeRejected:
		return "REJECTED"
	case OutcomeUnfunded:
		return "UNFUNDED"
	default:
		return "UNKNOWN"
	}
}

// Proposal is the stored proposal record. Ballots live in their own table.
type Proposal struct {
	ID           uint64       `json:"id"`
	Description  string       `json:"description"`
	Proposer     string       `json:"proposer"`
	CreatedAt    time.Time    `json:"created_at"`
	Deadline     time.Time    `json:"deadline"`
	Kind         ProposalKind `json:"kind"`
	Target       string       `json:"target,omitempty"`
	Amount       uint64       `json:"amount,omitempty"`
	ForVotes     uint64       `json:"for_votes"`
	AgainstVotes uint64       `json:"against_votes"`
	Executed     bool         `json:"executed"`
	Outcome      Outcome      `json:"outcome"`
}

// TotalVotes returns the number of ballots cast.
func (p Proposal) TotalVotes() uint64 {
	return p.ForVotes + p.AgainstVotes
}

// Passed reports whether the proposal was executed with a passing tally.
// Unfunded proposals passed the vote even though no funds moved.
func (p Proposal) Passed() bool {
	return p.Executed && (p.Outcome == OutcomePassed || p.Outcome == OutcomeUnfunded)
}

// VotingOpen reports whether ballots are still accepted at now.
func (p Proposal) VotingOpen(now time.Time) bool {
	return !p.Executed && now.Before(p.Deadline)
}

// ProposalState is the derived lifecycle view of a proposal.
// Only Executed/Outcome are stored; every state here is computed.
type ProposalState int

const (
	StateActive   ProposalState = iota // Voting window open
	StateExpired                       // Window closed, quorum met, awaiting execution
	StateStalled                       // Window closed, quorum not met
	StatePassed                        // Executed, passed
	StateRejected                      // Executed, failed threshold
	StateUnfunded                      // Executed, passed but treasury short
)

// String returns a human-readable state label.
func (s ProposalState) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateExpired:
		return "EXPIRED"
	case StateStalled:
		return "STALLED"
	case StatePassed:
		return "PASSED"
	case StateRejected:
		return "REJECTED"
	case StateUnfunded:
		return "UNFUNDED"
	default:
		return "UNKNOWN"
	}
}

// ParseProposalState is the inverse of ProposalState.String.
func ParseProposalState(s string) (ProposalState, error) {
	for st := StateActive; st <= StateUnfunded; st++ {
		if strings.EqualFold(s, st.String()) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown proposal state %q", s)
}

// Terminal reports whether no further transition is possible.
func (s ProposalState) Terminal() bool {
	return s == StatePassed || s == StateRejected || s == StateUnfunded
}

// StateAt derives the state of p at now. quorumMet is whether the current
// tally satisfies the current quorum requirement.
func StateAt(p Proposal, now time.Time, quorumMet bool) ProposalState {
	if p.Executed {
		switch p.Outcome {
		case OutcomeUnfunded:
			return StateUnfunded
		case OutcomeRejected:
			return StateRejected
		default:
			return StatePassed
		}
	}
	if now.Before(p.Deadline) {
		return StateActive
	}
	if quorumMet {
		return StateExpired
	}
	return StateStalled
}

// ProposalView is a proposal enriched with derived, time-dependent data.
type ProposalView struct {
	Proposal
	State          ProposalState `json:"state"`
	QuorumRequired uint64        `json:"quorum_required"`
	ForPercentage  uint64        `json:"for_percentage"`
}

// Ballot is one member's vote on one proposal.
type Ballot struct {
	ProposalID uint64    `json:"proposal_id"`
	Member     string    `json:"member"`
	Choice     Choice    `json:"choice"`
	CastAt     time.Time `json:"cast_at"`
}

// BallotKey is the composite key of the ballot table.
type BallotKey struct {
	ProposalID uint64
	Member     string
}

// Key returns the ballot's composite key.
func (b Ballot) Key() BallotKey {
	return BallotKey{ProposalID: b.ProposalID, Member: b.Member}
}

// ─── Governance Parameters ──────────────────────────────────────────────────

const (
	MinQuorumPercent        = 1
	MaxQuorumPercent        = 100
	MinPassThresholdPercent = 51 // Strictly above 50 so ties never pass
	MaxPassThresholdPercent = 100
)

// Params are the owner-adjustable governance parameters.
type Params struct {
	QuorumPercent        uint64 `json:"quorum_percent"`
	PassThresholdPercent uint64 `json:"pass_threshold_percent"`
}

// DefaultParams returns the parameters a fresh group starts with.
func DefaultParams() Params {
	return Params{
		QuorumPercent:        30,
		PassThresholdPercent: 60,
	}
}

// Validate checks both percentages against their ranges.
func (p Params) Validate() error {
	if p.QuorumPercent < MinQuorumPercent || p.QuorumPercent > MaxQuorumPercent {
		return fmt.Errorf("quorum %d%% outside [%d, %d]: %w",
			p.QuorumPercent, MinQuorumPercent, MaxQuorumPercent, ErrInvalidPercent)
	}
	if p.PassThresholdPercent < MinPassThresholdPercent || p.PassThresholdPercent > MaxPassThresholdPercent {
		return fmt.Errorf("pass threshold %d%% outside [%d, %d]: %w",
			p.PassThresholdPercent, MinPassThresholdPercent, MaxPassThresholdPercent, ErrInvalidPercent)
	}
	return nil
}

// ─── Stats ──────────────────────────────────────────────────────────────────

// Stats is the group-wide dashboard snapshot.
type Stats struct {
	Owner           string `json:"owner"`
	MemberCount     int    `json:"member_count"`
	ProposalCount   uint64 `json:"proposal_count"`
	ActiveProposals int    `json:"active_proposals"`
	Executed        int    `json:"executed"`
	TotalVotesCast  int    `json:"total_votes_cast"`
	TreasuryBalance uint64 `json:"treasury_balance"`
	TotalDeposited  uint64 `json:"total_deposited"`
	TotalWithdrawn  uint64 `json:"total_withdrawn"`
	Params          Params `json:"params"`
	Paused          bool   `json:"paused"`
}
