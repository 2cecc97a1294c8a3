package domain

import "time"

// ─── Notification Events ────────────────────────────────────────────────────
// Events are ordered by Seq, which the engine assigns under its lock.
// Observers must not rely on delivery for correctness.

// EventType names a notification.
type EventType string

const (
	EventMemberAdded       EventType = "member.added"
	EventMemberRemoved     EventType = "member.removed"
	EventReputationChanged EventType = "member.reputation_changed"
	EventProposalCreated   EventType = "proposal.created"
	EventVoteCast          EventType = "vote.cast"
	EventProposalExecuted  EventType = "proposal.executed"
	EventQuorumUpdated     EventType = "params.quorum_updated"
	EventThresholdUpdated  EventType = "params.threshold_updated"
	EventPausedChanged     EventType = "governance.paused"
	EventFundsDeposited    EventType = "treasury.deposited"
	EventFundsWithdrawn    EventType = "treasury.withdrawn"
)

// Event is one append-only notification record.
type Event struct {
	ID         string            `json:"id"`
	Seq        uint64            `json:"seq"`
	Type       EventType         `json:"type"`
	At         time.Time         `json:"at"`
	Actor      string            `json:"actor,omitempty"`
	Member     string            `json:"member,omitempty"`
	ProposalID uint64            `json:"proposal_id,omitempty"`
	Amount     uint64            `json:"amount,omitempty"`
	Attrs      map[string]string `json:"attrs,omitempty"`
}
