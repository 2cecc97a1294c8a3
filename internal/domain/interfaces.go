package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the governance engine depends on them.

// Clock supplies the current time. The engine never reads the wall clock
// except through one of these.
type Clock func() time.Time

// Store abstracts durable governance state.
type Store interface {
	// Load returns the full persisted state, or an empty snapshot.
	Load(ctx context.Context) (*Snapshot, error)

	// Commit applies every change in cs atomically, or none of them.
	Commit(ctx context.Context, cs *Changeset) error
}

// EventSink receives ordered notification events. Emit is called without
// engine locks held, one event at a time.
type EventSink interface {
	Emit(ev Event)
}

// Payout performs the external transfer after a treasury withdrawal has
// been committed.
type Payout interface {
	Transfer(ctx context.Context, recipient string, amount uint64) error
}

// ─── Persistence Records ────────────────────────────────────────────────────

// Snapshot is the complete persisted governance state.
type Snapshot struct {
	Owner           string
	Params          Params
	Paused          bool
	TreasuryBalance uint64
	Members         []Member
	Proposals       []Proposal
	Ballots         []Ballot
	Ledger          []LedgerEntry
	LastEventSeq    uint64
}

// Changeset is the set of writes produced by one state transition.
// Members, Proposals and Params are upserts; Ballots, Ledger and Events
// are appends.
type Changeset struct {
	Owner     string // Set only when bootstrapping
	Params    *Params
	Paused    *bool
	Treasury  *uint64
	Members   []Member
	Proposals []Proposal
	Ballots   []Ballot
	Ledger    []LedgerEntry
	Events    []Event
}

// Empty reports whether cs carries no writes at all.
func (cs *Changeset) Empty() bool {
	return cs.Owner == "" && cs.Params == nil && cs.Paused == nil && cs.Treasury == nil &&
		len(cs.Members) == 0 && len(cs.Proposals) == 0 && len(cs.Ballots) == 0 &&
		len(cs.Ledger) == 0 && len(cs.Events) == 0
}
