package governance

import (
	"context"
	"sync"

	"github.com/tutu-network/guild/internal/domain"
)

// ─── Proposal Table ─────────────────────────────────────────────────────────
// Proposals are keyed by id; ids are dense and 1-based, so the table is a
// slice indexed by id-1.

type proposalTable struct {
	rows []domain.Proposal
}

func newProposalTable() *proposalTable {
	return &proposalTable{}
}

func (t *proposalTable) count() uint64 {
	return uint64(len(t.rows))
}

func (t *proposalTable) nextID() uint64 {
	return t.count() + 1
}

func (t *proposalTable) get(id uint64) (domain.Proposal, bool) {
	if id == 0 || id > t.count() {
		return domain.Proposal{}, false
	}
	return t.rows[id-1], true
}

// put appends the next proposal or replaces an existing one.
func (t *proposalTable) put(p domain.Proposal) {
	if p.ID == t.nextID() {
		t.rows = append(t.rows, p)
		return
	}
	if p.ID >= 1 && p.ID <= t.count() {
		t.rows[p.ID-1] = p
	}
}

func (t *proposalTable) all() []domain.Proposal {
	out := make([]domain.Proposal, len(t.rows))
	copy(out, t.rows)
	return out
}

func (t *proposalTable) load(ps []domain.Proposal) {
	t.rows = t.rows[:0]
	for _, p := range ps {
		t.put(p)
	}
}

// ─── Ballot Table ───────────────────────────────────────────────────────────
// Ballots are keyed by (proposal id, member), independent of the proposal
// records so either table can be exported on its own.

type ballotTable struct {
	rows map[domain.BallotKey]domain.Ballot
}

func newBallotTable() *ballotTable {
	return &ballotTable{rows: make(map[domain.BallotKey]domain.Ballot)}
}

func (t *ballotTable) get(id uint64, member string) (domain.Ballot, bool) {
	b, ok := t.rows[domain.BallotKey{ProposalID: id, Member: member}]
	return b, ok
}

func (t *ballotTable) put(b domain.Ballot) {
	t.rows[b.Key()] = b
}

func (t *ballotTable) count() int {
	return len(t.rows)
}

func (t *ballotTable) forProposal(id uint64) []domain.Ballot {
	var out []domain.Ballot
	for k, b := range t.rows {
		if k.ProposalID == id {
			out = append(out, b)
		}
	}
	return out
}

func (t *ballotTable) load(bs []domain.Ballot) {
	t.rows = make(map[domain.BallotKey]domain.Ballot, len(bs))
	for _, b := range bs {
		t.put(b)
	}
}

// ─── Memory Store ───────────────────────────────────────────────────────────

// Compile-time contract assertion.
var _ domain.Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory domain.Store for tests and ephemeral groups.
type MemoryStore struct {
	mu   sync.Mutex
	snap domain.Snapshot

	proposals map[uint64]domain.Proposal
	members   map[string]domain.Member
	events    []domain.Event
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		proposals: make(map[uint64]domain.Proposal),
		members:   make(map[string]domain.Member),
	}
}

// Load returns a copy of the stored state.
func (s *MemoryStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snap
	snap.Members = make([]domain.Member, 0, len(s.members))
	for _, m := range s.members {
		snap.Members = append(snap.Members, m)
	}
	snap.Proposals = make([]domain.Proposal, 0, len(s.proposals))
	for id := uint64(1); id <= uint64(len(s.proposals)); id++ {
		snap.Proposals = append(snap.Proposals, s.proposals[id])
	}
	snap.Ballots = append([]domain.Ballot(nil), s.snap.Ballots...)
	snap.Ledger = append([]domain.LedgerEntry(nil), s.snap.Ledger...)
	return &snap, nil
}

// Commit applies cs under the store lock.
func (s *MemoryStore) Commit(ctx context.Context, cs *domain.Changeset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cs.Owner != "" {
		s.snap.Owner = cs.Owner
	}
	if cs.Params != nil {
		s.snap.Params = *cs.Params
	}
	if cs.Paused != nil {
		s.snap.Paused = *cs.Paused
	}
	if cs.Treasury != nil {
		s.snap.TreasuryBalance = *cs.Treasury
	}
	for _, m := range cs.Members {
		s.members[m.ID] = m
	}
	for _, p := range cs.Proposals {
		s.proposals[p.ID] = p
	}
	s.snap.Ballots = append(s.snap.Ballots, cs.Ballots...)
	s.snap.Ledger = append(s.snap.Ledger, cs.Ledger...)
	s.events = append(s.events, cs.Events...)
	if n := len(cs.Events); n > 0 {
		s.snap.LastEventSeq = cs.Events[n-1].Seq
	}
	return nil
}

// Events returns every committed event, oldest first.
func (s *MemoryStore) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

// EventsAfter returns up to limit events with Seq greater than after.
// A non-positive limit means no limit.
func (s *MemoryStore) EventsAfter(ctx context.Context, after uint64, limit int) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Event
	for _, ev := range s.events {
		if ev.Seq <= after {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, ev)
	}
	return out, nil
}
