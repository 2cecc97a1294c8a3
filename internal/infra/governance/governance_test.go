package governance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tutu-network/guild/internal/domain"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

const owner = "owner"

// testClock is a settable clock shared by the engine under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingSink collects emitted events in order.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Emit(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) types() []domain.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *testClock) {
	t.Helper()
	clock := newTestClock()
	cfg := DefaultEngineConfig()
	cfg.Owner = owner
	e, err := NewEngine(context.Background(), cfg, NewMemoryStore(), append([]Option{WithClock(clock.Now)}, opts...)...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e, clock
}

func addMembers(t *testing.T, e *Engine, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := e.AddMember(context.Background(), owner, id); err != nil {
			t.Fatalf("AddMember(%s): %v", id, err)
		}
	}
}

func propose(t *testing.T, e *Engine, actor string) uint64 {
	t.Helper()
	id, err := e.CreateProposal(context.Background(), actor, ProposalInput{Description: "adopt the charter"})
	if err != nil {
		t.Fatalf("CreateProposal: %v", err)
	}
	return id
}

func vote(t *testing.T, e *Engine, actor string, id uint64, support bool) {
	t.Helper()
	if err := e.Vote(context.Background(), actor, id, support); err != nil {
		t.Fatalf("Vote(%s, %d): %v", actor, id, err)
	}
}

func reputation(t *testing.T, e *Engine, id string) uint64 {
	t.Helper()
	m, err := e.GetMember(id)
	if err != nil {
		t.Fatalf("GetMember(%s): %v", id, err)
	}
	return m.Reputation
}

// ─── Bootstrap ──────────────────────────────────────────────────────────────

func TestNewEngine_BootstrapsOwner(t *testing.T) {
	e, _ := newTestEngine(t)

	m, err := e.GetMember(owner)
	if err != nil {
		t.Fatalf("GetMember: %v", err)
	}
	if !m.Active || m.Blacklisted {
		t.Errorf("owner active=%v blacklisted=%v", m.Active, m.Blacklisted)
	}
	if m.Reputation != domain.OwnerStartingReputation {
		t.Errorf("owner reputation = %d, want %d", m.Reputation, domain.OwnerStartingReputation)
	}
	if got := e.Params(); got != domain.DefaultParams() {
		t.Errorf("params = %+v, want defaults", got)
	}
}

func TestNewEngine_RejectsMissingOwner(t *testing.T) {
	_, err := NewEngine(context.Background(), DefaultEngineConfig(), nil)
	if err == nil {
		t.Fatal("expected error for empty owner")
	}
}

func TestNewEngine_ReloadsFromStore(t *testing.T) {
	store := NewMemoryStore()
	clock := newTestClock()
	cfg := DefaultEngineConfig()
	cfg.Owner = owner

	e, err := NewEngine(context.Background(), cfg, store, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	addMembers(t, e, "alice")
	e.Deposit(context.Background(), "donor", 500)
	id := propose(t, e, "alice")
	vote(t, e, "alice", id, true)

	reloaded, err := NewEngine(context.Background(), cfg, store, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.TreasuryBalance(); got != 500 {
		t.Errorf("balance = %d, want 500", got)
	}
	if got := reputation(t, reloaded, "alice"); got != 57 {
		t.Errorf("alice reputation = %d, want 57", got)
	}
	choice, voted, _ := reloaded.VoteChoice(id, "alice")
	if !voted || choice != domain.ChoiceFor {
		t.Errorf("VoteChoice = %v, %v", choice, voted)
	}
	if next := propose(t, reloaded, "alice"); next != id+1 {
		t.Errorf("next id = %d, want %d", next, id+1)
	}

	cfg.Owner = "someone-else"
	if _, err := NewEngine(context.Background(), cfg, store); err == nil {
		t.Error("expected owner mismatch error")
	}
}

// ─── Membership ─────────────────────────────────────────────────────────────

func TestAddMember(t *testing.T) {
	e, _ := newTestEngine(t)

	m, err := e.AddMember(context.Background(), owner, "alice")
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if m.Reputation != domain.MemberStartingReputation {
		t.Errorf("reputation = %d, want %d", m.Reputation, domain.MemberStartingReputation)
	}
	if !e.IsEligibleVoter("alice") {
		t.Error("alice should be eligible")
	}
}

func TestAddMember_Errors(t *testing.T) {
	e, _ := newTestEngine(t)
	addMembers(t, e, "alice", "bob")
	if err := e.RemoveMember(context.Background(), owner, "bob"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}

	tests := []struct {
		name   string
		actor  string
		member string
		want   error
	}{
		{"non-owner", "alice", "carol", domain.ErrUnauthorized},
		{"blank id", owner, "  ", domain.ErrInvalidTarget},
		{"already member", owner, "alice", domain.ErrAlreadyMember},
		{"owner again", owner, owner, domain.ErrAlreadyMember},
		{"blacklisted", owner, "bob", domain.ErrBlacklisted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.AddMember(context.Background(), tt.actor, tt.member)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRemoveMember(t *testing.T) {
	e, _ := newTestEngine(t)
	addMembers(t, e, "alice")

	if err := e.RemoveMember(context.Background(), owner, "alice"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	m, _ := e.GetMember("alice")
	if m.Active || !m.Blacklisted {
		t.Errorf("alice active=%v blacklisted=%v, want removed", m.Active, m.Blacklisted)
	}
	if e.IsEligibleVoter("alice") {
		t.Error("removed member should not be eligible")
	}
	if _, err := e.CreateProposal(context.Background(), "alice", ProposalInput{Description: "x"}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("removed member proposing: err = %v", err)
	}
}

func TestRemoveMember_OwnerInvariants(t *testing.T) {
	e, _ := newTestEngine(t)
	addMembers(t, e, "alice")

	if err := e.RemoveMember(context.Background(), owner, owner); !errors.Is(err, domain.ErrCannotRemoveOwner) {
		t.Errorf("remove owner: err = %v", err)
	}
	if err := e.RemoveMember(context.Background(), "alice", owner); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("non-owner remove: err = %v", err)
	}
	if err := e.RemoveMember(context.Background(), owner, "ghost"); !errors.Is(err, domain.ErrNotAMember) {
		t.Errorf("remove non-member: err = %v", err)
	}
	if !e.IsEligibleVoter(owner) {
		t.Error("owner must stay eligible")
	}
}

// ─── Treasury ───────────────────────────────────────────────────────────────

func TestDeposit(t *testing.T) {
	e, _ := newTestEngine(t)

	entry, err := e.Deposit(context.Background(), "donor", 250)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if entry.Balance != 250 || entry.Type != domain.EntryDeposit || entry.Counterparty != "donor" {
		t.Errorf("entry = %+v", entry)
	}
	if _, err := e.Deposit(context.Background(), "donor", 0); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("zero deposit: err = %v", err)
	}
	if got := e.TreasuryBalance(); got != 250 {
		t.Errorf("balance = %d, want 250", got)
	}
	if got := len(e.LedgerEntries()); got != 1 {
		t.Errorf("ledger entries = %d, want 1", got)
	}
}

// ─── Proposal Creation ──────────────────────────────────────────────────────

func TestCreateProposal(t *testing.T) {
	e, clock := newTestEngine(t)
	addMembers(t, e, "alice")

	id := propose(t, e, "alice")
	if id != 1 {
		t.Errorf("id = %d, want 1", id)
	}

	v, err := e.GetProposal(id)
	if err != nil {
		t.Fatalf("GetProposal: %v", err)
	}
	if v.State != domain.StateActive {
		t.Errorf("state = %v, want ACTIVE", v.State)
	}
	if want := clock.Now().Add(DefaultVotingPeriod); !v.Deadline.Equal(want) {
		t.Errorf("deadline = %v, want %v", v.Deadline, want)
	}
	if v.Proposer != "alice" || v.Kind != domain.KindGeneral {
		t.Errorf("proposal = %+v", v.Proposal)
	}
	active, _ := e.IsProposalActive(id)
	if !active {
		t.Error("proposal should be active")
	}
}

func TestCreateProposal_Errors(t *testing.T) {
	e, _ := newTestEngine(t)
	addMembers(t, e, "alice")
	e.Deposit(context.Background(), "donor", 100)

	tests := []struct {
		name  string
		actor string
		in    ProposalInput
		want  error
	}{
		{"outsider", "mallory", ProposalInput{Description: "x"}, domain.ErrUnauthorized},
		{"empty description", "alice", ProposalInput{Description: ""}, domain.ErrEmptyDescription},
		{"whitespace description", "alice", ProposalInput{Description: " \t\n"}, domain.ErrEmptyDescription},
		{"treasury without target", "alice", ProposalInput{Description: "pay", Kind: domain.KindTreasury, Amount: 10}, domain.ErrInvalidTarget},
		{"treasury zero amount", "alice", ProposalInput{Description: "pay", Kind: domain.KindTreasury, Target: "bob"}, domain.ErrInvalidAmount},
		{"treasury over balance", "alice", ProposalInput{Description: "pay", Kind: domain.KindTreasury, Target: "bob", Amount: 101}, domain.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.CreateProposal(context.Background(), tt.actor, tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if got := e.Stats().ProposalCount; got != 0 {
		t.Errorf("proposal count = %d, want 0", got)
	}
}

func TestCreateProposal_NonTreasuryDropsTarget(t *testing.T) {
	e, _ := newTestEngine(t)

	id, err := e.CreateProposal(context.Background(), owner, ProposalInput{
		Description: "rename the guild",
		Kind:        domain.KindConstitutional,
		Target:      "bob",
		Amount:      99,
	})
	if err != nil {
		t.Fatalf("CreateProposal: %v", err)
	}
	v, _ := e.GetProposal(id)
	if v.Target != "" || v.Amount != 0 {
		t.Errorf("target=%q amount=%d, want empty", v.Target, v.Amount)
	}
}

// ─── Voting ─────────────────────────────────────────────────────────────────

func TestVote(t *testing.T) {
	e, _ := newTestEngine(t)
	addMembers(t, e, "alice", "bob")
	id := propose(t, e, "alice")

	vote(t, e, "alice", id, true)
	vote(t, e, "bob", id, false)

	v, _ := e.GetProposal(id)
	if v.ForVotes != 1 || v.AgainstVotes != 1 {
		t.Errorf("tally = %d/%d, want 1/1", v.ForVotes, v.AgainstVotes)
	}
	choice, voted, err := e.VoteChoice(id, "bob")
	if err != nil || !voted || choice != domain.ChoiceAgainst {
		t.Errorf("VoteChoice(bob) = %v, %v, %v", choice, voted, err)
	}
	if _, voted, _ := e.VoteChoice(id, owner); voted {
		t.Error("owner has not voted")
	}
	ballots, _ := e.Ballots(id)
	if len(ballots) != 2 {
		t.Errorf("ballots = %d, want 2", len(ballots))
	}
}

func TestVote_Duplicate(t *testing.T) {
	e, _ := newTestEngine(t)
	addMembers(t, e, "alice")
	id := propose(t, e, "alice")
	vote(t, e, "alice", id, true)

	err := e.Vote(context.Background(), "alice", id, false)
	if !errors.Is(err, domain.ErrDuplicateVote) {
		t.Fatalf("err = %v, want ErrDuplicateVote", err)
	}
	v, _ := e.GetProposal(id)
	if v.ForVotes != 1 || v.AgainstVotes != 0 {
		t.Errorf("tally changed: %d/%d", v.ForVotes, v.AgainstVotes)
	}
}

func TestVote_NotFound(t *testing.T) {
	e, _ := newTestEngine(t)
	propose(t, e, owner)

	for _, id := range []uint64{0, 2, 1 << 40} {
		if err := e.Vote(context.Background(), owner, id, true); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Vote(%d): err = %v, want ErrNotFound", id, err)
		}
		if _, err := e.GetProposal(id); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("GetProposal(%d): err = %v, want ErrNotFound", id, err)
		}
		if _, err := e.Execute(context.Background(), "", id); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Execute(%d): err = %v, want ErrNotFound", id, err)
		}
	}
}

func TestVote_Unauthorized(t *testing.T) {
	e, _ := newTestEngine(t)
	id := propose(t, e, owner)

	if err := e.Vote(context.Background(), "mallory", id, true); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestVote_AfterDeadline(t *testing.T) {
	e, clock := newTestEngine(t)
	addMembers(t, e, "alice")
	id := propose(t, e, "alice")

	clock.Advance(DefaultVotingPeriod)

	if err := e.Vote(context.Background(), "alice", id, true); !errors.Is(err, domain.ErrVotingClosed) {
		t.Errorf("err = %v, want ErrVotingClosed", err)
	}
	active, _ := e.IsProposalActive(id)
	if active {
		t.Error("proposal should not be active at the deadline")
	}
}

// ─── Quorum + Threshold Math ────────────────────────────────────────────────

func TestQuorumRequired(t *testing.T) {
	tests := []struct {
		members int
		pct     uint64
		want    uint64
	}{
		{10, 34, 4},
		{10, 30, 3},
		{10, 31, 4},
		{1, 1, 1},
		{3, 30, 1},
		{7, 100, 7},
		{0, 50, 0},
	}
	for _, tt := range tests {
		if got := QuorumRequired(tt.members, tt.pct); got != tt.want {
			t.Errorf("QuorumRequired(%d, %d) = %d, want %d", tt.members, tt.pct, got, tt.want)
		}
	}
}

func TestEvaluate(t *testing.T) {
	params := domain.Params{QuorumPercent: 30, PassThresholdPercent: 60}

	tests := []struct {
		name       string
		forV, agV  uint64
		members    int
		wantQuorum bool
		wantPct    uint64
		wantPassed bool
	}{
		{"four for one against", 4, 1, 5, true, 80, true},
		{"exactly at threshold", 3, 2, 5, true, 60, true},
		{"below threshold", 1, 1, 5, true, 50, false},
		{"two thirds floors to 66", 2, 1, 3, true, 66, true},
		{"no votes", 0, 0, 5, false, 0, false},
		{"short of quorum", 1, 0, 10, false, 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(domain.Proposal{ForVotes: tt.forV, AgainstVotes: tt.agV}, tt.members, params)
			if got.QuorumReached != tt.wantQuorum || got.ForPercentage != tt.wantPct || got.Passed != tt.wantPassed {
				t.Errorf("Evaluate = %+v", got)
			}
		})
	}
}

func TestExecute_QuorumTenMembers(t *testing.T) {
	e, clock := newTestEngine(t)
	addMembers(t, e, "m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8", "m9")
	if err := e.SetQuorumPercent(context.Background(), owner, 34); err != nil {
		t.Fatalf("SetQuorumPercent: %v", err)
	}

	id := propose(t, e, owner)
	vote(t, e, "m1", id, true)
	vote(t, e, "m2", id, true)
	vote(t, e, "m3", id, true)
	clock.Advance(DefaultVotingPeriod)

	v, _ := e.GetProposal(id)
	if v.QuorumRequired != 4 {
		t.Errorf("quorum required = %d, want 4", v.QuorumRequired)
	}
	if v.State != domain.StateStalled {
		t.Errorf("state = %v, want STALLED", v.State)
	}
	if _, err := e.Execute(context.Background(), "", id); !errors.Is(err, domain.ErrQuorumNotReached) {
		t.Fatalf("err = %v, want ErrQuorumNotReached", err)
	}
	v, _ = e.GetProposal(id)
	if v.Executed {
		t.Error("failed execution must not commit")
	}

	// Shrinking the group lowers the bar: 7 members × 34% → 3.
	for _, m := range []string{"m7", "m8", "m9"} {
		if err := e.RemoveMember(context.Background(), owner, m); err != nil {
			t.Fatalf("RemoveMember(%s): %v", m, err)
		}
	}
	if due := e.DueProposals(); len(due) != 1 || due[0] != id {
		t.Errorf("DueProposals = %v, want [%d]", due, id)
	}
	res, err := e.Execute(context.Background(), "", id)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Proposal.Outcome != domain.OutcomePassed {
		t.Errorf("outcome = %v, want PASSED", res.Proposal.Outcome)
	}
}

// ─── Execution ──────────────────────────────────────────────────────────────

func TestExecute_FourForOneAgainstPasses(t *testing.T) {
	e, clock := newTestEngine(t)
	addMembers(t, e, "a", "b", "c", "d")
	id := propose(t, e, owner)
	vote(t, e, owner, id, true)
	vote(t, e, "a", id, true)
	vote(t, e, "b", id, true)
	vote(t, e, "c", id, true)
	vote(t, e, "d", id, false)
	clock.Advance(DefaultVotingPeriod)

	res, err := e.Execute(context.Background(), "anyone", id)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Tally.ForPercentage != 80 || !res.Tally.Passed {
		t.Errorf("tally = %+v", res.Tally)
	}
	v, _ := e.GetProposal(id)
	if v.State != domain.StatePassed {
		t.Errorf("state = %v, want PASSED", v.State)
	}
}

func TestExecute_Rejected(t *testing.T) {
	e, clock := newTestEngine(t)
	addMembers(t, e, "alice")
	id := propose(t, e, "alice")
	vote(t, e, owner, id, false)
	vote(t, e, "alice", id, true)
	clock.Advance(DefaultVotingPeriod)

	res, err := e.Execute(context.Background(), "", id)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Proposal.Outcome != domain.OutcomeRejected {
		t.Errorf("outcome = %v, want REJECTED", res.Proposal.Outcome)
	}
	// 50 + 5 proposal + 2 vote, no reward for a rejected motion.
	if got := reputation(t, e, "alice"); got != 57 {
		t.Errorf("alice reputation = %d, want 57", got)
	}
}

func TestExecute_StillOpen(t *testing.T) {
	e, clock := newTestEngine(t)
	id := propose(t, e, owner)
	vote(t, e, owner, id, true)
	clock.Advance(DefaultVotingPeriod - time.Second)

	if _, err := e.Execute(context.Background(), "", id); !errors.Is(err, domain.ErrVotingStillOpen) {
		t.Errorf("err = %v, want ErrVotingStillOpen", err)
	}
}

func TestExecute_NoVotes(t *testing.T) {
	e, clock := newTestEngine(t)
	id := propose(t, e, owner)
	clock.Advance(DefaultVotingPeriod)

	if _, err := e.Execute(context.Background(), "", id); !errors.Is(err, domain.ErrQuorumNotReached) {
		t.Errorf("err = %v, want ErrQuorumNotReached", err)
	}
}

func TestExecute_Twice(t *testing.T) {
	e, clock := newTestEngine(t)
	addMembers(t, e, "bob")
	e.Deposit(context.Background(), "donor", 1000)

	id, err := e.CreateProposal(context.Background(), owner, ProposalInput{
		Description: "pay bob",
		Kind:        domain.KindTreasury,
		Target:      "bob",
		Amount:      300,
	})
	if err != nil {
		t.Fatalf("CreateProposal: %v", err)
	}
	vote(t, e, owner, id, true)
	clock.Advance(DefaultVotingPeriod)

	res, err := e.Execute(context.Background(), "", id)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Withdrawal == nil || res.Withdrawal.Amount != 300 || res.Withdrawal.Counterparty != "bob" {
		t.Errorf("withdrawal = %+v", res.Withdrawal)
	}
	if _, err := e.Execute(context.Background(), "", id); !errors.Is(err, domain.ErrAlreadyExecuted) {
		t.Errorf("second execute: err = %v, want ErrAlreadyExecuted", err)
	}
	if got := e.TreasuryBalance(); got != 700 {
		t.Errorf("balance = %d, want 700", got)
	}
	if got := len(e.LedgerEntries()); got != 2 {
		t.Errorf("ledger entries = %d, want 2", got)
	}
}

func TestExecute_Unfunded(t *testing.T) {
	e, clock := newTestEngine(t)
	addMembers(t, e, "alice")
	e.Deposit(context.Background(), "donor", 100)

	first, _ := e.CreateProposal(context.Background(), "alice", ProposalInput{Description: "pay bob", Kind: domain.KindTreasury, Target: "bob", Amount: 80})
	second, _ := e.CreateProposal(context.Background(), "alice", ProposalInput{Description: "pay carol", Kind: domain.KindTreasury, Target: "carol", Amount: 60})
	for _, id := range []uint64{first, second} {
		vote(t, e, owner, id, true)
		vote(t, e, "alice", id, true)
	}
	clock.Advance(DefaultVotingPeriod)

	if _, err := e.Execute(context.Background(), "", first); err != nil {
		t.Fatalf("Execute(first): %v", err)
	}
	before := reputation(t, e, "alice")

	res, err := e.Execute(context.Background(), "", second)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if res == nil || res.Proposal.Outcome != domain.OutcomeUnfunded || res.Withdrawal != nil {
		t.Fatalf("result = %+v", res)
	}
	v, _ := e.GetProposal(second)
	if v.State != domain.StateUnfunded || !v.Executed {
		t.Errorf("state = %v executed = %v, want UNFUNDED", v.State, v.Executed)
	}
	if got := e.TreasuryBalance(); got != 20 {
		t.Errorf("balance = %d, want 20", got)
	}
	if got := reputation(t, e, "alice"); got != before {
		t.Errorf("alice reputation = %d, want %d", got, before)
	}
	if _, err := e.Execute(context.Background(), "", second); !errors.Is(err, domain.ErrAlreadyExecuted) {
		t.Errorf("retry: err = %v, want ErrAlreadyExecuted", err)
	}
}

// ─── Payout ─────────────────────────────────────────────────────────────────

type payoutFunc func(ctx context.Context, recipient string, amount uint64) error

func (f payoutFunc) Transfer(ctx context.Context, recipient string, amount uint64) error {
	return f(ctx, recipient, amount)
}

func TestExecute_PayoutAfterCommit(t *testing.T) {
	var e *Engine
	var seenBalance uint64
	var seenExecuted bool
	payout := payoutFunc(func(ctx context.Context, recipient string, amount uint64) error {
		// Re-entrant calls observe the committed state.
		seenBalance = e.TreasuryBalance()
		v, _ := e.GetProposal(1)
		seenExecuted = v.Executed
		return nil
	})

	e, clock := newTestEngine(t, WithPayout(payout))
	e.Deposit(context.Background(), "donor", 50)
	id, _ := e.CreateProposal(context.Background(), owner, ProposalInput{Description: "pay", Kind: domain.KindTreasury, Target: "bob", Amount: 50})
	vote(t, e, owner, id, true)
	clock.Advance(DefaultVotingPeriod)

	if _, err := e.Execute(context.Background(), "", id); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if seenBalance != 0 || !seenExecuted {
		t.Errorf("payout saw balance=%d executed=%v", seenBalance, seenExecuted)
	}
}

func TestExecute_PayoutFailure(t *testing.T) {
	payout := payoutFunc(func(ctx context.Context, recipient string, amount uint64) error {
		return errors.New("bank offline")
	})
	e, clock := newTestEngine(t, WithPayout(payout))
	e.Deposit(context.Background(), "donor", 50)
	id, _ := e.CreateProposal(context.Background(), owner, ProposalInput{Description: "pay", Kind: domain.KindTreasury, Target: "bob", Amount: 50})
	vote(t, e, owner, id, true)
	clock.Advance(DefaultVotingPeriod)

	res, err := e.Execute(context.Background(), "", id)
	if !errors.Is(err, domain.ErrPayoutFailed) {
		t.Fatalf("err = %v, want ErrPayoutFailed", err)
	}
	if res == nil || res.Proposal.Outcome != domain.OutcomePassed {
		t.Fatalf("result = %+v", res)
	}
	if got := e.TreasuryBalance(); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

// ─── Reputation ─────────────────────────────────────────────────────────────

func TestReputationScript(t *testing.T) {
	e, clock := newTestEngine(t)
	addMembers(t, e, "alice", "bob")

	id := propose(t, e, "alice")
	vote(t, e, owner, id, true)
	vote(t, e, "alice", id, true)
	vote(t, e, "bob", id, true)
	clock.Advance(DefaultVotingPeriod)

	if _, err := e.Execute(context.Background(), "", id); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := map[string]uint64{
		owner:   100 + 2,
		"alice": 50 + 5 + 2 + 10,
		"bob":   50 + 2,
	}
	for id, rep := range want {
		if got := reputation(t, e, id); got != rep {
			t.Errorf("%s reputation = %d, want %d", id, got, rep)
		}
	}
}

// ─── Parameters + Pause ─────────────────────────────────────────────────────

func TestSetParams(t *testing.T) {
	e, _ := newTestEngine(t)
	addMembers(t, e, "alice")
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"quorum ok", func() error { return e.SetQuorumPercent(ctx, owner, 1) }, nil},
		{"quorum 100", func() error { return e.SetQuorumPercent(ctx, owner, 100) }, nil},
		{"quorum zero", func() error { return e.SetQuorumPercent(ctx, owner, 0) }, domain.ErrInvalidPercent},
		{"quorum 101", func() error { return e.SetQuorumPercent(ctx, owner, 101) }, domain.ErrInvalidPercent},
		{"quorum non-owner", func() error { return e.SetQuorumPercent(ctx, "alice", 40) }, domain.ErrUnauthorized},
		{"threshold 51", func() error { return e.SetPassThresholdPercent(ctx, owner, 51) }, nil},
		{"threshold 50", func() error { return e.SetPassThresholdPercent(ctx, owner, 50) }, domain.ErrInvalidPercent},
		{"threshold 101", func() error { return e.SetPassThresholdPercent(ctx, owner, 101) }, domain.ErrInvalidPercent},
		{"threshold non-owner", func() error { return e.SetPassThresholdPercent(ctx, "alice", 70) }, domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if got := e.Params(); got.QuorumPercent != 100 || got.PassThresholdPercent != 51 {
		t.Errorf("params = %+v", got)
	}
}

func TestPause(t *testing.T) {
	e, clock := newTestEngine(t)
	addMembers(t, e, "alice")
	id := propose(t, e, "alice")
	vote(t, e, "alice", id, true)
	ctx := context.Background()

	if err := e.SetPaused(ctx, "alice", true); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("non-owner pause: err = %v", err)
	}
	if err := e.SetPaused(ctx, owner, true); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}

	blocked := map[string]error{
		"add member":    func() error { _, err := e.AddMember(ctx, owner, "bob"); return err }(),
		"remove member": e.RemoveMember(ctx, owner, "alice"),
		"deposit":       func() error { _, err := e.Deposit(ctx, "donor", 1); return err }(),
		"propose":       func() error { _, err := e.CreateProposal(ctx, "alice", ProposalInput{Description: "x"}); return err }(),
		"vote":          e.Vote(ctx, owner, id, true),
		"quorum":        e.SetQuorumPercent(ctx, owner, 40),
		"threshold":     e.SetPassThresholdPercent(ctx, owner, 70),
	}
	for name, err := range blocked {
		if !errors.Is(err, domain.ErrPaused) {
			t.Errorf("%s while paused: err = %v, want ErrPaused", name, err)
		}
	}

	clock.Advance(DefaultVotingPeriod)
	if _, err := e.Execute(ctx, "", id); err != nil {
		t.Errorf("Execute while paused: %v", err)
	}

	if err := e.SetPaused(ctx, owner, false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := e.Deposit(ctx, "donor", 1); err != nil {
		t.Errorf("deposit after unpause: %v", err)
	}
}

// ─── Atomicity ──────────────────────────────────────────────────────────────

// flakyStore fails every commit while failing is set.
type flakyStore struct {
	*MemoryStore
	failing bool
}

func (s *flakyStore) Commit(ctx context.Context, cs *domain.Changeset) error {
	if s.failing {
		return errors.New("disk full")
	}
	return s.MemoryStore.Commit(ctx, cs)
}

func TestCommitFailure_LeavesStateUnchanged(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	sink := &recordingSink{}
	cfg := DefaultEngineConfig()
	cfg.Owner = owner
	e, err := NewEngine(context.Background(), cfg, store, WithSink(sink))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	addMembers(t, e, "alice")
	id := propose(t, e, "alice")
	emitted := len(sink.types())

	store.failing = true
	if err := e.Vote(context.Background(), "alice", id, true); err == nil {
		t.Fatal("expected commit error")
	}
	if _, err := e.Deposit(context.Background(), "donor", 10); err == nil {
		t.Fatal("expected commit error")
	}

	v, _ := e.GetProposal(id)
	if v.ForVotes != 0 {
		t.Errorf("for votes = %d, want 0", v.ForVotes)
	}
	if got := reputation(t, e, "alice"); got != 55 {
		t.Errorf("alice reputation = %d, want 55", got)
	}
	if got := e.TreasuryBalance(); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
	if got := len(sink.types()); got != emitted {
		t.Errorf("events emitted on failure: %d → %d", emitted, got)
	}

	store.failing = false
	vote(t, e, "alice", id, true)
}

func TestExecute_RemovedProposerEarnsNothing(t *testing.T) {
	sink := &recordingSink{}
	e, clock := newTestEngine(t, WithSink(sink))
	ctx := context.Background()
	addMembers(t, e, "alice", "bob")
	id := propose(t, e, "alice")
	vote(t, e, "alice", id, true)
	vote(t, e, "bob", id, true)
	if err := e.RemoveMember(ctx, owner, "alice"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	clock.Advance(DefaultVotingPeriod)

	before := len(sink.types())
	res, err := e.Execute(ctx, "", id)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Proposal.Outcome != domain.OutcomePassed {
		t.Fatalf("outcome = %s, want PASSED", res.Proposal.Outcome)
	}

	alice, _ := e.GetMember("alice")
	if alice.Reputation != 57 {
		t.Errorf("alice reputation = %d, want 57", alice.Reputation)
	}
	for _, typ := range sink.types()[before:] {
		if typ == domain.EventReputationChanged {
			t.Error("removed proposer must not be credited")
		}
	}
}

// ─── Events + Stats ─────────────────────────────────────────────────────────

func TestEvents_OrderedAndPersisted(t *testing.T) {
	sink := &recordingSink{}
	store := NewMemoryStore()
	cfg := DefaultEngineConfig()
	cfg.Owner = owner
	e, err := NewEngine(context.Background(), cfg, store, WithSink(sink))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	propose(t, e, owner)

	want := []domain.EventType{
		domain.EventMemberAdded,
		domain.EventProposalCreated,
		domain.EventReputationChanged,
	}
	got := sink.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	persisted := store.Events()
	for i, ev := range persisted {
		if ev.Seq != uint64(i+1) {
			t.Errorf("event[%d].Seq = %d", i, ev.Seq)
		}
		if ev.ID == "" {
			t.Errorf("event[%d] has no ID", i)
		}
	}
}

// callbackSink deposits into the engine whenever a vote is cast.
type callbackSink struct {
	recordingSink
	e *Engine
}

func (s *callbackSink) Emit(ev domain.Event) {
	s.recordingSink.Emit(ev)
	if ev.Type == domain.EventVoteCast {
		s.e.Stats()
		s.e.Deposit(context.Background(), "tipper", 5)
	}
}

func TestSinkMayCallBackIntoEngine(t *testing.T) {
	sink := &callbackSink{}
	e, _ := newTestEngine(t, WithSink(sink))
	sink.e = e
	id := propose(t, e, owner)

	done := make(chan error, 1)
	go func() { done <- e.Vote(context.Background(), owner, id, true) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Vote: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("vote blocked on a sink calling back into the engine")
	}

	if got := e.TreasuryBalance(); got != 5 {
		t.Errorf("balance = %d, want 5", got)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	last := sink.events[len(sink.events)-1]
	if last.Type != domain.EventFundsDeposited {
		t.Errorf("last event = %s, want the deposit made by the sink", last.Type)
	}
	for i := 1; i < len(sink.events); i++ {
		if sink.events[i].Seq != sink.events[i-1].Seq+1 {
			t.Fatalf("events out of order: %d after %d", sink.events[i].Seq, sink.events[i-1].Seq)
		}
	}
}

func TestStats(t *testing.T) {
	e, clock := newTestEngine(t)
	addMembers(t, e, "alice", "bob")
	e.Deposit(context.Background(), "donor", 40)
	first := propose(t, e, "alice")
	vote(t, e, "alice", first, true)
	vote(t, e, "bob", first, true)
	clock.Advance(DefaultVotingPeriod)
	e.Execute(context.Background(), "", first)
	propose(t, e, "bob")

	s := e.Stats()
	if s.Owner != owner || s.MemberCount != 3 || s.ProposalCount != 2 {
		t.Errorf("stats = %+v", s)
	}
	if s.Executed != 1 || s.ActiveProposals != 1 || s.TotalVotesCast != 2 || s.TreasuryBalance != 40 {
		t.Errorf("stats = %+v", s)
	}
	if s.TotalDeposited != 40 || s.TotalWithdrawn != 0 {
		t.Errorf("treasury totals = %d in, %d out", s.TotalDeposited, s.TotalWithdrawn)
	}

	state := domain.StateActive
	if got := e.ListProposals(&state); len(got) != 1 || got[0].Proposer != "bob" {
		t.Errorf("active proposals = %+v", got)
	}
	if got := e.ListProposals(nil); len(got) != 2 {
		t.Errorf("all proposals = %d, want 2", len(got))
	}
	if got := e.ListMembers(); len(got) != 3 {
		t.Errorf("members = %+v", got)
	}
}
