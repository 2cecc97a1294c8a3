// Package governance implements the proposal lifecycle engine of a closed
// membership group.
//
// Lifecycle:
//
//	create (member) → ACTIVE → deadline → EXPIRED | STALLED → execute (anyone)
//	                                                       → PASSED | REJECTED | UNFUNDED
//
// Only Executed and Outcome are stored. ACTIVE, EXPIRED and STALLED are
// derived from the deadline, the tally, and the current quorum.
//
// Every call is one serializable step guarded by a single mutex:
// validate → build a Changeset → commit it to the Store → apply it in
// memory. A failed precondition or commit changes nothing. Events are
// emitted once the mutex is released.
package governance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutu-network/guild/internal/domain"
	"github.com/tutu-network/guild/internal/infra/membership"
	"github.com/tutu-network/guild/internal/infra/treasury"
)

// ─── Constants ──────────────────────────────────────────────────────────────

// DefaultVotingPeriod is how long a proposal accepts ballots.
const DefaultVotingPeriod = 7 * 24 * time.Hour

// ─── Configuration ──────────────────────────────────────────────────────────

// EngineConfig configures the governance engine.
type EngineConfig struct {
	Owner        string        // Account that deploys and administers the group
	VotingPeriod time.Duration // deadline = created_at + VotingPeriod
	Params       domain.Params // Initial parameters for a fresh store
}

// DefaultEngineConfig returns defaults for everything except the owner.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		VotingPeriod: DefaultVotingPeriod,
		Params:       domain.DefaultParams(),
	}
}

// Validate checks the configuration before the engine is built.
func (c EngineConfig) Validate() error {
	if strings.TrimSpace(c.Owner) == "" {
		return errors.New("governance: owner must be set")
	}
	if c.VotingPeriod <= 0 {
		return fmt.Errorf("governance: voting period must be positive, got %s", c.VotingPeriod)
	}
	return c.Params.Validate()
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock injects the time source.
func WithClock(now domain.Clock) Option {
	return func(e *Engine) { e.now = now }
}

// WithSink sets the event sink. Events are delivered in Seq order after
// the engine lock is released, so a sink may call back into the engine.
func WithSink(sink domain.EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithPayout sets the external transfer invoked after treasury withdrawals.
func WithPayout(p domain.Payout) Option {
	return func(e *Engine) { e.payout = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l.Named("governance") }
}

// ─── Engine ─────────────────────────────────────────────────────────────────

// Engine is the governance state machine.
type Engine struct {
	mu     sync.Mutex
	config EngineConfig
	store  domain.Store
	sink   domain.EventSink
	payout domain.Payout
	log    *zap.Logger

	members   *membership.Registry
	treasury  *treasury.Ledger
	proposals *proposalTable
	ballots   *ballotTable
	params    domain.Params
	paused    bool
	eventSeq  uint64

	// Committed events waiting for flush; emitMu serializes delivery.
	pending []domain.Event
	emitMu  sync.Mutex

	// Injectable clock for testing.
	now func() time.Time
}

// NewEngine loads state from store, bootstrapping the owner on first use.
func NewEngine(ctx context.Context, cfg EngineConfig, store domain.Store, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = NewMemoryStore()
	}

	e := &Engine{
		config:    cfg,
		store:     store,
		sink:      discardSink{},
		log:       zap.NewNop(),
		members:   membership.NewRegistry(cfg.Owner),
		treasury:  treasury.NewLedger(),
		proposals: newProposalTable(),
		ballots:   newBallotTable(),
		params:    cfg.Params,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.load(ctx); err != nil {
		return nil, err
	}
	e.flush()
	return e, nil
}

// SetClock replaces the time source.
func (e *Engine) SetClock(now domain.Clock) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// Owner returns the owner's identifier.
func (e *Engine) Owner() string {
	return e.config.Owner
}

// VotingPeriod returns the configured voting window.
func (e *Engine) VotingPeriod() time.Duration {
	return e.config.VotingPeriod
}

// load restores persisted state or bootstraps a fresh group.
func (e *Engine) load(ctx context.Context) error {
	snap, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load governance state: %w", err)
	}

	if snap == nil || snap.Owner == "" {
		return e.bootstrap(ctx)
	}
	if snap.Owner != e.config.Owner {
		return fmt.Errorf("store belongs to owner %q, configured owner is %q", snap.Owner, e.config.Owner)
	}

	e.members.Load(snap.Members)
	e.treasury.Load(snap.TreasuryBalance, snap.Ledger)
	e.proposals.load(snap.Proposals)
	e.ballots.load(snap.Ballots)
	e.params = snap.Params
	e.paused = snap.Paused
	e.eventSeq = snap.LastEventSeq

	e.log.Info("governance state loaded",
		zap.String("owner", snap.Owner),
		zap.Int("members", len(snap.Members)),
		zap.Uint64("proposals", e.proposals.count()),
		zap.Uint64("treasury", snap.TreasuryBalance),
	)
	return nil
}

func (e *Engine) bootstrap(ctx context.Context) error {
	now := e.now()
	owner := e.members.Bootstrap(now)
	params := e.config.Params
	var balance uint64

	cs := &domain.Changeset{
		Owner:    e.config.Owner,
		Params:   &params,
		Treasury: &balance,
		Members:  []domain.Member{owner},
	}
	e.record(cs, domain.Event{
		Type:   domain.EventMemberAdded,
		At:     now,
		Actor:  owner.ID,
		Member: owner.ID,
		Attrs:  map[string]string{"reputation": fmt.Sprint(owner.Reputation)},
	})
	if err := e.commit(ctx, cs); err != nil {
		return fmt.Errorf("bootstrap owner: %w", err)
	}

	e.log.Info("governance bootstrapped", zap.String("owner", owner.ID))
	return nil
}

// ─── Commit Pipeline ────────────────────────────────────────────────────────

// record appends ev to the changeset. Seq and ID are assigned on commit.
func (e *Engine) record(cs *domain.Changeset, ev domain.Event) {
	cs.Events = append(cs.Events, ev)
}

// recordReputation appends the member update and its notification.
func (e *Engine) recordReputation(cs *domain.Changeset, m domain.Member, delta int64, reason string, now time.Time) {
	cs.Members = append(cs.Members, m)
	e.record(cs, domain.Event{
		Type:   domain.EventReputationChanged,
		At:     now,
		Member: m.ID,
		Attrs: map[string]string{
			"delta":      fmt.Sprint(delta),
			"reputation": fmt.Sprint(m.Reputation),
			"reason":     reason,
		},
	})
}

// commit persists cs, installs it in memory and queues its events.
// Must be called with e.mu held.
func (e *Engine) commit(ctx context.Context, cs *domain.Changeset) error {
	for i := range cs.Events {
		cs.Events[i].Seq = e.eventSeq + uint64(i) + 1
		cs.Events[i].ID = uuid.NewString()
	}

	if err := e.store.Commit(ctx, cs); err != nil {
		e.log.Error("commit failed", zap.Error(err))
		return fmt.Errorf("commit: %w", err)
	}

	if cs.Params != nil {
		e.params = *cs.Params
	}
	if cs.Paused != nil {
		e.paused = *cs.Paused
	}
	for _, m := range cs.Members {
		e.members.Put(m)
	}
	for _, p := range cs.Proposals {
		e.proposals.put(p)
	}
	for _, b := range cs.Ballots {
		e.ballots.put(b)
	}
	for _, entry := range cs.Ledger {
		e.treasury.Apply(entry)
	}
	e.eventSeq += uint64(len(cs.Events))
	e.pending = append(e.pending, cs.Events...)
	return nil
}

// flush emits queued events in Seq order. It must be called without e.mu
// held. Sinks may therefore call back into the engine; events committed
// from inside a sink are emitted by the flush already running.
func (e *Engine) flush() {
	for {
		if !e.emitMu.TryLock() {
			return
		}
		e.mu.Lock()
		evs := e.pending
		e.pending = nil
		e.mu.Unlock()

		for _, ev := range evs {
			e.sink.Emit(ev)
		}
		e.emitMu.Unlock()

		e.mu.Lock()
		more := len(e.pending) > 0
		e.mu.Unlock()
		if !more {
			return
		}
	}
}

// checkPaused rejects mutations while the group is paused.
func (e *Engine) checkPaused(op string) error {
	if e.paused {
		return fmt.Errorf("%s: %w", op, domain.ErrPaused)
	}
	return nil
}

// discardSink drops every event.
type discardSink struct{}

func (discardSink) Emit(domain.Event) {}
