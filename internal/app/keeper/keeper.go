// Package keeper closes proposals whose voting window has ended.
//
// Execution is permissionless, so nothing forces anyone to call it. The
// keeper is that caller: on every tick it:
//  1. Lists proposals that are EXPIRED (window closed, quorum met)
//  2. Executes them with bounded concurrency
//  3. Counts results by error kind and reports them to an observer
package keeper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tutu-network/guild/internal/domain"
	"github.com/tutu-network/guild/internal/infra/governance"
)

// Governance is the subset of the engine the keeper drives.
type Governance interface {
	DueProposals() []uint64
	Execute(ctx context.Context, caller string, id uint64) (*governance.ExecutionResult, error)
}

// Observer receives the per-kind result counts of every sweep.
type Observer interface {
	ObserveKeeperRun(results map[string]int)
}

// Config controls keeper behavior.
type Config struct {
	Interval      time.Duration // Time between sweeps (default: 1m)
	Caller        string        // Account recorded on executions (default: "keeper")
	MaxConcurrent int           // Executions in flight per sweep (default: 4)
	Timeout       time.Duration // Per-execution deadline, payout included (default: 30s)
}

// DefaultConfig returns safe keeper defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      time.Minute,
		Caller:        "keeper",
		MaxConcurrent: 4,
		Timeout:       30 * time.Second,
	}
}

// Keeper sweeps due proposals.
type Keeper struct {
	mu       sync.RWMutex
	config   Config
	gov      Governance
	observer Observer
	log      *zap.Logger

	runs     int64
	executed int64
	failed   int64
	lastRun  time.Time
}

// Option customizes a Keeper.
type Option func(*Keeper)

// WithObserver reports sweep results, typically to metrics.
func WithObserver(o Observer) Option {
	return func(k *Keeper) { k.observer = o }
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(k *Keeper) { k.log = l.Named("keeper") }
}

// New creates a keeper. Zero config fields take their defaults.
func New(cfg Config, gov Governance, opts ...Option) *Keeper {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Caller == "" {
		cfg.Caller = def.Caller
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	k := &Keeper{config: cfg, gov: gov, log: zap.NewNop()}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Run sweeps immediately and then on every interval until ctx is done.
func (k *Keeper) Run(ctx context.Context) error {
	k.log.Info("keeper started",
		zap.Duration("interval", k.config.Interval),
		zap.String("caller", k.config.Caller),
	)
	ticker := time.NewTicker(k.config.Interval)
	defer ticker.Stop()

	for {
		k.RunOnce(ctx)
		select {
		case <-ctx.Done():
			k.log.Info("keeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce executes every due proposal and returns the number of attempts
// per error kind ("" for success). A committed execution that returns an
// error (unfunded, payout failed) is counted under that error's kind.
func (k *Keeper) RunOnce(ctx context.Context) map[string]int {
	due := k.gov.DueProposals()
	results := make(map[string]int)
	var rmu sync.Mutex
	var executed, failed int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(k.config.MaxConcurrent)
	for _, id := range due {
		id := id
		g.Go(func() error {
			execCtx, cancel := context.WithTimeout(gctx, k.config.Timeout)
			defer cancel()

			res, err := k.gov.Execute(execCtx, k.config.Caller, id)
			k.logResult(id, res, err)

			rmu.Lock()
			results[domain.ErrorKind(err)]++
			if res != nil {
				executed++
			} else {
				failed++
			}
			rmu.Unlock()
			return nil
		})
	}
	g.Wait()

	k.mu.Lock()
	k.runs++
	k.executed += executed
	k.failed += failed
	k.lastRun = time.Now()
	k.mu.Unlock()

	if k.observer != nil {
		k.observer.ObserveKeeperRun(results)
	}
	return results
}

func (k *Keeper) logResult(id uint64, res *governance.ExecutionResult, err error) {
	switch {
	case res == nil:
		k.log.Warn("execute failed", zap.Uint64("proposal", id), zap.Error(err))
	case err != nil:
		k.log.Warn("executed with error",
			zap.Uint64("proposal", id),
			zap.Stringer("outcome", res.Proposal.Outcome),
			zap.Error(err),
		)
	default:
		k.log.Info("executed",
			zap.Uint64("proposal", id),
			zap.Stringer("outcome", res.Proposal.Outcome),
			zap.Uint64("for_percentage", res.Tally.ForPercentage),
		)
	}
}

// Stats returns keeper statistics.
type Stats struct {
	Runs     int64     `json:"runs"`
	Executed int64     `json:"executed"`
	Failed   int64     `json:"failed"`
	LastRun  time.Time `json:"last_run"`
	Interval string    `json:"interval"`
}

// Stats returns current keeper statistics.
func (k *Keeper) Stats() Stats {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return Stats{
		Runs:     k.runs,
		Executed: k.executed,
		Failed:   k.failed,
		LastRun:  k.lastRun,
		Interval: k.config.Interval.String(),
	}
}
