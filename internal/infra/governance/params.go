package governance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tutu-network/guild/internal/domain"
)

// ─── Governance Parameters ──────────────────────────────────────────────────

// SetQuorumPercent changes the quorum. Owner only, range 1–100.
func (e *Engine) SetQuorumPercent(ctx context.Context, actor string, pct uint64) error {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkOwnerMutation("set quorum", actor); err != nil {
		return err
	}
	next := e.params
	next.QuorumPercent = pct
	if err := next.Validate(); err != nil {
		return err
	}

	cs := &domain.Changeset{Params: &next}
	e.record(cs, domain.Event{
		Type:  domain.EventQuorumUpdated,
		At:    e.now(),
		Actor: actor,
		Attrs: map[string]string{
			"old": fmt.Sprint(e.params.QuorumPercent),
			"new": fmt.Sprint(pct),
		},
	})
	if err := e.commit(ctx, cs); err != nil {
		return err
	}

	e.log.Info("quorum updated", zap.Uint64("percent", pct))
	return nil
}

// SetPassThresholdPercent changes the pass threshold. Owner only, range
// 51–100 so a tie can never pass.
func (e *Engine) SetPassThresholdPercent(ctx context.Context, actor string, pct uint64) error {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkOwnerMutation("set pass threshold", actor); err != nil {
		return err
	}
	next := e.params
	next.PassThresholdPercent = pct
	if err := next.Validate(); err != nil {
		return err
	}

	cs := &domain.Changeset{Params: &next}
	e.record(cs, domain.Event{
		Type:  domain.EventThresholdUpdated,
		At:    e.now(),
		Actor: actor,
		Attrs: map[string]string{
			"old": fmt.Sprint(e.params.PassThresholdPercent),
			"new": fmt.Sprint(pct),
		},
	})
	if err := e.commit(ctx, cs); err != nil {
		return err
	}

	e.log.Info("pass threshold updated", zap.Uint64("percent", pct))
	return nil
}

// SetPaused toggles the pause switch. Owner only. While paused every
// mutation except Execute and SetPaused is rejected.
func (e *Engine) SetPaused(ctx context.Context, actor string, paused bool) error {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.members.IsOwner(actor) {
		return fmt.Errorf("set paused: %s is not the owner: %w", actor, domain.ErrUnauthorized)
	}
	if e.paused == paused {
		return nil
	}

	cs := &domain.Changeset{Paused: &paused}
	e.record(cs, domain.Event{
		Type:  domain.EventPausedChanged,
		At:    e.now(),
		Actor: actor,
		Attrs: map[string]string{"paused": fmt.Sprint(paused)},
	})
	if err := e.commit(ctx, cs); err != nil {
		return err
	}

	e.log.Warn("pause switch changed", zap.Bool("paused", paused))
	return nil
}

// Params returns the current parameter snapshot.
func (e *Engine) Params() domain.Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// Paused reports whether the group is paused.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *Engine) checkOwnerMutation(op, actor string) error {
	if err := e.checkPaused(op); err != nil {
		return err
	}
	if !e.members.IsOwner(actor) {
		return fmt.Errorf("%s: %s is not the owner: %w", op, actor, domain.ErrUnauthorized)
	}
	return nil
}
