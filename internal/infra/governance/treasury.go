package governance

import (
	"context"

	"go.uber.org/zap"

	"github.com/tutu-network/guild/internal/domain"
)

// ─── Treasury ───────────────────────────────────────────────────────────────

// Deposit adds amount to the treasury. Anyone may deposit.
func (e *Engine) Deposit(ctx context.Context, from string, amount uint64) (domain.LedgerEntry, error) {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkPaused("deposit"); err != nil {
		return domain.LedgerEntry{}, err
	}

	now := e.now()
	entry, err := e.treasury.PrepareDeposit(from, amount, now)
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	cs := &domain.Changeset{
		Treasury: &entry.Balance,
		Ledger:   []domain.LedgerEntry{entry},
	}
	e.record(cs, domain.Event{
		Type:   domain.EventFundsDeposited,
		At:     now,
		Actor:  from,
		Amount: amount,
	})
	if err := e.commit(ctx, cs); err != nil {
		return domain.LedgerEntry{}, err
	}

	e.log.Info("treasury deposit",
		zap.String("from", from),
		zap.Uint64("amount", amount),
		zap.Uint64("balance", entry.Balance),
	)
	return entry, nil
}

// TreasuryBalance returns the current balance.
func (e *Engine) TreasuryBalance() uint64 {
	return e.treasury.Balance()
}

// LedgerEntries returns the treasury journal, oldest first.
func (e *Engine) LedgerEntries() []domain.LedgerEntry {
	return e.treasury.Entries()
}
