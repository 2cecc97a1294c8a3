// Package treasury implements the pooled balance of the group.
//
// The balance increases only through deposits and decreases only through
// withdrawals requested by the execution engine. A withdrawal never drives
// the balance below zero. Every movement is journaled as a LedgerEntry
// carrying the balance after it.
package treasury

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tutu-network/guild/internal/domain"
)

// Ledger tracks the treasury balance and its journal.
// Thread-safe via RWMutex.
type Ledger struct {
	mu      sync.RWMutex
	balance uint64
	entries []domain.LedgerEntry
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Balance returns the current balance.
func (l *Ledger) Balance() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balance
}

// Covers reports whether the balance is at least amount.
func (l *Ledger) Covers(amount uint64) bool {
	return amount <= l.Balance()
}

// ─── Preparation ────────────────────────────────────────────────────────────

// PrepareDeposit returns the journal entry for depositing amount.
func (l *Ledger) PrepareDeposit(from string, amount uint64, now time.Time) (domain.LedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if amount == 0 {
		return domain.LedgerEntry{}, fmt.Errorf("deposit: zero amount: %w", domain.ErrInvalidAmount)
	}
	if amount > math.MaxUint64-l.balance {
		return domain.LedgerEntry{}, fmt.Errorf("deposit of %d overflows balance %d: %w", amount, l.balance, domain.ErrInvalidAmount)
	}
	return domain.LedgerEntry{
		Seq:          l.nextSeq(),
		Timestamp:    now,
		Type:         domain.EntryDeposit,
		Counterparty: from,
		Amount:       amount,
		Balance:      l.balance + amount,
	}, nil
}

// PrepareWithdraw returns the journal entry for paying amount to recipient
// on behalf of proposalID.
func (l *Ledger) PrepareWithdraw(recipient string, amount, proposalID uint64, now time.Time) (domain.LedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if amount == 0 {
		return domain.LedgerEntry{}, fmt.Errorf("withdraw: zero amount: %w", domain.ErrInvalidAmount)
	}
	if amount > l.balance {
		return domain.LedgerEntry{}, fmt.Errorf("withdraw %d from balance %d: %w", amount, l.balance, domain.ErrInsufficientFunds)
	}
	return domain.LedgerEntry{
		Seq:          l.nextSeq(),
		Timestamp:    now,
		Type:         domain.EntryWithdraw,
		Counterparty: recipient,
		Amount:       amount,
		ProposalID:   proposalID,
		Balance:      l.balance - amount,
	}, nil
}

func (l *Ledger) nextSeq() uint64 {
	return uint64(len(l.entries)) + 1
}

// ─── Installation ───────────────────────────────────────────────────────────

// Apply installs a committed entry and moves the balance to entry.Balance.
func (l *Ledger) Apply(entry domain.LedgerEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	l.balance = entry.Balance
}

// Load replaces the ledger with persisted state.
func (l *Ledger) Load(balance uint64, entries []domain.LedgerEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = balance
	l.entries = append([]domain.LedgerEntry(nil), entries...)
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Entries returns the journal, oldest first.
func (l *Ledger) Entries() []domain.LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Totals returns the sum of all deposits and withdrawals.
func (l *Ledger) Totals() (deposited, withdrawn uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		switch e.Type {
		case domain.EntryDeposit:
			deposited += e.Amount
		case domain.EntryWithdraw:
			withdrawn += e.Amount
		}
	}
	return deposited, withdrawn
}
