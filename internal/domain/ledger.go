package domain

import "time"

// ─── Treasury Ledger Types ──────────────────────────────────────────────────
// The treasury is a single pooled balance. Every movement is journaled as
// one entry carrying the balance after it was applied.

// EntryType represents the accounting side of a ledger entry.
type EntryType string

const (
	EntryDeposit  EntryType = "DEPOSIT"
	EntryWithdraw EntryType = "WITHDRAW"
)

// LedgerEntry is a single row in the treasury journal.
type LedgerEntry struct {
	Seq          uint64    `json:"seq"`
	Timestamp    time.Time `json:"timestamp"`
	Type         EntryType `json:"type"`
	Counterparty string    `json:"counterparty"` // Depositor or recipient
	Amount       uint64    `json:"amount"`
	ProposalID   uint64    `json:"proposal_id,omitempty"`
	Balance      uint64    `json:"balance"`
}
