package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/tutu-network/guild/internal/domain"
)

// Compile-time contract assertion.
var _ domain.Store = (*DB)(nil)

// ─── Governance Schema ──────────────────────────────────────────────────────
// Unsigned 64-bit quantities are stored bit-for-bit in INTEGER columns
// (int64 reinterpretation), so the full uint64 range round-trips.
// Timestamps are RFC 3339 with nanoseconds, in UTC.

// GovernanceMigrations returns the governance schema statements.
func GovernanceMigrations() []string {
	return []string{
		// Scalar state: owner, params, pause switch, treasury balance
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS members (
			id          TEXT PRIMARY KEY,
			joined_at   TEXT NOT NULL,
			reputation  INTEGER NOT NULL DEFAULT 0,
			active      INTEGER NOT NULL DEFAULT 1,
			blacklisted INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS proposals (
			id            INTEGER PRIMARY KEY,
			description   TEXT NOT NULL,
			proposer      TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			deadline      TEXT NOT NULL,
			kind          TEXT NOT NULL,
			target        TEXT NOT NULL DEFAULT '',
			amount        INTEGER NOT NULL DEFAULT 0,
			for_votes     INTEGER NOT NULL DEFAULT 0,
			against_votes INTEGER NOT NULL DEFAULT 0,
			executed      INTEGER NOT NULL DEFAULT 0,
			outcome       TEXT NOT NULL DEFAULT 'NONE'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_proposals_open ON proposals(executed, deadline)`,

		// One ballot per (proposal, member); the primary key enforces it.
		`CREATE TABLE IF NOT EXISTS ballots (
			proposal_id INTEGER NOT NULL,
			member      TEXT NOT NULL,
			choice      TEXT NOT NULL,
			cast_at     TEXT NOT NULL,
			PRIMARY KEY (proposal_id, member)
		)`,

		`CREATE TABLE IF NOT EXISTS treasury_ledger (
			seq          INTEGER PRIMARY KEY,
			at           TEXT NOT NULL,
			type         TEXT NOT NULL,
			counterparty TEXT NOT NULL DEFAULT '',
			amount       INTEGER NOT NULL,
			proposal_id  INTEGER NOT NULL DEFAULT 0,
			balance      INTEGER NOT NULL
		)`,

		// Append-only notification log
		`CREATE TABLE IF NOT EXISTS events (
			seq         INTEGER PRIMARY KEY,
			id          TEXT NOT NULL UNIQUE,
			type        TEXT NOT NULL,
			at          TEXT NOT NULL,
			actor       TEXT NOT NULL DEFAULT '',
			member      TEXT NOT NULL DEFAULT '',
			proposal_id INTEGER NOT NULL DEFAULT 0,
			amount      INTEGER NOT NULL DEFAULT 0,
			attrs_json  TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(type)`,
	}
}

const (
	metaOwner     = "owner"
	metaQuorum    = "quorum_percent"
	metaThreshold = "pass_threshold_percent"
	metaPaused    = "paused"
	metaTreasury  = "treasury_balance"
)

// ─── Load ───────────────────────────────────────────────────────────────────

// Load reads the complete governance state. A fresh database yields an
// empty snapshot.
func (db *DB) Load(ctx context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{}

	if err := db.loadMeta(ctx, snap); err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	if err := db.loadMembers(ctx, snap); err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	if err := db.loadProposals(ctx, snap); err != nil {
		return nil, fmt.Errorf("load proposals: %w", err)
	}
	if err := db.loadBallots(ctx, snap); err != nil {
		return nil, fmt.Errorf("load ballots: %w", err)
	}
	ledger, err := db.LedgerEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	snap.Ledger = ledger

	var last int64
	if err := db.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&last); err != nil {
		return nil, fmt.Errorf("load event seq: %w", err)
	}
	snap.LastEventSeq = uint64(last)
	return snap, nil
}

func (db *DB) loadMeta(ctx context.Context, snap *domain.Snapshot) error {
	rows, err := db.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		switch key {
		case metaOwner:
			snap.Owner = value
		case metaQuorum:
			snap.Params.QuorumPercent, err = strconv.ParseUint(value, 10, 64)
		case metaThreshold:
			snap.Params.PassThresholdPercent, err = strconv.ParseUint(value, 10, 64)
		case metaPaused:
			snap.Paused, err = strconv.ParseBool(value)
		case metaTreasury:
			snap.TreasuryBalance, err = strconv.ParseUint(value, 10, 64)
		}
		if err != nil {
			return fmt.Errorf("meta %s=%q: %w", key, value, err)
		}
	}
	return rows.Err()
}

func (db *DB) loadMembers(ctx context.Context, snap *domain.Snapshot) error {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, joined_at, reputation, active, blacklisted
		FROM members ORDER BY joined_at, id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.Member
		var joined string
		var rep int64
		var active, blacklisted int
		if err := rows.Scan(&m.ID, &joined, &rep, &active, &blacklisted); err != nil {
			return err
		}
		if m.JoinedAt, err = parseTime(joined); err != nil {
			return fmt.Errorf("member %s: %w", m.ID, err)
		}
		m.Reputation = uint64(rep)
		m.Active = active == 1
		m.Blacklisted = blacklisted == 1
		snap.Members = append(snap.Members, m)
	}
	return rows.Err()
}

func (db *DB) loadProposals(ctx context.Context, snap *domain.Snapshot) error {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, description, proposer, created_at, deadline, kind, target,
		       amount, for_votes, against_votes, executed, outcome
		FROM proposals ORDER BY id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Proposal
		var id, amount, forVotes, againstVotes int64
		var created, deadline, kind, outcome string
		var executed int
		if err := rows.Scan(&id, &p.Description, &p.Proposer, &created, &deadline, &kind,
			&p.Target, &amount, &forVotes, &againstVotes, &executed, &outcome); err != nil {
			return err
		}
		p.ID = uint64(id)
		if p.CreatedAt, err = parseTime(created); err != nil {
			return fmt.Errorf("proposal %d created_at: %w", p.ID, err)
		}
		if p.Deadline, err = parseTime(deadline); err != nil {
			return fmt.Errorf("proposal %d deadline: %w", p.ID, err)
		}
		p.Amount = uint64(amount)
		p.ForVotes = uint64(forVotes)
		p.AgainstVotes = uint64(againstVotes)
		p.Executed = executed == 1
		if p.Kind, err = domain.ParseProposalKind(kind); err != nil {
			return fmt.Errorf("proposal %d: %w", p.ID, err)
		}
		if p.Outcome, err = domain.ParseOutcome(outcome); err != nil {
			return fmt.Errorf("proposal %d: %w", p.ID, err)
		}
		snap.Proposals = append(snap.Proposals, p)
	}
	return rows.Err()
}

func (db *DB) loadBallots(ctx context.Context, snap *domain.Snapshot) error {
	rows, err := db.db.QueryContext(ctx, `
		SELECT proposal_id, member, choice, cast_at
		FROM ballots ORDER BY proposal_id, cast_at, member
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var b domain.Ballot
		var id int64
		var choice, cast string
		if err := rows.Scan(&id, &b.Member, &choice, &cast); err != nil {
			return err
		}
		b.ProposalID = uint64(id)
		b.Choice = domain.ChoiceOf(choice == domain.ChoiceFor.String())
		if b.CastAt, err = parseTime(cast); err != nil {
			return fmt.Errorf("ballot %d/%s: %w", b.ProposalID, b.Member, err)
		}
		snap.Ballots = append(snap.Ballots, b)
	}
	return rows.Err()
}

// ─── Commit ─────────────────────────────────────────────────────────────────

// Commit writes cs in a single transaction.
func (db *DB) Commit(ctx context.Context, cs *domain.Changeset) error {
	if cs.Empty() {
		return nil
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := applyChangeset(ctx, tx, cs); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func applyChangeset(ctx context.Context, tx *sql.Tx, cs *domain.Changeset) error {
	if cs.Owner != "" {
		if err := putMeta(ctx, tx, metaOwner, cs.Owner); err != nil {
			return err
		}
	}
	if cs.Params != nil {
		if err := putMeta(ctx, tx, metaQuorum, strconv.FormatUint(cs.Params.QuorumPercent, 10)); err != nil {
			return err
		}
		if err := putMeta(ctx, tx, metaThreshold, strconv.FormatUint(cs.Params.PassThresholdPercent, 10)); err != nil {
			return err
		}
	}
	if cs.Paused != nil {
		if err := putMeta(ctx, tx, metaPaused, strconv.FormatBool(*cs.Paused)); err != nil {
			return err
		}
	}
	if cs.Treasury != nil {
		if err := putMeta(ctx, tx, metaTreasury, strconv.FormatUint(*cs.Treasury, 10)); err != nil {
			return err
		}
	}

	for _, m := range cs.Members {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO members (id, joined_at, reputation, active, blacklisted)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				reputation  = excluded.reputation,
				active      = excluded.active,
				blacklisted = excluded.blacklisted
		`, m.ID, formatTime(m.JoinedAt), int64(m.Reputation), boolInt(m.Active), boolInt(m.Blacklisted))
		if err != nil {
			return fmt.Errorf("upsert member %s: %w", m.ID, err)
		}
	}

	for _, p := range cs.Proposals {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO proposals (id, description, proposer, created_at, deadline, kind, target,
			                       amount, for_votes, against_votes, executed, outcome)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				for_votes     = excluded.for_votes,
				against_votes = excluded.against_votes,
				executed      = excluded.executed,
				outcome       = excluded.outcome
		`, int64(p.ID), p.Description, p.Proposer, formatTime(p.CreatedAt), formatTime(p.Deadline),
			p.Kind.String(), p.Target, int64(p.Amount), int64(p.ForVotes), int64(p.AgainstVotes),
			boolInt(p.Executed), p.Outcome.String())
		if err != nil {
			return fmt.Errorf("upsert proposal %d: %w", p.ID, err)
		}
	}

	for _, b := range cs.Ballots {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ballots (proposal_id, member, choice, cast_at) VALUES (?, ?, ?, ?)
		`, int64(b.ProposalID), b.Member, b.Choice.String(), formatTime(b.CastAt))
		if err != nil {
			return fmt.Errorf("insert ballot %d/%s: %w", b.ProposalID, b.Member, err)
		}
	}

	for _, e := range cs.Ledger {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO treasury_ledger (seq, at, type, counterparty, amount, proposal_id, balance)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, int64(e.Seq), formatTime(e.Timestamp), string(e.Type), e.Counterparty,
			int64(e.Amount), int64(e.ProposalID), int64(e.Balance))
		if err != nil {
			return fmt.Errorf("insert ledger entry %d: %w", e.Seq, err)
		}
	}

	for _, ev := range cs.Events {
		attrs, err := json.Marshal(ev.Attrs)
		if err != nil {
			return fmt.Errorf("encode event %d attrs: %w", ev.Seq, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (seq, id, type, at, actor, member, proposal_id, amount, attrs_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, int64(ev.Seq), ev.ID, string(ev.Type), formatTime(ev.At), ev.Actor, ev.Member,
			int64(ev.ProposalID), int64(ev.Amount), string(attrs))
		if err != nil {
			return fmt.Errorf("insert event %d: %w", ev.Seq, err)
		}
	}
	return nil
}

func putMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// ─── Journal Queries ────────────────────────────────────────────────────────

// LedgerEntries returns the treasury journal, oldest first.
func (db *DB) LedgerEntries(ctx context.Context) ([]domain.LedgerEntry, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT seq, at, type, counterparty, amount, proposal_id, balance
		FROM treasury_ledger ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var seq, amount, proposal, balance int64
		var at, typ string
		if err := rows.Scan(&seq, &at, &typ, &e.Counterparty, &amount, &proposal, &balance); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		if e.Timestamp, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("ledger entry %d: %w", e.Seq, err)
		}
		e.Type = domain.EntryType(typ)
		e.Amount = uint64(amount)
		e.ProposalID = uint64(proposal)
		e.Balance = uint64(balance)
		out = append(out, e)
	}
	return out, rows.Err()
}

// EventsAfter returns up to limit events with Seq greater than after,
// oldest first. A non-positive limit means no limit.
func (db *DB) EventsAfter(ctx context.Context, after uint64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.db.QueryContext(ctx, `
		SELECT seq, id, type, at, actor, member, proposal_id, amount, attrs_json
		FROM events WHERE seq > ? ORDER BY seq LIMIT ?
	`, int64(after), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var ev domain.Event
		var seq, proposal, amount int64
		var typ, at, attrs string
		if err := rows.Scan(&seq, &ev.ID, &typ, &at, &ev.Actor, &ev.Member, &proposal, &amount, &attrs); err != nil {
			return nil, err
		}
		ev.Seq = uint64(seq)
		ev.Type = domain.EventType(typ)
		if ev.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("event %d: %w", ev.Seq, err)
		}
		ev.ProposalID = uint64(proposal)
		ev.Amount = uint64(amount)
		if attrs != "" && attrs != "null" {
			if err := json.Unmarshal([]byte(attrs), &ev.Attrs); err != nil {
				return nil, fmt.Errorf("decode event %d attrs: %w", ev.Seq, err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
