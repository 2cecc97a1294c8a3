package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tutu-network/guild/internal/domain"
	"github.com/tutu-network/guild/internal/infra/governance"
)

// ─── Client ─────────────────────────────────────────────────────────────────
// Client talks to a running guild daemon. The CLI uses it for every
// command except serve.

// Client is a typed HTTP client for the guild API.
type Client struct {
	base    string
	account string
	http    *http.Client
}

// NewClient creates a client for the daemon at addr (host:port or URL),
// acting as account.
func NewClient(addr, account string) *Client {
	base := strings.TrimSuffix(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base:    base,
		account: account,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx answer. It unwraps to the matching domain
// sentinel, so errors.Is(err, domain.ErrNotFound) works across the wire.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Kind)
}

func (e *APIError) Unwrap() error {
	return domain.ErrorFromKind(e.Kind)
}

// do sends one request and decodes a 2xx JSON answer into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.account != "" {
		req.Header.Set(AccountHeader, c.account)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var eb ErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&eb); err != nil || eb.Error.Kind == "" {
			return &APIError{Status: resp.StatusCode, Kind: "Internal", Message: resp.Status}
		}
		return &APIError{Status: resp.StatusCode, Kind: eb.Error.Kind, Message: eb.Error.Message}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// ─── Members ────────────────────────────────────────────────────────────────

// AddMember admits member (owner only).
func (c *Client) AddMember(ctx context.Context, member string) (domain.Member, error) {
	var m domain.Member
	err := c.do(ctx, http.MethodPost, "/api/members", AddMemberRequest{Member: member}, &m)
	return m, err
}

// RemoveMember removes and blacklists member (owner only).
func (c *Client) RemoveMember(ctx context.Context, member string) error {
	return c.do(ctx, http.MethodDelete, "/api/members/"+url.PathEscape(member), nil, nil)
}

// GetMember returns one member record.
func (c *Client) GetMember(ctx context.Context, member string) (domain.Member, error) {
	var m domain.Member
	err := c.do(ctx, http.MethodGet, "/api/members/"+url.PathEscape(member), nil, &m)
	return m, err
}

// ListMembers returns every member record.
func (c *Client) ListMembers(ctx context.Context) ([]domain.Member, error) {
	var ms []domain.Member
	err := c.do(ctx, http.MethodGet, "/api/members", nil, &ms)
	return ms, err
}

// Leaderboard returns up to limit eligible members by reputation.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]domain.Member, error) {
	var ms []domain.Member
	err := c.do(ctx, http.MethodGet, "/api/leaderboard?limit="+strconv.Itoa(limit), nil, &ms)
	return ms, err
}

// ─── Proposals ──────────────────────────────────────────────────────────────

// CreateProposal opens a proposal and returns it.
func (c *Client) CreateProposal(ctx context.Context, req CreateProposalRequest) (domain.ProposalView, error) {
	var v domain.ProposalView
	err := c.do(ctx, http.MethodPost, "/api/proposals", req, &v)
	return v, err
}

// GetProposal returns one proposal with its derived state.
func (c *Client) GetProposal(ctx context.Context, id uint64) (domain.ProposalView, error) {
	var v domain.ProposalView
	err := c.do(ctx, http.MethodGet, proposalPath(id, ""), nil, &v)
	return v, err
}

// ListProposals returns every proposal, optionally filtered by state.
func (c *Client) ListProposals(ctx context.Context, state *domain.ProposalState) ([]domain.ProposalView, error) {
	path := "/api/proposals"
	if state != nil {
		path += "?state=" + state.String()
	}
	var vs []domain.ProposalView
	err := c.do(ctx, http.MethodGet, path, nil, &vs)
	return vs, err
}

// Vote casts the client account's ballot and returns the updated proposal.
func (c *Client) Vote(ctx context.Context, id uint64, support bool) (domain.ProposalView, error) {
	choice := domain.ChoiceOf(support)
	var v domain.ProposalView
	err := c.do(ctx, http.MethodPost, proposalPath(id, "/votes"), VoteRequest{Choice: &choice}, &v)
	return v, err
}

// Ballots returns every ballot on proposal id.
func (c *Client) Ballots(ctx context.Context, id uint64) ([]domain.Ballot, error) {
	var bs []domain.Ballot
	err := c.do(ctx, http.MethodGet, proposalPath(id, "/ballots"), nil, &bs)
	return bs, err
}

// Execute closes proposal id. A committed execution that ended unfunded
// or with a failed payout returns the result and the matching domain error.
func (c *Client) Execute(ctx context.Context, id uint64) (*governance.ExecutionResult, error) {
	var resp ExecuteResponse
	if err := c.do(ctx, http.MethodPost, proposalPath(id, "/execute"), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return resp.ExecutionResult, &APIError{Status: http.StatusOK, Kind: resp.Error.Kind, Message: resp.Error.Message}
	}
	return resp.ExecutionResult, nil
}

func proposalPath(id uint64, suffix string) string {
	return "/api/proposals/" + strconv.FormatUint(id, 10) + suffix
}

// ─── Treasury ───────────────────────────────────────────────────────────────

// Deposit credits amount from the client account.
func (c *Client) Deposit(ctx context.Context, amount uint64) (domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := c.do(ctx, http.MethodPost, "/api/treasury/deposits", DepositRequest{Amount: amount}, &e)
	return e, err
}

// TreasuryBalance returns the pooled balance.
func (c *Client) TreasuryBalance(ctx context.Context) (uint64, error) {
	var t TreasuryResponse
	err := c.do(ctx, http.MethodGet, "/api/treasury", nil, &t)
	return t.Balance, err
}

// Ledger returns the treasury journal.
func (c *Client) Ledger(ctx context.Context) ([]domain.LedgerEntry, error) {
	var es []domain.LedgerEntry
	err := c.do(ctx, http.MethodGet, "/api/treasury/ledger", nil, &es)
	return es, err
}

// ─── Parameters ─────────────────────────────────────────────────────────────

// Params returns the governance parameters.
func (c *Client) Params(ctx context.Context) (ParamsResponse, error) {
	var p ParamsResponse
	err := c.do(ctx, http.MethodGet, "/api/params", nil, &p)
	return p, err
}

// SetQuorum updates the quorum percentage (owner only).
func (c *Client) SetQuorum(ctx context.Context, pct uint64) (ParamsResponse, error) {
	var p ParamsResponse
	err := c.do(ctx, http.MethodPut, "/api/params/quorum", PercentRequest{Percent: pct}, &p)
	return p, err
}

// SetThreshold updates the pass threshold percentage (owner only).
func (c *Client) SetThreshold(ctx context.Context, pct uint64) (ParamsResponse, error) {
	var p ParamsResponse
	err := c.do(ctx, http.MethodPut, "/api/params/threshold", PercentRequest{Percent: pct}, &p)
	return p, err
}

// SetPaused toggles the emergency pause (owner only).
func (c *Client) SetPaused(ctx context.Context, paused bool) (ParamsResponse, error) {
	var p ParamsResponse
	err := c.do(ctx, http.MethodPut, "/api/params/paused", PausedRequest{Paused: &paused}, &p)
	return p, err
}

// ─── Dashboard ──────────────────────────────────────────────────────────────

// Stats returns the group-wide snapshot.
func (c *Client) Stats(ctx context.Context) (domain.Stats, error) {
	var s domain.Stats
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &s)
	return s, err
}

// Events returns up to limit events with seq > after.
func (c *Client) Events(ctx context.Context, after uint64, limit int) ([]domain.Event, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatUint(after, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var evs []domain.Event
	err := c.do(ctx, http.MethodGet, "/api/events?"+q.Encode(), nil, &evs)
	return evs, err
}
