package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/guild/internal/domain"
	"github.com/tutu-network/guild/internal/infra/governance"
)

// ─── Request / Response Types ───────────────────────────────────────────────

// AddMemberRequest is the body of POST /api/members.
type AddMemberRequest struct {
	Member string `json:"member"`
}

// CreateProposalRequest is the body of POST /api/proposals.
type CreateProposalRequest struct {
	Description string              `json:"description"`
	Kind        domain.ProposalKind `json:"kind"`
	Target      string              `json:"target,omitempty"`
	Amount      uint64              `json:"amount,omitempty"`
}

// VoteRequest is the body of POST /api/proposals/{id}/votes.
type VoteRequest struct {
	Choice *domain.Choice `json:"choice"`
}

// ExecuteResponse is the body of POST /api/proposals/{id}/execute. Error
// is set when the execution committed but did not complete cleanly
// (unfunded treasury proposal, failed payout).
type ExecuteResponse struct {
	*governance.ExecutionResult
	Error *ErrorDetail `json:"error,omitempty"`
}

// BallotResponse answers GET /api/proposals/{id}/ballots/{member}.
type BallotResponse struct {
	ProposalID uint64         `json:"proposal_id"`
	Member     string         `json:"member"`
	Voted      bool           `json:"voted"`
	Choice     *domain.Choice `json:"choice,omitempty"`
}

// DepositRequest is the body of POST /api/treasury/deposits.
type DepositRequest struct {
	Amount uint64 `json:"amount"`
}

// TreasuryResponse answers GET /api/treasury.
type TreasuryResponse struct {
	Balance uint64 `json:"balance"`
}

// PercentRequest is the body of PUT /api/params/quorum and /threshold.
type PercentRequest struct {
	Percent uint64 `json:"percent"`
}

// PausedRequest is the body of PUT /api/params/paused.
type PausedRequest struct {
	Paused *bool `json:"paused"`
}

// ParamsResponse answers GET /api/params.
type ParamsResponse struct {
	domain.Params
	Paused       bool   `json:"paused"`
	VotingPeriod string `json:"voting_period"`
	Owner        string `json:"owner"`
}

// ─── Members ────────────────────────────────────────────────────────────────

// GET /api/members
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gov.ListMembers())
}

// POST /api/members (owner only)
func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var req AddMemberRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	m, err := s.gov.AddMember(r.Context(), actor, req.Member)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// GET /api/members/{member}
func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	m, err := s.gov.GetMember(chi.URLParam(r, "member"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DELETE /api/members/{member} (owner only)
func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAccount(w, r)
	if !ok {
		return
	}
	if err := s.gov.RemoveMember(r.Context(), actor, chi.URLParam(r, "member")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/leaderboard?limit=10
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "BadRequest", "invalid limit "+strconv.Quote(v))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.gov.TopMembers(limit))
}

// ─── Proposals ──────────────────────────────────────────────────────────────

// GET /api/proposals?state=ACTIVE
func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	var filter *domain.ProposalState
	if q := r.URL.Query().Get("state"); q != "" {
		st, err := domain.ParseProposalState(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
			return
		}
		filter = &st
	}
	writeJSON(w, http.StatusOK, s.gov.ListProposals(filter))
}

// POST /api/proposals (eligible members)
func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var req CreateProposalRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	id, err := s.gov.CreateProposal(r.Context(), actor, governance.ProposalInput{
		Description: req.Description,
		Kind:        req.Kind,
		Target:      req.Target,
		Amount:      req.Amount,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	view, err := s.gov.GetProposal(id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// GET /api/proposals/due
// Lists proposals whose voting closed with quorum met, awaiting execution.
func (s *Server) handleDueProposals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]uint64{"ids": s.gov.DueProposals()})
}

// GET /api/proposals/{id}
func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	view, err := s.gov.GetProposal(id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// POST /api/proposals/{id}/votes (eligible members)
func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAccount(w, r)
	if !ok {
		return
	}
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	var req VoteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	if req.Choice == nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "choice is required (FOR or AGAINST)")
		return
	}
	if err := s.gov.Vote(r.Context(), actor, id, *req.Choice == domain.ChoiceFor); err != nil {
		s.writeDomainError(w, err)
		return
	}
	view, err := s.gov.GetProposal(id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GET /api/proposals/{id}/ballots
func (s *Server) handleBallots(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	ballots, err := s.gov.Ballots(id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ballots)
}

// GET /api/proposals/{id}/ballots/{member}
func (s *Server) handleVoteChoice(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	member := chi.URLParam(r, "member")
	choice, voted, err := s.gov.VoteChoice(id, member)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	resp := BallotResponse{ProposalID: id, Member: member, Voted: voted}
	if voted {
		resp.Choice = &choice
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/proposals/{id}/execute (anyone)
// A committed execution always answers 200. When funds were short or the
// payout failed, the result carries the error alongside the outcome.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	caller := account(r)
	if caller == "" {
		caller = "anonymous"
	}
	res, err := s.gov.Execute(r.Context(), caller, id)
	if res == nil {
		s.writeDomainError(w, err)
		return
	}
	resp := ExecuteResponse{ExecutionResult: res}
	if err != nil {
		resp.Error = &ErrorDetail{Kind: domain.ErrorKind(err), Message: err.Error()}
	}
	writeJSON(w, http.StatusOK, resp)
}

// proposalID parses the {id} URL parameter, writing 400 on failure.
func proposalID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "invalid proposal id "+strconv.Quote(raw))
		return 0, false
	}
	return id, true
}

// ─── Treasury ───────────────────────────────────────────────────────────────

// GET /api/treasury
func (s *Server) handleTreasury(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TreasuryResponse{Balance: s.gov.TreasuryBalance()})
}

// POST /api/treasury/deposits (anyone)
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	from, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var req DepositRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	entry, err := s.gov.Deposit(r.Context(), from, req.Amount)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// GET /api/treasury/ledger
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gov.LedgerEntries())
}

// ─── Parameters ─────────────────────────────────────────────────────────────

// GET /api/params
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ParamsResponse{
		Params:       s.gov.Params(),
		Paused:       s.gov.Paused(),
		VotingPeriod: s.gov.VotingPeriod().String(),
		Owner:        s.gov.Owner(),
	})
}

// PUT /api/params/quorum (owner only)
func (s *Server) handleSetQuorum(w http.ResponseWriter, r *http.Request) {
	s.setPercent(w, r, s.gov.SetQuorumPercent)
}

// PUT /api/params/threshold (owner only)
func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	s.setPercent(w, r, s.gov.SetPassThresholdPercent)
}

func (s *Server) setPercent(w http.ResponseWriter, r *http.Request, set func(context.Context, string, uint64) error) {
	actor, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var req PercentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	if err := set(r.Context(), actor, req.Percent); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.handleParams(w, r)
}

// PUT /api/params/paused (owner only)
func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var req PausedRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	if req.Paused == nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "paused is required")
		return
	}
	if err := s.gov.SetPaused(r.Context(), actor, *req.Paused); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.handleParams(w, r)
}

// ─── Dashboard ──────────────────────────────────────────────────────────────

// GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gov.Stats())
}

const (
	defaultEventPage = 100
	maxEventPage     = 1000
)

// GET /api/events?after=0&limit=100
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after uint64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BadRequest", "invalid after "+strconv.Quote(v))
			return
		}
		after = n
	}
	limit := defaultEventPage
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "BadRequest", "invalid limit "+strconv.Quote(v))
			return
		}
		limit = min(n, maxEventPage)
	}

	events, err := s.events.EventsAfter(r.Context(), after, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
