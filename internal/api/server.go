// Package api provides the HTTP server for a guild.
// It exposes the governance engine as a JSON REST API under /api.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutu-network/guild/internal/domain"
	"github.com/tutu-network/guild/internal/infra/governance"
	"github.com/tutu-network/guild/internal/infra/observability"
)

// Version is reported by /api/version.
const Version = "0.1.0"

// AccountHeader carries the calling account. Authentication happens in
// front of the server; the API trusts this header as-is.
const AccountHeader = "X-Guild-Account"

// EventLog reads the persisted event history.
type EventLog interface {
	EventsAfter(ctx context.Context, after uint64, limit int) ([]domain.Event, error)
}

// Server is the guild HTTP API server.
type Server struct {
	gov     *governance.Engine
	metrics *observability.Metrics // nil disables /metrics and request metrics
	events  EventLog               // nil disables /api/events
	log     *zap.Logger
	timeout time.Duration
}

// NewServer creates a new API server.
func NewServer(gov *governance.Engine) *Server {
	return &Server{gov: gov, log: zap.NewNop(), timeout: 30 * time.Second}
}

// EnableMetrics enables the /metrics Prometheus endpoint and request metrics.
func (s *Server) EnableMetrics(m *observability.Metrics) { s.metrics = m }

// SetEventLog enables the /api/events history endpoint.
func (s *Server) SetEventLog(l EventLog) { s.events = l }

// SetLogger sets the request logger.
func (s *Server) SetLogger(l *zap.Logger) { s.log = l.Named("api") }

// SetTimeout bounds the handling time of every request.
func (s *Server) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(requestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(corsMiddleware)
	r.Use(s.observe)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": Version,
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/members", func(r chi.Router) {
			r.Get("/", s.handleListMembers)
			r.Post("/", s.handleAddMember)
			r.Get("/{member}", s.handleGetMember)
			r.Delete("/{member}", s.handleRemoveMember)
		})

		r.Route("/proposals", func(r chi.Router) {
			r.Get("/", s.handleListProposals)
			r.Post("/", s.handleCreateProposal)
			r.Get("/due", s.handleDueProposals)
			r.Get("/{id}", s.handleGetProposal)
			r.Post("/{id}/votes", s.handleVote)
			r.Get("/{id}/ballots", s.handleBallots)
			r.Get("/{id}/ballots/{member}", s.handleVoteChoice)
			r.Post("/{id}/execute", s.handleExecute)
		})

		r.Route("/treasury", func(r chi.Router) {
			r.Get("/", s.handleTreasury)
			r.Post("/deposits", s.handleDeposit)
			r.Get("/ledger", s.handleLedger)
		})

		r.Route("/params", func(r chi.Router) {
			r.Get("/", s.handleParams)
			r.Put("/quorum", s.handleSetQuorum)
			r.Put("/threshold", s.handleSetThreshold)
			r.Put("/paused", s.handleSetPaused)
		})

		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/stats", s.handleStats)

		if s.events != nil {
			r.Get("/events", s.handleEvents)
		}
	})

	// Prometheus metrics endpoint
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	return r
}

// observe logs every request and feeds the request metrics. The route
// label is the chi pattern, so ids never explode label cardinality.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		elapsed := time.Since(start)
		if s.metrics != nil {
			s.metrics.ObserveRequest(r.Method, route, ww.Status(), elapsed)
		}
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorBody is the payload of every non-2xx response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail names the failure. Kind is one of the stable domain error
// kinds, "BadRequest", or "Internal".
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Kind: kind, Message: msg}})
}

// writeDomainError maps err to its status and writes it.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	kind := domain.ErrorKind(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("kind", kind), zap.Error(err))
	}
	writeError(w, status, kind, err.Error())
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "Unauthorized":
		return http.StatusForbidden
	case "Paused":
		return http.StatusLocked
	case "NotFound", "NotAMember":
		return http.StatusNotFound
	case "InvalidTarget", "InvalidAmount", "EmptyDescription", "InvalidPercent":
		return http.StatusBadRequest
	case "InsufficientFunds":
		return http.StatusUnprocessableEntity
	case "AlreadyMember", "CannotRemoveOwner", "Blacklisted",
		"VotingClosed", "VotingStillOpen", "DuplicateVote",
		"AlreadyExecuted", "QuorumNotReached":
		return http.StatusConflict
	case "PayoutFailed":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON request body into v, rejecting unknown fields.
func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body: " + err.Error())
	}
	return nil
}

// account returns the calling account from AccountHeader.
func account(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(AccountHeader))
}

// requireAccount writes 401 and returns false when no account is given.
func requireAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	a := account(r)
	if a == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "missing "+AccountHeader+" header")
		return "", false
	}
	return a, true
}

const requestIDHeader = "X-Request-Id"

// requestID assigns a UUID to requests that arrive without one, ahead of
// chi's RequestID middleware which adopts the header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+AccountHeader)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
