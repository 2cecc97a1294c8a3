package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, with no infrastructure dependency.

var (
	// Access errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrPaused       = errors.New("governance is paused")

	// Membership errors
	ErrAlreadyMember     = errors.New("already a member")
	ErrNotAMember        = errors.New("not a member")
	ErrCannotRemoveOwner = errors.New("the owner cannot be removed")
	ErrBlacklisted       = errors.New("account is blacklisted")

	// Input errors
	ErrInvalidTarget    = errors.New("invalid target")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("description must not be empty")
	ErrInvalidPercent   = errors.New("percentage out of range")

	// Proposal lifecycle errors
	ErrNotFound         = errors.New("proposal not found")
	ErrVotingClosed     = errors.New("voting is closed")
	ErrVotingStillOpen  = errors.New("voting is still open")
	ErrDuplicateVote    = errors.New("member already voted")
	ErrAlreadyExecuted  = errors.New("proposal already executed")
	ErrQuorumNotReached = errors.New("quorum not reached")

	// Treasury errors
	ErrInsufficientFunds = errors.New("insufficient treasury funds")
	ErrPayoutFailed      = errors.New("treasury payout failed")
)

// errorKinds maps each sentinel to the stable name used on the wire.
var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrUnauthorized, "Unauthorized"},
	{ErrPaused, "Paused"},
	{ErrAlreadyMember, "AlreadyMember"},
	{ErrNotAMember, "NotAMember"},
	{ErrCannotRemoveOwner, "CannotRemoveOwner"},
	{ErrBlacklisted, "Blacklisted"},
	{ErrInvalidTarget, "InvalidTarget"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrEmptyDescription, "EmptyDescription"},
	{ErrInvalidPercent, "InvalidPercent"},
	{ErrNotFound, "NotFound"},
	{ErrVotingClosed, "VotingClosed"},
	{ErrVotingStillOpen, "VotingStillOpen"},
	{ErrDuplicateVote, "DuplicateVote"},
	{ErrAlreadyExecuted, "AlreadyExecuted"},
	{ErrQuorumNotReached, "QuorumNotReached"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrPayoutFailed, "PayoutFailed"},
}

// ErrorKind returns the stable kind name of err, or "Internal" when err
// wraps none of the domain sentinels.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}

// ErrorFromKind is the inverse of ErrorKind. Unknown kinds return nil.
func ErrorFromKind(kind string) error {
	for _, k := range errorKinds {
		if k.kind == kind {
			return k.err
		}
	}
	return nil
}
