package services

import "errors"

var (
	ErrInvalidTransition       = errors.New("invalid engagement transition")
	ErrInsufficientPoints      = errors.New("insufficient points")
	ErrRewardUnavailable       = errors.New("reward unavailable")
	ErrConnectionFailure       = errors.New("social connection failed")
	ErrAuthenticationRequired  = errors.New("authentication required")
	ErrOpportunityClosed       = errors.New("opportunity closed")
	ErrDuplicateEngagement     = errors.New("engagement already submitted for opportunity")
	ErrNotFound                = errors.New("not found")
	ErrForbidden               = errors.New("forbidden")
	ErrAchievementNotClaimable = errors.New("achievement not claimable")
	ErrInvalidInput            = errors.New("invalid input")
	ErrDuplicateLedgerEntry    = errors.New("ledger entry already recorded for source")
)
