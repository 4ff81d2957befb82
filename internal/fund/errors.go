package fund

import "errors"

// Authorization errors.
var (
	ErrUnauthorized = errors.New("fund: caller lacks required role")
)

// Domain-invariant errors.
var (
	ErrBoundViolation    = errors.New("fund: value outside allowed multiplicative bound")
	ErrPortionSum        = errors.New("fund: fee recipient portions must sum to exactly 1.0")
	ErrCapacityExceeded  = errors.New("fund: bounded collection capacity exceeded")
	ErrInvalidRange      = errors.New("fund: weight range must satisfy 0 <= low <= spot <= high")
	ErrInvalidPrices     = errors.New("fund: prices must satisfy start >= end > 0")
	ErrInvalidLength     = errors.New("fund: auction length outside allowed bounds")
	ErrInvalidTTL        = errors.New("fund: ttl outside allowed bounds")
	ErrInvalidHalfLife   = errors.New("fund: reward half-life outside allowed bounds")
	ErrFeeTooHigh        = errors.New("fund: fee exceeds configured maximum")
	ErrDustIgnored       = errors.New("fund: amount below dust threshold")
	ErrBadRecipientIndex = errors.New("fund: recipient index out of range or tombstoned")
	ErrBuyCapExceeded    = errors.New("fund: bid cost exceeds max buy amount")
)

// Lifecycle errors.
var (
	ErrAuctionNotFound    = errors.New("fund: unknown auction id")
	ErrAuctionClosed      = errors.New("fund: auction closed for reruns")
	ErrAuctionNotRunning  = errors.New("fund: auction is not running")
	ErrAuctionRunning     = errors.New("fund: auction is already running")
	ErrPairBusy           = errors.New("fund: another auction is open for this pair in this epoch")
	ErrNotYetLaunchable   = errors.New("fund: restricted launch window has not elapsed")
	ErrTokenNotFound      = errors.New("fund: unknown token")
	ErrTokenDisallowed    = errors.New("fund: reward token is disallowed")
	ErrOutstandingRewards = errors.New("fund: reward token has undistributed balance")
	ErrNothingAccrued     = errors.New("fund: no rewards accrued for user")
	ErrPendingNotEmpty    = errors.New("fund: pending basket record has non-zero entries")
	ErrNothingPending     = errors.New("fund: no pending basket record")
	ErrSelfCallback       = errors.New("fund: bid callback may not be the engine identity")
)

// Arithmetic errors.
var (
	ErrZeroSupply = errors.New("fund: total supply is zero")
)
