package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrAlreadyExists         = errors.New("already exists")
	ErrNotInitialized        = errors.New("question not initialized")
	ErrAlreadyInitialized    = errors.New("question already initialized")
	ErrUnsupportedToken      = errors.New("reward token not on collateral allowlist")
	ErrInvalidAncillaryData  = errors.New("invalid ancillary data")
	ErrAlreadyResolved       = errors.New("question already resolved")
	ErrAlreadySettled        = errors.New("question already settled")
	ErrNotReadyToResolve     = errors.New("question not ready to resolve")
	ErrPriceNotAvailable     = errors.New("oracle price not available")
	ErrInvalidOOPrice        = errors.New("invalid oracle price")
	ErrInvalidPayouts        = errors.New("invalid payout vector")
	ErrPaused                = errors.New("question paused")
	ErrNotPaused             = errors.New("question not paused")
	ErrNotFlagged            = errors.New("question not flagged for emergency resolution")
	ErrAlreadyFlagged        = errors.New("question already flagged")
	ErrSafetyPeriodNotPassed = errors.New("emergency safety period has not passed")
	ErrSafetyPeriodPassed    = errors.New("emergency safety period has already passed")
	ErrNotAuthorized         = errors.New("not authorized")
	ErrNotOracle             = errors.New("caller is not the oracle")
	ErrSameRoundReport       = errors.New("settle and report attempted in the same round")
	ErrReentrancy            = errors.New("reentrant call")
	ErrTransferFailed        = errors.New("token transfer failed")
	ErrLockHeld              = errors.New("lock already held")
)
