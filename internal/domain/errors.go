package domain

import "errors"

// Validation errors: caller-correctable, surfaced verbatim.
var (
	ErrInvalidOutcomeCount = errors.New("outcome count must be between 2 and 10")
	ErrMarketIDTooLong     = errors.New("market id exceeds 32 characters")
	ErrQuestionTooLong     = errors.New("question exceeds 256 characters")
	ErrInvalidOutcome      = errors.New("invalid outcome index")
	ErrInvalidPrice        = errors.New("price must be between 1 and 9999 basis points")
	ErrInvalidSize         = errors.New("size must be positive")
	ErrMarketResolved      = errors.New("market already resolved")
	ErrMarketExpired       = errors.New("market past resolution deadline")
)

// Authorization errors: fatal to the instruction, never downgraded.
var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotOrderOwner = errors.New("caller does not own this order")
)

// State errors: distinguish "nothing to do" from "try later".
var (
	ErrMarketAlreadyResolved = errors.New("market resolved twice")
	ErrMarketNotResolved     = errors.New("market not resolved")
	ErrNoWinningShares       = errors.New("no winning shares to claim")
	ErrNoWinnings            = errors.New("no winnings to claim")
	ErrOrderBookFull         = errors.New("order book side is full")
	ErrInvalidOrderIndex     = errors.New("order index out of range")
)

// Arithmetic errors: checked before any mutation commits, never wrapped
// around silently.
var (
	ErrOverflow     = errors.New("arithmetic overflow")
	ErrDivideByZero = errors.New("division by zero")
)

// Infrastructure errors shared by stores, caches, and the ledger.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRateLimited       = errors.New("rate limited")
	ErrLockHeld          = errors.New("lock already held")
)
