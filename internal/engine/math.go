// Package engine implements the settlement core: overflow-checked payout
// arithmetic, the parimutuel pool, and the YES-denominated order book with
// its matching algorithm. Everything here is pure state transition; callers
// own persistence, funds movement, and the transaction that makes one
// instruction atomic.
package engine

import (
	"math"

	"github.com/holiman/uint256"
	"github.com/outcomex/settle/internal/domain"
)

// FeeDivisor derives the flat 2% protocol fee on parimutuel payouts:
// fee = payout / FeeDivisor, truncating division.
const FeeDivisor = 50

// Payout computes floor(winnerAmount * totalPool / totalWinning), widening
// the multiply through 256 bits so it cannot wrap. Fails ErrDivideByZero
// when totalWinning is zero (only reachable if the caller's precondition
// that the winner holds shares of a positive total is violated) and
// ErrOverflow when the quotient exceeds the 64-bit amount range.
func Payout(winnerAmount, totalPool, totalWinning int64) (int64, error) {
	if winnerAmount < 0 || totalPool < 0 || totalWinning < 0 {
		return 0, domain.ErrOverflow
	}
	if totalWinning == 0 {
		return 0, domain.ErrDivideByZero
	}
	num := new(uint256.Int).Mul(
		uint256.NewInt(uint64(winnerAmount)),
		uint256.NewInt(uint64(totalPool)),
	)
	quo := num.Div(num, uint256.NewInt(uint64(totalWinning)))
	if !quo.IsUint64() || quo.Uint64() > math.MaxInt64 {
		return 0, domain.ErrOverflow
	}
	return int64(quo.Uint64()), nil
}

// Fee returns the protocol fee retained from a gross parimutuel payout.
func Fee(payout int64) int64 {
	return payout / FeeDivisor
}

// Collateral returns the escrow an order requires: price*size for a bid
// (the most a buyer can lose), (PriceScale-price)*size for an ask (the
// most a seller can lose).
func Collateral(side domain.BookSide, price, size int64) (int64, error) {
	per := price
	if side == domain.SideAsk {
		per = domain.PriceScale - price
	}
	return mulInt64(per, size)
}

// mulInt64 multiplies two non-negative amounts, failing ErrOverflow
// instead of wrapping.
func mulInt64(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, domain.ErrOverflow
	}
	prod := new(uint256.Int).Mul(uint256.NewInt(uint64(a)), uint256.NewInt(uint64(b)))
	if !prod.IsUint64() || prod.Uint64() > math.MaxInt64 {
		return 0, domain.ErrOverflow
	}
	return int64(prod.Uint64()), nil
}

// addInt64 adds two non-negative amounts, failing ErrOverflow instead of
// wrapping.
func addInt64(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, domain.ErrOverflow
	}
	if a > math.MaxInt64-b {
		return 0, domain.ErrOverflow
	}
	return a + b, nil
}
