package engine

import (
	"time"

	"github.com/outcomex/settle/internal/domain"
)

// Payment is the money leg of a claim: the computed payout, the protocol
// fee withheld from it, and the amount actually owed to the claimant.
type Payment struct {
	Gross int64
	Fee   int64
	Net   int64
}

// NewPoolMarket validates the creation parameters and returns a fresh
// parimutuel market with empty pools.
func NewPoolMarket(id, question, authority string, outcomes []string, resolvesAt, now time.Time) (domain.Market, error) {
	n := len(outcomes)
	if n < domain.MinOutcomes || n > domain.MaxOutcomes {
		return domain.Market{}, domain.ErrInvalidOutcomeCount
	}
	if len(id) > domain.MaxMarketIDLen {
		return domain.Market{}, domain.ErrMarketIDTooLong
	}
	if len(question) > domain.MaxQuestionLen {
		return domain.Market{}, domain.ErrQuestionTooLong
	}
	return domain.Market{
		ID:             id,
		Question:       question,
		Authority:      authority,
		Outcomes:       append([]string(nil), outcomes...),
		OutcomePools:   make([]int64, n),
		ResolutionTime: resolvesAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Buy stakes amount on one outcome, crediting shares 1:1 with the stake.
// The market and position are only mutated once every check has passed, so
// a failed buy leaves both untouched. Buying stays open until resolution;
// the deadline does not gate it.
func Buy(m *domain.Market, pos *domain.Position, outcome int, amount int64) error {
	if m.Resolved {
		return domain.ErrMarketResolved
	}
	if outcome < 0 || outcome >= len(m.Outcomes) {
		return domain.ErrInvalidOutcome
	}
	if amount <= 0 {
		return domain.ErrInvalidSize
	}
	if len(pos.Shares) == 0 {
		pos.Shares = make([]int64, len(m.Outcomes))
	}
	pool, err := addInt64(m.OutcomePools[outcome], amount)
	if err != nil {
		return err
	}
	total, err := addInt64(m.TotalPool, amount)
	if err != nil {
		return err
	}
	shares, err := addInt64(pos.Shares[outcome], amount)
	if err != nil {
		return err
	}
	m.OutcomePools[outcome] = pool
	m.TotalPool = total
	pos.Shares[outcome] = shares
	return nil
}

// ResolvePool marks the winning outcome. Only the market authority may
// resolve, and only once; the resolved check runs before the authority
// check so a stale authority probing a settled market learns nothing new.
func ResolvePool(m *domain.Market, caller string, outcome int) error {
	if m.Resolved {
		return domain.ErrMarketAlreadyResolved
	}
	if m.Authority != caller {
		return domain.ErrUnauthorized
	}
	if outcome < 0 || outcome >= len(m.Outcomes) {
		return domain.ErrInvalidOutcome
	}
	w := outcome
	m.Resolved = true
	m.WinningOutcome = &w
	return nil
}

// ClaimPool settles one position against a resolved market: the claimant's
// pro-rata slice of the total pool, less the protocol fee. The winning
// balance is zeroed so a second claim fails with ErrNoWinningShares.
func ClaimPool(m *domain.Market, pos *domain.Position) (Payment, error) {
	if !m.Resolved || m.WinningOutcome == nil {
		return Payment{}, domain.ErrMarketNotResolved
	}
	w := *m.WinningOutcome
	if w >= len(pos.Shares) || pos.Shares[w] == 0 {
		return Payment{}, domain.ErrNoWinningShares
	}
	gross, err := Payout(pos.Shares[w], m.TotalPool, m.OutcomePools[w])
	if err != nil {
		return Payment{}, err
	}
	fee := Fee(gross)
	pos.Shares[w] = 0
	return Payment{Gross: gross, Fee: fee, Net: gross - fee}, nil
}
