package domain

import "time"

// Bounds enforced on market creation for both market kinds.
const (
	MinOutcomes    = 2
	MaxOutcomes    = 10
	MaxMarketIDLen = 32
	MaxQuestionLen = 256
)

// MarketKind distinguishes the two settlement mechanisms.
type MarketKind string

const (
	MarketKindPool MarketKind = "pool"
	MarketKindClob MarketKind = "clob"
)

// Market is a parimutuel market: bettors buy outcome shares from a shared
// pool and split it pro-rata on resolution.
type Market struct {
	ID             string    `json:"id"`
	Question       string    `json:"question"`
	Authority      string    `json:"authority"` // account allowed to resolve
	Outcomes       []string  `json:"outcomes"`
	OutcomePools   []int64   `json:"outcome_pools"` // staked amount per outcome, same length as Outcomes
	TotalPool      int64     `json:"total_pool"`
	ResolutionTime time.Time `json:"resolution_time"`
	Resolved       bool      `json:"resolved"`
	WinningOutcome *int      `json:"winning_outcome"` // set iff Resolved
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PoolSum returns the sum of the per-outcome pools. It must equal TotalPool
// after every operation.
func (m Market) PoolSum() int64 {
	var sum int64
	for _, p := range m.OutcomePools {
		sum += p
	}
	return sum
}
