package domain

import "time"

// Position tracks a trader's parimutuel stake, one share balance per market
// outcome. Created lazily on the first buy; the winning balance is zeroed
// when winnings are claimed.
type Position struct {
	MarketID  string    `json:"market_id"`
	Owner     string    `json:"owner"`
	Shares    []int64   `json:"shares"` // same cardinality as the market's outcomes
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClobPosition tracks a trader's YES and NO share balances in a CLOB
// market. Both sides may be held at once; each accrues from independent
// fills. Both are zeroed on claim.
type ClobPosition struct {
	MarketID  string    `json:"market_id"`
	Owner     string    `json:"owner"`
	YesShares int64     `json:"yes_shares"`
	NoShares  int64     `json:"no_shares"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SharesFor returns the balance on one side of a CLOB position.
func (p ClobPosition) SharesFor(side Outcome) int64 {
	if side == OutcomeYes {
		return p.YesShares
	}
	return p.NoShares
}
