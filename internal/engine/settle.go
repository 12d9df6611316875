package engine

import (
	"github.com/outcomex/settle/internal/domain"
)

// ResolveClob marks the winning side of a binary market. Only the market
// authority may resolve, and only once; as with the parimutuel path the
// resolved check runs first.
func ResolveClob(m *domain.ClobMarket, caller string, winner domain.Outcome) error {
	if m.Resolved {
		return domain.ErrMarketAlreadyResolved
	}
	if m.Authority != caller {
		return domain.ErrUnauthorized
	}
	if winner != domain.OutcomeYes && winner != domain.OutcomeNo {
		return domain.ErrInvalidOutcome
	}
	w := winner
	m.Resolved = true
	m.WinningSide = &w
	return nil
}

// ClaimClob redeems a position against a resolved market at SharePayout
// per winning share. Both side balances are zeroed, so a position can be
// claimed at most once; losing shares simply expire worthless.
func ClaimClob(m *domain.ClobMarket, pos *domain.ClobPosition) (Payment, error) {
	if !m.Resolved || m.WinningSide == nil {
		return Payment{}, domain.ErrMarketNotResolved
	}
	shares := pos.SharesFor(*m.WinningSide)
	if shares == 0 {
		return Payment{}, domain.ErrNoWinnings
	}
	gross, err := mulInt64(shares, domain.SharePayout)
	if err != nil {
		return Payment{}, err
	}
	pos.YesShares = 0
	pos.NoShares = 0
	return Payment{Gross: gross, Net: gross}, nil
}

// ApplyFill credits the two share legs of a fill: the taker accrues their
// normalized exposure, the maker the opposite. Passing the same position
// for both (a self-trade) credits both legs to it.
func ApplyFill(taker, maker *domain.ClobPosition, f domain.Fill) {
	if f.TakerSide == domain.OutcomeYes {
		taker.YesShares += f.Size
		maker.NoShares += f.Size
	} else {
		taker.NoShares += f.Size
		maker.YesShares += f.Size
	}
}
