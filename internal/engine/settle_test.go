package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomex/settle/internal/domain"
)

func TestResolveClob_ChecksInOrder(t *testing.T) {
	m, _ := newTestClob(t)

	assert.ErrorIs(t, ResolveClob(&m, "mallory", domain.OutcomeYes), domain.ErrUnauthorized)
	assert.ErrorIs(t, ResolveClob(&m, "alice", domain.Outcome("maybe")), domain.ErrInvalidOutcome)

	require.NoError(t, ResolveClob(&m, "alice", domain.OutcomeYes))
	require.NotNil(t, m.WinningSide)
	assert.Equal(t, domain.OutcomeYes, *m.WinningSide)

	assert.ErrorIs(t, ResolveClob(&m, "mallory", domain.OutcomeNo), domain.ErrMarketAlreadyResolved)
	assert.ErrorIs(t, ResolveClob(&m, "alice", domain.OutcomeNo), domain.ErrMarketAlreadyResolved)
}

func TestClaimClob_PaysWinningSide(t *testing.T) {
	m, _ := newTestClob(t)
	pos := domain.ClobPosition{MarketID: m.ID, Owner: "bob", YesShares: 7, NoShares: 3}
	require.NoError(t, ResolveClob(&m, "alice", domain.OutcomeYes))

	pay, err := ClaimClob(&m, &pos)
	require.NoError(t, err)
	assert.Equal(t, int64(7*domain.SharePayout), pay.Gross)
	assert.Equal(t, int64(0), pay.Fee)
	assert.Equal(t, pay.Gross, pay.Net)

	// Both sides are zeroed, losing shares included.
	assert.Equal(t, int64(0), pos.YesShares)
	assert.Equal(t, int64(0), pos.NoShares)

	_, err = ClaimClob(&m, &pos)
	assert.ErrorIs(t, err, domain.ErrNoWinnings)
}

func TestClaimClob_NoWinningShares(t *testing.T) {
	m, _ := newTestClob(t)
	pos := domain.ClobPosition{MarketID: m.ID, Owner: "bob", NoShares: 5}
	require.NoError(t, ResolveClob(&m, "alice", domain.OutcomeYes))

	_, err := ClaimClob(&m, &pos)
	assert.ErrorIs(t, err, domain.ErrNoWinnings)
	// A losing-only claim leaves the position alone.
	assert.Equal(t, int64(5), pos.NoShares)
}

func TestClaimClob_Unresolved(t *testing.T) {
	m, _ := newTestClob(t)
	pos := domain.ClobPosition{MarketID: m.ID, Owner: "bob", YesShares: 5}

	_, err := ClaimClob(&m, &pos)
	assert.ErrorIs(t, err, domain.ErrMarketNotResolved)
}

func TestApplyFill_CreditsBothLegs(t *testing.T) {
	taker := domain.ClobPosition{Owner: "bob"}
	maker := domain.ClobPosition{Owner: "carol"}

	ApplyFill(&taker, &maker, domain.Fill{TakerSide: domain.OutcomeYes, Size: 4})
	assert.Equal(t, int64(4), taker.YesShares)
	assert.Equal(t, int64(4), maker.NoShares)

	ApplyFill(&taker, &maker, domain.Fill{TakerSide: domain.OutcomeNo, Size: 2})
	assert.Equal(t, int64(2), taker.NoShares)
	assert.Equal(t, int64(2), maker.YesShares)
}

func TestApplyFill_SelfTrade(t *testing.T) {
	pos := domain.ClobPosition{Owner: "bob"}
	ApplyFill(&pos, &pos, domain.Fill{TakerSide: domain.OutcomeYes, Size: 4})
	assert.Equal(t, int64(4), pos.YesShares)
	assert.Equal(t, int64(4), pos.NoShares)
}

func TestMatchThenSettle_Conservation(t *testing.T) {
	m, book := newTestClob(t)

	// One matched pair at 5500: bob escrows 6000*4 bidding, carol 4500*4
	// asking. After the fill bob is released 2000, so market escrow holds
	// 24000 - 2000 + 18000 = 40000 = 4 * SharePayout.
	askRes := mustPlace(t, &m, &book, "carol", domain.OutcomeYes, domain.SideAsk, 5500, 4)
	bidRes := mustPlace(t, &m, &book, "bob", domain.OutcomeYes, domain.SideBid, 6000, 4)

	escrowHeld := askRes.Escrow + bidRes.Escrow - bidRes.Release
	assert.Equal(t, int64(4*domain.SharePayout), escrowHeld)

	taker := domain.ClobPosition{MarketID: m.ID, Owner: "bob"}
	maker := domain.ClobPosition{MarketID: m.ID, Owner: "carol"}
	for _, f := range bidRes.Fills {
		ApplyFill(&taker, &maker, f)
	}

	require.NoError(t, ResolveClob(&m, "alice", domain.OutcomeYes))

	// The winning claim drains exactly what the pair escrowed.
	pay, err := ClaimClob(&m, &taker)
	require.NoError(t, err)
	assert.Equal(t, escrowHeld, pay.Net)

	_, err = ClaimClob(&m, &maker)
	assert.ErrorIs(t, err, domain.ErrNoWinnings)
}
