package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomex/settle/internal/domain"
)

var (
	testNow      = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	testDeadline = testNow.Add(24 * time.Hour)
)

func newTestPool(t *testing.T) domain.Market {
	t.Helper()
	m, err := NewPoolMarket("rain-june", "Will it rain in June?", "alice", []string{"yes", "no"}, testDeadline, testNow)
	require.NoError(t, err)
	return m
}

func TestNewPoolMarket_Valid(t *testing.T) {
	m := newTestPool(t)
	assert.Equal(t, "rain-june", m.ID)
	assert.Equal(t, []int64{0, 0}, m.OutcomePools)
	assert.Equal(t, int64(0), m.TotalPool)
	assert.False(t, m.Resolved)
	assert.Nil(t, m.WinningOutcome)
}

func TestNewPoolMarket_OutcomeBounds(t *testing.T) {
	_, err := NewPoolMarket("m", "q", "alice", []string{"only"}, testDeadline, testNow)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcomeCount)

	eleven := make([]string, 11)
	for i := range eleven {
		eleven[i] = "o"
	}
	_, err = NewPoolMarket("m", "q", "alice", eleven, testDeadline, testNow)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcomeCount)

	ten := eleven[:10]
	_, err = NewPoolMarket("m", "q", "alice", ten, testDeadline, testNow)
	assert.NoError(t, err)
}

func TestNewPoolMarket_LengthBounds(t *testing.T) {
	long := make([]byte, domain.MaxMarketIDLen+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err := NewPoolMarket(string(long), "q", "alice", []string{"a", "b"}, testDeadline, testNow)
	assert.ErrorIs(t, err, domain.ErrMarketIDTooLong)

	question := make([]byte, domain.MaxQuestionLen+1)
	for i := range question {
		question[i] = 'q'
	}
	_, err = NewPoolMarket("m", string(question), "alice", []string{"a", "b"}, testDeadline, testNow)
	assert.ErrorIs(t, err, domain.ErrQuestionTooLong)
}

func TestBuy_CreditsPoolsAndShares(t *testing.T) {
	m := newTestPool(t)
	pos := domain.Position{MarketID: m.ID, Owner: "bob"}

	require.NoError(t, Buy(&m, &pos, 0, 150))
	require.NoError(t, Buy(&m, &pos, 1, 50))

	assert.Equal(t, []int64{150, 50}, m.OutcomePools)
	assert.Equal(t, int64(200), m.TotalPool)
	assert.Equal(t, []int64{150, 50}, pos.Shares)
	assert.Equal(t, m.TotalPool, m.PoolSum())
}

func TestBuy_AfterDeadlineStillOpen(t *testing.T) {
	// Resolution gates buying, not the deadline passing.
	m := newTestPool(t)
	pos := domain.Position{MarketID: m.ID, Owner: "bob"}
	assert.NoError(t, Buy(&m, &pos, 0, 10))
}

func TestBuy_Rejections(t *testing.T) {
	m := newTestPool(t)
	pos := domain.Position{MarketID: m.ID, Owner: "bob"}

	assert.ErrorIs(t, Buy(&m, &pos, 2, 10), domain.ErrInvalidOutcome)
	assert.ErrorIs(t, Buy(&m, &pos, -1, 10), domain.ErrInvalidOutcome)
	assert.ErrorIs(t, Buy(&m, &pos, 0, 0), domain.ErrInvalidSize)
	assert.ErrorIs(t, Buy(&m, &pos, 0, -5), domain.ErrInvalidSize)

	require.NoError(t, ResolvePool(&m, "alice", 0))
	assert.ErrorIs(t, Buy(&m, &pos, 0, 10), domain.ErrMarketResolved)

	// Nothing was credited by the failed buys.
	assert.Equal(t, int64(0), m.TotalPool)
	assert.Nil(t, pos.Shares)
}

func TestResolvePool_ChecksInOrder(t *testing.T) {
	m := newTestPool(t)

	// Wrong caller first: authority is enforced on live markets.
	assert.ErrorIs(t, ResolvePool(&m, "mallory", 0), domain.ErrUnauthorized)
	assert.ErrorIs(t, ResolvePool(&m, "alice", 5), domain.ErrInvalidOutcome)

	require.NoError(t, ResolvePool(&m, "alice", 1))
	require.NotNil(t, m.WinningOutcome)
	assert.Equal(t, 1, *m.WinningOutcome)

	// Once resolved, the resolved check fires before the authority check.
	assert.ErrorIs(t, ResolvePool(&m, "mallory", 0), domain.ErrMarketAlreadyResolved)
	assert.ErrorIs(t, ResolvePool(&m, "alice", 0), domain.ErrMarketAlreadyResolved)
}

func TestClaimPool_WorkedExample(t *testing.T) {
	m := newTestPool(t)
	winner := domain.Position{MarketID: m.ID, Owner: "bob"}
	rival := domain.Position{MarketID: m.ID, Owner: "carol"}

	// bob stakes 150 on outcome 0, carol 150 on 0 and 700 on 1:
	// pool 0 = 300, total = 1000.
	require.NoError(t, Buy(&m, &winner, 0, 150))
	require.NoError(t, Buy(&m, &rival, 0, 150))
	require.NoError(t, Buy(&m, &rival, 1, 700))
	require.NoError(t, ResolvePool(&m, "alice", 0))

	// bob: 150*1000/300 = 500 gross, fee 500/50 = 10, net 490.
	pay, err := ClaimPool(&m, &winner)
	require.NoError(t, err)
	assert.Equal(t, Payment{Gross: 500, Fee: 10, Net: 490}, pay)
	assert.Equal(t, int64(0), winner.Shares[0])

	// Claiming again finds no winning shares.
	_, err = ClaimPool(&m, &winner)
	assert.ErrorIs(t, err, domain.ErrNoWinningShares)
}

func TestClaimPool_LosingShares(t *testing.T) {
	m := newTestPool(t)
	pos := domain.Position{MarketID: m.ID, Owner: "bob"}
	require.NoError(t, Buy(&m, &pos, 1, 100))
	require.NoError(t, Buy(&m, &domain.Position{}, 0, 100))
	require.NoError(t, ResolvePool(&m, "alice", 0))

	_, err := ClaimPool(&m, &pos)
	assert.ErrorIs(t, err, domain.ErrNoWinningShares)
	// The losing balance stays on the books even though it pays nothing.
	assert.Equal(t, int64(100), pos.Shares[1])
}

func TestClaimPool_Unresolved(t *testing.T) {
	m := newTestPool(t)
	pos := domain.Position{MarketID: m.ID, Owner: "bob"}
	require.NoError(t, Buy(&m, &pos, 0, 100))

	_, err := ClaimPool(&m, &pos)
	assert.ErrorIs(t, err, domain.ErrMarketNotResolved)
}

func TestClaimPool_EmptyPosition(t *testing.T) {
	m := newTestPool(t)
	require.NoError(t, Buy(&m, &domain.Position{}, 0, 100))
	require.NoError(t, ResolvePool(&m, "alice", 0))

	_, err := ClaimPool(&m, &domain.Position{MarketID: m.ID, Owner: "dave"})
	assert.ErrorIs(t, err, domain.ErrNoWinningShares)
}
