package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomex/settle/internal/domain"
)

var (
	testNow      = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)
	testDeadline = testNow.Add(72 * time.Hour)
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createPool(t *testing.T, env *serviceEnv, id, authority string) domain.Market {
	t.Helper()
	m, err := env.markets.CreateMarket(context.Background(), authority, CreateMarketParams{
		ID:         id,
		Question:   "Will it settle?",
		Outcomes:   []string{"yes", "no"},
		ResolvesAt: testDeadline,
	})
	require.NoError(t, err)
	return m
}

func TestMarketService_CreateMarket(t *testing.T) {
	env := newServiceEnv()

	m := createPool(t, env, "mkt-1", "alice")

	assert.Equal(t, "mkt-1", m.ID)
	assert.Equal(t, "alice", m.Authority)
	assert.Equal(t, []int64{0, 0}, m.OutcomePools)

	stored, ok := env.store.markets["mkt-1"]
	require.True(t, ok)
	assert.Equal(t, "alice", stored.Authority)

	// Creation back-fills the cache and leaves an audit trail.
	cached, err := env.cache.GetMarket(context.Background(), "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, m.ID, cached.ID)
	assert.Equal(t, []string{"market.created"}, env.store.auditEvents())
}

func TestMarketService_CreateMarket_Invalid(t *testing.T) {
	env := newServiceEnv()

	_, err := env.markets.CreateMarket(context.Background(), "alice", CreateMarketParams{
		ID:         "mkt-1",
		Question:   "One-sided?",
		Outcomes:   []string{"only"},
		ResolvesAt: testDeadline,
	})
	require.ErrorIs(t, err, domain.ErrInvalidOutcomeCount)
	assert.Empty(t, env.store.markets)
	assert.Empty(t, env.store.audit)
}

func TestMarketService_CreateMarket_Duplicate(t *testing.T) {
	env := newServiceEnv()
	createPool(t, env, "mkt-1", "alice")

	_, err := env.markets.CreateMarket(context.Background(), "bob", CreateMarketParams{
		ID:         "mkt-1",
		Question:   "Again?",
		Outcomes:   []string{"yes", "no"},
		ResolvesAt: testDeadline,
	})
	require.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Equal(t, "alice", env.store.markets["mkt-1"].Authority)
}

func TestMarketService_Buy_MovesStakeIntoEscrow(t *testing.T) {
	env := newServiceEnv()
	createPool(t, env, "mkt-1", "alice")
	env.fund("bob", 1_000)

	pos, err := env.markets.Buy(context.Background(), "mkt-1", "bob", 1, 400)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 400}, pos.Shares)

	m := env.store.markets["mkt-1"]
	assert.Equal(t, []int64{0, 400}, m.OutcomePools)
	assert.Equal(t, int64(400), m.TotalPool)

	assert.Equal(t, int64(600), env.store.ledger.balances["bob"])
	assert.Equal(t, int64(400), env.store.ledger.escrows["mkt-1"])

	// The mutation dropped the cached snapshot.
	assert.Contains(t, env.cache.invalidated, "mkt-1")
}

func TestMarketService_Buy_InsufficientFundsRollsBack(t *testing.T) {
	env := newServiceEnv()
	createPool(t, env, "mkt-1", "alice")
	env.fund("bob", 100)

	_, err := env.markets.Buy(context.Background(), "mkt-1", "bob", 0, 500)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Nothing committed: pools untouched, no position, balance intact.
	m := env.store.markets["mkt-1"]
	assert.Equal(t, int64(0), m.TotalPool)
	_, ok := env.store.positions[posKey("mkt-1", "bob")]
	assert.False(t, ok)
	assert.Equal(t, int64(100), env.store.ledger.balances["bob"])
	assert.Empty(t, env.store.ledger.escrows["mkt-1"])
}

func TestMarketService_Buy_UnknownMarket(t *testing.T) {
	env := newServiceEnv()
	env.fund("bob", 100)

	_, err := env.markets.Buy(context.Background(), "nope", "bob", 0, 50)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarketService_Resolve(t *testing.T) {
	env := newServiceEnv()
	createPool(t, env, "mkt-1", "alice")

	_, _, err := env.markets.Resolve(context.Background(), "mkt-1", "mallory", 0)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.False(t, env.store.markets["mkt-1"].Resolved)

	m, receipt, err := env.markets.Resolve(context.Background(), "mkt-1", "alice", 0)
	require.NoError(t, err)
	assert.True(t, m.Resolved)
	require.NotNil(t, m.WinningOutcome)
	assert.Equal(t, 0, *m.WinningOutcome)
	assert.Equal(t, "rcpt:res:mkt-1:yes", receipt)

	// Resolution fans out on the resolutions channel and the stream.
	require.Equal(t, []string{domain.ChannelResolutions}, env.bus.channels())
	require.Len(t, env.bus.streamed, 1)

	_, _, err = env.markets.Resolve(context.Background(), "mkt-1", "alice", 1)
	require.ErrorIs(t, err, domain.ErrMarketAlreadyResolved)
}

func TestMarketService_ClaimWorkedExample(t *testing.T) {
	env := newServiceEnv()
	createPool(t, env, "mkt-1", "oracle")
	env.fund("alice", 150)
	env.fund("bob", 150)
	env.fund("carol", 700)

	ctx := context.Background()
	_, err := env.markets.Buy(ctx, "mkt-1", "alice", 0, 150)
	require.NoError(t, err)
	_, err = env.markets.Buy(ctx, "mkt-1", "bob", 0, 150)
	require.NoError(t, err)
	_, err = env.markets.Buy(ctx, "mkt-1", "carol", 1, 700)
	require.NoError(t, err)

	_, _, err = env.markets.Resolve(ctx, "mkt-1", "oracle", 0)
	require.NoError(t, err)

	// alice holds 150 of the 300 winning shares of a 1000 pool:
	// gross floor(150*1000/300)=500, fee 500/50=10, net 490.
	pay, receipt, err := env.markets.Claim(ctx, "mkt-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(500), pay.Gross)
	assert.Equal(t, int64(10), pay.Fee)
	assert.Equal(t, int64(490), pay.Net)
	assert.Equal(t, "rcpt:claim:mkt-1:alice:490", receipt)

	// Net to the claimer, fee to the authority, rest stays escrowed.
	assert.Equal(t, int64(490), env.store.ledger.balances["alice"])
	assert.Equal(t, int64(10), env.store.ledger.balances["oracle"])
	assert.Equal(t, int64(500), env.store.ledger.escrows["mkt-1"])

	// The winning balance is zeroed; a second claim finds nothing.
	_, _, err = env.markets.Claim(ctx, "mkt-1", "alice")
	require.ErrorIs(t, err, domain.ErrNoWinningShares)

	// The loser holds no winning shares either.
	_, _, err = env.markets.Claim(ctx, "mkt-1", "carol")
	require.ErrorIs(t, err, domain.ErrNoWinningShares)
}

func TestMarketService_Claim_BeforeResolve(t *testing.T) {
	env := newServiceEnv()
	createPool(t, env, "mkt-1", "alice")
	env.fund("bob", 100)

	ctx := context.Background()
	_, err := env.markets.Buy(ctx, "mkt-1", "bob", 0, 100)
	require.NoError(t, err)

	_, _, err = env.markets.Claim(ctx, "mkt-1", "bob")
	require.ErrorIs(t, err, domain.ErrMarketNotResolved)

	// A stranger with no position learns the same before resolution.
	_, _, err = env.markets.Claim(ctx, "mkt-1", "mallory")
	require.ErrorIs(t, err, domain.ErrMarketNotResolved)
}

func TestMarketService_GetMarket_CacheFirst(t *testing.T) {
	env := newServiceEnv()
	createPool(t, env, "mkt-1", "alice")

	// Seed the cache with a divergent copy; reads must prefer it.
	cached := env.store.markets["mkt-1"]
	cached.Question = "from the cache"
	require.NoError(t, env.cache.SetMarket(context.Background(), cached))

	m, err := env.markets.GetMarket(context.Background(), "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, "from the cache", m.Question)
}

func TestMarketService_GetMarket_BackfillsCache(t *testing.T) {
	env := newServiceEnv()
	createPool(t, env, "mkt-1", "alice")
	delete(env.cache.markets, "mkt-1")

	m, err := env.markets.GetMarket(context.Background(), "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, "mkt-1", m.ID)

	_, err = env.cache.GetMarket(context.Background(), "mkt-1")
	assert.NoError(t, err)
}

func TestMarketService_GetPosition_NotFound(t *testing.T) {
	env := newServiceEnv()
	createPool(t, env, "mkt-1", "alice")

	_, err := env.markets.GetPosition(context.Background(), "mkt-1", "nobody")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarketService_PoolInvariantAcrossBuys(t *testing.T) {
	env := newServiceEnv()
	createPool(t, env, "mkt-1", "alice")
	env.fund("bob", 10_000)

	ctx := context.Background()
	for i, amount := range []int64{1, 250, 3, 999, 4_000} {
		_, err := env.markets.Buy(ctx, "mkt-1", "bob", i%2, amount)
		require.NoError(t, err)

		m := env.store.markets["mkt-1"]
		assert.Equal(t, m.TotalPool, m.PoolSum())
		escrow, _ := env.store.ledger.EscrowBalance(ctx, "mkt-1")
		assert.Equal(t, m.TotalPool, escrow)
	}
}
