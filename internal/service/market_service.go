package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/outcomex/settle/internal/domain"
	"github.com/outcomex/settle/internal/engine"
)

// CreateMarketParams carries the caller-supplied fields of a parimutuel
// market. The authority is taken from the authenticated request identity,
// never from the body.
type CreateMarketParams struct {
	ID         string
	Question   string
	Outcomes   []string
	ResolvesAt time.Time
}

// MarketService runs parimutuel instructions: create, buy, resolve, claim.
// Every mutating instruction executes inside one store transaction that
// locks the market row first, so instructions against the same market
// serialize and any failure rolls back without partial effects.
type MarketService struct {
	store  domain.Store
	cache  domain.MarketCache
	bus    domain.SignalBus
	signer ReceiptSigner
	clock  domain.Clock
	logger *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	store domain.Store,
	cache domain.MarketCache,
	bus domain.SignalBus,
	signer ReceiptSigner,
	clock domain.Clock,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		store:  store,
		cache:  cache,
		bus:    bus,
		signer: signer,
		clock:  clock,
		logger: logger,
	}
}

// CreateMarket validates and persists a new parimutuel market. The creator
// becomes the resolution authority.
func (s *MarketService) CreateMarket(ctx context.Context, authority string, p CreateMarketParams) (domain.Market, error) {
	m, err := engine.NewPoolMarket(p.ID, p.Question, authority, p.Outcomes, p.ResolvesAt, s.clock.Now())
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create market: %w", err)
	}

	err = s.store.WithinTx(ctx, func(tx domain.Store) error {
		if err := tx.Markets().Create(ctx, m); err != nil {
			return err
		}
		return tx.Audit().Log(ctx, "market.created", map[string]any{
			"market_id": m.ID,
			"authority": authority,
			"outcomes":  len(m.Outcomes),
		})
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create market %q: %w", p.ID, err)
	}

	if cacheErr := s.cache.SetMarket(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market_id", m.ID),
			slog.String("error", cacheErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market_id", m.ID),
		slog.String("authority", authority),
		slog.Int("outcomes", len(m.Outcomes)),
	)

	return m, nil
}

// GetMarket retrieves a market by ID, checking the cache first and falling
// back to the persistent store on a cache miss.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.cache.GetMarket(ctx, id)
	if err == nil {
		return m, nil
	}

	// Cache miss or error -- fall through to store.
	m, err = s.store.Markets().Get(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market %q: %w", id, err)
	}

	// Back-fill cache; log but do not fail on cache write errors.
	if cacheErr := s.cache.SetMarket(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}

	return m, nil
}

// ListMarkets returns markets directly from the persistent store, newest
// first.
func (s *MarketService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.store.Markets().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}
	return markets, nil
}

// GetPosition returns one trader's stake in a market.
func (s *MarketService) GetPosition(ctx context.Context, marketID, owner string) (domain.Position, error) {
	pos, err := s.store.Positions().Get(ctx, marketID, owner)
	if err != nil {
		return domain.Position{}, fmt.Errorf("market_service: get position %q/%q: %w", marketID, owner, err)
	}
	return pos, nil
}

// Buy stakes amount on one outcome. The stake moves from the buyer's
// available balance into the market escrow in the same transaction that
// mutates the pools, so a ledger rejection unwinds the whole buy.
func (s *MarketService) Buy(ctx context.Context, marketID, buyer string, outcome int, amount int64) (domain.Position, error) {
	var pos domain.Position

	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		m, err := tx.Markets().GetForUpdate(ctx, marketID)
		if err != nil {
			return err
		}

		pos, err = tx.Positions().Get(ctx, marketID, buyer)
		if errors.Is(err, domain.ErrNotFound) {
			pos = domain.Position{MarketID: marketID, Owner: buyer, CreatedAt: s.clock.Now()}
		} else if err != nil {
			return err
		}

		if err := engine.Buy(&m, &pos, outcome, amount); err != nil {
			return err
		}
		if err := tx.Ledger().Escrow(ctx, marketID, buyer, amount); err != nil {
			return err
		}

		now := s.clock.Now()
		m.UpdatedAt = now
		pos.UpdatedAt = now
		if err := tx.Markets().Update(ctx, m); err != nil {
			return err
		}
		if err := tx.Positions().Upsert(ctx, pos); err != nil {
			return err
		}
		return tx.Audit().Log(ctx, "market.buy", map[string]any{
			"market_id": marketID,
			"buyer":     buyer,
			"outcome":   outcome,
			"amount":    amount,
		})
	})
	if err != nil {
		return domain.Position{}, fmt.Errorf("market_service: buy %q: %w", marketID, err)
	}

	s.invalidate(ctx, marketID)

	s.logger.InfoContext(ctx, "market_service: shares bought",
		slog.String("market_id", marketID),
		slog.String("buyer", buyer),
		slog.Int("outcome", outcome),
		slog.Int64("amount", amount),
	)

	return pos, nil
}

// Resolve marks the winning outcome and returns the updated market with an
// operator-signed resolution receipt. Only the market authority may call
// it, and only once.
func (s *MarketService) Resolve(ctx context.Context, marketID, caller string, outcome int) (domain.Market, string, error) {
	var (
		m       domain.Market
		label   string
		receipt string
	)
	settledAt := s.clock.Now()

	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		var err error
		m, err = tx.Markets().GetForUpdate(ctx, marketID)
		if err != nil {
			return err
		}

		if err := engine.ResolvePool(&m, caller, outcome); err != nil {
			return err
		}
		label = m.Outcomes[outcome]

		receipt, err = s.signer.SignResolution(marketID, label, settledAt)
		if err != nil {
			return err
		}

		m.UpdatedAt = settledAt
		if err := tx.Markets().Update(ctx, m); err != nil {
			return err
		}
		return tx.Audit().Log(ctx, "market.resolved", map[string]any{
			"market_id": marketID,
			"outcome":   outcome,
			"label":     label,
			"receipt":   receipt,
		})
	})
	if err != nil {
		return domain.Market{}, "", fmt.Errorf("market_service: resolve %q: %w", marketID, err)
	}

	s.invalidate(ctx, marketID)
	publishEvent(ctx, s.bus, s.logger, domain.ChannelResolutions, domain.ResolutionEvent{
		Kind:     domain.MarketKindPool,
		MarketID: marketID,
		Outcome:  label,
		Receipt:  receipt,
		At:       settledAt,
	})

	s.logger.InfoContext(ctx, "market_service: market resolved",
		slog.String("market_id", marketID),
		slog.String("outcome", label),
	)

	return m, receipt, nil
}

// Claim pays out the caller's pro-rata winnings. The net amount is released
// from the market escrow to the claimer and the fee leg settles to the
// market authority; the winning balance is zeroed so a second claim fails.
func (s *MarketService) Claim(ctx context.Context, marketID, claimer string) (engine.Payment, string, error) {
	var (
		pay     engine.Payment
		receipt string
	)
	settledAt := s.clock.Now()

	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		m, err := tx.Markets().GetForUpdate(ctx, marketID)
		if err != nil {
			return err
		}

		pos, err := tx.Positions().Get(ctx, marketID, claimer)
		if errors.Is(err, domain.ErrNotFound) {
			if !m.Resolved {
				return domain.ErrMarketNotResolved
			}
			return domain.ErrNoWinningShares
		} else if err != nil {
			return err
		}

		pay, err = engine.ClaimPool(&m, &pos)
		if err != nil {
			return err
		}

		if err := tx.Ledger().Release(ctx, marketID, claimer, pay.Net); err != nil {
			return err
		}
		if pay.Fee > 0 {
			if err := tx.Ledger().Release(ctx, marketID, m.Authority, pay.Fee); err != nil {
				return err
			}
		}

		receipt, err = s.signer.SignClaim(marketID, claimer, pay.Gross, pay.Fee, pay.Net, settledAt)
		if err != nil {
			return err
		}

		pos.UpdatedAt = settledAt
		if err := tx.Positions().Upsert(ctx, pos); err != nil {
			return err
		}
		return tx.Audit().Log(ctx, "market.claimed", map[string]any{
			"market_id": marketID,
			"claimer":   claimer,
			"gross":     pay.Gross,
			"fee":       pay.Fee,
			"net":       pay.Net,
		})
	})
	if err != nil {
		return engine.Payment{}, "", fmt.Errorf("market_service: claim %q: %w", marketID, err)
	}

	publishEvent(ctx, s.bus, s.logger, domain.ChannelClaims, domain.ClaimEvent{
		Kind:     domain.MarketKindPool,
		MarketID: marketID,
		Claimer:  claimer,
		Gross:    pay.Gross,
		Fee:      pay.Fee,
		Net:      pay.Net,
		Receipt:  receipt,
		At:       settledAt,
	})

	s.logger.InfoContext(ctx, "market_service: winnings claimed",
		slog.String("market_id", marketID),
		slog.String("claimer", claimer),
		slog.Int64("net", pay.Net),
	)

	return pay, receipt, nil
}

// invalidate drops the cached market snapshot after a mutation. Non-fatal:
// the cache expires on its own.
func (s *MarketService) invalidate(ctx context.Context, marketID string) {
	if err := s.cache.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}
