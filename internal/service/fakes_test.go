package service

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/outcomex/settle/internal/domain"
)

// The fakes below back the service tests. The store mirrors the two
// behaviors the services rely on: reads return copies (a scan never aliases
// stored state) and WithinTx restores the pre-transaction state on error.

func posKey(marketID, owner string) string {
	return marketID + "/" + owner
}

type fakeStore struct {
	markets   map[string]domain.Market
	positions map[string]domain.Position
	clobs     map[string]domain.ClobMarket
	books     map[string]domain.OrderBook
	clobPos   map[string]domain.ClobPosition
	fills     []domain.Fill
	audit     []domain.AuditEntry
	ledger    *fakeLedger
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		markets:   make(map[string]domain.Market),
		positions: make(map[string]domain.Position),
		clobs:     make(map[string]domain.ClobMarket),
		books:     make(map[string]domain.OrderBook),
		clobPos:   make(map[string]domain.ClobPosition),
		ledger:    newFakeLedger(),
	}
}

func (s *fakeStore) Markets() domain.MarketStore             { return fakeMarkets{s} }
func (s *fakeStore) Positions() domain.PositionStore         { return fakePositions{s} }
func (s *fakeStore) ClobMarkets() domain.ClobMarketStore     { return fakeClobMarkets{s} }
func (s *fakeStore) Books() domain.BookStore                 { return fakeBooks{s} }
func (s *fakeStore) ClobPositions() domain.ClobPositionStore { return fakeClobPositions{s} }
func (s *fakeStore) Fills() domain.FillStore                 { return fakeFills{s} }
func (s *fakeStore) Ledger() domain.Ledger                   { return s.ledger }
func (s *fakeStore) Audit() domain.AuditStore                { return fakeAudit{s} }

type storeSnapshot struct {
	markets   map[string]domain.Market
	positions map[string]domain.Position
	clobs     map[string]domain.ClobMarket
	books     map[string]domain.OrderBook
	clobPos   map[string]domain.ClobPosition
	fills     int
	audit     int
	balances  map[string]int64
	escrows   map[string]int64
}

// WithinTx snapshots the whole store and restores it when fn fails. Stored
// values are only ever replaced wholesale (reads and writes copy), so a
// shallow map clone is a faithful snapshot.
func (s *fakeStore) WithinTx(ctx context.Context, fn func(domain.Store) error) error {
	snap := storeSnapshot{
		markets:   maps.Clone(s.markets),
		positions: maps.Clone(s.positions),
		clobs:     maps.Clone(s.clobs),
		books:     maps.Clone(s.books),
		clobPos:   maps.Clone(s.clobPos),
		fills:     len(s.fills),
		audit:     len(s.audit),
		balances:  maps.Clone(s.ledger.balances),
		escrows:   maps.Clone(s.ledger.escrows),
	}

	if err := fn(s); err != nil {
		s.markets = snap.markets
		s.positions = snap.positions
		s.clobs = snap.clobs
		s.books = snap.books
		s.clobPos = snap.clobPos
		s.fills = s.fills[:snap.fills]
		s.audit = s.audit[:snap.audit]
		s.ledger.balances = snap.balances
		s.ledger.escrows = snap.escrows
		return err
	}
	return nil
}

// auditEvents returns the logged event names in order.
func (s *fakeStore) auditEvents() []string {
	events := make([]string, len(s.audit))
	for i, e := range s.audit {
		events[i] = e.Event
	}
	return events
}

func cloneMarket(m domain.Market) domain.Market {
	m.Outcomes = append([]string(nil), m.Outcomes...)
	m.OutcomePools = append([]int64(nil), m.OutcomePools...)
	if m.WinningOutcome != nil {
		w := *m.WinningOutcome
		m.WinningOutcome = &w
	}
	return m
}

func clonePosition(p domain.Position) domain.Position {
	p.Shares = append([]int64(nil), p.Shares...)
	return p
}

func cloneClobMarket(m domain.ClobMarket) domain.ClobMarket {
	if m.WinningSide != nil {
		w := *m.WinningSide
		m.WinningSide = &w
	}
	return m
}

func cloneBook(b domain.OrderBook) domain.OrderBook {
	b.Bids = append([]domain.Order(nil), b.Bids...)
	b.Asks = append([]domain.Order(nil), b.Asks...)
	return b
}

type fakeMarkets struct{ s *fakeStore }

func (f fakeMarkets) Create(ctx context.Context, m domain.Market) error {
	if _, ok := f.s.markets[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	f.s.markets[m.ID] = cloneMarket(m)
	return nil
}

func (f fakeMarkets) Get(ctx context.Context, id string) (domain.Market, error) {
	m, ok := f.s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return cloneMarket(m), nil
}

func (f fakeMarkets) GetForUpdate(ctx context.Context, id string) (domain.Market, error) {
	return f.Get(ctx, id)
}

func (f fakeMarkets) Update(ctx context.Context, m domain.Market) error {
	if _, ok := f.s.markets[m.ID]; !ok {
		return domain.ErrNotFound
	}
	f.s.markets[m.ID] = cloneMarket(m)
	return nil
}

func (f fakeMarkets) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	var out []domain.Market
	for _, m := range f.s.markets {
		out = append(out, cloneMarket(m))
	}
	return out, nil
}

type fakePositions struct{ s *fakeStore }

func (f fakePositions) Get(ctx context.Context, marketID, owner string) (domain.Position, error) {
	p, ok := f.s.positions[posKey(marketID, owner)]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return clonePosition(p), nil
}

func (f fakePositions) Upsert(ctx context.Context, pos domain.Position) error {
	f.s.positions[posKey(pos.MarketID, pos.Owner)] = clonePosition(pos)
	return nil
}

func (f fakePositions) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range f.s.positions {
		if p.MarketID == marketID {
			out = append(out, clonePosition(p))
		}
	}
	return out, nil
}

func (f fakePositions) ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range f.s.positions {
		if p.Owner == owner {
			out = append(out, clonePosition(p))
		}
	}
	return out, nil
}

type fakeClobMarkets struct{ s *fakeStore }

func (f fakeClobMarkets) Create(ctx context.Context, m domain.ClobMarket) error {
	if _, ok := f.s.clobs[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	f.s.clobs[m.ID] = cloneClobMarket(m)
	return nil
}

func (f fakeClobMarkets) Get(ctx context.Context, id string) (domain.ClobMarket, error) {
	m, ok := f.s.clobs[id]
	if !ok {
		return domain.ClobMarket{}, domain.ErrNotFound
	}
	return cloneClobMarket(m), nil
}

func (f fakeClobMarkets) GetForUpdate(ctx context.Context, id string) (domain.ClobMarket, error) {
	return f.Get(ctx, id)
}

func (f fakeClobMarkets) Update(ctx context.Context, m domain.ClobMarket) error {
	if _, ok := f.s.clobs[m.ID]; !ok {
		return domain.ErrNotFound
	}
	f.s.clobs[m.ID] = cloneClobMarket(m)
	return nil
}

func (f fakeClobMarkets) List(ctx context.Context, opts domain.ListOpts) ([]domain.ClobMarket, error) {
	var out []domain.ClobMarket
	for _, m := range f.s.clobs {
		out = append(out, cloneClobMarket(m))
	}
	return out, nil
}

type fakeBooks struct{ s *fakeStore }

func (f fakeBooks) Create(ctx context.Context, book domain.OrderBook) error {
	if _, ok := f.s.books[book.MarketID]; ok {
		return domain.ErrAlreadyExists
	}
	f.s.books[book.MarketID] = cloneBook(book)
	return nil
}

func (f fakeBooks) Get(ctx context.Context, marketID string) (domain.OrderBook, error) {
	b, ok := f.s.books[marketID]
	if !ok {
		return domain.OrderBook{}, domain.ErrNotFound
	}
	return cloneBook(b), nil
}

func (f fakeBooks) Save(ctx context.Context, book domain.OrderBook) error {
	if _, ok := f.s.books[book.MarketID]; !ok {
		return domain.ErrNotFound
	}
	f.s.books[book.MarketID] = cloneBook(book)
	return nil
}

type fakeClobPositions struct{ s *fakeStore }

func (f fakeClobPositions) Get(ctx context.Context, marketID, owner string) (domain.ClobPosition, error) {
	p, ok := f.s.clobPos[posKey(marketID, owner)]
	if !ok {
		return domain.ClobPosition{}, domain.ErrNotFound
	}
	return p, nil
}

func (f fakeClobPositions) Upsert(ctx context.Context, pos domain.ClobPosition) error {
	f.s.clobPos[posKey(pos.MarketID, pos.Owner)] = pos
	return nil
}

func (f fakeClobPositions) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.ClobPosition, error) {
	var out []domain.ClobPosition
	for _, p := range f.s.clobPos {
		if p.MarketID == marketID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f fakeClobPositions) ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.ClobPosition, error) {
	var out []domain.ClobPosition
	for _, p := range f.s.clobPos {
		if p.Owner == owner {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeFills struct{ s *fakeStore }

func (f fakeFills) InsertBatch(ctx context.Context, fills []domain.Fill) error {
	f.s.fills = append(f.s.fills, fills...)
	return nil
}

func (f fakeFills) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Fill, error) {
	var out []domain.Fill
	for _, fill := range f.s.fills {
		if fill.MarketID == marketID {
			out = append(out, fill)
		}
	}
	return out, nil
}

func (f fakeFills) ListBefore(ctx context.Context, before time.Time) ([]domain.Fill, error) {
	var out []domain.Fill
	for _, fill := range f.s.fills {
		if fill.CreatedAt.Before(before) {
			out = append(out, fill)
		}
	}
	return out, nil
}

type fakeAudit struct{ s *fakeStore }

func (f fakeAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	f.s.audit = append(f.s.audit, domain.AuditEntry{
		ID:     int64(len(f.s.audit) + 1),
		Event:  event,
		Detail: detail,
	})
	return nil
}

func (f fakeAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return append([]domain.AuditEntry(nil), f.s.audit...), nil
}

func (f fakeAudit) ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	for _, e := range f.s.audit {
		if e.CreatedAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeLedger struct {
	balances map[string]int64
	escrows  map[string]int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances: make(map[string]int64),
		escrows:  make(map[string]int64),
	}
}

func (l *fakeLedger) Deposit(ctx context.Context, account string, amount int64) error {
	if amount < 0 {
		return domain.ErrInvalidSize
	}
	l.balances[account] += amount
	return nil
}

func (l *fakeLedger) Withdraw(ctx context.Context, account string, amount int64) error {
	if amount < 0 {
		return domain.ErrInvalidSize
	}
	if l.balances[account] < amount {
		return domain.ErrInsufficientFunds
	}
	l.balances[account] -= amount
	return nil
}

func (l *fakeLedger) Escrow(ctx context.Context, marketID, account string, amount int64) error {
	if err := l.Withdraw(ctx, account, amount); err != nil {
		return err
	}
	l.escrows[marketID] += amount
	return nil
}

func (l *fakeLedger) Release(ctx context.Context, marketID, account string, amount int64) error {
	if amount < 0 {
		return domain.ErrInvalidSize
	}
	if l.escrows[marketID] < amount {
		return domain.ErrInsufficientFunds
	}
	l.escrows[marketID] -= amount
	l.balances[account] += amount
	return nil
}

func (l *fakeLedger) Balance(ctx context.Context, account string) (int64, error) {
	return l.balances[account], nil
}

func (l *fakeLedger) EscrowBalance(ctx context.Context, marketID string) (int64, error) {
	return l.escrows[marketID], nil
}

type busMsg struct {
	channel string
	payload []byte
}

type fakeBus struct {
	published []busMsg
	streamed  [][]byte
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.published = append(b.published, busMsg{channel: channel, payload: payload})
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *fakeBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.streamed = append(b.streamed, payload)
	return nil
}

func (b *fakeBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

// channels returns the channel names of published messages in order.
func (b *fakeBus) channels() []string {
	out := make([]string, len(b.published))
	for i, m := range b.published {
		out[i] = m.channel
	}
	return out
}

type fakeMarketCache struct {
	markets     map[string]domain.Market
	clobs       map[string]domain.ClobMarket
	invalidated []string
}

func newFakeMarketCache() *fakeMarketCache {
	return &fakeMarketCache{
		markets: make(map[string]domain.Market),
		clobs:   make(map[string]domain.ClobMarket),
	}
}

func (c *fakeMarketCache) SetMarket(ctx context.Context, m domain.Market) error {
	c.markets[m.ID] = cloneMarket(m)
	return nil
}

func (c *fakeMarketCache) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, ok := c.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return cloneMarket(m), nil
}

func (c *fakeMarketCache) SetClobMarket(ctx context.Context, m domain.ClobMarket) error {
	c.clobs[m.ID] = cloneClobMarket(m)
	return nil
}

func (c *fakeMarketCache) GetClobMarket(ctx context.Context, id string) (domain.ClobMarket, error) {
	m, ok := c.clobs[id]
	if !ok {
		return domain.ClobMarket{}, domain.ErrNotFound
	}
	return cloneClobMarket(m), nil
}

func (c *fakeMarketCache) Invalidate(ctx context.Context, id string) error {
	delete(c.markets, id)
	delete(c.clobs, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

type fakeBookCache struct {
	snaps       map[string]domain.BookSnapshot
	invalidated []string
}

func newFakeBookCache() *fakeBookCache {
	return &fakeBookCache{snaps: make(map[string]domain.BookSnapshot)}
}

func (c *fakeBookCache) SetSnapshot(ctx context.Context, snap domain.BookSnapshot) error {
	c.snaps[snap.MarketID] = snap
	return nil
}

func (c *fakeBookCache) GetSnapshot(ctx context.Context, marketID string) (domain.BookSnapshot, error) {
	snap, ok := c.snaps[marketID]
	if !ok {
		return domain.BookSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (c *fakeBookCache) Invalidate(ctx context.Context, marketID string) error {
	delete(c.snaps, marketID)
	c.invalidated = append(c.invalidated, marketID)
	return nil
}

// fakeSigner stamps deterministic receipts so tests can assert propagation
// without real key material.
type fakeSigner struct{}

func (fakeSigner) SignResolution(marketID, outcome string, settledAt time.Time) (string, error) {
	return "rcpt:res:" + marketID + ":" + outcome, nil
}

func (fakeSigner) SignClaim(marketID, claimer string, gross, fee, net int64, settledAt time.Time) (string, error) {
	return fmt.Sprintf("rcpt:claim:%s:%s:%d", marketID, claimer, net), nil
}

type fakeLocks struct {
	held     bool
	acquired int
	released int
}

func (l *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.held = true
	l.acquired++
	return func() {
		l.held = false
		l.released++
	}, nil
}

type fakeArchiver struct {
	fillCutoffs  []time.Time
	auditCutoffs []time.Time
	fillCount    int64
	auditCount   int64
	err          error
}

func (a *fakeArchiver) ArchiveFills(ctx context.Context, before time.Time) (int64, error) {
	if a.err != nil {
		return 0, a.err
	}
	a.fillCutoffs = append(a.fillCutoffs, before)
	return a.fillCount, nil
}

func (a *fakeArchiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	if a.err != nil {
		return 0, a.err
	}
	a.auditCutoffs = append(a.auditCutoffs, before)
	return a.auditCount, nil
}

// serviceEnv wires every service against one shared fake backend.
type serviceEnv struct {
	store    *fakeStore
	cache    *fakeMarketCache
	books    *fakeBookCache
	bus      *fakeBus
	markets  *MarketService
	exchange *ExchangeService
	ledger   *LedgerService
}

func newServiceEnv() *serviceEnv {
	store := newFakeStore()
	cache := newFakeMarketCache()
	books := newFakeBookCache()
	bus := &fakeBus{}
	clock := domain.ClockFunc(func() time.Time { return testNow })
	logger := newTestLogger()

	return &serviceEnv{
		store:    store,
		cache:    cache,
		books:    books,
		bus:      bus,
		markets:  NewMarketService(store, cache, bus, fakeSigner{}, clock, logger),
		exchange: NewExchangeService(store, cache, books, bus, fakeSigner{}, clock, logger),
		ledger:   NewLedgerService(store, logger),
	}
}

// fund credits an account directly on the fake ledger.
func (e *serviceEnv) fund(account string, amount int64) {
	e.store.ledger.balances[account] += amount
}
