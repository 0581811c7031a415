package engine

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmelnik/spotcore/pkg/core"
	"github.com/dmelnik/spotcore/pkg/core/book"
	"github.com/dmelnik/spotcore/pkg/core/instrument"
	"github.com/dmelnik/spotcore/pkg/core/ledger"
	"github.com/dmelnik/spotcore/pkg/util"
)

// Engine is the matching and settlement core. It owns every order (an arena
// keyed by id), one book per instrument, and the only write path to the
// ledger and the durable store.
//
// Matching for a given instrument is serialized: Submit, Cancel, and the
// cascading admin operations all take that instrument's mutex, so matching
// and cancellation for one instrument never race. Different instruments
// match concurrently.
//
// Every operation plans its fills read-only, stages the resulting order,
// trade, and balance states into a single store commit, and applies the
// in-memory book and ledger mutations only after the commit succeeds. A
// failed commit leaves no partial state anywhere.
type Engine struct {
	cash    string // cash ticker, e.g. "RUB"
	clock   util.Clock
	log     *zap.SugaredLogger
	reg     *instrument.Registry
	ledger  *ledger.Ledger
	store   Store
	journal Journal

	mu      sync.RWMutex
	markets map[string]*marketState
	orders  map[uuid.UUID]*core.Order // order arena; closed orders stay for queries

	seq atomic.Uint64

	// tradeRetention caps the in-memory trade history per instrument;
	// RecentTrades never serves more than this.
	tradeRetention int
}

const defaultTradeRetention = 1024

// marketState is the per-instrument critical section: the book, the trade
// history, and the halt flag all mutate only under mu.
type marketState struct {
	mu     sync.Mutex
	ticker string
	book   *book.Book
	trades []core.Trade // append order; newest last
	halted bool
}

// New creates an engine. cash is the ticker all instruments settle in.
func New(cash string, reg *instrument.Registry, led *ledger.Ledger, store Store, journal Journal, clock util.Clock, log *zap.SugaredLogger) *Engine {
	if journal == nil {
		journal = nopJournal{}
	}
	return &Engine{
		cash:           cash,
		clock:          clock,
		log:            log,
		reg:            reg,
		ledger:         led,
		store:          store,
		journal:        journal,
		markets:        make(map[string]*marketState),
		orders:         make(map[uuid.UUID]*core.Order),
		tradeRetention: defaultTradeRetention,
	}
}

// SetTradeRetention bounds the per-instrument in-memory trade history.
// Call before serving; usually the configured trade query cap.
func (e *Engine) SetTradeRetention(n int) {
	if n > 0 {
		e.tradeRetention = n
	}
}

type nopJournal struct{}

func (nopJournal) Append(string) {}

// Ledger exposes the balance ledger for read-side consumers (API)
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Instruments exposes the instrument registry for read-side consumers
func (e *Engine) Instruments() *instrument.Registry { return e.reg }

// CashTicker returns the settlement currency ticker
func (e *Engine) CashTicker() string { return e.cash }

func (e *Engine) market(ticker string) *marketState {
	e.mu.Lock()
	defer e.mu.Unlock()
	ms, ok := e.markets[ticker]
	if !ok {
		ms = &marketState{ticker: ticker, book: book.New()}
		e.markets[ticker] = ms
	}
	return ms
}

// MatchResult is the outcome of Submit: the final order state and the trades
// produced, possibly empty.
type MatchResult struct {
	Order  core.Order
	Trades []core.Trade
}

// Submit admits, matches, and settles one incoming order. Admission
// (instrument check, reservation) and matching run in the same per-instrument
// critical section; rejection is side-effect-free. A marketable order walks
// the opposing book under price-time priority, producing one trade per
// resting order it consumes, each at the resting order's price. A LIMIT
// remainder rests in the book; a MARKET remainder is cancelled and its
// reservation released.
func (e *Engine) Submit(req OrderRequest) (MatchResult, error) {
	if err := req.validate(); err != nil {
		return MatchResult{}, err
	}
	if _, err := e.reg.Active(req.Ticker); err != nil {
		return MatchResult{}, err
	}

	ms := e.market(req.Ticker)
	ms.mu.Lock()
	defer ms.mu.Unlock()

	// Delist holds this lock while flipping the status, so the listing may
	// have turned terminal between the check above and here.
	if _, err := e.reg.Active(req.Ticker); err != nil {
		return MatchResult{}, err
	}
	if ms.halted {
		return MatchResult{}, core.ErrInstrumentHalted
	}

	now := e.clock.Now().UnixNano()
	o := &core.Order{
		ID:        uuid.New(),
		UserID:    req.UserID,
		Ticker:    req.Ticker,
		Side:      req.Side,
		Kind:      req.Kind,
		Price:     req.Price,
		Qty:       req.Qty,
		Status:    core.StatusNew,
		CreatedAt: now,
		Seq:       e.seq.Add(1),
	}

	fills := ms.book.Plan(o.Side, o.Kind, o.Price, o.Qty)

	reserve, err := e.reservationEntry(o, fills)
	if err != nil {
		return MatchResult{}, err
	}
	entries := []ledger.Entry{reserve}

	var (
		trades      []core.Trade
		makerFinal  []core.Order
		filled      int64
		improvement int64
	)
	for _, f := range fills {
		buyOrder, sellOrder := o, f.Maker
		if o.Side == core.Sell {
			buyOrder, sellOrder = f.Maker, o
		}
		entries = append(entries, ledger.SettleEntries(
			buyOrder.UserID, sellOrder.UserID, o.Ticker, e.cash, f.Qty, f.Price)...)
		trades = append(trades, core.Trade{
			ID:          uuid.New(),
			BuyOrderID:  buyOrder.ID,
			SellOrderID: sellOrder.ID,
			Buyer:       buyOrder.UserID,
			Seller:      sellOrder.UserID,
			Ticker:      o.Ticker,
			Qty:         f.Qty,
			Price:       f.Price,
			Timestamp:   now,
		})

		mf := *f.Maker
		mf.Filled += f.Qty
		mf.Status = core.DeriveStatus(mf.Filled, mf.Qty, false)
		makerFinal = append(makerFinal, mf)

		filled += f.Qty
		if o.Side == core.Buy && o.Kind == core.Limit {
			improvement += f.Qty * (o.Price - f.Price)
		}
	}

	// A LIMIT BUY reserves at its own limit but settles at maker prices.
	// The price improvement is returned in the same batch so the reservation
	// left behind is exactly Remaining()*Price.
	if improvement > 0 {
		entries = append(entries, ledger.ReleaseEntry(o.UserID, e.cash, improvement))
	}

	// MARKET orders never rest: the unfilled remainder is cancelled and its
	// reservation returned. MARKET BUYs reserved exactly the planned cost,
	// so only the SELL side has anything to release.
	cancelled := o.Kind == core.Market && filled < o.Qty
	if cancelled && o.Side == core.Sell {
		entries = append(entries, ledger.ReleaseEntry(o.UserID, o.Ticker, o.Qty-filled))
	}

	final := *o
	final.Filled = filled
	final.Status = core.DeriveStatus(filled, o.Qty, cancelled)

	mut := Mutation{
		Orders: append(makerFinal, final),
		Trades: trades,
	}
	err = e.ledger.Transact(entries, func(bal map[ledger.Key]ledger.Balance) error {
		mut.Balances = bal
		return e.store.Commit(mut)
	})
	if err != nil {
		e.failed(ms, "submit", err)
		return MatchResult{}, err
	}

	// Durable; now apply in memory.
	for _, f := range fills {
		f.Maker.Filled += f.Qty
		f.Maker.Status = core.DeriveStatus(f.Maker.Filled, f.Maker.Qty, false)
		if f.Maker.Remaining() == 0 {
			ms.book.Remove(f.Maker.ID)
		}
	}
	*o = final

	e.mu.Lock()
	e.orders[o.ID] = o
	e.mu.Unlock()

	if o.Kind == core.Limit && o.IsOpen() && o.Remaining() > 0 {
		ms.book.Insert(o)
	}
	ms.trades = e.trimTrades(append(ms.trades, trades...))

	e.recordTrades(trades)
	e.log.Infow("order_processed",
		"order_id", o.ID,
		"ticker", o.Ticker,
		"side", o.Side.String(),
		"kind", o.Kind.String(),
		"status", o.Status.String(),
		"filled", o.Filled,
		"trades", len(trades),
	)
	return MatchResult{Order: final, Trades: trades}, nil
}

// Cancel removes a resting order, releasing its unfilled reservation.
// userID scopes the lookup to the order's owner; uuid.Nil bypasses the
// ownership check (internal use). Cancelling an order that is already
// EXECUTED or CANCELLED returns ErrOrderNotCancellable and mutates nothing.
func (e *Engine) Cancel(orderID, userID uuid.UUID) (core.Order, error) {
	e.mu.RLock()
	o, ok := e.orders[orderID]
	e.mu.RUnlock()
	if !ok || (userID != uuid.Nil && o.UserID != userID) {
		return core.Order{}, core.ErrOrderNotFound
	}

	ms := e.market(o.Ticker)
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.halted {
		return core.Order{}, core.ErrInstrumentHalted
	}
	if !o.IsOpen() {
		return *o, core.ErrOrderNotCancellable
	}

	final := *o
	final.Status = core.StatusCancelled

	mut := Mutation{Orders: []core.Order{final}}
	err := e.ledger.Transact([]ledger.Entry{releaseFor(o, e.cash)}, func(bal map[ledger.Key]ledger.Balance) error {
		mut.Balances = bal
		return e.store.Commit(mut)
	})
	if err != nil {
		e.failed(ms, "cancel", err)
		return core.Order{}, err
	}

	ms.book.Remove(o.ID)
	o.Status = core.StatusCancelled

	e.log.Infow("order_cancelled", "order_id", o.ID, "ticker", o.Ticker, "filled", o.Filled)
	return *o, nil
}

// releaseFor returns the entry freeing an open order's unfilled reservation
func releaseFor(o *core.Order, cash string) ledger.Entry {
	if o.Side == core.Buy {
		return ledger.ReleaseEntry(o.UserID, cash, o.Remaining()*o.Price)
	}
	return ledger.ReleaseEntry(o.UserID, o.Ticker, o.Remaining())
}

// failed handles a Transact failure. A consistency violation is a bug, not a
// user error: it halts the instrument pending operator intervention and is
// logged loudly. User-facing errors pass through untouched.
func (e *Engine) failed(ms *marketState, op string, err error) {
	if core.IsConsistency(err) {
		ms.halted = true
		e.log.Errorw("instrument_halted", "ticker", ms.ticker, "op", op, "err", err)
	}
}

// trimTrades drops all but the newest tradeRetention trades, copying so the
// old backing array can be collected
func (e *Engine) trimTrades(trades []core.Trade) []core.Trade {
	if n := len(trades); n > e.tradeRetention {
		return append([]core.Trade(nil), trades[n-e.tradeRetention:]...)
	}
	return trades
}

// recordTrades appends executed trades to the operational journal
func (e *Engine) recordTrades(trades []core.Trade) {
	for _, t := range trades {
		line, err := json.Marshal(t)
		if err != nil {
			continue
		}
		e.journal.Append(string(line))
	}
}
