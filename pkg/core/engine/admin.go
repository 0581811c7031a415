package engine

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/dmelnik/spotcore/pkg/core"
	"github.com/dmelnik/spotcore/pkg/core/instrument"
	"github.com/dmelnik/spotcore/pkg/core/ledger"
)

// Deposit credits amount of ticker to a user's balance. The ticker must be a
// registered instrument (the cash ticker is itself registered at boot).
func (e *Engine) Deposit(user uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive: %d", amount)
	}
	if _, err := e.reg.Get(ticker); err != nil {
		return err
	}

	return e.ledger.Transact(
		[]ledger.Entry{ledger.DepositEntry(user, ticker, amount)},
		func(bal map[ledger.Key]ledger.Balance) error {
			return e.store.Commit(Mutation{Balances: bal})
		},
	)
}

// Withdraw debits amount of ticker from a user's balance.
// Fails with ErrInsufficientFunds if available (amount minus reserved) does
// not cover it.
func (e *Engine) Withdraw(user uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("withdraw amount must be positive: %d", amount)
	}
	if _, err := e.reg.Get(ticker); err != nil {
		return err
	}

	return e.ledger.Transact(
		[]ledger.Entry{ledger.WithdrawEntry(user, ticker, amount)},
		func(bal map[ledger.Key]ledger.Balance) error {
			return e.store.Commit(Mutation{Balances: bal})
		},
	)
}

// AddInstrument lists a new ACTIVE instrument
func (e *Engine) AddInstrument(ticker, name string) error {
	ins := instrument.Instrument{Ticker: ticker, Name: name, Status: instrument.Active}
	if err := e.reg.Register(ins); err != nil {
		return err
	}
	if err := e.store.Commit(Mutation{Instruments: []instrument.Instrument{ins}}); err != nil {
		e.reg.Remove(ticker) // keep memory and disk in agreement
		return fmt.Errorf("persist instrument: %w", err)
	}
	e.log.Infow("instrument_listed", "ticker", ticker, "name", name)
	return nil
}

// DelistInstrument marks an instrument DELISTED, cancels every resting order
// on its book, and releases the reservations, as one terminal transition:
// the status change, the cancellations, and the balance updates commit
// together.
func (e *Engine) DelistInstrument(ticker string) error {
	ins, err := e.reg.Get(ticker)
	if err != nil {
		return err
	}
	if ins.Status == instrument.Delisted {
		return core.ErrInstrumentDelisted
	}

	ms := e.market(ticker)
	ms.mu.Lock()
	defer ms.mu.Unlock()

	resting := ms.book.Orders()
	entries := make([]ledger.Entry, 0, len(resting))
	finals := make([]core.Order, 0, len(resting))
	for _, o := range resting {
		entries = append(entries, releaseFor(o, e.cash))
		final := *o
		final.Status = core.StatusCancelled
		finals = append(finals, final)
	}

	delisted := ins
	delisted.Status = instrument.Delisted
	mut := Mutation{Orders: finals, Instruments: []instrument.Instrument{delisted}}

	err = e.ledger.Transact(entries, func(bal map[ledger.Key]ledger.Balance) error {
		mut.Balances = bal
		return e.store.Commit(mut)
	})
	if err != nil {
		e.failed(ms, "delist", err)
		return err
	}

	for _, o := range resting {
		ms.book.Remove(o.ID)
		o.Status = core.StatusCancelled
	}
	if err := e.reg.Delist(ticker); err != nil {
		return err
	}

	e.log.Infow("instrument_delisted", "ticker", ticker, "cancelled_orders", len(resting))
	return nil
}

// RemoveUser performs the terminal transition for a user: cancel every
// resting order across all books, archive and drop all balances, and delete
// the user record — one atomic operation, not independent deletes that can
// partially fail. The caller drops the user from the account manager's
// in-memory maps afterwards.
func (e *Engine) RemoveUser(user uuid.UUID) error {
	// Collect candidate orders, then take every affected instrument's
	// critical section in a fixed global order (sorted tickers) so
	// concurrent removals cannot deadlock.
	byTicker := make(map[string][]*core.Order)
	e.mu.RLock()
	for _, o := range e.orders {
		if o.UserID == user && o.IsOpen() {
			byTicker[o.Ticker] = append(byTicker[o.Ticker], o)
		}
	}
	e.mu.RUnlock()

	tickers := make([]string, 0, len(byTicker))
	for t := range byTicker {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var locked []*marketState
	states := make(map[string]*marketState, len(tickers))
	unlock := func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].mu.Unlock()
		}
	}
	for _, t := range tickers {
		ms := e.market(t)
		ms.mu.Lock()
		locked = append(locked, ms)
		states[t] = ms
		if ms.halted {
			unlock()
			return core.ErrInstrumentHalted
		}
	}
	defer unlock()

	var resting []*core.Order
	finals := make([]core.Order, 0)
	for _, t := range tickers {
		ms := states[t]
		for _, o := range ms.book.UserOrders(user) {
			resting = append(resting, o)
			final := *o
			final.Status = core.StatusCancelled
			finals = append(finals, final)
		}
	}

	// Reservations need no explicit release: the balances are dropped
	// wholesale in the same commit.
	mut := Mutation{Orders: finals, DeleteUser: &user}
	_, err := e.ledger.RemoveUser(user, func(archived map[ledger.Key]ledger.Balance) error {
		mut.ArchiveBalances = archived
		for k := range archived {
			mut.DeleteBalances = append(mut.DeleteBalances, k)
		}
		return e.store.Commit(mut)
	})
	if err != nil {
		return err
	}

	for _, o := range resting {
		states[o.Ticker].book.Remove(o.ID)
		o.Status = core.StatusCancelled
	}

	e.log.Infow("user_removed", "user_id", user, "cancelled_orders", len(resting), "archived_balances", len(mut.DeleteBalances))
	return nil
}

// Restore rebuilds the in-memory arena, books, and trade history from
// persisted state (boot time only). Open limit orders are re-inserted in
// arrival order so FIFO priority survives a restart.
func (e *Engine) Restore(orders []core.Order, trades map[string][]core.Trade) {
	sort.Slice(orders, func(i, j int) bool { return orders[i].Seq < orders[j].Seq })

	var maxSeq uint64
	for i := range orders {
		o := orders[i]
		p := &o
		e.orders[p.ID] = p
		if p.Seq > maxSeq {
			maxSeq = p.Seq
		}
		if p.Kind == core.Limit && p.IsOpen() && p.Remaining() > 0 {
			e.market(p.Ticker).book.Insert(p)
		}
	}
	e.seq.Store(maxSeq)

	for ticker, ts := range trades {
		ms := e.market(ticker)
		ms.trades = e.trimTrades(append(ms.trades, ts...))
	}
}
