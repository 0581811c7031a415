package engine

import (
	"github.com/google/uuid"

	"github.com/dmelnik/spotcore/pkg/core"
	"github.com/dmelnik/spotcore/pkg/core/instrument"
	"github.com/dmelnik/spotcore/pkg/core/ledger"
)

// Mutation is everything one engine operation changes in durable storage.
// The store must commit the whole mutation atomically: a trade and its
// balance and order-state effects must never be observably separated by a
// crash.
type Mutation struct {
	Orders      []core.Order
	Trades      []core.Trade
	Balances    map[ledger.Key]ledger.Balance
	Instruments []instrument.Instrument

	// User removal: archive the final balances, drop the live rows and the
	// user record, all in the same commit.
	ArchiveBalances map[ledger.Key]ledger.Balance
	DeleteBalances  []ledger.Key
	DeleteUser      *uuid.UUID
}

// Store is the durable side of the engine, implemented by pkg/storage
type Store interface {
	Commit(mut Mutation) error
}

// Journal receives a line per executed trade for operational inspection.
// It is written after the durable commit; the pebble batch is the source of
// truth, the journal is not.
type Journal interface {
	Append(line string)
}
