package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/dmelnik/spotcore/pkg/core"
	"github.com/dmelnik/spotcore/pkg/core/account"
	"github.com/dmelnik/spotcore/pkg/core/engine"
	"github.com/dmelnik/spotcore/pkg/core/instrument"
	"github.com/dmelnik/spotcore/pkg/core/ledger"
)

// Store is the Pebble-backed durable store for users, instruments, orders,
// balances, and trades. Engine mutations land as one pebble batch with a
// synced commit, which is what makes a trade and its balance effects
// inseparable across a crash.
type Store struct {
	db *pebble.DB

	// mu serializes Commit so the persisted trade sequence counter is
	// monotone even when different instruments settle concurrently.
	mu       sync.Mutex
	tradeSeq uint64
}

// Open opens (or creates) the database at path
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.loadTradeSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) loadTradeSeq() error {
	val, closer, err := s.db.Get(kTradeSeq())
	if err == pebble.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load trade seq: %w", err)
	}
	defer closer.Close()
	s.tradeSeq = binary.BigEndian.Uint64(val)
	return nil
}

// Commit applies one engine mutation as a single atomic, synced batch
func (s *Store) Commit(mut engine.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	defer b.Close()

	for i := range mut.Orders {
		if err := setJSON(b, kOrder(mut.Orders[i].ID), &mut.Orders[i]); err != nil {
			return err
		}
	}

	seq := s.tradeSeq
	if len(mut.Trades) > 0 {
		for i := range mut.Trades {
			seq++
			if err := setJSON(b, kTrade(mut.Trades[i].Ticker, seq), &mut.Trades[i]); err != nil {
				return err
			}
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], seq)
		if err := b.Set(kTradeSeq(), buf[:], nil); err != nil {
			return err
		}
	}

	for k, bal := range mut.Balances {
		if err := setJSON(b, kBalance(k.User, k.Ticker), bal); err != nil {
			return err
		}
	}
	for i := range mut.Instruments {
		if err := setJSON(b, kInstrument(mut.Instruments[i].Ticker), &mut.Instruments[i]); err != nil {
			return err
		}
	}
	for k, bal := range mut.ArchiveBalances {
		if err := setJSON(b, kArchivedBalance(k.User, k.Ticker), bal); err != nil {
			return err
		}
	}
	for _, k := range mut.DeleteBalances {
		if err := b.Delete(kBalance(k.User, k.Ticker), nil); err != nil {
			return err
		}
	}
	if mut.DeleteUser != nil {
		if err := b.Delete(kUser(*mut.DeleteUser), nil); err != nil {
			return err
		}
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	s.tradeSeq = seq
	return nil
}

// SaveUser persists a user record
func (s *Store) SaveUser(u *account.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	if err := s.db.Set(kUser(u.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// DeleteUser removes a user record
func (s *Store) DeleteUser(id uuid.UUID) error {
	if err := s.db.Delete(kUser(id), pebble.Sync); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// LoadUsers returns every persisted user
func (s *Store) LoadUsers() ([]*account.User, error) {
	var out []*account.User
	err := s.scan([]byte("u:"), func(_, val []byte) error {
		var u account.User
		if err := json.Unmarshal(val, &u); err != nil {
			return err
		}
		out = append(out, &u)
		return nil
	})
	return out, err
}

// LoadInstruments returns every persisted instrument
func (s *Store) LoadInstruments() ([]instrument.Instrument, error) {
	var out []instrument.Instrument
	err := s.scan([]byte("i:"), func(_, val []byte) error {
		var ins instrument.Instrument
		if err := json.Unmarshal(val, &ins); err != nil {
			return err
		}
		out = append(out, ins)
		return nil
	})
	return out, err
}

// LoadOrders returns every persisted order, open and closed
func (s *Store) LoadOrders() ([]core.Order, error) {
	var out []core.Order
	err := s.scan([]byte("o:"), func(_, val []byte) error {
		var o core.Order
		if err := json.Unmarshal(val, &o); err != nil {
			return err
		}
		out = append(out, o)
		return nil
	})
	return out, err
}

// LoadBalances returns all live balances
func (s *Store) LoadBalances() (map[ledger.Key]ledger.Balance, error) {
	out := make(map[ledger.Key]ledger.Balance)
	err := s.scan([]byte("b:"), func(key, val []byte) error {
		// b:<uuid>:<ticker>
		parts := strings.SplitN(string(key[2:]), ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("malformed balance key %q", key)
		}
		user, err := uuid.Parse(parts[0])
		if err != nil {
			return fmt.Errorf("malformed balance key %q: %w", key, err)
		}
		var bal ledger.Balance
		if err := json.Unmarshal(val, &bal); err != nil {
			return err
		}
		out[ledger.Key{User: user, Ticker: parts[1]}] = bal
		return nil
	})
	return out, err
}

// LoadTrades returns up to limit most recent trades for a ticker, oldest
// first (append order, ready for the engine's in-memory history).
func (s *Store) LoadTrades(ticker string, limit int) ([]core.Trade, error) {
	prefix := prefixTrades(ticker)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("trade iterator: %w", err)
	}
	defer iter.Close()

	var reversed []core.Trade
	for ok := iter.Last(); ok && (limit <= 0 || len(reversed) < limit); ok = iter.Prev() {
		var t core.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("unmarshal trade: %w", err)
		}
		reversed = append(reversed, t)
	}

	out := make([]core.Trade, len(reversed))
	for i, t := range reversed {
		out[len(reversed)-1-i] = t
	}
	return out, nil
}

func (s *Store) scan(prefix []byte, fn func(key, val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func setJSON(b *pebble.Batch, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return b.Set(key, data, nil)
}

var _ engine.Store = (*Store)(nil)
var _ account.Store = (*Store)(nil)
