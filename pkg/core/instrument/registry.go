package instrument

import (
	"sort"
	"sync"

	"github.com/dmelnik/spotcore/pkg/core"
)

// Registry manages listed instruments in a thread-safe manner.
// Supports registration, lookup, and delisting. Lookups return copies, so
// callers never hold a reference that Delist mutates concurrently.
type Registry struct {
	mu          sync.RWMutex
	instruments map[string]Instrument // ticker -> instrument
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		instruments: make(map[string]Instrument),
	}
}

// Register adds a new instrument.
// Returns ErrInstrumentExists if the ticker is already taken.
func (r *Registry) Register(ins Instrument) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instruments[ins.Ticker]; exists {
		return core.ErrInstrumentExists
	}
	r.instruments[ins.Ticker] = ins
	return nil
}

// Get retrieves a snapshot of an instrument by ticker
func (r *Registry) Get(ticker string) (Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ins, exists := r.instruments[ticker]
	if !exists {
		return Instrument{}, core.ErrInstrumentNotFound
	}
	return ins, nil
}

// Active returns the instrument if it exists and accepts new orders
func (r *Registry) Active(ticker string) (Instrument, error) {
	ins, err := r.Get(ticker)
	if err != nil {
		return Instrument{}, err
	}
	if ins.Status != Active {
		return Instrument{}, core.ErrInstrumentDelisted
	}
	return ins, nil
}

// List returns snapshots of all instruments sorted by ticker
func (r *Registry) List() []Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Instrument, 0, len(r.instruments))
	for _, ins := range r.instruments {
		out = append(out, ins)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Remove drops an instrument from the registry entirely. Only used to roll
// back a registration whose durable write failed; delisting is the normal
// terminal transition.
func (r *Registry) Remove(ticker string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instruments, ticker)
}

// Delist marks an instrument DELISTED. Terminal: a delisted instrument never
// returns to Active. The caller is responsible for cancelling resting orders.
func (r *Registry) Delist(ticker string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ins, exists := r.instruments[ticker]
	if !exists {
		return core.ErrInstrumentNotFound
	}
	ins.Status = Delisted
	r.instruments[ticker] = ins
	return nil
}
