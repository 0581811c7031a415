package instrument

// Status is the listing status of an instrument
type Status int8

const (
	Active Status = iota // accepting new orders
	Delisted             // terminal, no new orders
)

func (s Status) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Delisted:
		return "DELISTED"
	default:
		return "UNKNOWN"
	}
}

// Instrument is a listed ticker. Settlement is in the exchange's single cash
// ticker; prices are integer cash units.
type Instrument struct {
	Ticker string // unique key, e.g. "MEMCOIN"
	Name   string // display name
	Status Status
}
