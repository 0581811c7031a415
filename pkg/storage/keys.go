package storage

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Key layout:
//
//	u:<user-uuid>                user record
//	i:<ticker>                   instrument record
//	o:<order-uuid>               order record (mutable, keyed by id)
//	b:<user-uuid>:<ticker>       live balance
//	ab:<user-uuid>:<ticker>      archived balance (user removal)
//	t:<ticker>:<8-byte seq>      trade record (append-only)
//	tseq                         last assigned trade sequence number
func kUser(id uuid.UUID) []byte { return []byte("u:" + id.String()) }

func kInstrument(ticker string) []byte { return []byte("i:" + ticker) }

func kOrder(id uuid.UUID) []byte { return []byte("o:" + id.String()) }

func kBalance(user uuid.UUID, ticker string) []byte {
	return []byte("b:" + user.String() + ":" + ticker)
}

func kArchivedBalance(user uuid.UUID, ticker string) []byte {
	return []byte("ab:" + user.String() + ":" + ticker)
}

func kTrade(ticker string, seq uint64) []byte {
	key := append([]byte("t:"+ticker+":"), make([]byte, 8)...)
	binary.BigEndian.PutUint64(key[len(key)-8:], seq)
	return key
}

func kTradeSeq() []byte { return []byte("tseq") }

func prefixTrades(ticker string) []byte { return []byte("t:" + ticker + ":") }

// keyUpperBound returns the smallest key greater than every key with the
// given prefix, for use as an iterator UpperBound.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff
}
