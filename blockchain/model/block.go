package model

import (
	"fmt"
	"time"
)

// Block is a read-only copy of a chained block, for display and enumeration.
// Changing a Block never affects the chain it was taken from.
type Block struct {
	Index        uint64      `json:"index"`
	Timestamp    int64       `json:"timestamp"` // unix milliseconds
	Data         interface{} `json:"data"`
	PreviousHash string      `json:"previous_hash"`
	Hash         string      `json:"hash"`
	Nonce        uint64      `json:"nonce"`
}

func (b Block) Time() time.Time {
	return time.Unix(0, b.Timestamp*int64(time.Millisecond))
}

func (b Block) String() string {
	return fmt.Sprintf("block %d (%s)", b.Index, short(b.Hash))
}

func short(hash string) string {
	if len(hash) > 20 {
		return hash[:20] + "..."
	}
	return hash
}
