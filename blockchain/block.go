package blockchain

import (
	"github.com/OdyseeTeam/pow-blocks/blockchain/digest"
	"github.com/OdyseeTeam/pow-blocks/blockchain/model"

	"github.com/valyala/bytebufferpool"
)

// GenesisPreviousHash is the sentinel previous hash of the genesis block
const GenesisPreviousHash = "0"

// Block is one unit of chained data. Its Hash is the digest of
// (Index, Timestamp, canonical Data, PreviousHash, Nonce) for as long as the block is untouched.
// Fields are exported so a block can be changed after it was sealed; nothing notices
// until the chain it belongs to is validated.
type Block struct {
	Index        uint64
	Timestamp    int64 // unix milliseconds
	Data         interface{}
	PreviousHash string
	Nonce        uint64
	Hash         string

	algorithm digest.Algorithm
}

// NewBlock builds an unsealed block with nonce 0 and its hash already computed, using SHA-256.
// Appending it to a chain switches it to the chain's algorithm.
func NewBlock(index uint64, timestamp int64, data interface{}, previousHash string) *Block {
	b := &Block{
		Index:        index,
		Timestamp:    timestamp,
		Data:         data,
		PreviousHash: previousHash,
	}
	b.Hash = b.ComputeHash()
	return b
}

// ComputeHash digests the block's current fields. It never changes the block.
func (b *Block) ComputeHash() string {
	return b.hashWith(b.algorithm)
}

// Algorithm is the hash function ComputeHash uses
func (b *Block) Algorithm() digest.Algorithm {
	return b.algorithm
}

func (b *Block) hashWith(a digest.Algorithm) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	writePreimage(buf, b.Index, b.Timestamp, CanonicalData(b.Data), b.PreviousHash)
	writeNonce(buf, b.Nonce)
	return a.SumHex(buf.Bytes())
}

// View returns a display copy of the block. Data is decoded afresh from its canonical
// encoding, so the view shares no memory with the block.
func (b *Block) View() model.Block {
	canonical := CanonicalData(b.Data)
	data, err := DecodeData(canonical)
	if err != nil {
		data = string(canonical)
	}
	return model.Block{
		Index:        b.Index,
		Timestamp:    b.Timestamp,
		Data:         data,
		PreviousHash: b.PreviousHash,
		Hash:         b.Hash,
		Nonce:        b.Nonce,
	}
}
