package stream

import (
	"encoding/binary"
	"io"

	"github.com/OdyseeTeam/pow-blocks/blockchain"
	"github.com/OdyseeTeam/pow-blocks/blockchain/digest"

	"github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"
)

// Writer writes a chain dump: a header record followed by one record per block.
// Every record is the magic bytes, a uint32 LE body size and the body.
type Writer struct {
	w      io.Writer
	blocks int
}

// NewWriter writes the header to w
func NewWriter(w io.Writer, header Header) (*Writer, error) {
	if header.Difficulty < 0 || header.Difficulty > digest.HexLen {
		return nil, errors.Newf("difficulty %d out of range", header.Difficulty)
	}
	if !header.Algorithm.Valid() {
		return nil, errors.Wrapf(digest.ErrUnknownAlgorithm, "algorithm %d", int(header.Algorithm))
	}

	wr := &Writer{w: w}

	body := bytebufferpool.Get()
	defer bytebufferpool.Put(body)

	body.WriteByte(formatVersion)
	blockchain.WriteVarInt(body, uint64(header.Difficulty))
	body.WriteByte(byte(header.Algorithm))

	if err := wr.writeRecord(body.Bytes()); err != nil {
		return nil, errors.WithMessage(err, "header")
	}
	return wr, nil
}

// WriteBlock writes b exactly as it is. Nothing is recomputed, so a tampered block stays tampered.
func (wr *Writer) WriteBlock(b *blockchain.Block) error {
	body := bytebufferpool.Get()
	defer bytebufferpool.Put(body)

	blockchain.WriteVarInt(body, b.Index)
	blockchain.WriteUint64(body, uint64(b.Timestamp))
	blockchain.WriteUint64(body, b.Nonce)
	blockchain.WriteVarBytes(body, []byte(b.PreviousHash))
	blockchain.WriteVarBytes(body, []byte(b.Hash))
	blockchain.WriteVarBytes(body, blockchain.CanonicalData(b.Data))

	err := wr.writeRecord(body.Bytes())
	if err != nil {
		return errors.WithMessagef(err, "block %d", b.Index)
	}
	wr.blocks++
	return nil
}

// Blocks is how many blocks were written so far
func (wr *Writer) Blocks() int {
	return wr.blocks
}

func (wr *Writer) writeRecord(body []byte) error {
	if len(body) > maxRecordSize {
		return errors.Newf("record of %d bytes exceeds limit of %d", len(body), maxRecordSize)
	}

	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(body)))

	for _, part := range [][]byte{magicBytes, size[:], body} {
		if _, err := wr.w.Write(part); err != nil {
			return errors.Wrap(err, "writing record")
		}
	}
	return nil
}

// WriteChain dumps every block of c, genesis first
func WriteChain(w io.Writer, c *blockchain.Chain) (int, error) {
	wr, err := NewWriter(w, Header{Difficulty: c.Difficulty(), Algorithm: c.Algorithm()})
	if err != nil {
		return 0, err
	}

	for i := 0; ; i++ {
		b, ok := c.Block(i)
		if !ok {
			break
		}
		if err := wr.WriteBlock(b); err != nil {
			return wr.Blocks(), err
		}
	}
	return wr.Blocks(), nil
}
