package stream

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"io"

	"github.com/OdyseeTeam/pow-blocks/blockchain"
	"github.com/OdyseeTeam/pow-blocks/blockchain/digest"

	"github.com/cockroachdb/errors"
)

var ErrBadMagic = errors.New("bad magic bytes")

// magicBytes start every record in a dump
var magicBytes = []byte{0xfa, 0xe4, 0xaa, 0xf1}

const formatVersion = 1

// maxRecordSize guards against allocating whatever a corrupt size field says
const maxRecordSize = 32 << 20

// Header is the first record of a dump. It carries the chain-wide settings the blocks were sealed with.
type Header struct {
	Difficulty int
	Algorithm  digest.Algorithm
}

type Reader struct {
	r       io.Reader
	header  Header
	records int
}

// NewReader reads the dump header from r. Blocks follow through NextBlock.
func NewReader(r io.Reader) (*Reader, error) {
	rd := &Reader{r: r}

	body, err := rd.nextRecord()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.Wrap(io.ErrUnexpectedEOF, "dump has no header")
		}
		return nil, err
	}

	rd.header, err = readHeader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.WithMessage(noEOF(err), "header")
	}
	return rd, nil
}

func (rd *Reader) Header() Header {
	return rd.header
}

// NextBlock returns the next block in the dump, or io.EOF when there are none left
func (rd *Reader) NextBlock() (*blockchain.Block, error) {
	body, err := rd.nextRecord()
	if err != nil {
		return nil, err
	}

	// position of this block in the chain; the header is the first record
	position := rd.records - 2

	r := bytes.NewReader(body)
	block, err := readBlock(r)
	if err != nil {
		return nil, errors.WithMessagef(noEOF(err), "block at position %d", position)
	}
	if r.Len() != 0 {
		return nil, errors.Newf("block at position %d: %d trailing bytes", position, r.Len())
	}
	return block, nil
}

// ReadAll returns the header and every remaining block
func ReadAll(r io.Reader) (Header, []*blockchain.Block, error) {
	rd, err := NewReader(r)
	if err != nil {
		return Header{}, nil, err
	}

	var blocks []*blockchain.Block
	for {
		b, err := rd.NextBlock()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Header{}, nil, err
		}
		blocks = append(blocks, b)
	}
	return rd.header, blocks, nil
}

// nextRecord returns the body of the next record. io.EOF means the dump ended cleanly between records.
func (rd *Reader) nextRecord() ([]byte, error) {
	err := consumeUntilNextRecord(rd.r)
	if err != nil {
		return nil, err
	}

	size, err := readUint32(rd.r)
	if err != nil {
		return nil, noEOF(err)
	}
	if size > maxRecordSize {
		return nil, errors.Newf("record %d claims %d bytes, limit is %d", rd.records, size, maxRecordSize)
	}

	body, err := read(rd.r, int(size))
	if err != nil {
		return nil, noEOF(err)
	}
	rd.records++
	return body, nil
}

func readHeader(r io.Reader) (Header, error) {
	version, err := readByte(r)
	if err != nil {
		return Header{}, err
	}
	if version != formatVersion {
		return Header{}, errors.Newf("unsupported dump version %d", version)
	}

	difficulty, err := readCompactSize(r)
	if err != nil {
		return Header{}, err
	}
	if difficulty > digest.HexLen {
		return Header{}, errors.Newf("difficulty %d out of range", difficulty)
	}

	algorithm, err := readByte(r)
	if err != nil {
		return Header{}, err
	}
	if !digest.Algorithm(algorithm).Valid() {
		return Header{}, errors.Wrapf(digest.ErrUnknownAlgorithm, "algorithm %d", algorithm)
	}

	return Header{Difficulty: int(difficulty), Algorithm: digest.Algorithm(algorithm)}, nil
}

func readBlock(r io.Reader) (*blockchain.Block, error) {
	var err error
	block := &blockchain.Block{}

	block.Index, err = readCompactSize(r)
	if err != nil {
		return nil, err
	}

	ts, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	block.Timestamp = int64(ts)

	block.Nonce, err = readUint64(r)
	if err != nil {
		return nil, err
	}

	prev, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}
	block.PreviousHash = string(prev)

	hash, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}
	block.Hash = string(hash)

	data, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}
	block.Data, err = blockchain.DecodeData(data)
	if err != nil {
		// kept byte for byte so the stored hash can still be checked against it
		block.Data = blockchain.RawData(data)
	}

	return block, nil
}

func readVarBytes(r io.Reader) ([]byte, error) {
	size, err := readCompactSize(r)
	if err != nil {
		return nil, err
	}
	if size > maxRecordSize {
		return nil, errors.Newf("field claims %d bytes", size)
	}
	return read(r, int(size))
}

func readCompactSize(r io.Reader) (uint64, error) {
	size, err := readByte(r)
	if err != nil {
		return 0, err
	}

	switch size {
	case 0xff:
		return readUint64(r)
	case 0xfe:
		varInt, err := readUint32(r)
		return uint64(varInt), err
	case 0xfd:
		varInt, err := readUint16(r)
		return uint64(varInt), err
	default:
		return uint64(size), nil
	}
}

// consumeUntilNextRecord consumes 0x00 padding until it finds the next set of magic bytes.
// It returns io.EOF if the input ends before a record starts.
func consumeUntilNextRecord(r io.Reader) error {
	var firstByte byte
	var err error

	b, err := read(r, len(magicBytes))
	if err != nil {
		return err
	} else if bytes.Equal(b, magicBytes) {
		// exit fast for the most common case
		return nil
	}

	if !bytes.Equal(b, []byte{0, 0, 0, 0}) {
		return errors.Wrapf(ErrBadMagic, "expected %s, got %s", hex.EncodeToString(magicBytes), hex.EncodeToString(b))
	}

	// continue consuming the 0x00 bytes one by one
	for {
		firstByte, err = readByte(r)
		if err != nil {
			return err
		}

		if firstByte != 0x00 {
			break
		}
	}

	// after getting through all of the 0x00 bytes, check again for magic bytes
	rest, err := read(r, len(magicBytes)-1)
	if err != nil {
		return noEOF(err)
	}

	if firstByte != magicBytes[0] || !bytes.Equal(magicBytes[1:], rest) {
		return errors.Wrapf(ErrBadMagic, "expected %s, got %s", hex.EncodeToString(magicBytes),
			hex.EncodeToString(append([]byte{firstByte}, rest...)))
	}

	return nil
}

func readUint64(r io.Reader) (uint64, error) {
	buf, err := read(r, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

func readUint32(r io.Reader) (uint32, error) {
	buf, err := read(r, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func readUint16(r io.Reader) (uint16, error) {
	buf, err := read(r, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func readByte(r io.Reader) (byte, error) {
	buf, err := read(r, 1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// read returns exactly numBytes bytes. io.EOF comes back only if nothing at all could be read.
func read(r io.Reader, numBytes int) ([]byte, error) {
	b := make([]byte, numBytes)
	n, err := io.ReadFull(r, b)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, errors.Wrapf(err, "expected to read %d bytes, only got %d", numBytes, n)
	}
	return b, nil
}

// noEOF turns a clean EOF in the middle of a record into io.ErrUnexpectedEOF
func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return errors.Wrap(io.ErrUnexpectedEOF, "truncated record")
	}
	return err
}
