package blockchain

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
)

// ErrUnencodableData is returned for payloads that have no JSON encoding, e.g. NaN or a channel
var ErrUnencodableData = errors.New("payload cannot be encoded as JSON")

// RawData is a payload kept as the exact bytes it was stored with, because they do not decode
// as JSON. Only a block that was tampered with before it was written out carries one.
type RawData []byte

// CanonicalData returns the deterministic byte encoding of a block payload that goes into
// its hash. Values are encoded as JSON and then re-encoded from their generic form, so object
// keys come out sorted whatever the original Go type was, and numbers keep their literal text.
// Values JSON cannot represent fall back to their type and the encoding error, which keeps
// hashing total without letting memory addresses into the digest.
func CanonicalData(data interface{}) []byte {
	if raw, ok := data.(RawData); ok {
		return raw
	}
	canonical, err := encodeJSON(data)
	if err != nil {
		return []byte(fmt.Sprintf("!%T: %s", data, err))
	}
	return canonical
}

// EncodeData is CanonicalData without the fallback
func EncodeData(data interface{}) ([]byte, error) {
	if _, ok := data.(RawData); ok {
		return nil, errors.Wrap(ErrUnencodableData, "opaque payload")
	}
	canonical, err := encodeJSON(data)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "%T payload", data), ErrUnencodableData)
	}
	return canonical, nil
}

func encodeJSON(data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	generic, err := DecodeData(raw)
	if err != nil {
		return raw, nil
	}
	return json.Marshal(generic)
}

// DecodeData parses canonical payload bytes back into a generic value (maps, slices,
// json.Number, strings, bools, nil). CanonicalData of the result reproduces raw exactly.
func DecodeData(raw []byte) (interface{}, error) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// writePreimage writes everything that goes into a block hash except the nonce, in order: compact-size
// index, int64 LE timestamp, length-prefixed payload, length-prefixed previous hash
func writePreimage(w io.Writer, index uint64, timestamp int64, data []byte, previousHash string) {
	WriteVarInt(w, index)
	WriteUint64(w, uint64(timestamp))
	WriteVarBytes(w, data)
	WriteVarBytes(w, []byte(previousHash))
}

func writeNonce(w io.Writer, nonce uint64) {
	WriteUint64(w, nonce)
}

// WriteUint64 writes v as 8 little-endian bytes
func WriteUint64(w io.Writer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

// WriteVarBytes writes b prefixed with its compact-size length
func WriteVarBytes(w io.Writer, b []byte) {
	WriteVarInt(w, uint64(len(b)))
	w.Write(b)
}

// WriteVarInt writes v as a bitcoin-style compact size
func WriteVarInt(w io.Writer, v uint64) {
	if v < 0xfd { // single byte
		w.Write([]byte{byte(v)})
	} else if v <= 0xffff { // uint16
		w.Write([]byte{
			0xfd,
			byte(v), byte(v >> 8),
		})
	} else if v <= 0xffffffff { // uint32
		w.Write([]byte{
			0xfe,
			byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
	} else { // uint64
		w.Write([]byte{
			0xff,
			byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
			byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
		})
	}
}
