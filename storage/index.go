package storage

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/syndtr/goleveldb/leveldb"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// key prefixes
var (
	hashPrefix   = []byte("h") // h + hash -> height
	heightPrefix = []byte("n") // n + big-endian height -> hash
)

// Index maps block hashes to heights and back, in an in-memory leveldb
type Index struct {
	db *leveldb.DB
}

func OpenIndex() (*Index, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "opening index")
	}
	return &Index{db: db}, nil
}

func (i *Index) Put(hash string, height uint64) error {
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], height)

	batch := new(leveldb.Batch)
	batch.Put(append(append([]byte{}, hashPrefix...), hash...), h[:])
	batch.Put(append(append([]byte{}, heightPrefix...), h[:]...), []byte(hash))
	return errors.Wrapf(i.db.Write(batch, nil), "indexing block %d", height)
}

// Height returns the height of the block with this hash
func (i *Index) Height(hash string) (uint64, bool, error) {
	v, err := i.db.Get(append(append([]byte{}, hashPrefix...), hash...), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, errors.WithStack(err)
	}
	if len(v) != 8 {
		return 0, false, errors.Newf("corrupt index entry for %s", hash)
	}
	return binary.BigEndian.Uint64(v), true, nil
}

// Hashes returns every indexed hash, lowest height first
func (i *Index) Hashes() ([]string, error) {
	var hashes []string

	iter := i.db.NewIterator(util.BytesPrefix(heightPrefix), nil)
	for iter.Next() {
		// the returned slice is only valid until the next call to Next
		hashes = append(hashes, string(iter.Value()))
	}
	iter.Release()

	err := iter.Error()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return hashes, nil
}

func (i *Index) Close() error {
	return errors.WithStack(i.db.Close())
}
