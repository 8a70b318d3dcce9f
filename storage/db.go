package storage

import (
	"github.com/OdyseeTeam/pow-blocks/blockchain"
	"github.com/OdyseeTeam/pow-blocks/blockchain/model"

	"github.com/cockroachdb/errors"
	"github.com/genjidb/genji"
	"github.com/genjidb/genji/document"
	"github.com/genjidb/genji/types"
)

// BlockDB is an in-memory document database of block views, for ad hoc SQL inspection.
// It is a copy for exploring, never consulted by validation.
type BlockDB struct {
	db *genji.DB
}

type blockRow struct {
	Height       int64  `genji:"height"`
	Timestamp    int64  `genji:"timestamp"`
	Data         string `genji:"data"`
	PreviousHash string `genji:"previous_hash"`
	Hash         string `genji:"hash"`
	Nonce        int64  `genji:"nonce"`
}

func Open() (*BlockDB, error) {
	db, err := genji.Open(":memory:")
	if err != nil {
		return nil, errors.Wrap(err, "opening genji")
	}

	err = db.Exec("CREATE TABLE blocks")
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating blocks table")
	}
	return &BlockDB{db: db}, nil
}

func (s *BlockDB) Save(b model.Block) error {
	row := blockRow{
		Height:       int64(b.Index),
		Timestamp:    b.Timestamp,
		Data:         string(blockchain.CanonicalData(b.Data)),
		PreviousHash: b.PreviousHash,
		Hash:         b.Hash,
		Nonce:        int64(b.Nonce),
	}
	return errors.Wrapf(s.db.Exec(`INSERT INTO blocks VALUES ?`, &row), "saving block %d", b.Index)
}

// Query runs q and returns every resulting document as a map
func (s *BlockDB) Query(q string, args ...interface{}) ([]map[string]interface{}, error) {
	res, err := s.db.Query(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}
	if res == nil {
		return []map[string]interface{}{}, nil
	}
	defer res.Close()

	var results = make([]map[string]interface{}, 0)
	err = res.Iterate(func(d types.Document) error {
		var m map[string]interface{}
		err := document.MapScan(d, &m)
		if err != nil {
			return errors.WithStack(err)
		}
		results = append(results, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *BlockDB) Close() error {
	return errors.WithStack(s.db.Close())
}
