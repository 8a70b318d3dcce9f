package storage

import (
	"github.com/OdyseeTeam/pow-blocks/blockchain"
	"github.com/OdyseeTeam/pow-blocks/blockchain/model"

	"github.com/sirupsen/logrus"
)

// Track records every block already in c into db and index, then keeps them current as blocks
// are appended. Either store may be nil.
func Track(c *blockchain.Chain, db *BlockDB, index *Index) error {
	record := func(b model.Block) error {
		if db != nil {
			if err := db.Save(b); err != nil {
				return err
			}
		}
		if index != nil {
			if err := index.Put(b.Hash, b.Index); err != nil {
				return err
			}
		}
		return nil
	}

	for _, b := range c.Blocks() {
		if err := record(b); err != nil {
			return err
		}
	}

	c.OnBlock(func(b model.Block) {
		if err := record(b); err != nil {
			logrus.Errorf("%+v", err)
		}
	})
	return nil
}
