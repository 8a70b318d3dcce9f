package loader

import (
	"io"
	"os"

	"github.com/OdyseeTeam/pow-blocks/blockchain"
	"github.com/OdyseeTeam/pow-blocks/stream"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// how often to report progress while reading a dump
const progressInterval = 1000

// Load reads a chain dump and rebuilds the chain exactly as stored, without mining anything.
// A chain that reads fine but does not validate is not an error: the verdict says what is wrong.
func Load(r io.Reader) (*blockchain.Chain, blockchain.Verdict, error) {
	blockStream, err := stream.NewReader(r)
	if err != nil {
		return nil, blockchain.Verdict{}, err
	}
	header := blockStream.Header()

	var blocks []*blockchain.Block
	for {
		block, err := blockStream.NextBlock()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, blockchain.Verdict{}, err
		}

		if len(blocks)%progressInterval == 0 && len(blocks) > 0 {
			logrus.Infof("loaded %dk blocks", len(blocks)/1000)
		}
		blocks = append(blocks, block)
	}

	config := blockchain.DefaultConfig()
	config.Difficulty = header.Difficulty
	config.Algorithm = header.Algorithm

	chain, err := blockchain.Restore(config, blocks)
	if err != nil {
		return nil, blockchain.Verdict{}, err
	}

	logrus.Infof("loaded %d blocks (difficulty %d, %s)", chain.Len(), header.Difficulty, header.Algorithm)
	return chain, chain.Validate(), nil
}

// LoadFile is Load for a dump on disk
func LoadFile(path string) (*blockchain.Chain, blockchain.Verdict, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, blockchain.Verdict{}, errors.Wrap(err, "opening dump")
	}
	defer f.Close()

	chain, verdict, err := Load(f)
	if err != nil {
		return nil, blockchain.Verdict{}, errors.WithMessagef(err, "file %s", path)
	}
	return chain, verdict, nil
}

// SaveFile writes c to path as a dump
func SaveFile(path string, c *blockchain.Chain) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating dump")
	}

	n, err := stream.WriteChain(f, c)
	if err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "closing dump")
	}

	logrus.Infof("wrote %d blocks to %s", n, path)
	return nil
}
