package blockchain

import (
	"context"
	"sync"
	"time"

	"github.com/OdyseeTeam/pow-blocks/blockchain/digest"
	"github.com/OdyseeTeam/pow-blocks/blockchain/model"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// GenesisMessage is the payload every genesis block carries
const GenesisMessage = "Genesis Block"

var (
	ErrInvalidDifficulty = errors.New("invalid difficulty")
	ErrEmptyChain        = errors.New("chain has no blocks")
)

type Config struct {
	Difficulty       int              // leading zero hex characters required of every mined block
	Algorithm        digest.Algorithm // fixed for the chain's lifetime
	Workers          int              // goroutines searching nonces per append. < 1 means 1
	MaxIterations    uint64           // per append. 0 = no limit
	MineTimeout      time.Duration    // per append. 0 = no limit
	GenesisTimestamp int64            // unix milliseconds. 0 = when the chain is created
}

func DefaultConfig() Config {
	return Config{
		Difficulty: 2,
		Algorithm:  digest.SHA256,
		Workers:    1,
	}
}

func (c Config) validate() error {
	if c.Difficulty < 0 || c.Difficulty > digest.HexLen {
		return errors.Wrapf(ErrInvalidDifficulty, "difficulty must be between 0 and %d, got %d", digest.HexLen, c.Difficulty)
	}
	if !c.Algorithm.Valid() {
		return errors.Wrapf(digest.ErrUnknownAlgorithm, "algorithm %d", int(c.Algorithm))
	}
	return nil
}

// Chain is an ordered sequence of blocks, each linked to the previous one by hash.
// Append and Validate may be called from multiple goroutines.
type Chain struct {
	mu sync.RWMutex

	blocks      []*Block
	difficulty  int
	algorithm   digest.Algorithm
	mineOpts    MineOptions
	mineTimeout time.Duration

	onBlockFn func(block model.Block)
}

// New creates a chain holding only its genesis block. Genesis is not mined.
func New(config Config) (*Chain, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	ts := config.GenesisTimestamp
	if ts == 0 {
		ts = nowMillis()
	}

	c := newChain(config)
	c.blocks = []*Block{NewGenesisBlock(ts, config.Algorithm)}
	return c, nil
}

// Restore builds a chain from blocks that were sealed elsewhere, e.g. read back from a dump.
// Nothing is mined or recomputed, so Validate reports exactly what was handed in. The chain
// holds copies; the blocks passed in are left as they were.
func Restore(config Config, blocks []*Block) (*Chain, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, errors.WithStack(ErrEmptyChain)
	}

	c := newChain(config)
	c.blocks = make([]*Block, len(blocks))
	for i, b := range blocks {
		if b == nil {
			return nil, errors.Newf("block %d is nil", i)
		}
		restored := *b
		restored.algorithm = config.Algorithm
		c.blocks[i] = &restored
	}
	return c, nil
}

func newChain(config Config) *Chain {
	return &Chain{
		difficulty:  config.Difficulty,
		algorithm:   config.Algorithm,
		mineOpts:    MineOptions{Workers: config.Workers, MaxIterations: config.MaxIterations},
		mineTimeout: config.MineTimeout,
	}
}

// NewGenesisBlock returns the well-known first block: index 0, previous hash "0", and a fixed message
func NewGenesisBlock(timestamp int64, algorithm digest.Algorithm) *Block {
	b := NewBlock(0, timestamp, map[string]interface{}{"message": GenesisMessage}, GenesisPreviousHash)
	if algorithm != b.algorithm {
		b.algorithm = algorithm
		b.Hash = b.ComputeHash()
	}
	return b
}

func (c *Chain) Difficulty() int {
	return c.difficulty
}

func (c *Chain) Algorithm() digest.Algorithm {
	return c.algorithm
}

func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Latest returns the tip of the chain
func (c *Chain) Latest() *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1]
}

// Block returns the stored block at position i. It is the live block, not a copy: changing
// it is possible and is exactly what Validate exists to catch.
func (c *Chain) Block(i int) (*Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.blocks) {
		return nil, false
	}
	return c.blocks[i], true
}

// Blocks returns display copies of every block, genesis first. Each call walks the chain
// from the start again.
func (c *Chain) Blocks() []model.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()

	views := make([]model.Block, len(c.blocks))
	for i, b := range c.blocks {
		views[i] = b.View()
	}
	return views
}

// OnBlock registers fn to be called with every block after it was appended
func (c *Chain) OnBlock(fn func(model.Block)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onBlockFn = fn
}

// Append links b to the current tip, mines it at the chain's difficulty and stores it.
// Without a configured timeout or iteration limit it only fails for a nil block or a
// payload with no JSON encoding (ErrUnencodableData).
func (c *Chain) Append(b *Block) error {
	return c.AppendContext(context.Background(), b)
}

// AppendContext is Append that gives up when ctx ends. A block whose mining was aborted is
// not stored. The configured MineTimeout starts once this append holds the chain, so
// waiting behind other appends does not use it up.
func (c *Chain) AppendContext(ctx context.Context, b *Block) error {
	if b == nil {
		return errors.New("cannot append a nil block")
	}
	if _, err := EncodeData(b.Data); err != nil {
		return errors.Wrapf(err, "appending block %d", b.Index)
	}

	c.mu.Lock()
	if c.mineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.mineTimeout)
		defer cancel()
	}

	tip := c.blocks[len(c.blocks)-1]
	if b.Index != tip.Index+1 {
		logrus.Warnf("appending block with index %d after block %d", b.Index, tip.Index)
	}

	b.algorithm = c.algorithm
	b.PreviousHash = tip.Hash

	_, err := b.MineContext(ctx, c.difficulty, c.mineOpts)
	if err != nil {
		c.mu.Unlock()
		return errors.Wrapf(err, "appending block %d", b.Index)
	}

	c.blocks = append(c.blocks, b)
	view := b.View()
	onBlockFn := c.onBlockFn
	c.mu.Unlock()

	logrus.Infof("new tip: %s", view)
	if onBlockFn != nil {
		onBlockFn(view)
	}
	return nil
}

func nowMillis() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}
