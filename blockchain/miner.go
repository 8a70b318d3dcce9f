package blockchain

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OdyseeTeam/pow-blocks/blockchain/digest"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/valyala/bytebufferpool"
)

// ErrMiningAborted is returned when mining stops before a qualifying nonce was found
var ErrMiningAborted = errors.New("mining aborted")

// how many nonces a worker tries between looks at its context
const cancelCheckInterval = 256

type MineOptions struct {
	Workers       int    // how many goroutines search the nonce space. < 1 means 1
	MaxIterations uint64 // give up after this many hashes. 0 = no limit
}

type MiningResult struct {
	Nonce      uint64
	Hash       string
	Iterations uint64 // hashes tried, not counting the one computed before the search
	Elapsed    time.Duration
}

// Mine increments the nonce until the hash has difficulty leading zero hex characters.
// For a difficulty between 0 and digest.HexLen it does not return until it succeeds. Any other
// difficulty is logged and the block is left as it was, with a zero MiningResult.
func (b *Block) Mine(difficulty int) MiningResult {
	res, err := b.MineContext(context.Background(), difficulty, MineOptions{})
	if err != nil {
		// only an out of range difficulty gets here
		logrus.Errorf("%+v", err)
	}
	return res
}

// MineContext is Mine with a way out. It returns an error wrapping ErrMiningAborted when ctx
// ends or opts.MaxIterations hashes were tried without success; the block then keeps its
// starting nonce and a hash that matches it.
func (b *Block) MineContext(ctx context.Context, difficulty int, opts MineOptions) (MiningResult, error) {
	start := time.Now()

	if difficulty < 0 || difficulty > digest.HexLen {
		return MiningResult{}, errors.Wrapf(ErrInvalidDifficulty, "%d", difficulty)
	}

	// the stored hash may be stale, e.g. after the chain set PreviousHash
	b.Hash = b.ComputeHash()
	if digest.MeetsDifficulty(b.Hash, difficulty) {
		return MiningResult{Nonce: b.Nonce, Hash: b.Hash, Elapsed: time.Since(start)}, nil
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	logrus.Debugf("mining block %d at difficulty %d with %d worker(s)", b.Index, difficulty, workers)

	prefix := bytebufferpool.Get()
	defer bytebufferpool.Put(prefix)
	writePreimage(prefix, b.Index, b.Timestamp, CanonicalData(b.Data), b.PreviousHash)

	s := &nonceSearch{
		prefix:     prefix.Bytes(),
		algorithm:  b.algorithm,
		difficulty: difficulty,
		maxTries:   opts.MaxIterations,
		first:      b.Nonce + 1,
		step:       uint64(workers),
	}

	searchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan MiningResult, workers)
	wg := &sync.WaitGroup{}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			s.worker(searchCtx, uint64(i), found, cancel)
		}(i)
	}
	wg.Wait()
	close(found)

	tried := s.iterations()
	res, ok := <-found
	if !ok {
		if err := ctx.Err(); err != nil {
			return MiningResult{Iterations: tried, Elapsed: time.Since(start)},
				errors.Wrapf(errors.Mark(err, ErrMiningAborted), "block %d after %d hashes", b.Index, tried)
		}
		return MiningResult{Iterations: tried, Elapsed: time.Since(start)},
			errors.Wrapf(ErrMiningAborted, "block %d: no nonce within %d hashes", b.Index, opts.MaxIterations)
	}

	b.Nonce = res.Nonce
	b.Hash = res.Hash
	res.Iterations = tried
	res.Elapsed = time.Since(start)

	logrus.Infof("block %d mined in %s, nonce %d, %d hashes", b.Index, res.Elapsed, res.Nonce, res.Iterations)
	return res, nil
}

// nonceSearch splits the nonce space between workers: worker i tries first+i, first+i+step, ...
type nonceSearch struct {
	tried uint64 // first for 64-bit atomic alignment

	prefix     []byte
	algorithm  digest.Algorithm
	difficulty int
	maxTries   uint64
	first      uint64
	step       uint64
}

func (s *nonceSearch) worker(ctx context.Context, offset uint64, found chan<- MiningResult, done func()) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	for i, nonce := 0, s.first+offset; ; i, nonce = i+1, nonce+s.step {
		if i%cancelCheckInterval == 0 && ctx.Err() != nil {
			return
		}

		n := atomic.AddUint64(&s.tried, 1)
		if s.maxTries > 0 && n > s.maxTries {
			return
		}

		buf.Reset()
		buf.Write(s.prefix)
		writeNonce(buf, nonce)
		hash := s.algorithm.SumHex(buf.Bytes())

		if digest.MeetsDifficulty(hash, s.difficulty) {
			found <- MiningResult{Nonce: nonce, Hash: hash}
			done()
			return
		}
	}
}

func (s *nonceSearch) iterations() uint64 {
	n := atomic.LoadUint64(&s.tried)
	if s.maxTries > 0 && n > s.maxTries {
		return s.maxTries
	}
	return n
}
