package blockchain

import (
	"fmt"

	"github.com/OdyseeTeam/pow-blocks/blockchain/digest"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// Reason names the first rule a block broke
type Reason int

const (
	OK              Reason = iota
	HashMismatch           // stored hash differs from the recomputed digest
	BrokenLink             // previous hash differs from the predecessor's hash
	DifficultyUnmet        // hash lacks the required leading zeros
)

func (r Reason) String() string {
	switch r {
	case OK:
		return "ok"
	case HashMismatch:
		return "hash mismatch"
	case BrokenLink:
		return "broken link"
	case DifficultyUnmet:
		return "difficulty unmet"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Verdict is the outcome of validating a chain. Index is meaningless when Reason is OK.
type Verdict struct {
	Index  int
	Reason Reason
}

func (v Verdict) Valid() bool {
	return v.Reason == OK
}

func (v Verdict) String() string {
	if v.Valid() {
		return "valid"
	}
	return fmt.Sprintf("block %d: %s", v.Index, v.Reason)
}

// Err converts an invalid verdict into an *InvalidBlockError, and a valid one into nil
func (v Verdict) Err() error {
	if v.Valid() {
		return nil
	}
	return errors.WithStack(&InvalidBlockError{Index: v.Index, Reason: v.Reason})
}

type InvalidBlockError struct {
	Index  int
	Reason Reason
}

func (e *InvalidBlockError) Error() string {
	return fmt.Sprintf("invalid chain: block %d: %s", e.Index, e.Reason)
}

// Validate recomputes every block hash from scratch and checks, in order, hash integrity,
// the link to the previous block and the difficulty. It stops at the first broken rule.
// Genesis is only checked for hash integrity.
func (c *Chain) Validate() Verdict {
	c.mu.RLock()
	v := validateBlocks(c.blocks, c.difficulty, c.algorithm)
	c.mu.RUnlock()

	if !v.Valid() {
		logrus.Warnf("chain invalid at %s", v)
	}
	return v
}

func (c *Chain) IsValid() bool {
	return c.Validate().Valid()
}

func validateBlocks(blocks []*Block, difficulty int, algorithm digest.Algorithm) Verdict {
	for i, b := range blocks {
		if b.Hash != b.hashWith(algorithm) {
			return Verdict{Index: i, Reason: HashMismatch}
		}

		if i == 0 {
			continue
		}

		if b.PreviousHash != blocks[i-1].Hash {
			return Verdict{Index: i, Reason: BrokenLink}
		}

		if !digest.MeetsDifficulty(b.Hash, difficulty) {
			return Verdict{Index: i, Reason: DifficultyUnmet}
		}
	}
	return Verdict{}
}
