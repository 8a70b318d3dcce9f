package digest

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/lbryio/lbcd/chaincfg/chainhash"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// Algorithm selects the 256-bit hash function a chain is sealed with. It is fixed for
// the lifetime of a chain. The zero value is SHA256.
type Algorithm int

const (
	SHA256 Algorithm = iota
	DoubleSHA256
	Blake2b256
	Blake3
)

var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

var algorithmNames = map[Algorithm]string{
	SHA256:       "sha256",
	DoubleSHA256: "sha256d",
	Blake2b256:   "blake2b",
	Blake3:       "blake3",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return "unknown"
}

func (a Algorithm) Valid() bool {
	_, ok := algorithmNames[a]
	return ok
}

// ParseAlgorithm maps a name like "sha256" or "blake3" to its Algorithm
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for a, n := range algorithmNames {
		if n == name {
			return a, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownAlgorithm, "%q", name)
}

// Sum hashes b. It panics on an invalid Algorithm; callers validate at construction.
func (a Algorithm) Sum(b []byte) [Size]byte {
	switch a {
	case SHA256:
		return chainhash.HashH(b)
	case DoubleSHA256:
		return chainhash.DoubleHashH(b)
	case Blake2b256:
		return blake2b.Sum256(b)
	case Blake3:
		return blake3.Sum256(b)
	}
	panic(errors.Wrapf(ErrUnknownAlgorithm, "algorithm %d", int(a)))
}

// SumHex hashes b and returns the lowercase hex form
func (a Algorithm) SumHex(b []byte) string {
	sum := a.Sum(b)
	return ToHex(sum[:]).String()
}
