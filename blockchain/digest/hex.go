package digest

import (
	"encoding/hex"
	"strings"

	"github.com/cockroachdb/errors"
)

// Size is the length in bytes of every digest produced by this package
const Size = 32

// HexLen is the length of a hex-encoded digest
const HexLen = Size * 2

// Hex is the lowercase hex form of a digest
type Hex struct {
	hex string
}

func ToHex(b []byte) Hex {
	return Hex{hex: hex.EncodeToString(b)}
}

// FromString parses a hex-encoded digest in either case. The string must be exactly HexLen characters.
func FromString(s string) (Hex, error) {
	if len(s) != HexLen {
		return Hex{}, errors.Newf("digest must be %d hex characters, got %d", HexLen, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return Hex{}, errors.Wrap(err, "decoding digest")
	}
	return Hex{hex: strings.ToLower(s)}, nil
}

func (h Hex) String() string {
	return h.hex
}

// LeadingZeros counts the '0' characters at the start of s
func LeadingZeros(s string) int {
	n := 0
	for n < len(s) && s[n] == '0' {
		n++
	}
	return n
}

// MeetsDifficulty reports whether s starts with at least difficulty '0' characters.
// Every string meets a difficulty of zero or less.
func MeetsDifficulty(s string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if difficulty > len(s) {
		return false
	}
	return LeadingZeros(s[:difficulty]) == difficulty
}
