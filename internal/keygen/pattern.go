package keygen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Escape forces the next pattern character to be emitted verbatim
const Escape = '\\'

// DefaultPattern is used for products created without an explicit
// pattern.
const DefaultPattern = "XXXX-XXXX-XXXX-XXXX"

// Alphabets for the pattern placeholders. '?' draws from the union of
// the other four.
const (
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	digitChars  = "0123456789"
	symbolChars = "!@#$%&*+"
	anyChars    = upperChars + lowerChars + digitChars + symbolChars
)

var alphabets = map[rune]string{
	'X': upperChars,
	'x': lowerChars,
	'9': digitChars,
	'#': symbolChars,
	'?': anyChars,
}

// FromPattern renders a key from a template string. Mapped characters
// are each resolved by a uniformly random draw from their alphabet,
// escaped characters are reproduced exactly, and everything else passes
// through unchanged.
func FromPattern(pattern string) (string, error) {
	if strings.TrimSpace(pattern) == "" {
		return "", fmt.Errorf("pattern strategy: %w", ErrInvalidConfiguration)
	}

	var b strings.Builder
	escaped := false
	for _, r := range pattern {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == Escape {
			escaped = true
			continue
		}
		alphabet, ok := alphabets[r]
		if !ok {
			b.WriteRune(r)
			continue
		}
		c, err := randomChar(alphabet)
		if err != nil {
			return "", err
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}

func randomChar(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, fmt.Errorf("random draw: %w", err)
	}
	return alphabet[n.Int64()], nil
}
