// Package shortid generates the public short identifiers used in snippet URLs.
//
// Identifiers are drawn uniformly from a 62-symbol alphanumeric alphabet
// using crypto/rand. A predictable source would let anyone enumerate
// snippet links, so math/rand is never an option here.
//
// The generator does not check uniqueness. The storage layer enforces it
// with a UNIQUE constraint and the caller regenerates on collision.
package shortid

import (
	"crypto/rand"
	"fmt"
)

// Alphabet is the symbol set: digits, uppercase, lowercase.
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// DefaultLength gives 62^10 ≈ 8.4e17 possible identifiers.
const DefaultLength = 10

// rejectAbove is the largest multiple of len(Alphabet) that fits in a byte
// (62*4 = 248). Bytes at or above it are discarded to avoid modulo bias.
const rejectAbove = 248

// Generate returns a random identifier of the given length.
// A non-positive length falls back to DefaultLength.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}

	out := make([]byte, 0, length)
	// Read in batches: with a 248/256 acceptance rate one batch of
	// length+length/4 bytes almost always suffices.
	buf := make([]byte, length+length/4+1)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("shortid: reading random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= rejectAbove {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// Valid reports whether s has the given length and only alphabet symbols.
// Handlers use it to answer malformed identifiers with 404 without a
// storage lookup.
func Valid(s string, length int) bool {
	if length <= 0 {
		length = DefaultLength
	}
	if len(s) != length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isAlphabet(s[i]) {
			return false
		}
	}
	return true
}

func isAlphabet(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
