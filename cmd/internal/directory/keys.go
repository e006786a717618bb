package directory

import (
	"crypto/rand"
	"math/big"
	mrand "math/rand"
	"strings"
)

const (
	// KeyLength is the fixed length of shareable room keys.
	KeyLength = 6

	// keyAlphabet is the uniform alphabet keys are drawn from.
	keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewRoomKey generates a short shareable key.
// It draws from crypto/rand and falls back to math/rand only when the
// cryptographic source fails.
func NewRoomKey() string {
	var b strings.Builder
	b.Grow(KeyLength)

	max := big.NewInt(int64(len(keyAlphabet)))
	for i := 0; i < KeyLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// Weak fallback; keys are shareable identifiers, not secrets.
			b.WriteByte(keyAlphabet[mrand.Intn(len(keyAlphabet))])
			continue
		}
		b.WriteByte(keyAlphabet[n.Int64()])
	}
	return b.String()
}

// NormalizeKey canonicalizes user-entered keys: trim surrounding whitespace,
// uppercase. Lookups are therefore case-insensitive from the caller's view.
func NormalizeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
