package realtime

import (
	"crypto/rand"
	"encoding/hex"
)

// NewRandomHex returns a random hex string of length 2*nBytes, used for
// envelope ids on gateway-originated frames. nBytes <= 0 falls back to
// 16 bytes.
func NewRandomHex(nBytes int) string {
	if nBytes <= 0 {
		nBytes = 16
	}

	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the platform entropy source is broken.
		// Envelope ids are advisory, so an empty id is tolerable here.
		return ""
	}

	return hex.EncodeToString(b)
}
