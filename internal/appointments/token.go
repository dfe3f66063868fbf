package appointments

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenBytes gives 256 bits of entropy; collisions are negligible but the
// repository still enforces uniqueness.
const tokenBytes = 32

// NewToken returns a random hex-encoded confirmation token.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("appointments: generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
