// Package sha256 provides the SHA-256 content digest used to address media.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Prefix tags every digest with its algorithm.
const Prefix = "sha256-"

// Hasher implements crawler.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a prefixed hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return Prefix + hex.EncodeToString(sum[:]), nil
}

// Validate checks that digest has the shape produced by Hash.
func Validate(digest string) error {
	hexPart, ok := strings.CutPrefix(digest, Prefix)
	if !ok {
		return fmt.Errorf("digest %q: missing %s prefix", digest, Prefix)
	}
	if len(hexPart) != sha256.Size*2 {
		return fmt.Errorf("digest %q: want %d hex characters", digest, sha256.Size*2)
	}
	if _, err := hex.DecodeString(hexPart); err != nil {
		return fmt.Errorf("digest %q: %w", digest, err)
	}
	return nil
}
