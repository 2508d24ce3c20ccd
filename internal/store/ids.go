package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrIDSpaceExhausted indicates id generation kept colliding with
// existing ids and gave up.
var ErrIDSpaceExhausted = errors.New("could not generate a unique id")

const idAttempts = 100

// NewID generates a short id of the form <prefix><6 hex chars>, derived
// by hashing fresh entropy. taken reports whether a candidate is already
// in use; generation retries up to 100 times on collision.
func NewID(prefix string, taken func(id string) bool) (string, error) {
	for i := 0; i < idAttempts; i++ {
		sum := sha256.Sum256([]byte(uuid.NewString() + time.Now().String()))
		id := prefix + hex.EncodeToString(sum[:3])
		if taken == nil || !taken(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts (prefix %q)", ErrIDSpaceExhausted, idAttempts, prefix)
}
