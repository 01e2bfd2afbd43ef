// Package ids generates the opaque identifiers used for users, projects and tasks.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Valid reports whether id has the shape of an identifier produced by New.
// Malformed ids can be rejected before they reach the store.
func Valid(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}
