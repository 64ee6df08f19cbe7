package types

import (
	"crypto/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID returns a time-ordered UUIDv7 string for entity primary keys
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

var (
	jobEntropyMu sync.Mutex
	jobEntropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewJobID returns a monotonic ULID so jobs created in the same millisecond
// still sort in creation order
func NewJobID() string {
	jobEntropyMu.Lock()
	defer jobEntropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), jobEntropy).String()
}
