// Package session provides the session store contract, an in-memory
// reference store, the request-scoped AuthSession and the middleware that
// restores and persists it around each request.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the session persistence contract. Records are opaque bytes keyed
// by session id. Durable stores (Redis and friends) plug in behind the same
// contract; the in-memory store is the reference implementation.
type Store interface {
	// Load returns the record for id, or (nil, nil) when absent or expired.
	// Implementations refresh the inactivity deadline on a successful load.
	Load(ctx context.Context, id string) ([]byte, error)

	// Save stores data under id with the given inactivity TTL.
	Save(ctx context.Context, id string, data []byte, ttl time.Duration) error

	// Invalidate removes the record for id. Unknown ids are not an error.
	Invalidate(ctx context.Context, id string) error

	// RotateID moves the record stored under oldID to a fresh id and
	// returns it. The fixation defense on login relies on this. An unknown
	// oldID still yields a fresh id.
	RotateID(ctx context.Context, oldID string) (string, error)
}

// NewID generates an unguessable session id.
func NewID() string {
	return uuid.NewString()
}
