package core

import "github.com/google/uuid"

// NewID returns a fresh task identifier. IDs are random UUIDs, so an
// identifier issued once is never handed out again within a registry's
// lifetime.
func NewID() string {
	return uuid.NewString()
}
