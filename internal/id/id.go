// Package id provides unique identifier generation utilities.
// This is the canonical source for ID generation across the codebase.
package id

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// New generates a UUID v4 string. Used for stump and instance
// identifiers, where callers may also supply their own opaque ids.
func New() string {
	return uuid.NewString()
}

// Short generates a short random hex ID (16 characters).
// Suitable for recorded-context ids where brevity matters.
func Short() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
