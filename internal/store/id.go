package store

import "github.com/google/uuid"

// GenNewID mints a fresh random identifier for a store row or a tracing
// span, matching the uuid.UUID type every *_store.go ID field already uses.
func GenNewID() uuid.UUID {
	return uuid.New()
}
