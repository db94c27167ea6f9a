package bastion

import (
	"context"

	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/protection"
)

// Cache holds live protection entities between lookups. Entities with
// unsaved changes must stay resident until they are clean, so that reads
// observe writes still waiting in the save queue.
type Cache interface {
	// Get returns the cached protection with the given ID.
	Get(ctx context.Context, protID id.ProtectionID) (*protection.Protection, bool)

	// GetAt returns the cached protection at a location.
	GetAt(ctx context.Context, loc protection.Location) (*protection.Protection, bool)

	// Set stores a protection, indexed by ID and location.
	Set(ctx context.Context, p *protection.Protection)

	// Invalidate drops a protection from the cache.
	Invalidate(ctx context.Context, p *protection.Protection)

	// Len returns the number of cached protections.
	Len() int
}
