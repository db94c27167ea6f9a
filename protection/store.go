package protection

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/bastion/access"
	"github.com/xraph/bastion/id"
)

// ErrNotFound is returned by stores when a protection does not exist.
var ErrNotFound = errors.New("protection: not found")

// ErrNoStore is returned when saving an entity that has no backing store.
var ErrNoStore = errors.New("protection: no store attached")

// Record is the persisted form of a protection and its roles.
type Record struct {
	ID        id.ProtectionID `json:"id"`
	Owner     string          `json:"owner"`
	Kind      Kind            `json:"kind"`
	Location  Location        `json:"location"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Roles     []RoleRecord    `json:"roles,omitempty"`
}

// RoleRecord is the persisted form of a role.
type RoleRecord struct {
	ProtectionID id.ProtectionID `json:"protection_id"`
	Type         RoleType        `json:"type"`
	Name         string          `json:"name"`
	Access       access.Level    `json:"access"`
}

// ListFilter narrows protection listings. Zero fields are ignored.
type ListFilter struct {
	Owner  string `json:"owner,omitempty"`
	World  string `json:"world,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store defines persistence operations for protections and their roles.
type Store interface {
	// InsertProtection writes a new protection row. Roles are saved separately.
	InsertProtection(ctx context.Context, rec *Record) error

	// UpdateProtection rewrites the metadata of an existing protection.
	UpdateProtection(ctx context.Context, rec *Record) error

	// DeleteProtection removes a protection and every role attached to it.
	DeleteProtection(ctx context.Context, protID id.ProtectionID) error

	// SaveRole inserts or updates a role keyed by (protection, type, name).
	SaveRole(ctx context.Context, rec *RoleRecord) error

	// DeleteRole removes a single role.
	DeleteRole(ctx context.Context, protID id.ProtectionID, typ RoleType, name string) error

	// GetProtection loads a protection with its roles.
	GetProtection(ctx context.Context, protID id.ProtectionID) (*Record, error)

	// GetProtectionAt loads the protection at a location.
	GetProtectionAt(ctx context.Context, loc Location) (*Record, error)

	// ListProtections returns protections matching the filter, roles included.
	ListProtections(ctx context.Context, filter *ListFilter) ([]*Record, error)

	// CountProtections returns the number of protections matching the filter.
	CountProtections(ctx context.Context, filter *ListFilter) (int64, error)
}
