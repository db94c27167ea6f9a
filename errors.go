package bastion

import (
	"errors"

	"github.com/xraph/bastion/protection"
)

var (
	// ErrAccessDenied is returned by Enforce when a check fails.
	ErrAccessDenied = errors.New("bastion: access denied")

	// ErrProtectionNotFound is returned when no protection matches. It is
	// the store sentinel, so errors from stores match it too.
	ErrProtectionNotFound = protection.ErrNotFound

	// ErrAlreadyProtected is returned when protecting an occupied location.
	ErrAlreadyProtected = errors.New("bastion: location already protected")

	// ErrRoleNotFound is returned when revoking a role that does not exist.
	ErrRoleNotFound = errors.New("bastion: role not found")

	// ErrUnknownRoleType is returned for unregistered role variants.
	ErrUnknownRoleType = errors.New("bastion: unknown role type")

	// ErrInvalidLevel is returned when granting an undefined access level.
	ErrInvalidLevel = errors.New("bastion: invalid access level")

	// ErrOwnerRequired is returned when protecting or transferring without an owner.
	ErrOwnerRequired = errors.New("bastion: owner is required")

	// ErrStoreRequired is returned by NewEngine without a store.
	ErrStoreRequired = errors.New("bastion: store is required")
)
