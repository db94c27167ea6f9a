package bastion

import "github.com/xraph/bastion/id"

// ID is the identifier type used for protections.
type ID = id.ID

// ProtectionID identifies a protection.
type ProtectionID = id.ProtectionID
