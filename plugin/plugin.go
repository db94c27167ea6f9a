// Package plugin defines the plugin system for Bastion.
// Plugins are notified of lifecycle events (protection created, role
// granted, access checked, save failed, etc.) and can react with logging,
// metrics, auditing or alerting.
//
// Each lifecycle hook is a separate interface so plugins opt in only
// to the events they care about.
package plugin

import (
	"context"

	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/protection"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Check lifecycle hooks
// ──────────────────────────────────────────────────

// BeforeCheck is called before an access check is resolved.
// The req parameter is *bastion.CheckRequest (passed as any to avoid import cycle).
type BeforeCheck interface {
	OnBeforeCheck(ctx context.Context, req any) error
}

// AfterCheck is called after an access check completes.
// The req parameter is *bastion.CheckRequest; result is access.Decision.
type AfterCheck interface {
	OnAfterCheck(ctx context.Context, req, result any) error
}

// ──────────────────────────────────────────────────
// Protection lifecycle hooks
// ──────────────────────────────────────────────────

// ProtectionCreated is called after a protection is registered.
type ProtectionCreated interface {
	OnProtectionCreated(ctx context.Context, p *protection.Protection) error
}

// ProtectionRemoved is called after a protection is removed.
type ProtectionRemoved interface {
	OnProtectionRemoved(ctx context.Context, protID id.ProtectionID) error
}

// ProtectionTransferred is called after a protection changes owner.
type ProtectionTransferred interface {
	OnProtectionTransferred(ctx context.Context, p *protection.Protection, previousOwner string) error
}

// ──────────────────────────────────────────────────
// Role lifecycle hooks
// ──────────────────────────────────────────────────

// RoleGranted is called after a role is granted or its level changed.
type RoleGranted interface {
	OnRoleGranted(ctx context.Context, r *protection.Role) error
}

// RoleRevoked is called after a role is revoked.
type RoleRevoked interface {
	OnRoleRevoked(ctx context.Context, protID id.ProtectionID, typ protection.RoleType, name string) error
}

// ──────────────────────────────────────────────────
// Persistence hooks
// ──────────────────────────────────────────────────

// SaveFailed is called when a background save fails. The entity stays
// dirty and is written again on its next save.
type SaveFailed interface {
	OnSaveFailed(ctx context.Context, entity any, err error) error
}

// Fatal is called with every error escalated by the database layer.
type Fatal interface {
	OnFatal(ctx context.Context, err error) error
}

// ──────────────────────────────────────────────────
// Shutdown hook
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
