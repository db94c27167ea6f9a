package plugin

import (
	"context"
	"log/slog"

	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/protection"
)

// Named entry types pair a hook with the plugin name for logging.

type beforeCheckEntry struct {
	name string
	hook BeforeCheck
}
type afterCheckEntry struct {
	name string
	hook AfterCheck
}
type protectionCreatedEntry struct {
	name string
	hook ProtectionCreated
}
type protectionRemovedEntry struct {
	name string
	hook ProtectionRemoved
}
type protectionTransferredEntry struct {
	name string
	hook ProtectionTransferred
}
type roleGrantedEntry struct {
	name string
	hook RoleGranted
}
type roleRevokedEntry struct {
	name string
	hook RoleRevoked
}
type saveFailedEntry struct {
	name string
	hook SaveFailed
}
type fatalEntry struct {
	name string
	hook Fatal
}
type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered plugins and dispatches lifecycle events.
// It type-caches plugins at registration time so emit calls iterate
// only over plugins implementing the relevant hook.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	beforeCheck           []beforeCheckEntry
	afterCheck            []afterCheckEntry
	protectionCreated     []protectionCreatedEntry
	protectionRemoved     []protectionRemovedEntry
	protectionTransferred []protectionTransferredEntry
	roleGranted           []roleGrantedEntry
	roleRevoked           []roleRevokedEntry
	saveFailed            []saveFailedEntry
	fatal                 []fatalEntry
	shutdown              []shutdownEntry
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a plugin and type-asserts it into all applicable
// hook caches. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	if h, ok := p.(BeforeCheck); ok {
		r.beforeCheck = append(r.beforeCheck, beforeCheckEntry{name, h})
	}
	if h, ok := p.(AfterCheck); ok {
		r.afterCheck = append(r.afterCheck, afterCheckEntry{name, h})
	}
	if h, ok := p.(ProtectionCreated); ok {
		r.protectionCreated = append(r.protectionCreated, protectionCreatedEntry{name, h})
	}
	if h, ok := p.(ProtectionRemoved); ok {
		r.protectionRemoved = append(r.protectionRemoved, protectionRemovedEntry{name, h})
	}
	if h, ok := p.(ProtectionTransferred); ok {
		r.protectionTransferred = append(r.protectionTransferred, protectionTransferredEntry{name, h})
	}
	if h, ok := p.(RoleGranted); ok {
		r.roleGranted = append(r.roleGranted, roleGrantedEntry{name, h})
	}
	if h, ok := p.(RoleRevoked); ok {
		r.roleRevoked = append(r.roleRevoked, roleRevokedEntry{name, h})
	}
	if h, ok := p.(SaveFailed); ok {
		r.saveFailed = append(r.saveFailed, saveFailedEntry{name, h})
	}
	if h, ok := p.(Fatal); ok {
		r.fatal = append(r.fatal, fatalEntry{name, h})
	}
	if h, ok := p.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

// ──────────────────────────────────────────────────
// Check event emitters
// ──────────────────────────────────────────────────

// EmitBeforeCheck notifies all plugins that implement BeforeCheck.
func (r *Registry) EmitBeforeCheck(ctx context.Context, req any) {
	for _, e := range r.beforeCheck {
		if err := e.hook.OnBeforeCheck(ctx, req); err != nil {
			r.logHookError("OnBeforeCheck", e.name, err)
		}
	}
}

// EmitAfterCheck notifies all plugins that implement AfterCheck.
func (r *Registry) EmitAfterCheck(ctx context.Context, req, result any) {
	for _, e := range r.afterCheck {
		if err := e.hook.OnAfterCheck(ctx, req, result); err != nil {
			r.logHookError("OnAfterCheck", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Protection event emitters
// ──────────────────────────────────────────────────

// EmitProtectionCreated notifies all plugins that implement ProtectionCreated.
func (r *Registry) EmitProtectionCreated(ctx context.Context, p *protection.Protection) {
	for _, e := range r.protectionCreated {
		if err := e.hook.OnProtectionCreated(ctx, p); err != nil {
			r.logHookError("OnProtectionCreated", e.name, err)
		}
	}
}

// EmitProtectionRemoved notifies all plugins that implement ProtectionRemoved.
func (r *Registry) EmitProtectionRemoved(ctx context.Context, protID id.ProtectionID) {
	for _, e := range r.protectionRemoved {
		if err := e.hook.OnProtectionRemoved(ctx, protID); err != nil {
			r.logHookError("OnProtectionRemoved", e.name, err)
		}
	}
}

// EmitProtectionTransferred notifies all plugins that implement ProtectionTransferred.
func (r *Registry) EmitProtectionTransferred(ctx context.Context, p *protection.Protection, previousOwner string) {
	for _, e := range r.protectionTransferred {
		if err := e.hook.OnProtectionTransferred(ctx, p, previousOwner); err != nil {
			r.logHookError("OnProtectionTransferred", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Role event emitters
// ──────────────────────────────────────────────────

// EmitRoleGranted notifies all plugins that implement RoleGranted.
func (r *Registry) EmitRoleGranted(ctx context.Context, rl *protection.Role) {
	for _, e := range r.roleGranted {
		if err := e.hook.OnRoleGranted(ctx, rl); err != nil {
			r.logHookError("OnRoleGranted", e.name, err)
		}
	}
}

// EmitRoleRevoked notifies all plugins that implement RoleRevoked.
func (r *Registry) EmitRoleRevoked(ctx context.Context, protID id.ProtectionID, typ protection.RoleType, name string) {
	for _, e := range r.roleRevoked {
		if err := e.hook.OnRoleRevoked(ctx, protID, typ, name); err != nil {
			r.logHookError("OnRoleRevoked", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Persistence event emitters
// ──────────────────────────────────────────────────

// EmitSaveFailed notifies all plugins that implement SaveFailed.
func (r *Registry) EmitSaveFailed(ctx context.Context, entity any, err error) {
	for _, e := range r.saveFailed {
		if herr := e.hook.OnSaveFailed(ctx, entity, err); herr != nil {
			r.logHookError("OnSaveFailed", e.name, herr)
		}
	}
}

// EmitFatal notifies all plugins that implement Fatal.
func (r *Registry) EmitFatal(ctx context.Context, err error) {
	for _, e := range r.fatal {
		if herr := e.hook.OnFatal(ctx, err); herr != nil {
			r.logHookError("OnFatal", e.name, herr)
		}
	}
}

// ──────────────────────────────────────────────────
// Shutdown emitter
// ──────────────────────────────────────────────────

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors are never propagated to the caller.
func (r *Registry) logHookError(hook, pluginName string, err error) {
	r.logger.Warn("plugin hook error",
		slog.String("hook", hook),
		slog.String("plugin", pluginName),
		slog.String("error", err.Error()),
	)
}
