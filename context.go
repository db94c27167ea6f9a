package bastion

import "context"

type contextKey int

const ctxKeyActor contextKey = iota

// DefaultActor is recorded in history when no actor is set on the context.
const DefaultActor = "console"

// WithActor returns a context naming who performs engine operations. The
// name is recorded in protection history.
func WithActor(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxKeyActor, name)
}

// ActorFromContext returns the actor set by WithActor, or DefaultActor.
func ActorFromContext(ctx context.Context) string {
	v, ok := ctx.Value(ctxKeyActor).(string)
	if !ok || v == "" {
		return DefaultActor
	}
	return v
}
