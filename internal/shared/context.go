package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the acting user ID in context. Identity is
// established by the fronting auth tier; this package only carries it.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the acting user ID from context, 0 when absent.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}
