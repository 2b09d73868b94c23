package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the caller-supplied creator identity in context.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the creator identity, or fallback when unset.
func ActorFromContext(ctx context.Context, fallback string) string {
	if actor, ok := ctx.Value(actorContextKey{}).(string); ok && actor != "" {
		return actor
	}
	return fallback
}
