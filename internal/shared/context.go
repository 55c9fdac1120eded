package shared

import (
	"context"
	"strings"
)

// ActorHeader carries the opaque identity of the caller.
const ActorHeader = "X-Actor-ID"

// SystemActor attributes changes made by background jobs.
const SystemActor = "system"

type actorContextKey struct{}

// ContextWithActor stores the actor identifier in context.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, strings.TrimSpace(actor))
}

// ActorFromContext extracts the actor identifier from context.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey{}).(string)
	return actor
}
