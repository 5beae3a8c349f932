// ABOUTME: Actor identity context for tracking who performs mutating operations
// ABOUTME: Provides WithActor/ActorFromContext for propagating identity via context

package auth

import (
	"context"
)

// Actor is the already-authenticated identity performing a request.
type Actor struct {
	ID   string // identifier issued by the external auth system
	Role string // "operator" | "service" | "admin"
}

// IsAdmin returns true if the actor holds the admin role.
func (a *Actor) IsAdmin() bool {
	return a.Role == "admin"
}

// actorContextKey is the key type for storing an Actor in context.Context.
type actorContextKey struct{}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext retrieves the Actor from the context, returning nil if not present.
func ActorFromContext(ctx context.Context) *Actor {
	val := ctx.Value(actorContextKey{})
	if val == nil {
		return nil
	}
	actor, ok := val.(*Actor)
	if !ok {
		return nil
	}
	return actor
}
