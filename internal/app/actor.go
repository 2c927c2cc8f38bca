package app

import (
	"context"
	"strings"
)

// SystemActor attributes mutations that carry no caller identity.
const SystemActor = "system"

// Actor carries the caller identity recorded in audit fields.
type Actor struct {
	UserID string
}

// actorContextKey stores context keys for actor metadata.
type actorContextKey struct{}

// WithActor attaches a normalized actor to context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	actor.UserID = strings.TrimSpace(actor.UserID)
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the actor when one with a user id is present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok || actor.UserID == "" {
		return Actor{}, false
	}
	return actor, true
}

// actorID resolves the audit identity for one mutation.
func actorID(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.UserID
	}
	return SystemActor
}
