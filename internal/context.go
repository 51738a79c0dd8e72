package internal

import (
	"context"
	"time"
)

type ctxKey string

const ContextActorKey ctxKey = "actorID"

// SystemActor is recorded on state changes that no human triggered.
const SystemActor = "system:payment-callback"

func ActorIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return SystemActor
	}
	if actorID, ok := ctx.Value(ContextActorKey).(string); ok && actorID != "" {
		return actorID
	}
	return SystemActor
}

func ContextWithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ContextActorKey, actorID)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
