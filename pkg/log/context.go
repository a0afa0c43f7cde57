package log

import (
	"context"

	"github.com/rs/zerolog"
)

type (
	ctxKey         struct{}
	participantKey struct{}
)

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// Ctx retrieves the logger from the context.
// If no logger is found, the global logger is returned.
func Ctx(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return L()
}

// Participant names one gateway connection in log lines.
type Participant struct {
	SessionID    string
	ConnectionID string
	Role         string
	Name         string
}

// WithParticipant extends the context logger with p. A context already
// tagged with the same participant is returned as is, so the gateway and
// the role actor can both call it without repeating fields.
func WithParticipant(ctx context.Context, p Participant) (context.Context, zerolog.Logger) {
	if cur, ok := ctx.Value(participantKey{}).(Participant); ok && cur == p {
		return ctx, Ctx(ctx)
	}

	lc := Ctx(ctx).With().
		Str(FieldSessionID, p.SessionID).
		Str(FieldConnectionID, p.ConnectionID).
		Str(FieldRole, p.Role)
	if p.Name != "" {
		lc = lc.Str(FieldDisplayName, p.Name)
	}
	l := lc.Logger()

	ctx = context.WithValue(ctx, participantKey{}, p)
	return WithLogger(ctx, l), l
}

// ForBroadcast returns the context logger tagged with a binding session and,
// when known, the broadcast running on it.
func ForBroadcast(ctx context.Context, sessionID, broadcastID string) zerolog.Logger {
	lc := Ctx(ctx).With().Str(FieldSessionID, sessionID)
	if broadcastID != "" {
		lc = lc.Str(FieldBroadcastID, broadcastID)
	}
	return lc.Logger()
}
