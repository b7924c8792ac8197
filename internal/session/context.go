// internal/session/context.go
//
// Request-context helpers.  middleware.LoadSession attaches the resolved
// Session, and handlers read it back:
//
//	ctx = session.WithSession(ctx, sess)
//	sess, ok := session.FromContext(ctx)

package session

import "context"

// ctxKey is unexported to avoid context-key collisions.
type ctxKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the Session stored in ctx, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}
