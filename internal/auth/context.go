package auth

import "context"

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// CallerContext identifies the authenticated caller of a booking or
// settlement operation. It is always passed explicitly; no operation reads
// the caller from shared state.
type CallerContext struct {
	ID    string
	Email string
	Role  string
}

func (c CallerContext) IsAdmin() bool {
	return c.Role == RoleAdmin
}

type contextKey string

const callerKey contextKey = "caller"

// WithCaller stores the caller on a request context (used by the
// middleware and by tests).
func WithCaller(ctx context.Context, caller CallerContext) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// Caller extracts the authenticated caller from a request context.
func Caller(ctx context.Context) (CallerContext, bool) {
	caller, ok := ctx.Value(callerKey).(CallerContext)
	return caller, ok
}
