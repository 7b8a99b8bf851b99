package auth

import "context"

type authContextKey struct{}

// ContextWith attaches the resolved authorization snapshot to the request
// context. Only the authentication middleware does this; handlers read it.
func ContextWith(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, &ac)
}

// FromContext extracts the authorization snapshot. ok is false when the
// request never passed authentication; callers must fail closed on that.
func FromContext(ctx context.Context) (AuthContext, bool) {
	if ctx == nil {
		return AuthContext{}, false
	}
	v, ok := ctx.Value(authContextKey{}).(*AuthContext)
	if !ok || v == nil {
		return AuthContext{}, false
	}
	return *v, true
}
