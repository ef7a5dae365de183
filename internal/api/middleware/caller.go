package middleware

import (
	"context"
	"net/http"
	"strings"
)

// UserHeader carries the authenticated caller, set by the gateway in front of
// the service.
const UserHeader = "X-User"

type callerKey struct{}

// RequireUser rejects requests without a caller with 401 and stores the
// caller in the request context.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get(UserHeader))
		if user == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"missing X-User header"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), user)))
	})
}

// WithCaller returns a copy of ctx carrying user as the caller.
func WithCaller(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, callerKey{}, user)
}

// CallerFromContext returns the caller stored by RequireUser.
func CallerFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(callerKey{}).(string)
	return user, ok && user != ""
}
