package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized is what TenantResolver implementations return for an API
// key that does not map to a tenant.
var ErrUnauthorized = errors.New("unauthorized")

// TenantResolver maps a presented API key to the tenant that owns it.
// Implementations return ErrUnauthorized for unknown or revoked keys.
type TenantResolver interface {
	ResolveTenant(ctx context.Context, token string) (string, error)
}

// ctxKey is unexported so only this package can install the tenant.
type ctxKey int

const ctxKeyTenant ctxKey = iota

// TenantFromContext reports which tenant the request authenticated as.
func TenantFromContext(ctx context.Context) (string, bool) {
	tenantID, ok := ctx.Value(ctxKeyTenant).(string)
	return tenantID, ok && tenantID != ""
}

// RequireTenant admits only requests carrying a bearer API key that resolves
// to a tenant, and places the tenant ID on the request context for the RPC
// dispatcher. Everything under /rpc runs behind it.
func RequireTenant(resolver TenantResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			tenantID, err := resolver.ResolveTenant(r.Context(), token)
			if err != nil || tenantID == "" {
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyTenant, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	return token, token != ""
}
