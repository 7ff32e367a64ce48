package middleware

import (
	"net/http"

	"github.com/lostfound-api/internal/domain"
)

// RequireRole returns middleware that allows access only to callers whose
// resolved role matches one of the provided roles. The email in the JWT is
// re-resolved on every request so a role change takes effect without a new
// token.
func RequireRole(adminEmail string, allowed ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			role := domain.ResolveRole(claims.Email, adminEmail)
			for _, a := range allowed {
				if role == a {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSONError(w, http.StatusForbidden, "forbidden")
		})
	}
}

// RequireStaff admits security and admin callers.
func RequireStaff(adminEmail string) func(http.Handler) http.Handler {
	return RequireRole(adminEmail, domain.RoleSecurity, domain.RoleAdmin)
}
