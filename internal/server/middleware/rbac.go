package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardsync/internal/domain"
)

const (
	RoleAdmin  = domain.RoleAdmin
	RoleMember = domain.RoleMember
	RoleViewer = domain.RoleViewer
)

func isRead(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// RequireWriteRole lets every authenticated role read, and only the listed
// roles send mutating requests. Must run after Auth.
//
// The per-project Authorizer still applies; this only rejects writes from
// roles that could never pass it, before any store access happens.
func RequireWriteRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := RoleFromContext(r.Context())
			if !ok || role == "" {
				http.Error(w, `{"title":"Unauthorized","status":401,"detail":"authentication required"}`, http.StatusUnauthorized)
				return
			}

			if isRead(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if _, match := allowed[role]; !match {
				log.Debug().Str("role", role).Str("method", r.Method).Str("path", r.URL.Path).Msg("write rejected for role")
				http.Error(w, `{"title":"Forbidden","status":403,"detail":"role is read-only"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ReadOnlyViewers is RequireWriteRole for admins and members.
func ReadOnlyViewers() func(http.Handler) http.Handler {
	return RequireWriteRole(RoleAdmin, RoleMember)
}
