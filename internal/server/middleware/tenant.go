package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardsync/internal/domain"
)

// RequireCompanyMember admits only callers that Auth resolved to a user of a
// company holding one of the known roles. Board handlers rely on
// PrincipalFromContext succeeding after this point.
func RequireCompanyMember() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok || !domain.ValidRole(p.Role) {
				log.Debug().Str("path", r.URL.Path).Str("role", p.Role).Msg("request without company membership")
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"title":"Forbidden","status":403,"detail":"company membership required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
