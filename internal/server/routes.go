package server

import (
	"net/url"

	"github.com/danielgtaylor/huma/v2"

	v1 "github.com/gosuda/boardsync/internal/api/v1"
	"github.com/gosuda/boardsync/internal/api/ws"
	"github.com/gosuda/boardsync/internal/auth"
)

func registerPublicRoutes(api huma.API, store Store, authSvc *auth.Service, authz *auth.Authorizer) {
	v1.RegisterSignupRoutes(api, store, authSvc)
	v1.RegisterAuthRoutes(api, store, authSvc, authz)
}

func registerAPIRoutes(api huma.API, store Store, authz *auth.Authorizer, hub *ws.Hub, boards *v1.BoardSync) {
	v1.RegisterCompanyRoutes(api, store)
	v1.RegisterProjectRoutes(api, store, authz)
	v1.RegisterTaskRoutes(api, store, authz, boards)
	v1.RegisterBoardRoutes(api, authz, boards)
	v1.RegisterCommentRoutes(api, store, authz, hub)
	v1.RegisterActivityRoutes(api, store, authz)
}

// originPatterns converts CORS origins to the host patterns the websocket
// accept check expects. A "*" origin allows any host.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		out = append(out, u.Host)
	}
	return out
}
