package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardsync/internal/auth"
	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/realtime"
)

const tokenTypeBearer = "Bearer"

// BoardRef is a project board the session may open, with the topic a client
// subscribes to for its live card moves.
type BoardRef struct {
	ID    uuid.UUID      `json:"id"`
	Name  string         `json:"name"`
	Topic realtime.Topic `json:"topic" doc:"Subscription topic for this board"`
}

// Session is returned by every route that signs a user in. It carries what a
// board client needs to connect without another round trip.
type Session struct {
	AccessToken  string         `json:"access_token"`            //nolint:gosec // G117: auth response DTO
	RefreshToken string         `json:"refresh_token,omitempty"` //nolint:gosec // G117: auth response DTO
	TokenType    string         `json:"token_type"`
	Company      *domain.Tenant `json:"company,omitempty"`
	User         *domain.User   `json:"user,omitempty"`
	Boards       []BoardRef     `json:"boards,omitempty" doc:"Boards the user can watch; omitted when none or unknown"`
}

type SessionOutput struct {
	Body Session
}

type RegisterInput struct {
	Body struct {
		TenantSlug string `json:"tenant_slug" minLength:"1" maxLength:"63" doc:"Company slug"`
		Email      string `json:"email" minLength:"3" maxLength:"255" doc:"User email"`
		Password   string `json:"password" minLength:"8" maxLength:"128" doc:"Password"` //nolint:gosec // G117: login credential DTO
		Name       string `json:"name" minLength:"1" maxLength:"255" doc:"Display name"`
	}
}

type LoginInput struct {
	Body struct {
		TenantSlug string `json:"tenant_slug" minLength:"1" maxLength:"63" doc:"Company slug"`
		Email      string `json:"email" minLength:"3" maxLength:"255" doc:"User email"`
		Password   string `json:"password" minLength:"1" maxLength:"128" doc:"Password"` //nolint:gosec // G117: login credential DTO
	}
}

type RefreshInput struct {
	Body struct {
		RefreshToken string `json:"refresh_token" minLength:"1" doc:"Refresh token"` //nolint:gosec // G117: token refresh DTO
	}
}

// companyBySlug resolves the company a sign-in or signup names.
func companyBySlug(ctx context.Context, store DataStore, slug string) (*domain.Tenant, error) {
	tenant, err := store.Tenants().GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, huma.Error404NotFound("company not found")
		}
		return nil, huma.Error500InternalServerError("failed to look up company", err)
	}
	return tenant, nil
}

// newSession strips the password hash and attaches the user's boards. A
// failed board lookup leaves Boards empty; the tokens are still good.
func newSession(ctx context.Context, store DataStore, authz Authorizer, tenant *domain.Tenant, user *domain.User, access, refresh string) Session {
	user.PasswordHash = ""
	s := Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		Company:      tenant,
		User:         user,
	}
	if authz == nil {
		return s
	}

	p := auth.Principal{TenantID: tenant.ID, UserID: user.ID, Role: user.Role}
	projects, err := visibleProjects(ctx, store, authz, p)
	if err != nil {
		log.Warn().Err(err).Str("tenant_id", tenant.ID.String()).Str("user_id", user.ID.String()).Msg("session issued without boards")
		return s
	}
	for _, project := range projects {
		s.Boards = append(s.Boards, BoardRef{ID: project.ID, Name: project.Name, Topic: realtime.ProjectTopic(project.ID)})
	}
	return s
}

// RegisterAuthRoutes registers member registration, login and token refresh.
// authz decides which boards a session lists.
func RegisterAuthRoutes(api huma.API, store DataStore, authSvc AuthService, authz Authorizer) {
	huma.Register(api, huma.Operation{
		OperationID: "register",
		Method:      http.MethodPost,
		Path:        "/auth/register",
		Summary:     "Join an existing company as a member",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *RegisterInput) (*SessionOutput, error) {
		tenant, err := companyBySlug(ctx, store, input.Body.TenantSlug)
		if err != nil {
			return nil, err
		}

		user, err := authSvc.RegisterWithRole(ctx, tenant.ID, input.Body.Email, input.Body.Password, input.Body.Name, domain.RoleMember)
		if err != nil {
			if errors.Is(err, auth.ErrUserAlreadyExists) {
				return nil, huma.Error409Conflict("user already exists")
			}
			return nil, huma.Error500InternalServerError("failed to register user", err)
		}

		access, refresh, err := authSvc.Login(ctx, tenant.ID, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, huma.Error500InternalServerError("registered but failed to issue tokens", err)
		}

		log.Info().Str("tenant_id", tenant.ID.String()).Str("user_id", user.ID.String()).Msg("member joined company")

		// A new member sees no boards until an admin adds them to a project.
		return &SessionOutput{Body: newSession(ctx, store, nil, tenant, user, access, refresh)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Sign in and list the boards the user can watch",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *LoginInput) (*SessionOutput, error) {
		tenant, err := companyBySlug(ctx, store, input.Body.TenantSlug)
		if err != nil {
			return nil, err
		}

		access, refresh, err := authSvc.Login(ctx, tenant.ID, input.Body.Email, input.Body.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				return nil, huma.Error401Unauthorized("invalid email or password")
			}
			return nil, huma.Error500InternalServerError("login failed", err)
		}

		user, err := store.Users().GetByEmail(ctx, tenant.ID, input.Body.Email)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to load user", err)
		}

		return &SessionOutput{Body: newSession(ctx, store, authz, tenant, user, access, refresh)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refresh-token",
		Method:      http.MethodPost,
		Path:        "/auth/refresh",
		Summary:     "Refresh access token",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *RefreshInput) (*SessionOutput, error) {
		access, err := authSvc.RefreshToken(ctx, input.Body.RefreshToken)
		if err != nil {
			return nil, huma.Error401Unauthorized("invalid or expired refresh token")
		}
		return &SessionOutput{Body: Session{AccessToken: access, TokenType: tokenTypeBearer}}, nil
	})
}
