package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardsync/internal/auth"
	"github.com/gosuda/boardsync/internal/domain"
)

type CreateCompanyInput struct {
	Body struct {
		Name      string `json:"name" minLength:"1" maxLength:"255" doc:"Company name"`
		Slug      string `json:"slug" minLength:"1" maxLength:"63" pattern:"^[a-z0-9]+(?:-[a-z0-9]+)*$" doc:"URL-safe slug (lowercase alphanumeric with hyphens)"`
		AdminName string `json:"admin_name" minLength:"1" maxLength:"255" doc:"Display name of the first admin"`
		Email     string `json:"email" minLength:"3" maxLength:"255" doc:"Admin email"`
		Password  string `json:"password" minLength:"8" maxLength:"128" doc:"Admin password"` //nolint:gosec // G117: signup credential DTO
	}
}

type GetCompanyOutput struct {
	Body *domain.Tenant
}

// RegisterSignupRoutes registers the unauthenticated company signup.
func RegisterSignupRoutes(api huma.API, store DataStore, authSvc AuthService) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-company",
		Method:        http.MethodPost,
		Path:          "/companies",
		Summary:       "Create a company and its first admin",
		Tags:          []string{"Companies"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateCompanyInput) (*SessionOutput, error) {
		_, err := companyBySlug(ctx, store, input.Body.Slug)
		if err == nil {
			return nil, huma.Error409Conflict("company slug already taken")
		}
		if statusOf(err) != http.StatusNotFound {
			return nil, err
		}

		now := time.Now()
		tenant := &domain.Tenant{
			ID:        uuid.New(),
			Name:      input.Body.Name,
			Slug:      input.Body.Slug,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := store.Tenants().Create(ctx, tenant); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return nil, huma.Error409Conflict("company slug already taken")
			}
			return nil, huma.Error500InternalServerError("failed to create company", err)
		}

		user, err := authSvc.RegisterWithRole(ctx, tenant.ID, input.Body.Email, input.Body.Password, input.Body.AdminName, domain.RoleAdmin)
		if err != nil {
			log.Error().Err(err).Str("tenant_id", tenant.ID.String()).Msg("company created without admin")
			if errors.Is(err, auth.ErrUserAlreadyExists) {
				return nil, huma.Error409Conflict("user already exists")
			}
			return nil, huma.Error500InternalServerError("failed to create admin user", err)
		}

		access, refresh, err := authSvc.Login(ctx, tenant.ID, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, huma.Error500InternalServerError("company created but failed to issue tokens", err)
		}

		log.Info().Str("tenant_id", tenant.ID.String()).Str("slug", tenant.Slug).Msg("company created")

		// A fresh company has no boards yet.
		return &SessionOutput{Body: newSession(ctx, store, nil, tenant, user, access, refresh)}, nil
	})
}

// RegisterCompanyRoutes registers company routes that require authentication.
func RegisterCompanyRoutes(api huma.API, store DataStore) {
	huma.Register(api, huma.Operation{
		OperationID: "get-current-company",
		Method:      http.MethodGet,
		Path:        "/companies/current",
		Summary:     "Get the caller's company",
		Tags:        []string{"Companies"},
	}, func(ctx context.Context, _ *struct{}) (*GetCompanyOutput, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}

		tenant, err := store.Tenants().GetByID(ctx, p.TenantID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("company not found")
			}
			return nil, huma.Error500InternalServerError("failed to get company", err)
		}

		return &GetCompanyOutput{Body: tenant}, nil
	})
}
