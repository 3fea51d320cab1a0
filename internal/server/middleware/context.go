package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/boardsync/internal/auth"
)

type contextKey string

const (
	ContextKeyTenantID contextKey = "tenant_id"
	ContextKeyUserID   contextKey = "user_id"
	ContextKeyUserRole contextKey = "role"
)

// WithPrincipal stores the authenticated caller in ctx.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	ctx = context.WithValue(ctx, ContextKeyTenantID, p.TenantID)
	ctx = context.WithValue(ctx, ContextKeyUserID, p.UserID)
	ctx = context.WithValue(ctx, ContextKeyUserRole, p.Role)
	return ctx
}

// PrincipalFromContext rebuilds the caller stored by WithPrincipal.
// ok is false when no tenant or user is present.
func PrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	tenantID, ok := TenantIDFromContext(ctx)
	if !ok || tenantID == uuid.Nil {
		return auth.Principal{}, false
	}
	userID, ok := UserIDFromContext(ctx)
	if !ok || userID == uuid.Nil {
		return auth.Principal{}, false
	}
	role, _ := RoleFromContext(ctx)
	return auth.Principal{TenantID: tenantID, UserID: userID, Role: role}, true
}

func TenantIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(ContextKeyTenantID).(uuid.UUID)
	return v, ok
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(ContextKeyUserID).(uuid.UUID)
	return v, ok
}

func RoleFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyUserRole).(string)
	return v, ok
}
