package auth

import (
	"context"
	"slices"

	"github.com/jonocairns/tskr/internal/model"
)

type contextKey struct{}

type AuthContext struct {
	UserID      int64
	HouseholdID int64
	Role        model.Role
	SessionID   int64
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func HouseholdID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.HouseholdID
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

func Role(ctx context.Context) model.Role {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.Role
}

// HasRole reports whether the caller holds one of roles.
func HasRole(ctx context.Context, roles ...model.Role) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return slices.Contains(roles, ac.Role)
}

func IsDictator(ctx context.Context) bool {
	return HasRole(ctx, model.RoleDictator)
}

// CanApprove reports whether the caller may review other members' points.
func CanApprove(ctx context.Context) bool {
	return Role(ctx).CanApprove()
}
