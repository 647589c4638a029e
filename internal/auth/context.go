package auth

import (
	"context"

	"github.com/dukerupert/ecoquest/internal/model"
)

type contextKey struct{}

func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(model.Identity)
	return id, ok
}

func UserID(ctx context.Context) int64 {
	id, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return id.UserID
}

func IsTeacher(ctx context.Context) bool {
	id, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return !id.Guest && id.Role == model.RoleTeacher
}

func IsGuest(ctx context.Context) bool {
	id, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return id.Guest
}
