package auth

import (
	"context"

	"github.com/petermazzocco/dsgnr/models"
)

// Identity is the authenticated caller of an operation. The zero value is
// an anonymous visitor.
type Identity struct {
	UserID   uint
	Username string
	Role     models.Role
}

func IdentityOf(u *models.User) Identity {
	return Identity{UserID: u.ID, Username: u.Username, Role: u.Role}
}

func (i Identity) Authenticated() bool {
	return i.UserID != 0
}

func (i Identity) IsAdmin() bool {
	return i.Authenticated() && i.Role == models.RoleAdmin
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFrom returns the identity stored by SessionManager.Load, or the
// anonymous identity.
func IdentityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(ctxKey{}).(Identity)
	return id
}
