package auth

import (
	"context"

	"github.com/notifyhub/broadcast/internal/domain"
)

// Admin identifies the operator performing a mutating action.
type Admin struct {
	ID string
}

// Authenticator resolves the current admin session. Every mutating use case
// calls this first, outside any transaction; ErrUnauthorized means the action
// stops before any side effect.
type Authenticator interface {
	CurrentAdmin(ctx context.Context) (Admin, error)
}

type adminKey struct{}

// WithAdmin stores the authenticated admin on the context. The HTTP
// middleware calls this after validating the bearer token.
func WithAdmin(ctx context.Context, a Admin) context.Context {
	return context.WithValue(ctx, adminKey{}, a)
}

// ContextAuthenticator reads the admin placed on the context by the
// middleware. It is the production Authenticator; tests can use a
// StaticAuthenticator instead.
type ContextAuthenticator struct{}

func NewContextAuthenticator() *ContextAuthenticator { return &ContextAuthenticator{} }

func (ContextAuthenticator) CurrentAdmin(ctx context.Context) (Admin, error) {
	a, ok := ctx.Value(adminKey{}).(Admin)
	if !ok || a.ID == "" {
		return Admin{}, domain.ErrUnauthorized
	}
	return a, nil
}

// StaticAuthenticator always returns the configured admin, or Err when set.
type StaticAuthenticator struct {
	Admin Admin
	Err   error
}

func (s StaticAuthenticator) CurrentAdmin(context.Context) (Admin, error) {
	if s.Err != nil {
		return Admin{}, s.Err
	}
	return s.Admin, nil
}

var (
	_ Authenticator = (*ContextAuthenticator)(nil)
	_ Authenticator = StaticAuthenticator{}
)
