// Package user maps an authenticated principal to the opaque user id that
// scopes webhook registrations.
package user

import (
	"context"
	"errors"
	"strings"
)

var ErrUnauthenticated = errors.New("principal is not authenticated")

// Principal is the caller identity established by the auth middleware.
type Principal struct {
	Name          string
	Authenticated bool
	Claims        map[string]string
}

type Resolver interface {
	GetUserID(ctx context.Context, principal Principal) (string, error)
}

// NameResolver uses the principal's name, or the named claim when set.
type NameResolver struct {
	Claim string
}

func (r NameResolver) GetUserID(_ context.Context, p Principal) (string, error) {
	if !p.Authenticated {
		return "", ErrUnauthenticated
	}
	id := p.Name
	if r.Claim != "" {
		if v, ok := p.Claims[r.Claim]; ok {
			id = v
		}
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

type principalKey struct{}

// WithPrincipal stores p on the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal, or an
// unauthenticated one.
func FromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}
