// Package auth provides bearer credentials for the remote store.
//
// Acquiring the first credential (the OAuth consent flow) happens outside
// this process. The sources here either hold an access token handed over by
// the user, or renew one from a refresh token.
package auth

import (
	"context"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

// Source yields a bearer token. interactive tells the source whether the
// caller is a user waiting on a prompt (manual command) or a background job.
type Source interface {
	Token(ctx context.Context, interactive bool) (domain.Token, error)
}

// Invalidator drops a cached credential once the remote store rejected it.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// StaticSource returns a fixed access token.
type StaticSource struct {
	token string
}

// NewStaticSource wraps a pre-acquired access token.
func NewStaticSource(accessToken string) *StaticSource {
	return &StaticSource{token: accessToken}
}

func (s *StaticSource) Token(_ context.Context, _ bool) (domain.Token, error) {
	if s.token == "" {
		return domain.Token{}, &domain.AuthError{Message: "no access token configured"}
	}
	return domain.Token{AccessToken: s.token}, nil
}
