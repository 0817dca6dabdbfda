// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package devserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/twitchtv/twirp"

	"github.com/substream/substream-control/pkg/auth"
	"github.com/substream/substream-control/pkg/logger"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

type grantsKey struct{}

var (
	ErrPermissionDenied          = errors.New("permissions denied")
	ErrMissingAuthorization      = errors.New("invalid authorization header. Must start with " + bearerPrefix)
	ErrInvalidAuthorizationToken = errors.New("invalid authorization token")
	ErrRateLimited               = errors.New("rate limit exceeded")
)

// APIKeyAuthMiddleware verifies bearer tokens against the configured keys.
// Requests without a token pass through with no grants, handlers decide.
type APIKeyAuthMiddleware struct {
	provider auth.KeyProvider
	limiter  *KeyRateLimiter
}

func NewAPIKeyAuthMiddleware(provider auth.KeyProvider, limiter *KeyRateLimiter) *APIKeyAuthMiddleware {
	return &APIKeyAuthMiddleware{
		provider: provider,
		limiter:  limiter,
	}
}

func (m *APIKeyAuthMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	authHeader := r.Header.Get(authorizationHeader)
	if authHeader == "" {
		next.ServeHTTP(w, r)
		return
	}
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		handleError(w, twirp.NewError(twirp.Unauthenticated, ErrMissingAuthorization.Error()))
		return
	}

	v, err := auth.ParseAPIToken(authHeader[len(bearerPrefix):])
	if err != nil {
		handleError(w, twirp.NewError(twirp.Unauthenticated, ErrInvalidAuthorizationToken.Error()))
		return
	}

	secret := m.provider.GetSecret(v.APIKey())
	if secret == "" {
		handleError(w, twirp.NewError(twirp.Unauthenticated, "invalid API key: "+v.APIKey()))
		return
	}

	grants, err := v.Verify(secret)
	if err != nil {
		logger.Debugw("token rejected", "apiKey", v.APIKey(), "identity", v.Identity(), "error", err)
		handleError(w, twirp.NewError(twirp.Unauthenticated, "invalid token: "+err.Error()))
		return
	}

	if !m.limiter.Allow(v.APIKey()) {
		handleError(w, twirp.NewError(twirp.ResourceExhausted, ErrRateLimited.Error()))
		return
	}

	next.ServeHTTP(w, r.WithContext(WithGrants(r.Context(), grants)))
}

func GetGrants(ctx context.Context) *auth.ClaimGrants {
	claims, ok := ctx.Value(grantsKey{}).(*auth.ClaimGrants)
	if !ok {
		return nil
	}
	return claims
}

func WithGrants(ctx context.Context, grants *auth.ClaimGrants) context.Context {
	return context.WithValue(ctx, grantsKey{}, grants)
}

func EnsureIngressAdminPermission(ctx context.Context) error {
	claims := GetGrants(ctx)
	if claims == nil || claims.Video == nil {
		return twirpAuthError(ErrPermissionDenied)
	}
	if !claims.Video.IngressAdmin {
		return twirp.NewError(twirp.PermissionDenied, ErrPermissionDenied.Error())
	}
	return nil
}

// EnsureListPermission returns the single room a join-only token is limited
// to, or "" when the token may list every room.
func EnsureListPermission(ctx context.Context) (string, error) {
	claims := GetGrants(ctx)
	if claims == nil || claims.Video == nil {
		return "", twirpAuthError(ErrPermissionDenied)
	}
	switch {
	case claims.Video.RoomList:
		return "", nil
	case claims.Video.RoomJoin && claims.Video.Room != "":
		return claims.Video.Room, nil
	}
	return "", twirp.NewError(twirp.PermissionDenied, ErrPermissionDenied.Error())
}

func EnsureAdminPermission(ctx context.Context, room string) error {
	claims := GetGrants(ctx)
	if claims == nil || claims.Video == nil {
		return twirpAuthError(ErrPermissionDenied)
	}
	if !claims.Video.RoomAdmin || (claims.Video.Room != room && claims.Video.Room != auth.WildcardRoom) {
		return twirp.NewError(twirp.PermissionDenied, ErrPermissionDenied.Error())
	}
	return nil
}

// wraps authentication errors around Twirp
func twirpAuthError(err error) error {
	return twirp.NewError(twirp.Unauthenticated, err.Error())
}

func handleError(w http.ResponseWriter, err error) {
	_ = twirp.WriteError(w, err)
}
