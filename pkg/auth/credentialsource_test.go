package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/substream/substream-control/pkg/auth"
)

type countingSource struct {
	mu    sync.Mutex
	calls int
	next  auth.CredentialSource
}

func (s *countingSource) Credential(ctx context.Context, grant *auth.VideoGrant) (*auth.Credential, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.next.Credential(ctx, grant)
}

func TestIssuerSource(t *testing.T) {
	apiKey, secret := apiKeypair()
	src := auth.NewIssuerSource(auth.NewIssuer(apiKey, secret), "substream-admin", 0)
	require.Equal(t, auth.AdminTokenTTL, src.ValidFor())

	cred, err := src.Credential(context.Background(), auth.IngressAdminGrant())
	require.NoError(t, err)
	require.Equal(t, "substream-admin", cred.Identity)
	require.True(t, cred.Grants().Video.IngressAdmin)
	require.Equal(t, auth.AdminTokenTTL, cred.ValidFor())
}

func TestCachedSource(t *testing.T) {
	apiKey, secret := apiKeypair()
	inner := &countingSource{next: auth.NewIssuerSource(auth.NewIssuer(apiKey, secret), "admin", auth.AdminTokenTTL)}
	cached := auth.NewCachedSource(inner, 8, auth.AdminTokenTTL)
	ctx := context.Background()

	a, err := cached.Credential(ctx, auth.IngressAdminGrant())
	require.NoError(t, err)
	b, err := cached.Credential(ctx, auth.IngressAdminGrant())
	require.NoError(t, err)
	require.Same(t, a, b)
	require.Equal(t, 1, inner.calls)

	c, err := cached.Credential(ctx, auth.RoomListGrant())
	require.NoError(t, err)
	require.NotSame(t, a, c)
	require.Equal(t, 2, inner.calls)
	require.Equal(t, 2, cached.Len())
}

func TestCachedSource_Refresh(t *testing.T) {
	apiKey, secret := apiKeypair()
	validFor := 2 * time.Second
	inner := &countingSource{next: auth.NewIssuerSource(auth.NewIssuer(apiKey, secret), "admin", validFor)}
	cached := auth.NewCachedSource(inner, 8, validFor)
	ctx := context.Background()

	a, err := cached.Credential(ctx, auth.IngressAdminGrant())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		b, err := cached.Credential(ctx, auth.IngressAdminGrant())
		return err == nil && b != a
	}, 3*time.Second, 100*time.Millisecond)
	require.GreaterOrEqual(t, inner.calls, 2)
}

func TestCacheTTL(t *testing.T) {
	require.Equal(t, auth.AdminTokenTTL-30*time.Second, auth.CacheTTL(auth.AdminTokenTTL))
	require.Equal(t, time.Second, auth.CacheTTL(2*time.Second))
}
