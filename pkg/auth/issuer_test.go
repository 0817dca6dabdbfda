package auth_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/stretchr/testify/require"

	"github.com/substream/substream-control/pkg/auth"
	"github.com/substream/substream-control/pkg/config"
	"github.com/substream/substream-control/pkg/utils"
)

var issuedAt = time.Unix(1700000000, 0)

func fixedClock() time.Time {
	return issuedAt
}

func TestIssuer(t *testing.T) {
	t.Run("keys must be set", func(t *testing.T) {
		for _, pair := range [][2]string{{"", "secret"}, {"key", ""}} {
			_, err := auth.NewIssuer(pair[0], pair[1]).Issue("user", &auth.ClaimGrants{}, time.Minute)
			var confErr *config.ConfigurationError
			require.True(t, errors.As(err, &confErr))
		}
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		apiKey, secret := apiKeypair()
		s := auth.NewIssuer(apiKey, secret)

		_, err := s.Issue("", &auth.ClaimGrants{}, time.Minute)
		require.ErrorIs(t, err, auth.ErrInvalidIdentity)

		_, err = s.Issue("user", nil, time.Minute)
		require.ErrorIs(t, err, auth.ErrInvalidGrant)

		for _, validFor := range []time.Duration{0, -time.Second, 1500 * time.Millisecond} {
			_, err = s.Issue("user", &auth.ClaimGrants{}, validFor)
			require.ErrorIs(t, err, auth.ErrInvalidValidity)
		}
	})

	t.Run("validity window is exact", func(t *testing.T) {
		apiKey, secret := apiKeypair()
		s := auth.NewIssuer(apiKey, secret, auth.WithClock(func() time.Time {
			return issuedAt.Add(750 * time.Millisecond)
		}))

		grants := &auth.ClaimGrants{Video: auth.ParticipantGrant("unity-demo")}
		cred, err := s.Issue("unity-streamer", grants, auth.ParticipantTokenTTL)
		require.NoError(t, err)
		require.Equal(t, issuedAt.UTC(), cred.NotBefore)
		require.Equal(t, issuedAt.Add(86400*time.Second).UTC(), cred.Expiry)
		require.Equal(t, auth.ParticipantTokenTTL, cred.ValidFor())

		token, err := jwt.ParseSigned(cred.Token())
		require.NoError(t, err)
		claims := jwt.Claims{}
		require.NoError(t, token.Claims([]byte(secret), &claims))
		require.Equal(t, apiKey, claims.Issuer)
		require.Equal(t, "unity-streamer", claims.Subject)
		require.Equal(t, int64(1700000000), int64(*claims.NotBefore))
		require.Equal(t, int64(1700086400), int64(*claims.Expiry))
	})

	t.Run("identical input yields identical token", func(t *testing.T) {
		apiKey, secret := apiKeypair()
		s := auth.NewIssuer(apiKey, secret, auth.WithClock(fixedClock), auth.WithAudience("x"))
		grants := &auth.ClaimGrants{Video: auth.RoomListGrant()}

		a, err := s.Issue("admin", grants, auth.AdminTokenTTL)
		require.NoError(t, err)
		b, err := s.Issue("admin", grants, auth.AdminTokenTTL)
		require.NoError(t, err)
		require.Equal(t, a.Token(), b.Token())
		require.Len(t, strings.Split(a.Token(), "."), 3)
	})

	t.Run("credential does not alias caller grants", func(t *testing.T) {
		apiKey, secret := apiKeypair()
		grant := auth.NewGrant().Room("demo").Join().Build()
		cred, err := auth.NewIssuer(apiKey, secret).Issue("user", &auth.ClaimGrants{Video: grant}, time.Minute)
		require.NoError(t, err)

		grant.Room = "other"
		require.Equal(t, "demo", cred.Grants().Video.Room)
		require.Equal(t, "user", cred.Grants().Identity)
	})

	t.Run("string form hides the token", func(t *testing.T) {
		apiKey, secret := apiKeypair()
		cred, err := auth.NewIssuer(apiKey, secret).Issue("user", &auth.ClaimGrants{}, time.Minute)
		require.NoError(t, err)
		require.NotContains(t, cred.String(), cred.Token())
		require.False(t, cred.Expired(time.Now()))
		require.True(t, cred.Expired(cred.Expiry))
	})
}

func apiKeypair() (string, string) {
	return utils.NewAPIKeyPair()
}
