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

package auth

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"

	"github.com/substream/substream-control/pkg/config"
)

// Credential is a signed, immutable bearer token and the claims it carries.
type Credential struct {
	APIKey    string
	Identity  string
	Audience  string
	NotBefore time.Time
	Expiry    time.Time

	grants *ClaimGrants
	token  string
}

// Token returns the compact serialized JWT.
func (c *Credential) Token() string {
	return c.token
}

// Grants returns a copy of the embedded claims.
func (c *Credential) Grants() *ClaimGrants {
	return c.grants.Clone()
}

func (c *Credential) ValidFor() time.Duration {
	return c.Expiry.Sub(c.NotBefore)
}

func (c *Credential) Expired(now time.Time) bool {
	return !now.Before(c.Expiry)
}

// String never includes the token.
func (c *Credential) String() string {
	return fmt.Sprintf("Credential(%s/%s, exp %s)", c.APIKey, c.Identity, c.Expiry.UTC().Format(time.RFC3339))
}

type IssuerOption func(*Issuer)

func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.now = now
	}
}

func WithAudience(aud string) IssuerOption {
	return func(i *Issuer) {
		i.audience = aud
	}
}

// Issuer signs credentials with an API key and its shared secret (HS256).
type Issuer struct {
	apiKey   string
	secret   string
	audience string
	now      func() time.Time
}

func NewIssuer(apiKey, secret string, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		apiKey: apiKey,
		secret: secret,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Issuer) APIKey() string {
	return i.apiKey
}

// Issue mints a credential for principalID valid from now (to the second) for
// validFor. The output is a pure function of the claims, the clock and the
// secret.
func (i *Issuer) Issue(principalID string, grants *ClaimGrants, validFor time.Duration) (*Credential, error) {
	if i.apiKey == "" {
		return nil, &config.ConfigurationError{Field: "api_key", Reason: "must be set"}
	}
	if i.secret == "" {
		return nil, &config.ConfigurationError{Field: "api_secret", Reason: "must be set"}
	}
	if principalID == "" {
		return nil, ErrInvalidIdentity
	}
	if grants == nil {
		return nil, ErrInvalidGrant
	}
	// NumericDate has second granularity
	if validFor <= 0 || validFor%time.Second != 0 {
		return nil, ErrInvalidValidity
	}

	sig, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte(i.secret)},
		(&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return nil, err
	}

	notBefore := i.now().UTC().Truncate(time.Second)
	expiry := notBefore.Add(validFor)

	cl := jwt.Claims{
		Issuer:    i.apiKey,
		Subject:   principalID,
		NotBefore: jwt.NewNumericDate(notBefore),
		Expiry:    jwt.NewNumericDate(expiry),
	}
	if i.audience != "" {
		cl.Audience = jwt.Audience{i.audience}
	}

	claims := grants.Clone()
	claims.Identity = principalID

	token, err := jwt.Signed(sig).Claims(cl).Claims(claims).CompactSerialize()
	if err != nil {
		return nil, err
	}

	return &Credential{
		APIKey:    i.apiKey,
		Identity:  principalID,
		Audience:  i.audience,
		NotBefore: notBefore,
		Expiry:    expiry,
		grants:    claims,
		token:     token,
	}, nil
}
