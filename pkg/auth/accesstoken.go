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
	"time"
)

// AccessToken is a fluent builder for participant tokens.
type AccessToken struct {
	apiKey     string
	secret     string
	identity   string
	name       string
	metadata   string
	audience   string
	videoGrant *VideoGrant
	validFor   time.Duration
	now        func() time.Time
}

func NewAccessToken(key string, secret string) *AccessToken {
	return &AccessToken{
		apiKey: key,
		secret: secret,
	}
}

func (t *AccessToken) SetIdentity(identity string) *AccessToken {
	t.identity = identity
	return t
}

func (t *AccessToken) SetName(name string) *AccessToken {
	t.name = name
	return t
}

func (t *AccessToken) SetValidFor(duration time.Duration) *AccessToken {
	t.validFor = duration
	return t
}

func (t *AccessToken) SetAudience(aud string) *AccessToken {
	t.audience = aud
	return t
}

func (t *AccessToken) AddGrant(grant *VideoGrant) *AccessToken {
	t.videoGrant = grant
	return t
}

// SetMetadata sets the opaque participant metadata, usually a JSON document.
func (t *AccessToken) SetMetadata(md string) *AccessToken {
	t.metadata = md
	return t
}

func (t *AccessToken) SetClock(now func() time.Time) *AccessToken {
	t.now = now
	return t
}

func (t *AccessToken) Credential() (*Credential, error) {
	opts := []IssuerOption{WithAudience(t.audience)}
	if t.now != nil {
		opts = append(opts, WithClock(t.now))
	}

	validFor := ParticipantTokenTTL
	if t.validFor != 0 {
		validFor = t.validFor
	}

	grants := &ClaimGrants{
		Name:     t.name,
		Video:    t.videoGrant,
		Metadata: t.metadata,
	}
	return NewIssuer(t.apiKey, t.secret, opts...).Issue(t.identity, grants, validFor)
}

func (t *AccessToken) ToJWT() (string, error) {
	cred, err := t.Credential()
	if err != nil {
		return "", err
	}
	return cred.Token(), nil
}
