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
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// credentials are refreshed this long before they expire
const refreshMargin = 30 * time.Second

// IssuerSource mints a new credential on every call.
type IssuerSource struct {
	issuer   *Issuer
	identity string
	validFor time.Duration
}

func NewIssuerSource(issuer *Issuer, identity string, validFor time.Duration) *IssuerSource {
	if validFor == 0 {
		validFor = AdminTokenTTL
	}
	return &IssuerSource{
		issuer:   issuer,
		identity: identity,
		validFor: validFor,
	}
}

func (s *IssuerSource) ValidFor() time.Duration {
	return s.validFor
}

func (s *IssuerSource) Credential(_ context.Context, grant *VideoGrant) (*Credential, error) {
	return s.issuer.Issue(s.identity, &ClaimGrants{Video: grant}, s.validFor)
}

// CachedSource reuses credentials per grant until shortly before expiry.
// Entries age out of the cache on their own, a credential is never modified.
type CachedSource struct {
	source CredentialSource
	cache  *expirable.LRU[string, *Credential]
}

func NewCachedSource(source CredentialSource, size int, validFor time.Duration) *CachedSource {
	return &CachedSource{
		source: source,
		cache:  expirable.NewLRU[string, *Credential](size, nil, CacheTTL(validFor)),
	}
}

// CacheTTL is how long a credential valid for validFor may be handed out.
func CacheTTL(validFor time.Duration) time.Duration {
	if validFor > 2*refreshMargin {
		return validFor - refreshMargin
	}
	return validFor / 2
}

func (s *CachedSource) Credential(ctx context.Context, grant *VideoGrant) (*Credential, error) {
	key := grant.Fingerprint()
	if cred, ok := s.cache.Get(key); ok {
		return cred, nil
	}

	cred, err := s.source.Credential(ctx, grant)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, cred)
	return cred, nil
}

func (s *CachedSource) Len() int {
	return s.cache.Len()
}
