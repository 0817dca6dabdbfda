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

	"github.com/go-jose/go-jose/v3/jwt"

	"github.com/substream/substream-control/pkg/config"
)

type APIKeyTokenVerifier struct {
	token    *jwt.JSONWebToken
	apiKey   string
	identity string
	audience []string
}

func ParseAPIToken(raw string) (*APIKeyTokenVerifier, error) {
	tok, err := jwt.ParseSigned(raw)
	if err != nil {
		return nil, err
	}

	out := jwt.Claims{}
	if err := tok.UnsafeClaimsWithoutVerification(&out); err != nil {
		return nil, err
	}

	return &APIKeyTokenVerifier{
		token:    tok,
		apiKey:   out.Issuer,
		identity: out.Subject,
		audience: out.Audience,
	}, nil
}

// Returns the API key this token was signed with
func (v *APIKeyTokenVerifier) APIKey() string {
	return v.apiKey
}

func (v *APIKeyTokenVerifier) Identity() string {
	return v.identity
}

func (v *APIKeyTokenVerifier) Audience() []string {
	return v.audience
}

// UnverifiedGrants decodes the claims without checking the signature.
func (v *APIKeyTokenVerifier) UnverifiedGrants() (*ClaimGrants, error) {
	claims := ClaimGrants{}
	if err := v.token.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return nil, err
	}
	claims.Identity = v.identity
	return &claims, nil
}

func (v *APIKeyTokenVerifier) Verify(secret string) (*ClaimGrants, error) {
	return v.VerifyAt(secret, time.Now())
}

// VerifyAt checks the signature, the issuer and the validity window at now.
func (v *APIKeyTokenVerifier) VerifyAt(secret string, now time.Time) (*ClaimGrants, error) {
	if secret == "" {
		return nil, &config.ConfigurationError{Field: "api_secret", Reason: "must be set"}
	}
	out := jwt.Claims{}
	claims := ClaimGrants{}
	if err := v.token.Claims([]byte(secret), &out, &claims); err != nil {
		return nil, err
	}
	if err := out.Validate(jwt.Expected{Issuer: v.apiKey, Time: now}); err != nil {
		return nil, err
	}
	claims.Identity = out.Subject
	return &claims, nil
}
