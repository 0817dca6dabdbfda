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
	"errors"
	"time"
)

var (
	ErrInvalidIdentity = errors.New("principal identity cannot be empty")
	ErrInvalidGrant    = errors.New("grant cannot be nil")
	ErrInvalidValidity = errors.New("validity window must be a positive whole number of seconds")
)

const (
	// AdminTokenTTL is used for short lived control-plane calls.
	AdminTokenTTL = 600 * time.Second
	// ParticipantTokenTTL is used for tokens handed to media clients.
	ParticipantTokenTTL = 86400 * time.Second
)

type TokenVerifier interface {
	APIKey() string
	Identity() string
	Verify(secret string) (*ClaimGrants, error)
}

type KeyProvider interface {
	GetSecret(key string) string
	NumKeys() int
}

// CredentialSource hands out credentials carrying at least the given grant.
type CredentialSource interface {
	Credential(ctx context.Context, grant *VideoGrant) (*Credential, error)
}
