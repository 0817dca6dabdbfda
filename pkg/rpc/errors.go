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

package rpc

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/twitchtv/twirp"
)

var (
	ErrMissingCredential = errors.New("rpc call requires a credential")
	ErrInvalidProcedure  = errors.New("procedure must be of the form Service/Method")
)

const (
	MsgTimeout  = "timeout"
	MsgCanceled = "canceled"
)

// Error is a failed call. StatusCode is 0 when no HTTP response was
// received: the call timed out, was canceled or could not connect.
type Error struct {
	StatusCode int
	Code       twirp.ErrorCode
	Msg        string
	Meta       map[string]string

	cause error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("rpc error: %s", e.Msg)
	}
	if e.Code != "" {
		return fmt.Sprintf("rpc error %d (%s): %s", e.StatusCode, e.Code, e.Msg)
	}
	return fmt.Sprintf("rpc error %d: %s", e.StatusCode, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Timeout reports whether the per call deadline was hit.
func (e *Error) Timeout() bool {
	return e.StatusCode == 0 && e.Msg == MsgTimeout
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}

// twirpError is the platform's error body.
type twirpError struct {
	Code twirp.ErrorCode   `json:"code"`
	Msg  string            `json:"msg"`
	Meta map[string]string `json:"meta,omitempty"`
}

// codeFromStatus follows twirp's handling of responses that carry no
// twirp error body, typically from a proxy in front of the platform.
func codeFromStatus(status int) twirp.ErrorCode {
	switch status {
	case http.StatusBadRequest:
		return twirp.Internal
	case http.StatusUnauthorized:
		return twirp.Unauthenticated
	case http.StatusForbidden:
		return twirp.PermissionDenied
	case http.StatusNotFound:
		return twirp.BadRoute
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return twirp.Unavailable
	default:
		return twirp.Unknown
	}
}
