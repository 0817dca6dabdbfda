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

package service

import (
	"errors"
	"fmt"

	"github.com/twitchtv/twirp"

	"github.com/substream/substream-control/pkg/livekit"
	"github.com/substream/substream-control/pkg/rpc"
)

var (
	ErrIngressNotFound = errors.New("ingress does not exist")
	ErrIngressIDEmpty  = errors.New("ingress id cannot be empty")
	ErrRoomNameEmpty   = errors.New("room name cannot be empty")
	ErrRequestNil      = errors.New("request cannot be nil")
)

// ProvisioningError is a create or delete the platform rejected. It is
// never retried here since creating is not idempotent.
type ProvisioningError struct {
	Op         string
	// the requested type for creates, UnspecifiedInput otherwise
	InputType  livekit.IngressInput
	StatusCode int
	Code       twirp.ErrorCode
	Msg        string

	err *rpc.Error
}

func (e *ProvisioningError) Error() string {
	if e.Op == "create" {
		return fmt.Sprintf("create ingress %s rejected (%s): %s", e.InputType, e.Code, e.Msg)
	}
	return fmt.Sprintf("%s ingress rejected (%s): %s", e.Op, e.Code, e.Msg)
}

func (e *ProvisioningError) Unwrap() error {
	return e.err
}

// Unsupported reports whether the platform refused the input type itself,
// as opposed to failing for an unrelated reason.
func (e *ProvisioningError) Unsupported() bool {
	switch e.Code {
	case twirp.InvalidArgument, twirp.Unimplemented, twirp.FailedPrecondition, twirp.OutOfRange:
		return true
	}
	return false
}

func newProvisioningError(op string, inputType livekit.IngressInput, err *rpc.Error) *ProvisioningError {
	return &ProvisioningError{
		Op:         op,
		InputType:  inputType,
		StatusCode: err.StatusCode,
		Code:       err.Code,
		Msg:        err.Msg,
		err:        err,
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrIngressNotFound)
}

// IsUnsupported reports whether err is a create rejected for its input type.
func IsUnsupported(err error) bool {
	var pErr *ProvisioningError
	return errors.As(err, &pErr) && pErr.Unsupported()
}
