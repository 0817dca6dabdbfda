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
	"context"

	"github.com/substream/substream-control/pkg/auth"
)

const (
	procCreateIngress    = "Ingress/CreateIngress"
	procListIngress      = "Ingress/ListIngress"
	procDeleteIngress    = "Ingress/DeleteIngress"
	procListRooms        = "RoomService/ListRooms"
	procListParticipants = "RoomService/ListParticipants"
)

// Caller executes one authenticated procedure call. *rpc.Transport is the
// production implementation.
type Caller interface {
	Call(ctx context.Context, procedure string, cred *auth.Credential, req, resp any) error
}
