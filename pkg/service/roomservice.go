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
	"github.com/substream/substream-control/pkg/livekit"
)

// RoomService reads room state from the platform.
type RoomService struct {
	caller Caller
	creds  auth.CredentialSource
}

func NewRoomService(caller Caller, creds auth.CredentialSource) *RoomService {
	return &RoomService{
		caller: caller,
		creds:  creds,
	}
}

// ListRooms returns the active rooms, optionally filtered by name. No active
// rooms is an empty slice, a failed call is always an error.
func (s *RoomService) ListRooms(ctx context.Context, names ...string) ([]*livekit.Room, error) {
	cred, err := s.creds.Credential(ctx, auth.RoomListGrant())
	if err != nil {
		return nil, err
	}

	res := &livekit.ListRoomsResponse{}
	if err = s.caller.Call(ctx, procListRooms, cred, &livekit.ListRoomsRequest{Names: names}, res); err != nil {
		return nil, err
	}
	if res.Rooms == nil {
		return []*livekit.Room{}, nil
	}
	return res.Rooms, nil
}

func (s *RoomService) ListParticipants(ctx context.Context, room string) ([]*livekit.ParticipantInfo, error) {
	if room == "" {
		return nil, ErrRoomNameEmpty
	}
	cred, err := s.creds.Credential(ctx, auth.RoomAdminGrant(room))
	if err != nil {
		return nil, err
	}

	res := &livekit.ListParticipantsResponse{}
	if err = s.caller.Call(ctx, procListParticipants, cred, &livekit.ListParticipantsRequest{Room: room}, res); err != nil {
		return nil, err
	}
	if res.Participants == nil {
		return []*livekit.ParticipantInfo{}, nil
	}
	return res.Participants, nil
}
