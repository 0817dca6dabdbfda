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

package devserver

import (
	"context"
	"slices"

	"github.com/twitchtv/twirp"

	"github.com/substream/substream-control/pkg/livekit"
)

// RoomService emulates the read side of the platform's RoomService.
type RoomService struct {
	store *LocalStore
}

func NewRoomService(store *LocalStore) *RoomService {
	return &RoomService{store: store}
}

// ListRooms lists every room for tokens with roomList. A join-only token
// sees at most the room it may join.
func (s *RoomService) ListRooms(ctx context.Context, req *livekit.ListRoomsRequest) (*livekit.ListRoomsResponse, error) {
	onlyRoom, err := EnsureListPermission(ctx)
	if err != nil {
		return nil, err
	}

	names := req.Names
	if onlyRoom != "" {
		if len(names) > 0 && !slices.Contains(names, onlyRoom) {
			return &livekit.ListRoomsResponse{Rooms: []*livekit.Room{}}, nil
		}
		names = []string{onlyRoom}
	}
	return &livekit.ListRoomsResponse{Rooms: s.store.ListRooms(names)}, nil
}

func (s *RoomService) ListParticipants(ctx context.Context, req *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error) {
	if req.Room == "" {
		return nil, twirp.RequiredArgumentError("room")
	}
	if err := EnsureAdminPermission(ctx, req.Room); err != nil {
		return nil, err
	}
	AppendLogFields(ctx, "room", req.Room)

	participants, err := s.store.ListParticipants(req.Room)
	if err != nil {
		return nil, twirp.NotFoundError(err.Error())
	}
	return &livekit.ListParticipantsResponse{Participants: participants}, nil
}
