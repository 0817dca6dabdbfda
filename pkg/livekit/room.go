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

package livekit

import "time"

type Room struct {
	Sid             string `json:"sid"`
	Name            string `json:"name"`
	EmptyTimeout    uint32 `json:"empty_timeout,omitempty"`
	MaxParticipants uint32 `json:"max_participants"`
	CreationTime    Int64  `json:"creation_time"`
	Metadata        string `json:"metadata,omitempty"`
	NumParticipants uint32 `json:"num_participants"`
	NumPublishers   uint32 `json:"num_publishers,omitempty"`
	ActiveRecording bool   `json:"active_recording,omitempty"`
}

// CreatedAt converts the platform's unix-seconds creation time.
func (r *Room) CreatedAt() time.Time {
	return time.Unix(int64(r.CreationTime), 0).UTC()
}

type ListRoomsRequest struct {
	Names []string `json:"names,omitempty"`
}

type ListRoomsResponse struct {
	Rooms []*Room `json:"rooms"`
}

type ParticipantState string

const (
	ParticipantJoining      ParticipantState = "JOINING"
	ParticipantJoined       ParticipantState = "JOINED"
	ParticipantActive       ParticipantState = "ACTIVE"
	ParticipantDisconnected ParticipantState = "DISCONNECTED"
)

var participantStateByNumber = []ParticipantState{
	ParticipantJoining,
	ParticipantJoined,
	ParticipantActive,
	ParticipantDisconnected,
}

func (s *ParticipantState) UnmarshalJSON(data []byte) error {
	name, err := decodeEnum(data, func(n int) (string, bool) {
		if n < 0 || n >= len(participantStateByNumber) {
			return "", false
		}
		return string(participantStateByNumber[n]), true
	})
	if err != nil {
		return err
	}
	*s = ParticipantState(name)
	return nil
}

type ParticipantInfo struct {
	Sid         string           `json:"sid"`
	Identity    string           `json:"identity"`
	Name        string           `json:"name,omitempty"`
	State       ParticipantState `json:"state"`
	Metadata    string           `json:"metadata,omitempty"`
	JoinedAt    Int64            `json:"joined_at"`
	IsPublisher bool             `json:"is_publisher,omitempty"`
}

type ListParticipantsRequest struct {
	Room string `json:"room"`
}

type ListParticipantsResponse struct {
	Participants []*ParticipantInfo `json:"participants"`
}
