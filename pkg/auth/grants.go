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
	"encoding/json"
	"slices"
)

// WildcardRoom scopes a grant to every room in the project.
const WildcardRoom = "*"

type TrackSource string

const (
	SourceCamera           TrackSource = "camera"
	SourceMicrophone       TrackSource = "microphone"
	SourceScreenShare      TrackSource = "screen_share"
	SourceScreenShareAudio TrackSource = "screen_share_audio"
)

// VideoGrant is the capability set carried in the "video" claim.
// Publishing flags are pointers: nil leaves the platform default in place,
// which differs from an explicit false.
type VideoGrant struct {
	// room management
	RoomCreate bool `json:"roomCreate,omitempty"`
	RoomList   bool `json:"roomList,omitempty"`
	RoomRecord bool `json:"roomRecord,omitempty"`

	// room scoped
	RoomAdmin bool   `json:"roomAdmin,omitempty"`
	RoomJoin  bool   `json:"roomJoin,omitempty"`
	Room      string `json:"room,omitempty"`

	CanPublish     *bool `json:"canPublish,omitempty"`
	CanSubscribe   *bool `json:"canSubscribe,omitempty"`
	CanPublishData *bool `json:"canPublishData,omitempty"`
	// sent as is, the platform enforces it only when publishing is allowed
	CanPublishSources    []TrackSource `json:"canPublishSources,omitempty"`
	CanUpdateOwnMetadata *bool         `json:"canUpdateOwnMetadata,omitempty"`

	IngressAdmin bool `json:"ingressAdmin,omitempty"`
}

func (v *VideoGrant) SetCanPublish(val bool) {
	v.CanPublish = &val
}

func (v *VideoGrant) SetCanSubscribe(val bool) {
	v.CanSubscribe = &val
}

func (v *VideoGrant) SetCanPublishData(val bool) {
	v.CanPublishData = &val
}

func (v *VideoGrant) SetCanUpdateOwnMetadata(val bool) {
	v.CanUpdateOwnMetadata = &val
}

func (v *VideoGrant) GetCanPublish() bool {
	if v.CanPublish == nil {
		return true
	}
	return *v.CanPublish
}

func (v *VideoGrant) GetCanSubscribe() bool {
	if v.CanSubscribe == nil {
		return true
	}
	return *v.CanSubscribe
}

func (v *VideoGrant) GetCanPublishData() bool {
	if v.CanPublishData == nil {
		return v.GetCanPublish()
	}
	return *v.CanPublishData
}

func (v *VideoGrant) Clone() *VideoGrant {
	if v == nil {
		return nil
	}
	clone := *v
	clone.CanPublish = cloneBool(v.CanPublish)
	clone.CanSubscribe = cloneBool(v.CanSubscribe)
	clone.CanPublishData = cloneBool(v.CanPublishData)
	clone.CanUpdateOwnMetadata = cloneBool(v.CanUpdateOwnMetadata)
	clone.CanPublishSources = slices.Clone(v.CanPublishSources)
	return &clone
}

// Fingerprint is a stable key for the capability set.
func (v *VideoGrant) Fingerprint() string {
	if v == nil {
		return "{}"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	val := *b
	return &val
}

type ClaimGrants struct {
	Identity string      `json:"-"`
	Name     string      `json:"name,omitempty"`
	Video    *VideoGrant `json:"video,omitempty"`
	Metadata string      `json:"metadata,omitempty"`
}

func (c *ClaimGrants) Clone() *ClaimGrants {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Video = c.Video.Clone()
	return &clone
}

// GrantBuilder assembles a VideoGrant. Every grant used by this module is
// built through it.
type GrantBuilder struct {
	grant VideoGrant
}

func NewGrant() *GrantBuilder {
	return &GrantBuilder{}
}

func (b *GrantBuilder) Room(name string) *GrantBuilder {
	b.grant.Room = name
	return b
}

func (b *GrantBuilder) AllRooms() *GrantBuilder {
	return b.Room(WildcardRoom)
}

func (b *GrantBuilder) Join() *GrantBuilder {
	b.grant.RoomJoin = true
	return b
}

func (b *GrantBuilder) Publish(sources ...TrackSource) *GrantBuilder {
	b.grant.SetCanPublish(true)
	b.grant.CanPublishSources = append(b.grant.CanPublishSources, sources...)
	return b
}

func (b *GrantBuilder) NoPublish() *GrantBuilder {
	b.grant.SetCanPublish(false)
	return b
}

func (b *GrantBuilder) Subscribe() *GrantBuilder {
	b.grant.SetCanSubscribe(true)
	return b
}

func (b *GrantBuilder) PublishData() *GrantBuilder {
	b.grant.SetCanPublishData(true)
	return b
}

func (b *GrantBuilder) UpdateOwnMetadata() *GrantBuilder {
	b.grant.SetCanUpdateOwnMetadata(true)
	return b
}

func (b *GrantBuilder) CreateRoom() *GrantBuilder {
	b.grant.RoomCreate = true
	return b
}

func (b *GrantBuilder) ListRooms() *GrantBuilder {
	b.grant.RoomList = true
	return b
}

func (b *GrantBuilder) Record() *GrantBuilder {
	b.grant.RoomRecord = true
	return b
}

func (b *GrantBuilder) Admin() *GrantBuilder {
	b.grant.RoomAdmin = true
	return b
}

func (b *GrantBuilder) IngressAdmin() *GrantBuilder {
	b.grant.IngressAdmin = true
	return b
}

func (b *GrantBuilder) Build() *VideoGrant {
	return b.grant.Clone()
}

// ParticipantGrant lets a client join one room and exchange media and data.
func ParticipantGrant(room string, sources ...TrackSource) *VideoGrant {
	return NewGrant().Room(room).Join().Publish(sources...).Subscribe().PublishData().Build()
}

// ViewerGrant is subscribe only.
func ViewerGrant(room string) *VideoGrant {
	return NewGrant().Room(room).Join().NoPublish().Subscribe().Build()
}

// IngressAdminGrant authorizes the ingress procedures.
func IngressAdminGrant() *VideoGrant {
	return NewGrant().IngressAdmin().Build()
}

// RoomListGrant authorizes RoomService/ListRooms.
func RoomListGrant() *VideoGrant {
	return NewGrant().ListRooms().Build()
}

// RoomAdminGrant authorizes room scoped admin procedures on one room.
func RoomAdminGrant(room string) *VideoGrant {
	return NewGrant().Room(room).Admin().Build()
}
