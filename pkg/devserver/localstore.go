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
	"cmp"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/substream/substream-control/pkg/livekit"
	"github.com/substream/substream-control/pkg/utils"
)

var (
	ErrIngressNotFound     = errors.New("ingress does not exist")
	ErrRoomNotFound        = errors.New("requested room does not exist")
	ErrParticipantNotFound = errors.New("participant does not exist")
)

type storedIngress struct {
	info *livekit.IngressInfo
	seq  uint64
}

// encapsulates CRUD operations for ingress, rooms and participants
type LocalStore struct {
	// map of ingressID => ingress
	ingress map[string]*storedIngress
	// map of streamKey => ingressID
	streamKeys map[string]string
	seq        uint64

	// map of roomName => room
	rooms map[string]*livekit.Room
	// map of roomName => { identity: participant }
	participants map[string]map[string]*livekit.ParticipantInfo

	lock sync.RWMutex
}

func NewLocalStore() *LocalStore {
	return &LocalStore{
		ingress:      make(map[string]*storedIngress),
		streamKeys:   make(map[string]string),
		rooms:        make(map[string]*livekit.Room),
		participants: make(map[string]map[string]*livekit.ParticipantInfo),
	}
}

func (s *LocalStore) StoreIngress(info *livekit.IngressInfo) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.seq++
	s.ingress[info.IngressID] = &storedIngress{info: cloneIngress(info), seq: s.seq}
	if info.StreamKey != "" {
		s.streamKeys[info.StreamKey] = info.IngressID
	}
}

func (s *LocalStore) LoadIngress(ingressID string) (*livekit.IngressInfo, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	stored, ok := s.ingress[ingressID]
	if !ok {
		return nil, ErrIngressNotFound
	}
	return cloneIngress(stored.info), nil
}

func (s *LocalStore) LoadIngressFromStreamKey(streamKey string) (*livekit.IngressInfo, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	stored, ok := s.ingress[s.streamKeys[streamKey]]
	if !ok {
		return nil, ErrIngressNotFound
	}
	return cloneIngress(stored.info), nil
}

// ListIngress returns ingress in creation order. Empty filters match all.
func (s *LocalStore) ListIngress(roomName, ingressID string) []*livekit.IngressInfo {
	s.lock.RLock()
	defer s.lock.RUnlock()

	stored := make([]*storedIngress, 0, len(s.ingress))
	for _, si := range s.ingress {
		if roomName != "" && si.info.RoomName != roomName {
			continue
		}
		if ingressID != "" && si.info.IngressID != ingressID {
			continue
		}
		stored = append(stored, si)
	}
	slices.SortFunc(stored, func(a, b *storedIngress) int {
		return cmp.Compare(a.seq, b.seq)
	})

	items := make([]*livekit.IngressInfo, 0, len(stored))
	for _, si := range stored {
		items = append(items, cloneIngress(si.info))
	}
	return items
}

func (s *LocalStore) UpdateIngressState(ingressID string, state *livekit.IngressState) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	stored, ok := s.ingress[ingressID]
	if !ok {
		return ErrIngressNotFound
	}
	st := *state
	stored.info.State = &st
	return nil
}

func (s *LocalStore) DeleteIngress(ingressID string) (*livekit.IngressInfo, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	stored, ok := s.ingress[ingressID]
	if !ok {
		return nil, ErrIngressNotFound
	}
	delete(s.ingress, ingressID)
	delete(s.streamKeys, stored.info.StreamKey)
	return stored.info, nil
}

func (s *LocalStore) NumIngress() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.ingress)
}

// StoreParticipant adds or replaces a participant, creating the room on
// first join.
func (s *LocalStore) StoreParticipant(roomName string, p *livekit.ParticipantInfo) {
	s.lock.Lock()
	defer s.lock.Unlock()

	room, ok := s.rooms[roomName]
	if !ok {
		room = &livekit.Room{
			Sid:          utils.NewGuid(utils.RoomPrefix),
			Name:         roomName,
			EmptyTimeout: 300,
			CreationTime: livekit.Int64(time.Now().Unix()),
		}
		s.rooms[roomName] = room
		s.participants[roomName] = make(map[string]*livekit.ParticipantInfo)
	}
	pi := *p
	s.participants[roomName][p.Identity] = &pi
	s.updateRoomCounts(roomName)
}

// DeleteParticipant removes a participant. The room closes with its last
// participant.
func (s *LocalStore) DeleteParticipant(roomName, identity string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	participants, ok := s.participants[roomName]
	if !ok {
		return ErrRoomNotFound
	}
	if _, ok = participants[identity]; !ok {
		return ErrParticipantNotFound
	}
	delete(participants, identity)
	if len(participants) == 0 {
		delete(s.participants, roomName)
		delete(s.rooms, roomName)
		return nil
	}
	s.updateRoomCounts(roomName)
	return nil
}

// ListRooms returns rooms sorted by name. Empty names match all.
func (s *LocalStore) ListRooms(names []string) []*livekit.Room {
	s.lock.RLock()
	defer s.lock.RUnlock()

	rooms := make([]*livekit.Room, 0, len(s.rooms))
	for name, room := range s.rooms {
		if len(names) > 0 && !slices.Contains(names, name) {
			continue
		}
		r := *room
		rooms = append(rooms, &r)
	}
	slices.SortFunc(rooms, func(a, b *livekit.Room) int {
		return strings.Compare(a.Name, b.Name)
	})
	return rooms
}

func (s *LocalStore) NumRooms() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.rooms)
}

func (s *LocalStore) ListParticipants(roomName string) ([]*livekit.ParticipantInfo, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	participants, ok := s.participants[roomName]
	if !ok {
		return nil, ErrRoomNotFound
	}
	out := make([]*livekit.ParticipantInfo, 0, len(participants))
	for _, p := range participants {
		pi := *p
		out = append(out, &pi)
	}
	slices.SortFunc(out, func(a, b *livekit.ParticipantInfo) int {
		return strings.Compare(a.Identity, b.Identity)
	})
	return out, nil
}

func (s *LocalStore) updateRoomCounts(roomName string) {
	room := s.rooms[roomName]
	room.NumParticipants = uint32(len(s.participants[roomName]))
	room.NumPublishers = 0
	for _, p := range s.participants[roomName] {
		if p.IsPublisher {
			room.NumPublishers++
		}
	}
}

func cloneIngress(info *livekit.IngressInfo) *livekit.IngressInfo {
	c := *info
	if info.State != nil {
		st := *info.State
		c.State = &st
	}
	return &c
}
