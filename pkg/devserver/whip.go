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
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/pion/sdp/v3"

	"github.com/substream/substream-control/pkg/livekit"
	"github.com/substream/substream-control/pkg/logger"
	"github.com/substream/substream-control/pkg/telemetry/prometheus"
	"github.com/substream/substream-control/pkg/utils"
)

const (
	whipPath       = "/w"
	sdpContentType = "application/sdp"
)

// WHIPService accepts WHIP publishes for ingress. There is no media stack
// behind it: the offer is answered as a receive-only peer and the ingress
// participant joins its room until the session is deleted.
type WHIPService struct {
	store   *LocalStore
	metrics *prometheus.ServerMetrics
}

func NewWHIPService(store *LocalStore, metrics *prometheus.ServerMetrics) *WHIPService {
	return &WHIPService{
		store:   store,
		metrics: metrics,
	}
}

func (s *WHIPService) register(mux *http.ServeMux) {
	mux.HandleFunc("POST "+whipPath+"/{streamKey}", s.publish)
	mux.HandleFunc("DELETE "+whipPath+"/{streamKey}/{resourceID}", s.unpublish)
}

func (s *WHIPService) publish(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.LoadIngressFromStreamKey(r.PathValue("streamKey"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if info.InputType != livekit.WHIPInput {
		http.Error(w, "ingress does not accept WHIP", http.StatusBadRequest)
		return
	}
	if info.RoomName == "" {
		http.Error(w, "ingress has no room assigned", http.StatusBadRequest)
		return
	}
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType != sdpContentType {
		http.Error(w, "expected "+sdpContentType, http.StatusUnsupportedMediaType)
		return
	}
	if info.State != nil && info.State.Status == livekit.IngressEndpointPublishing {
		http.Error(w, "ingress is already publishing", http.StatusConflict)
		return
	}
	offer, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	answer, err := answerOffer(offer)
	if err != nil {
		http.Error(w, "invalid offer: "+err.Error(), http.StatusBadRequest)
		return
	}

	identity := publisherIdentity(info)
	s.store.StoreParticipant(info.RoomName, &livekit.ParticipantInfo{
		Sid:         utils.NewGuid(utils.ParticipantPrefix),
		Identity:    identity,
		Name:        info.ParticipantName,
		State:       livekit.ParticipantActive,
		JoinedAt:    livekit.Int64(time.Now().Unix()),
		IsPublisher: true,
	})
	s.metrics.SetRooms(s.store.NumRooms())

	roomID := ""
	if rooms := s.store.ListRooms([]string{info.RoomName}); len(rooms) == 1 {
		roomID = rooms[0].Sid
	}
	_ = s.store.UpdateIngressState(info.IngressID, &livekit.IngressState{
		Status:    livekit.IngressEndpointPublishing,
		RoomID:    roomID,
		StartedAt: livekit.Int64(time.Now().UnixNano()),
	})
	logger.Infow("ingress started", "ingressID", info.IngressID, "room", info.RoomName, "participant", identity)

	w.Header().Set("Location", whipPath+"/"+r.PathValue("streamKey")+"/"+info.IngressID)
	w.Header().Set("Content-Type", sdpContentType)
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(answer)
}

func (s *WHIPService) unpublish(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.LoadIngressFromStreamKey(r.PathValue("streamKey"))
	if err != nil || info.IngressID != r.PathValue("resourceID") {
		http.Error(w, ErrIngressNotFound.Error(), http.StatusNotFound)
		return
	}

	if err = s.store.DeleteParticipant(info.RoomName, publisherIdentity(info)); err != nil {
		logger.Debugw("ingress participant already gone", "ingressID", info.IngressID, "error", err)
	}
	s.metrics.SetRooms(s.store.NumRooms())

	state := &livekit.IngressState{Status: livekit.IngressEndpointComplete, EndedAt: livekit.Int64(time.Now().UnixNano())}
	if info.State != nil {
		state.RoomID = info.State.RoomID
		state.StartedAt = info.State.StartedAt
	}
	_ = s.store.UpdateIngressState(info.IngressID, state)
	logger.Infow("ingress ended", "ingressID", info.IngressID)

	w.WriteHeader(http.StatusOK)
}

// answerOffer accepts offers that send at least one media section and answers
// every section as recvonly with the offered codecs.
func answerOffer(offer []byte) ([]byte, error) {
	parsed := &sdp.SessionDescription{}
	if err := parsed.Unmarshal(offer); err != nil {
		return nil, err
	}
	if len(parsed.MediaDescriptions) == 0 {
		return nil, errors.New("no media sections")
	}

	answer := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      uint64(time.Now().UnixNano()),
			SessionVersion: 2,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "127.0.0.1",
		},
		SessionName:      "-",
		TimeDescriptions: []sdp.TimeDescription{{}},
	}
	for _, m := range parsed.MediaDescriptions {
		if _, ok := m.Attribute(sdp.AttrKeyRecvOnly); ok {
			return nil, fmt.Errorf("%s section is recvonly", m.MediaName.Media)
		}
		if _, ok := m.Attribute(sdp.AttrKeyInactive); ok {
			return nil, fmt.Errorf("%s section is inactive", m.MediaName.Media)
		}

		am := &sdp.MediaDescription{
			MediaName:             m.MediaName,
			ConnectionInformation: m.ConnectionInformation,
		}
		if mid, ok := m.Attribute(sdp.AttrKeyMID); ok {
			am = am.WithValueAttribute(sdp.AttrKeyMID, mid)
		}
		for _, a := range m.Attributes {
			if a.Key == "rtpmap" || a.Key == "fmtp" {
				am.Attributes = append(am.Attributes, a)
			}
		}
		answer.MediaDescriptions = append(answer.MediaDescriptions, am.WithPropertyAttribute(sdp.AttrKeyRecvOnly))
	}
	return answer.Marshal()
}
