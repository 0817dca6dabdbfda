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
	"fmt"
	"net"
	"net/url"

	"github.com/twitchtv/twirp"

	"github.com/substream/substream-control/pkg/config"
	"github.com/substream/substream-control/pkg/livekit"
	"github.com/substream/substream-control/pkg/telemetry/prometheus"
	"github.com/substream/substream-control/pkg/utils"
)

type requestHostKey struct{}

// IngressService emulates the platform's Ingress procedures.
type IngressService struct {
	conf      *config.DevServerConfig
	store     *LocalStore
	metrics   *prometheus.ServerMetrics
	supported map[livekit.IngressInput]bool
}

func NewIngressService(conf *config.DevServerConfig, store *LocalStore, metrics *prometheus.ServerMetrics) *IngressService {
	supported := make(map[livekit.IngressInput]bool, len(conf.SupportedInputTypes))
	for _, t := range conf.SupportedInputTypes {
		supported[livekit.IngressInput(t)] = true
	}
	return &IngressService{
		conf:      conf,
		store:     store,
		metrics:   metrics,
		supported: supported,
	}
}

func (s *IngressService) CreateIngress(ctx context.Context, req *livekit.CreateIngressRequest) (*livekit.IngressInfo, error) {
	if err := EnsureIngressAdminPermission(ctx); err != nil {
		return nil, err
	}
	AppendLogFields(ctx, "inputType", req.InputType, "room", req.RoomName)

	if !s.supported[req.InputType] {
		s.metrics.IngressCreated(req.InputType.String(), false)
		if !req.InputType.Known() {
			return nil, twirp.InvalidArgumentError("input_type", fmt.Sprintf("unsupported ingress input type %d", int32(req.InputType)))
		}
		return nil, twirp.NewError(twirp.FailedPrecondition, fmt.Sprintf("ingress input type %s is not enabled for this project", req.InputType))
	}
	if req.BypassTranscoding && req.InputType != livekit.WHIPInput {
		s.metrics.IngressCreated(req.InputType.String(), false)
		return nil, twirp.InvalidArgumentError("bypass_transcoding", "is only supported for WHIP input")
	}

	info := &livekit.IngressInfo{
		IngressID:           utils.NewGuid(utils.IngressPrefix),
		Name:                req.Name,
		StreamKey:           utils.NewGuid(utils.StreamKeyPrefix),
		InputType:           req.InputType,
		RoomName:            req.RoomName,
		ParticipantIdentity: req.ParticipantIdentity,
		ParticipantName:     req.ParticipantName,
		BypassTranscoding:   req.BypassTranscoding,
		Reusable:            req.InputType != livekit.URLInput,
		State:               &livekit.IngressState{Status: livekit.IngressEndpointInactive},
	}
	info.URL = s.ingressURL(ctx, info.InputType)

	s.store.StoreIngress(info)
	s.metrics.IngressCreated(req.InputType.String(), true)
	AppendLogFields(ctx, "ingressID", info.IngressID)
	return info, nil
}

func (s *IngressService) ListIngress(ctx context.Context, req *livekit.ListIngressRequest) (*livekit.ListIngressResponse, error) {
	if err := EnsureIngressAdminPermission(ctx); err != nil {
		return nil, err
	}
	return &livekit.ListIngressResponse{
		Items: s.store.ListIngress(req.RoomName, req.IngressID),
	}, nil
}

func (s *IngressService) DeleteIngress(ctx context.Context, req *livekit.DeleteIngressRequest) (*livekit.IngressInfo, error) {
	if err := EnsureIngressAdminPermission(ctx); err != nil {
		return nil, err
	}
	if req.IngressID == "" {
		return nil, twirp.RequiredArgumentError("ingress_id")
	}
	AppendLogFields(ctx, "ingressID", req.IngressID)

	info, err := s.store.DeleteIngress(req.IngressID)
	if err != nil {
		return nil, twirp.NotFoundError(err.Error())
	}
	s.metrics.IngressDeleted()

	if info.State != nil && info.State.Status == livekit.IngressEndpointPublishing {
		_ = s.store.DeleteParticipant(info.RoomName, publisherIdentity(info))
		s.metrics.SetRooms(s.store.NumRooms())
	}
	info.State = &livekit.IngressState{Status: livekit.IngressEndpointComplete}
	return info, nil
}

// ingressURL is where media for the given input type is sent.
func (s *IngressService) ingressURL(ctx context.Context, inputType livekit.IngressInput) string {
	host, _ := ctx.Value(requestHostKey{}).(string)
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}

	switch inputType {
	case livekit.WHIPInput:
		if s.conf.WHIPBaseURL != "" {
			return s.conf.WHIPBaseURL
		}
		return (&url.URL{Scheme: "http", Host: host, Path: whipPath}).String()
	case livekit.URLInput:
		if s.conf.RTMPBaseURL != "" {
			return s.conf.RTMPBaseURL
		}
		return (&url.URL{Scheme: "rtmp", Host: net.JoinHostPort(hostname, "1935"), Path: "/x"}).String()
	case livekit.SIPInput:
		return "sip:" + hostname
	default:
		return (&url.URL{Scheme: "http", Host: host, Path: "/x"}).String()
	}
}

func publisherIdentity(info *livekit.IngressInfo) string {
	if info.ParticipantIdentity != "" {
		return info.ParticipantIdentity
	}
	return info.IngressID
}
