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
	"time"

	"github.com/google/wire"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/substream/substream-control/pkg/auth"
	"github.com/substream/substream-control/pkg/config"
	"github.com/substream/substream-control/pkg/livekit"
	"github.com/substream/substream-control/pkg/logger"
	"github.com/substream/substream-control/pkg/rpc"
	"github.com/substream/substream-control/pkg/telemetry/prometheus"
)

var ClientSet = wire.NewSet(
	createIssuer,
	createCredentialSource,
	createRPCMetrics,
	createTransport,
	wire.Bind(new(Caller), new(*rpc.Transport)),
	getProbeConfig,
	NewIngressService,
	NewRoomService,
	NewClient,
)

// Client is the control-plane entry point used by the CLI.
type Client struct {
	issuer  *auth.Issuer
	ingress *IngressService
	rooms   *RoomService
}

func NewClient(issuer *auth.Issuer, ingress *IngressService, rooms *RoomService) *Client {
	return &Client{
		issuer:  issuer,
		ingress: ingress,
		rooms:   rooms,
	}
}

// NewClientFromConfig validates conf and builds a Client. reg may be nil.
func NewClientFromConfig(conf *config.Config, reg prom.Registerer) (*Client, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return InitializeClient(conf, reg)
}

func (c *Client) IssueCredential(principalID string, grants *auth.ClaimGrants, validFor time.Duration) (*auth.Credential, error) {
	return c.issuer.Issue(principalID, grants, validFor)
}

func (c *Client) CreateIngress(ctx context.Context, req *livekit.CreateIngressRequest) (*livekit.IngressInfo, error) {
	return c.ingress.CreateIngress(ctx, req)
}

func (c *Client) ReplaceIngress(ctx context.Context, req *livekit.CreateIngressRequest) (*livekit.IngressInfo, error) {
	return c.ingress.ReplaceIngress(ctx, req)
}

func (c *Client) ListIngress(ctx context.Context, req *livekit.ListIngressRequest) ([]*livekit.IngressInfo, error) {
	return c.ingress.ListIngress(ctx, req)
}

func (c *Client) DeleteIngress(ctx context.Context, ingressID string) (*livekit.IngressInfo, error) {
	return c.ingress.DeleteIngress(ctx, ingressID)
}

func (c *Client) ProbeSupportedInputTypes(ctx context.Context, types ...livekit.IngressInput) (map[livekit.IngressInput]*ProbeResult, error) {
	return c.ingress.ProbeSupportedInputTypes(ctx, types...)
}

func (c *Client) ListRooms(ctx context.Context, names ...string) ([]*livekit.Room, error) {
	return c.rooms.ListRooms(ctx, names...)
}

func (c *Client) ListParticipants(ctx context.Context, room string) ([]*livekit.ParticipantInfo, error) {
	return c.rooms.ListParticipants(ctx, room)
}

func createIssuer(conf *config.Config) *auth.Issuer {
	return auth.NewIssuer(conf.APIKey, conf.APISecret, auth.WithAudience(conf.Audience))
}

func createCredentialSource(conf *config.Config, issuer *auth.Issuer) auth.CredentialSource {
	src := auth.NewIssuerSource(issuer, conf.Admin.Identity, conf.Admin.TokenTTL)
	if conf.Admin.CredentialCacheSize <= 0 {
		return src
	}
	return auth.NewCachedSource(src, conf.Admin.CredentialCacheSize, src.ValidFor())
}

func createRPCMetrics(reg prom.Registerer) (*prometheus.RPCMetrics, error) {
	return prometheus.NewRPCMetrics(reg)
}

func createTransport(conf *config.Config, metrics *prometheus.RPCMetrics) (*rpc.Transport, error) {
	return rpc.NewTransport(conf.URL,
		rpc.WithNamespace(conf.ServiceNamespace),
		rpc.WithTimeout(conf.RPCTimeout),
		rpc.WithObserver(metrics),
		rpc.WithLogger(logger.GetLogger()),
	)
}

func getProbeConfig(conf *config.Config) *config.ProbeConfig {
	return &conf.Probe
}
