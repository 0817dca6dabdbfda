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
	"net/http"

	"github.com/twitchtv/twirp"
	"golang.org/x/sync/errgroup"

	"github.com/substream/substream-control/pkg/auth"
	"github.com/substream/substream-control/pkg/config"
	"github.com/substream/substream-control/pkg/livekit"
	"github.com/substream/substream-control/pkg/rpc"
	"github.com/substream/substream-control/pkg/utils"
)

// IngressService provisions ingress endpoints on the platform. It keeps no
// copy of platform state, every read goes to the platform.
type IngressService struct {
	caller Caller
	creds  auth.CredentialSource
	conf   *config.ProbeConfig
}

func NewIngressService(caller Caller, creds auth.CredentialSource, conf *config.ProbeConfig) *IngressService {
	if conf == nil {
		conf = &config.DefaultConfig.Probe
	}
	return &IngressService{
		caller: caller,
		creds:  creds,
		conf:   conf,
	}
}

func (s *IngressService) credential(ctx context.Context) (*auth.Credential, error) {
	return s.creds.Credential(ctx, auth.IngressAdminGrant())
}

// CreateIngress provisions a new ingress. A platform rejection comes back as
// *ProvisioningError, a call that got no response as *rpc.Error.
func (s *IngressService) CreateIngress(ctx context.Context, req *livekit.CreateIngressRequest) (*livekit.IngressInfo, error) {
	if req == nil {
		return nil, ErrRequestNil
	}
	cred, err := s.credential(ctx)
	if err != nil {
		return nil, err
	}

	info := &livekit.IngressInfo{}
	if err = s.caller.Call(ctx, procCreateIngress, cred, req, info); err != nil {
		utils.GetLogger(ctx).Debugw("could not create ingress", "inputType", req.InputType, "name", req.Name, "error", err)
		return nil, provisioningError("create", req.InputType, err)
	}

	utils.GetLogger(ctx).Infow("ingress created",
		"ingressID", info.IngressID,
		"inputType", info.InputTypeLabel(),
		"room", info.RoomName,
		"dynamicRoom", info.DynamicRoom(),
	)
	return info, nil
}

// ListIngress returns the ingress list at call time. An empty platform
// yields an empty, non-nil slice.
func (s *IngressService) ListIngress(ctx context.Context, req *livekit.ListIngressRequest) ([]*livekit.IngressInfo, error) {
	if req == nil {
		req = &livekit.ListIngressRequest{}
	}
	cred, err := s.credential(ctx)
	if err != nil {
		return nil, err
	}

	res := &livekit.ListIngressResponse{}
	if err = s.caller.Call(ctx, procListIngress, cred, req, res); err != nil {
		return nil, err
	}
	if res.Items == nil {
		return []*livekit.IngressInfo{}, nil
	}
	return res.Items, nil
}

// DeleteIngress removes an ingress. Deleting an id the platform does not
// know returns ErrIngressNotFound so cleanup can call it unconditionally.
func (s *IngressService) DeleteIngress(ctx context.Context, ingressID string) (*livekit.IngressInfo, error) {
	if ingressID == "" {
		return nil, ErrIngressIDEmpty
	}
	cred, err := s.credential(ctx)
	if err != nil {
		return nil, err
	}

	info := &livekit.IngressInfo{}
	err = s.caller.Call(ctx, procDeleteIngress, cred, &livekit.DeleteIngressRequest{IngressID: ingressID}, info)
	if err != nil {
		if rpcErr, ok := rpc.AsError(err); ok && isNotFound(rpcErr) {
			return nil, ErrIngressNotFound
		}
		// a delete request carries no input type
		return nil, provisioningError("delete", livekit.UnspecifiedInput, err)
	}

	utils.GetLogger(ctx).Infow("ingress deleted", "ingressID", ingressID)
	return info, nil
}

// ReplaceIngress deletes every ingress named req.Name, then creates req.
// Names are not unique on the platform, this keeps one per name.
func (s *IngressService) ReplaceIngress(ctx context.Context, req *livekit.CreateIngressRequest) (*livekit.IngressInfo, error) {
	if req == nil {
		return nil, ErrRequestNil
	}
	existing, err := s.ListIngress(ctx, nil)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, info := range existing {
		if info.Name != req.Name {
			continue
		}
		ingressID := info.IngressID
		g.Go(func() error {
			if _, err := s.DeleteIngress(gctx, ingressID); err != nil && !IsNotFound(err) {
				return err
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}

	return s.CreateIngress(ctx, req)
}

func isNotFound(err *rpc.Error) bool {
	return err.StatusCode == http.StatusNotFound || err.Code == twirp.NotFound
}

func provisioningError(op string, inputType livekit.IngressInput, err error) error {
	rpcErr, ok := rpc.AsError(err)
	if !ok || rpcErr.StatusCode == 0 {
		return err
	}
	return newProvisioningError(op, inputType, rpcErr)
}
