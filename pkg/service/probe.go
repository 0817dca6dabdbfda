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
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"go.uber.org/atomic"

	"github.com/substream/substream-control/pkg/livekit"
	"github.com/substream/substream-control/pkg/utils"
)

const probeCleanupTimeout = 10 * time.Second

type ProbeStatus int

const (
	ProbeSupported ProbeStatus = iota + 1
	ProbeUnsupported
	// the probe could not reach a verdict, e.g. timeout or server error
	ProbeFailed
)

func (s ProbeStatus) String() string {
	switch s {
	case ProbeSupported:
		return "supported"
	case ProbeUnsupported:
		return "unsupported"
	default:
		return "failed"
	}
}

type ProbeResult struct {
	InputType livekit.IngressInput
	Status    ProbeStatus
	// platform message for unsupported or failed probes
	Reason string
	Err    error
	// set when the probe ingress was created but could not be deleted
	IngressID  string
	CleanupErr error
}

// ProbeSupportedInputTypes discovers which input types the account may
// create by creating, then immediately deleting, one ingress per type.
// With no types given every platform value is probed. The returned error is
// only set when probing could not start or the context ended.
func (s *IngressService) ProbeSupportedInputTypes(ctx context.Context, types ...livekit.IngressInput) (map[livekit.IngressInput]*ProbeResult, error) {
	if len(types) == 0 {
		types = livekit.AllIngressInputs
	}
	types = slices.Compact(slices.Sorted(slices.Values(types)))

	// fail fast on credential problems rather than once per type
	if _, err := s.credential(ctx); err != nil {
		return nil, err
	}

	concurrency := s.conf.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var (
		mu        sync.Mutex
		results   = make(map[livekit.IngressInput]*ProbeResult, len(types))
		supported atomic.Int32
	)
	wp := workerpool.New(concurrency)
	for _, inputType := range types {
		wp.Submit(func() {
			res := s.probe(ctx, inputType)
			if res.Status == ProbeSupported {
				supported.Inc()
			}
			mu.Lock()
			results[inputType] = res
			mu.Unlock()
		})
	}
	wp.StopWait()

	utils.GetLogger(ctx).Infow("probed ingress input types", "probed", len(types), "supported", supported.Load())
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (s *IngressService) probe(ctx context.Context, inputType livekit.IngressInput) *ProbeResult {
	res := &ProbeResult{InputType: inputType}
	if err := ctx.Err(); err != nil {
		res.Status = ProbeFailed
		res.Err = err
		res.Reason = err.Error()
		return res
	}

	name := s.probeName(inputType)
	ctx = utils.ContextWithLogger(ctx, utils.GetLogger(ctx).WithValues("probe", name))
	info, err := s.CreateIngress(ctx, &livekit.CreateIngressRequest{
		InputType:           inputType,
		Name:                name,
		ParticipantIdentity: name,
		ParticipantName:     name,
	})
	if err != nil {
		res.Err = err
		res.Status = ProbeFailed
		res.Reason = err.Error()

		var pErr *ProvisioningError
		if errors.As(err, &pErr) {
			res.Reason = pErr.Msg
			if pErr.Unsupported() {
				res.Status = ProbeUnsupported
			}
		}
		return res
	}

	res.Status = ProbeSupported
	res.IngressID = info.IngressID

	// delete even when the caller gave up in the meantime
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeCleanupTimeout)
	defer cancel()
	if _, err = s.DeleteIngress(cleanupCtx, info.IngressID); err != nil && !IsNotFound(err) {
		res.CleanupErr = err
		utils.GetLogger(ctx).Warnw("could not delete probe ingress", err, "ingressID", info.IngressID)
	}
	return res
}

func (s *IngressService) probeName(inputType livekit.IngressInput) string {
	kind := strings.ToLower(strings.TrimSuffix(inputType.String(), "_INPUT"))
	if !inputType.Known() {
		kind = "type" + strings.Trim(strings.TrimPrefix(inputType.String(), "UNKNOWN_INPUT"), "()")
	}
	return s.conf.NamePrefix + "-" + kind + "-" + utils.NewGuid("")
}

// SupportedInputTypes lists the types a probe found supported, ascending.
func SupportedInputTypes(results map[livekit.IngressInput]*ProbeResult) []livekit.IngressInput {
	var out []livekit.IngressInput
	for inputType, res := range results {
		if res.Status == ProbeSupported {
			out = append(out, inputType)
		}
	}
	slices.Sort(out)
	return out
}
