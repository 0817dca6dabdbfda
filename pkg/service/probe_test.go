package service_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twitchtv/twirp"
	"go.uber.org/atomic"

	"github.com/substream/substream-control/pkg/auth"
	"github.com/substream/substream-control/pkg/config"
	"github.com/substream/substream-control/pkg/livekit"
	"github.com/substream/substream-control/pkg/rpc"
	"github.com/substream/substream-control/pkg/service"
)

// probePlatform supports a fixed set of input types and tracks live ingress.
type probePlatform struct {
	mu        sync.Mutex
	supported map[livekit.IngressInput]bool
	live      map[string]bool
	failType  livekit.IngressInput
	failDel   livekit.IngressInput
	byID      map[string]livekit.IngressInput
	// answer creates with the enum name instead of the number
	byName    bool

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newProbePlatform(supported ...livekit.IngressInput) *probePlatform {
	p := &probePlatform{
		supported: map[livekit.IngressInput]bool{},
		live:      map[string]bool{},
		byID:      map[string]livekit.IngressInput{},
		failType:  -1,
		failDel:   -1,
	}
	for _, s := range supported {
		p.supported[s] = true
	}
	return p
}

func (p *probePlatform) handle(procedure string, req any) (any, error) {
	n := p.inflight.Inc()
	defer p.inflight.Dec()
	for {
		m := p.maxInflight.Load()
		if n <= m || p.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	p.mu.Lock()
	defer p.mu.Unlock()
	switch procedure {
	case "Ingress/CreateIngress":
		r := req.(*livekit.CreateIngressRequest)
		if r.InputType == p.failType {
			return nil, &rpc.Error{Code: twirp.DeadlineExceeded, Msg: rpc.MsgTimeout}
		}
		if !p.supported[r.InputType] {
			return nil, &rpc.Error{StatusCode: http.StatusBadRequest, Code: twirp.InvalidArgument, Msg: "input type not enabled for project"}
		}
		id := "IN_" + r.Name
		p.live[id] = true
		p.byID[id] = r.InputType
		info := &livekit.IngressInfo{IngressID: id, Name: r.Name, InputType: r.InputType, URL: "u", StreamKey: "k"}
		if p.byName {
			info.InputTypeName = r.InputType.String()
		}
		return info, nil
	case "Ingress/DeleteIngress":
		id := req.(*livekit.DeleteIngressRequest).IngressID
		if p.byID[id] == p.failDel {
			return nil, &rpc.Error{StatusCode: http.StatusInternalServerError, Code: twirp.Internal, Msg: "delete failed"}
		}
		delete(p.live, id)
		return &livekit.IngressInfo{IngressID: id}, nil
	}
	return nil, errors.New("unexpected procedure " + procedure)
}

func TestProbeSupportedInputTypes(t *testing.T) {
	t.Run("classifies every platform value", func(t *testing.T) {
		platform := newProbePlatform(livekit.URLInput, livekit.WHIPInput, livekit.SIPInput)
		svc := newIngressService(t, &fakeCaller{handle: platform.handle})

		results, err := svc.ProbeSupportedInputTypes(context.Background())
		require.NoError(t, err)
		require.Len(t, results, 5)

		require.Equal(t, []livekit.IngressInput{0, 1, 4}, service.SupportedInputTypes(results))
		for _, unsupported := range []livekit.IngressInput{2, 3} {
			res := results[unsupported]
			require.Equal(t, service.ProbeUnsupported, res.Status)
			require.Equal(t, "input type not enabled for project", res.Reason)
		}

		// everything created was cleaned up
		require.Empty(t, platform.live)
		// bounded by the configured concurrency
		require.LessOrEqual(t, platform.maxInflight.Load(), int32(2))
	})

	t.Run("transport failures are reported, not hidden", func(t *testing.T) {
		platform := newProbePlatform(livekit.URLInput, livekit.WHIPInput)
		platform.failType = livekit.WHIPInput
		svc := newIngressService(t, &fakeCaller{handle: platform.handle})

		results, err := svc.ProbeSupportedInputTypes(context.Background(), livekit.URLInput, livekit.WHIPInput, livekit.WHIPInput)
		require.NoError(t, err)
		require.Len(t, results, 2)
		require.Equal(t, service.ProbeSupported, results[livekit.URLInput].Status)

		res := results[livekit.WHIPInput]
		require.Equal(t, service.ProbeFailed, res.Status)
		rpcErr, ok := rpc.AsError(res.Err)
		require.True(t, ok)
		require.True(t, rpcErr.Timeout())
	})

	t.Run("cleanup failure is recorded", func(t *testing.T) {
		platform := newProbePlatform(livekit.SIPInput)
		platform.failDel = livekit.SIPInput
		svc := newIngressService(t, &fakeCaller{handle: platform.handle})

		results, err := svc.ProbeSupportedInputTypes(context.Background(), livekit.SIPInput)
		require.NoError(t, err)
		res := results[livekit.SIPInput]
		require.Equal(t, service.ProbeSupported, res.Status)
		require.NotEmpty(t, res.IngressID)
		require.Error(t, res.CleanupErr)
		require.Len(t, platform.live, 1)
	})

	t.Run("types reported by name are still cleaned up", func(t *testing.T) {
		platform := newProbePlatform(livekit.URLInput, livekit.WHIPInput, 3)
		platform.byName = true
		svc := newIngressService(t, &fakeCaller{handle: platform.handle})

		results, err := svc.ProbeSupportedInputTypes(context.Background())
		require.NoError(t, err)
		require.Equal(t, []livekit.IngressInput{0, 1, 3}, service.SupportedInputTypes(results))
		for _, supported := range []livekit.IngressInput{0, 1, 3} {
			require.NoError(t, results[supported].CleanupErr)
		}
		require.Empty(t, platform.live)
	})

	t.Run("credential failure stops before any call", func(t *testing.T) {
		caller := &fakeCaller{}
		svc := service.NewIngressService(caller, auth.NewIssuerSource(auth.NewIssuer("APIkey", ""), "admin", 0), nil)
		_, err := svc.ProbeSupportedInputTypes(context.Background())
		var confErr *config.ConfigurationError
		require.True(t, errors.As(err, &confErr))
		requireNoCalls(t, caller)
	})

	t.Run("canceled context", func(t *testing.T) {
		platform := newProbePlatform(livekit.URLInput)
		svc := newIngressService(t, &fakeCaller{handle: platform.handle})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		results, err := svc.ProbeSupportedInputTypes(ctx, livekit.URLInput)
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, service.ProbeFailed, results[livekit.URLInput].Status)
	})
}

func TestProbeStatusString(t *testing.T) {
	require.Equal(t, "supported", service.ProbeSupported.String())
	require.Equal(t, "unsupported", service.ProbeUnsupported.String())
	require.Equal(t, "failed", service.ProbeFailed.String())
}
