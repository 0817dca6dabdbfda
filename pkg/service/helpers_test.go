package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/substream/substream-control/pkg/auth"
	"github.com/substream/substream-control/pkg/config"
	"github.com/substream/substream-control/pkg/service"
)

type callRecord struct {
	procedure string
	grant     *auth.VideoGrant
	req       any
}

// fakeCaller answers procedure calls from handle, which fills resp from a
// value the way the platform's JSON would.
type fakeCaller struct {
	mu     sync.Mutex
	calls  []callRecord
	handle func(procedure string, req any) (any, error)
}

func (f *fakeCaller) Call(_ context.Context, procedure string, cred *auth.Credential, req, resp any) error {
	f.mu.Lock()
	f.calls = append(f.calls, callRecord{procedure: procedure, grant: cred.Grants().Video, req: req})
	f.mu.Unlock()

	out, err := f.handle(procedure, req)
	if err != nil || out == nil || resp == nil {
		return err
	}
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, resp)
}

func (f *fakeCaller) procedures() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.procedure)
	}
	return out
}

func newCredentialSource(t *testing.T) auth.CredentialSource {
	t.Helper()
	issuer := auth.NewIssuer("APIkey", "secretsecretsecretsecretsecretse")
	return auth.NewIssuerSource(issuer, "substream-admin", auth.AdminTokenTTL)
}

func newIngressService(t *testing.T, caller service.Caller) *service.IngressService {
	return service.NewIngressService(caller, newCredentialSource(t), &config.ProbeConfig{Concurrency: 2, NamePrefix: "probe"})
}

func requireNoCalls(t *testing.T, f *fakeCaller) {
	require.Empty(t, f.procedures())
}
