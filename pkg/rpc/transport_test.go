package rpc_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twitchtv/twirp"

	"github.com/substream/substream-control/pkg/auth"
	"github.com/substream/substream-control/pkg/livekit"
	"github.com/substream/substream-control/pkg/rpc"
)

type recordedCall struct {
	procedure string
	status    int
	code      twirp.ErrorCode
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (o *recordingObserver) OnCall(procedure string, statusCode int, code twirp.ErrorCode, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, recordedCall{procedure, statusCode, code})
}

func newCredential(t *testing.T) *auth.Credential {
	cred, err := auth.NewIssuer("APIkey", "secretsecretsecretsecretsecretse").
		Issue("admin", &auth.ClaimGrants{Video: auth.RoomListGrant()}, time.Minute)
	require.NoError(t, err)
	return cred
}

func TestTransport_Success(t *testing.T) {
	cred := newCredential(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/twirp/livekit.RoomService/ListRooms", r.URL.Path)
		require.Equal(t, "Bearer "+cred.Token(), r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		require.JSONEq(t, `{"names":["unity-demo"]}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rooms":[{"sid":"RM_1","name":"unity-demo","num_participants":1,"creation_time":"1700000000"}]}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	tr, err := rpc.NewTransport(srv.URL, rpc.WithObserver(obs))
	require.NoError(t, err)

	var res livekit.ListRoomsResponse
	err = tr.Call(context.Background(), "RoomService/ListRooms", cred, &livekit.ListRoomsRequest{Names: []string{"unity-demo"}}, &res)
	require.NoError(t, err)
	require.Len(t, res.Rooms, 1)
	require.Equal(t, "unity-demo", res.Rooms[0].Name)
	require.Equal(t, []recordedCall{{"RoomService/ListRooms", 200, ""}}, obs.calls)
}

func TestTransport_Errors(t *testing.T) {
	cred := newCredential(t)

	t.Run("twirp error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = twirp.WriteError(w, twirp.NewError(twirp.Internal, "database unavailable"))
		}))
		defer srv.Close()

		tr, err := rpc.NewTransport(srv.URL)
		require.NoError(t, err)
		err = tr.Call(context.Background(), "RoomService/ListRooms", cred, nil, nil)

		rpcErr, ok := rpc.AsError(err)
		require.True(t, ok)
		require.Equal(t, http.StatusInternalServerError, rpcErr.StatusCode)
		require.Equal(t, twirp.Internal, rpcErr.Code)
		require.Equal(t, "database unavailable", rpcErr.Msg)
		require.False(t, rpcErr.Timeout())
	})

	t.Run("plain error falls back to status text", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>bad gateway</html>"))
		}))
		defer srv.Close()

		tr, err := rpc.NewTransport(srv.URL)
		require.NoError(t, err)
		err = tr.Call(context.Background(), "Ingress/ListIngress", cred, nil, nil)

		rpcErr, ok := rpc.AsError(err)
		require.True(t, ok)
		require.Equal(t, http.StatusBadGateway, rpcErr.StatusCode)
		require.Equal(t, http.StatusText(http.StatusBadGateway), rpcErr.Msg)
		require.Equal(t, twirp.Unavailable, rpcErr.Code)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		obs := &recordingObserver{}
		tr, err := rpc.NewTransport(srv.URL, rpc.WithTimeout(50*time.Millisecond), rpc.WithObserver(obs))
		require.NoError(t, err)
		err = tr.Call(context.Background(), "RoomService/ListRooms", cred, nil, nil)

		rpcErr, ok := rpc.AsError(err)
		require.True(t, ok)
		require.Equal(t, 0, rpcErr.StatusCode)
		require.Equal(t, "timeout", rpcErr.Msg)
		require.True(t, rpcErr.Timeout())
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Equal(t, 0, obs.calls[0].status)
	})

	t.Run("http client timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		tr, err := rpc.NewTransport(srv.URL,
			rpc.WithTimeout(time.Minute),
			rpc.WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}),
		)
		require.NoError(t, err)
		err = tr.Call(context.Background(), "Ingress/ListIngress", cred, nil, nil)

		rpcErr, ok := rpc.AsError(err)
		require.True(t, ok)
		require.Equal(t, 0, rpcErr.StatusCode)
		require.Equal(t, twirp.DeadlineExceeded, rpcErr.Code)
		require.Equal(t, "timeout", rpcErr.Msg)
		require.True(t, rpcErr.Timeout())
	})

	t.Run("canceled", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer srv.Close()

		tr, err := rpc.NewTransport(srv.URL)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		err = tr.Call(ctx, "RoomService/ListRooms", cred, nil, nil)

		rpcErr, ok := rpc.AsError(err)
		require.True(t, ok)
		require.Equal(t, 0, rpcErr.StatusCode)
		require.Equal(t, "canceled", rpcErr.Msg)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		tr, err := rpc.NewTransport(url)
		require.NoError(t, err)
		err = tr.Call(context.Background(), "RoomService/ListRooms", cred, nil, nil)

		rpcErr, ok := rpc.AsError(err)
		require.True(t, ok)
		require.Equal(t, 0, rpcErr.StatusCode)
		require.Equal(t, twirp.Unavailable, rpcErr.Code)
	})

	t.Run("call preconditions", func(t *testing.T) {
		tr, err := rpc.NewTransport("http://localhost:7880")
		require.NoError(t, err)
		require.ErrorIs(t, tr.Call(context.Background(), "RoomService/ListRooms", nil, nil, nil), rpc.ErrMissingCredential)
		require.ErrorIs(t, tr.Call(context.Background(), "ListRooms", cred, nil, nil), rpc.ErrInvalidProcedure)
	})
}

func TestTransport_URL(t *testing.T) {
	tr, err := rpc.NewTransport("wss://demo.example.com/")
	require.NoError(t, err)
	require.Equal(t, "https://demo.example.com/twirp/livekit.Ingress/CreateIngress", tr.URL("Ingress/CreateIngress"))

	tr, err = rpc.NewTransport("ws://localhost:7880", rpc.WithNamespace("/custom/livekit/"))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:7880/custom/livekit.RoomService/ListRooms", tr.URL("RoomService/ListRooms"))

	_, err = rpc.NewTransport("")
	require.Error(t, err)
}

func TestTransport_EmptyBody(t *testing.T) {
	cred := newCredential(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, "{}", string(body))
		_ = json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer srv.Close()

	tr, err := rpc.NewTransport(srv.URL)
	require.NoError(t, err)
	var res livekit.ListRoomsResponse
	require.NoError(t, tr.Call(context.Background(), "RoomService/ListRooms", cred, nil, &res))
	require.Empty(t, res.Rooms)
}

func TestError(t *testing.T) {
	err := &rpc.Error{StatusCode: 404, Code: twirp.NotFound, Msg: "ingress does not exist"}
	require.True(t, strings.Contains(err.Error(), "404"))
	var target *rpc.Error
	require.True(t, errors.As(error(err), &target))
}
