package devserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/require"
	"github.com/twitchtv/twirp"

	"github.com/substream/substream-control/pkg/auth"
	"github.com/substream/substream-control/pkg/config"
	"github.com/substream/substream-control/pkg/devserver"
	"github.com/substream/substream-control/pkg/livekit"
	"github.com/substream/substream-control/pkg/rpc"
)

const (
	testKey    = "APIdev"
	testSecret = "devsecretdevsecretdevsecretdevse"
)

type testPlatform struct {
	server    *devserver.Server
	http      *httptest.Server
	transport *rpc.Transport
	issuer    *auth.Issuer
}

func newTestPlatform(t *testing.T, mutate ...func(*config.Config)) *testPlatform {
	t.Helper()
	conf, err := config.NewConfig("", false, nil, nil)
	require.NoError(t, err)
	conf.DevServer.Keys = map[string]string{testKey: testSecret}
	for _, m := range mutate {
		m(conf)
	}

	server, err := devserver.NewServer(conf)
	require.NoError(t, err)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	transport, err := rpc.NewTransport(ts.URL)
	require.NoError(t, err)
	return &testPlatform{
		server:    server,
		http:      ts,
		transport: transport,
		issuer:    auth.NewIssuer(testKey, testSecret),
	}
}

func (p *testPlatform) credential(t *testing.T, grant *auth.VideoGrant) *auth.Credential {
	t.Helper()
	cred, err := p.issuer.Issue("admin", &auth.ClaimGrants{Video: grant}, auth.AdminTokenTTL)
	require.NoError(t, err)
	return cred
}

func requireCode(t *testing.T, err error, status int, code twirp.ErrorCode) {
	t.Helper()
	rpcErr, ok := rpc.AsError(err)
	require.True(t, ok, "expected rpc error, got %v", err)
	require.Equal(t, status, rpcErr.StatusCode)
	require.Equal(t, code, rpcErr.Code)
}

func TestIngressProcedures(t *testing.T) {
	p := newTestPlatform(t)
	ctx := context.Background()
	admin := p.credential(t, auth.IngressAdminGrant())

	info := &livekit.IngressInfo{}
	err := p.transport.Call(ctx, "Ingress/CreateIngress", admin, &livekit.CreateIngressRequest{
		InputType:           livekit.WHIPInput,
		Name:                "Unity Game Stream",
		RoomName:            "unity-demo",
		ParticipantIdentity: "unity-streamer",
	}, info)
	require.NoError(t, err)
	require.NotEmpty(t, info.IngressID)
	require.NotEmpty(t, info.StreamKey)
	require.Equal(t, p.http.URL+"/w", info.URL)
	require.Equal(t, livekit.IngressEndpointInactive, info.State.Status)

	list := &livekit.ListIngressResponse{}
	require.NoError(t, p.transport.Call(ctx, "Ingress/ListIngress", admin, &livekit.ListIngressRequest{RoomName: "unity-demo"}, list))
	require.Len(t, list.Items, 1)
	require.NoError(t, p.transport.Call(ctx, "Ingress/ListIngress", admin, &livekit.ListIngressRequest{RoomName: "other"}, list))
	require.Empty(t, list.Items)

	deleted := &livekit.IngressInfo{}
	require.NoError(t, p.transport.Call(ctx, "Ingress/DeleteIngress", admin, &livekit.DeleteIngressRequest{IngressID: info.IngressID}, deleted))
	require.Equal(t, info.IngressID, deleted.IngressID)

	err = p.transport.Call(ctx, "Ingress/DeleteIngress", admin, &livekit.DeleteIngressRequest{IngressID: info.IngressID}, deleted)
	requireCode(t, err, http.StatusNotFound, twirp.NotFound)
}

func TestCreateIngressRejections(t *testing.T) {
	p := newTestPlatform(t, func(conf *config.Config) {
		conf.DevServer.SupportedInputTypes = []int32{0, 1}
	})
	ctx := context.Background()
	admin := p.credential(t, auth.IngressAdminGrant())

	t.Run("reserved value", func(t *testing.T) {
		err := p.transport.Call(ctx, "Ingress/CreateIngress", admin, &livekit.CreateIngressRequest{InputType: 2}, nil)
		requireCode(t, err, http.StatusBadRequest, twirp.InvalidArgument)
	})

	t.Run("disabled for project", func(t *testing.T) {
		err := p.transport.Call(ctx, "Ingress/CreateIngress", admin, &livekit.CreateIngressRequest{InputType: livekit.SIPInput}, nil)
		requireCode(t, err, http.StatusPreconditionFailed, twirp.FailedPrecondition)
	})

	t.Run("bypass transcoding needs whip", func(t *testing.T) {
		err := p.transport.Call(ctx, "Ingress/CreateIngress", admin, &livekit.CreateIngressRequest{InputType: livekit.URLInput, BypassTranscoding: true}, nil)
		requireCode(t, err, http.StatusBadRequest, twirp.InvalidArgument)
	})
}

func TestAuthentication(t *testing.T) {
	p := newTestPlatform(t)
	ctx := context.Background()

	t.Run("wrong secret", func(t *testing.T) {
		cred, err := auth.NewIssuer(testKey, "wrongsecretwrongsecretwrongsecre").Issue("admin", &auth.ClaimGrants{Video: auth.IngressAdminGrant()}, auth.AdminTokenTTL)
		require.NoError(t, err)
		err = p.transport.Call(ctx, "Ingress/ListIngress", cred, nil, nil)
		requireCode(t, err, http.StatusUnauthorized, twirp.Unauthenticated)
	})

	t.Run("unknown key", func(t *testing.T) {
		cred, err := auth.NewIssuer("APIother", testSecret).Issue("admin", &auth.ClaimGrants{Video: auth.IngressAdminGrant()}, auth.AdminTokenTTL)
		require.NoError(t, err)
		err = p.transport.Call(ctx, "Ingress/ListIngress", cred, nil, nil)
		requireCode(t, err, http.StatusUnauthorized, twirp.Unauthenticated)
	})

	t.Run("missing grant", func(t *testing.T) {
		err := p.transport.Call(ctx, "Ingress/ListIngress", p.credential(t, auth.RoomListGrant()), nil, nil)
		requireCode(t, err, http.StatusForbidden, twirp.PermissionDenied)
	})

	t.Run("no token", func(t *testing.T) {
		res, err := http.Post(p.http.URL+"/twirp/livekit.Ingress/ListIngress", "application/json", bytes.NewBufferString("{}"))
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})

	t.Run("unknown procedure", func(t *testing.T) {
		err := p.transport.Call(ctx, "Ingress/UpdateIngress", p.credential(t, auth.IngressAdminGrant()), nil, nil)
		requireCode(t, err, http.StatusNotFound, twirp.BadRoute)
	})
}

func TestRateLimit(t *testing.T) {
	p := newTestPlatform(t, func(conf *config.Config) {
		conf.DevServer.RateLimit = 0.001
		conf.DevServer.RateBurst = 1
	})
	admin := p.credential(t, auth.IngressAdminGrant())

	require.NoError(t, p.transport.Call(context.Background(), "Ingress/ListIngress", admin, nil, nil))
	err := p.transport.Call(context.Background(), "Ingress/ListIngress", admin, nil, nil)
	requireCode(t, err, http.StatusTooManyRequests, twirp.ResourceExhausted)
}

const whipOffer = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=sendonly\r\n" +
	"a=rtpmap:96 H264/90000\r\n"

func TestWHIPPublish(t *testing.T) {
	p := newTestPlatform(t)
	ctx := context.Background()

	info := &livekit.IngressInfo{}
	require.NoError(t, p.transport.Call(ctx, "Ingress/CreateIngress", p.credential(t, auth.IngressAdminGrant()), &livekit.CreateIngressRequest{
		InputType:           livekit.WHIPInput,
		RoomName:            "unity-demo",
		ParticipantIdentity: "unity-streamer",
		ParticipantName:     "Unity Stream",
	}, info))

	res, err := http.Post(info.URL+"/"+info.StreamKey, "application/sdp", bytes.NewBufferString("v=0\r\n"))
	require.NoError(t, err)
	_ = res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, err = http.Post(info.URL+"/"+info.StreamKey, "application/sdp", bytes.NewBufferString(whipOffer))
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)
	answer := &sdp.SessionDescription{}
	require.NoError(t, answer.Unmarshal(body))
	require.Len(t, answer.MediaDescriptions, 1)
	_, recvOnly := answer.MediaDescriptions[0].Attribute(sdp.AttrKeyRecvOnly)
	require.True(t, recvOnly)
	mid, _ := answer.MediaDescriptions[0].Attribute(sdp.AttrKeyMID)
	require.Equal(t, "0", mid)
	location := res.Header.Get("Location")
	require.NotEmpty(t, location)

	rooms := &livekit.ListRoomsResponse{}
	require.NoError(t, p.transport.Call(ctx, "RoomService/ListRooms", p.credential(t, auth.RoomListGrant()), nil, rooms))
	require.Len(t, rooms.Rooms, 1)
	require.Equal(t, "unity-demo", rooms.Rooms[0].Name)
	require.EqualValues(t, 1, rooms.Rooms[0].NumParticipants)

	participants := &livekit.ListParticipantsResponse{}
	require.NoError(t, p.transport.Call(ctx, "RoomService/ListParticipants", p.credential(t, auth.RoomAdminGrant("unity-demo")),
		&livekit.ListParticipantsRequest{Room: "unity-demo"}, participants))
	require.Len(t, participants.Participants, 1)
	require.Equal(t, "unity-streamer", participants.Participants[0].Identity)
	require.Equal(t, livekit.ParticipantActive, participants.Participants[0].State)

	// admin of another room
	err = p.transport.Call(ctx, "RoomService/ListParticipants", p.credential(t, auth.RoomAdminGrant("other")),
		&livekit.ListParticipantsRequest{Room: "unity-demo"}, participants)
	requireCode(t, err, http.StatusForbidden, twirp.PermissionDenied)

	req, err := http.NewRequest(http.MethodDelete, p.http.URL+location, nil)
	require.NoError(t, err)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	require.NoError(t, p.transport.Call(ctx, "RoomService/ListRooms", p.credential(t, auth.RoomListGrant()), nil, rooms))
	require.Empty(t, rooms.Rooms)
}

func TestJoinTokenListsOwnRoom(t *testing.T) {
	p := newTestPlatform(t)
	p.server.AddParticipant("unity-demo", &livekit.ParticipantInfo{Identity: "unity-streamer", State: livekit.ParticipantActive})
	p.server.AddParticipant("other-room", &livekit.ParticipantInfo{Identity: "someone"})

	cred, err := p.issuer.Issue("unity-streamer", &auth.ClaimGrants{Video: auth.ParticipantGrant("unity-demo")}, auth.ParticipantTokenTTL)
	require.NoError(t, err)

	rooms := &livekit.ListRoomsResponse{}
	require.NoError(t, p.transport.Call(context.Background(), "RoomService/ListRooms", cred, nil, rooms))
	require.Len(t, rooms.Rooms, 1)
	require.Equal(t, "unity-demo", rooms.Rooms[0].Name)
}

func TestViewerToken(t *testing.T) {
	p := newTestPlatform(t)

	res, err := http.Get(p.http.URL + "/token?room=unity-demo&identity=viewer-1")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Token string `json:"token"`
		URL   string `json:"url"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))

	v, err := auth.ParseAPIToken(body.Token)
	require.NoError(t, err)
	require.Equal(t, "viewer-1", v.Identity())
	grants, err := v.Verify(testSecret)
	require.NoError(t, err)
	require.True(t, grants.Video.RoomJoin)
	require.Equal(t, "unity-demo", grants.Video.Room)
	require.False(t, grants.Video.GetCanPublish())
	require.True(t, grants.Video.GetCanSubscribe())
}

func TestMetricsEndpoint(t *testing.T) {
	p := newTestPlatform(t)
	admin := p.credential(t, auth.IngressAdminGrant())
	require.NoError(t, p.transport.Call(context.Background(), "Ingress/CreateIngress", admin, &livekit.CreateIngressRequest{InputType: livekit.URLInput}, nil))

	scrape := func() string {
		res, err := http.Get(p.http.URL + "/metrics")
		if err != nil {
			return ""
		}
		defer res.Body.Close()
		body, _ := io.ReadAll(res.Body)
		return string(body)
	}

	// the status hook runs after the response is written
	require.Eventually(t, func() bool {
		return strings.Contains(scrape(), `substream_twirp_request_status{code="",method="CreateIngress",service="Ingress",status="2xx"} 1`)
	}, time.Second, 10*time.Millisecond)
	require.Contains(t, scrape(), "substream_ingress_total 1")
}

func TestNewServerRequiresKeys(t *testing.T) {
	conf, err := config.NewConfig("", false, nil, nil)
	require.NoError(t, err)
	_, err = devserver.NewServer(conf)
	require.Error(t, err)
}
