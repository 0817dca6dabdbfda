package service_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twitchtv/twirp"

	"github.com/substream/substream-control/pkg/livekit"
	"github.com/substream/substream-control/pkg/rpc"
	"github.com/substream/substream-control/pkg/service"
)

func TestListRooms(t *testing.T) {
	t.Run("no active sessions", func(t *testing.T) {
		caller := &fakeCaller{handle: func(string, any) (any, error) {
			return &livekit.ListRoomsResponse{}, nil
		}}
		rooms, err := service.NewRoomService(caller, newCredentialSource(t)).ListRooms(context.Background())
		require.NoError(t, err)
		require.NotNil(t, rooms)
		require.Empty(t, rooms)
		require.True(t, caller.calls[0].grant.RoomList)
	})

	t.Run("server error is distinguishable from empty", func(t *testing.T) {
		caller := &fakeCaller{handle: func(string, any) (any, error) {
			return nil, &rpc.Error{StatusCode: http.StatusInternalServerError, Code: twirp.Internal, Msg: "Internal Server Error"}
		}}
		rooms, err := service.NewRoomService(caller, newCredentialSource(t)).ListRooms(context.Background())
		require.Nil(t, rooms)
		rpcErr, ok := rpc.AsError(err)
		require.True(t, ok)
		require.Equal(t, http.StatusInternalServerError, rpcErr.StatusCode)
	})

	t.Run("active room", func(t *testing.T) {
		caller := &fakeCaller{handle: func(_ string, req any) (any, error) {
			require.Equal(t, []string{"unity-demo"}, req.(*livekit.ListRoomsRequest).Names)
			return &livekit.ListRoomsResponse{Rooms: []*livekit.Room{{Sid: "RM_1", Name: "unity-demo", NumParticipants: 1, MaxParticipants: 20}}}, nil
		}}
		rooms, err := service.NewRoomService(caller, newCredentialSource(t)).ListRooms(context.Background(), "unity-demo")
		require.NoError(t, err)
		require.Len(t, rooms, 1)
		require.EqualValues(t, 1, rooms[0].NumParticipants)
	})
}

func TestListParticipants(t *testing.T) {
	caller := &fakeCaller{handle: func(string, any) (any, error) {
		return &livekit.ListParticipantsResponse{Participants: []*livekit.ParticipantInfo{{Identity: "unity-streamer"}}}, nil
	}}
	svc := service.NewRoomService(caller, newCredentialSource(t))

	participants, err := svc.ListParticipants(context.Background(), "unity-demo")
	require.NoError(t, err)
	require.Len(t, participants, 1)
	require.True(t, caller.calls[0].grant.RoomAdmin)
	require.Equal(t, "unity-demo", caller.calls[0].grant.Room)

	_, err = svc.ListParticipants(context.Background(), "")
	require.ErrorIs(t, err, service.ErrRoomNameEmpty)
}
