package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/twitchtv/twirp"
)

func TestRPCMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewRPCMetrics(reg)
	require.NoError(t, err)

	m.OnCall("Ingress/CreateIngress", 200, "", 20*time.Millisecond)
	m.OnCall("Ingress/CreateIngress", 400, twirp.InvalidArgument, 5*time.Millisecond)
	m.OnCall("RoomService/ListRooms", 0, twirp.DeadlineExceeded, 10*time.Second)

	require.Equal(t, 1.0, testutil.ToFloat64(m.requestTotal.WithLabelValues("Ingress", "CreateIngress", "2xx", "")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requestTotal.WithLabelValues("Ingress", "CreateIngress", "4xx", "invalid_argument")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requestTotal.WithLabelValues("RoomService", "ListRooms", "none", "deadline_exceeded")))

	// registering twice on the same registry fails
	_, err = NewRPCMetrics(reg)
	require.Error(t, err)
}

func TestServerMetrics(t *testing.T) {
	m, err := NewServerMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.IngressCreated("WHIP_INPUT", true)
	m.IngressCreated("UNKNOWN_INPUT(2)", false)
	require.EqualValues(t, 1, m.IngressCount())
	m.IngressDeleted()
	require.EqualValues(t, 0, m.IngressCount())

	m.RecordTwirpRequestStatus("Ingress", "DeleteIngress", 404, twirp.NotFound)
	require.Equal(t, 1.0, testutil.ToFloat64(m.twirpRequestStatus.WithLabelValues("Ingress", "DeleteIngress", "4xx", "not_found")))
}

func TestStatusFamily(t *testing.T) {
	require.Equal(t, "none", StatusFamily(0))
	require.Equal(t, "2xx", StatusFamily(204))
	require.Equal(t, "5xx", StatusFamily(503))
	require.Equal(t, "302", StatusFamily(302))
}
