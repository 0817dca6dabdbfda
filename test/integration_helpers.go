package test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/substream/substream-control/pkg/config"
	"github.com/substream/substream-control/pkg/devserver"
)

const (
	testApiKey    = "APIintegration"
	testApiSecret = "integrationsecretintegrationsecr"
	testRoom      = "unity-demo"
	testIdentity  = "unity-streamer"
)

func waitForServerToStart(s *devserver.Server) {
	// wait till ready
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			panic("could not start server after timeout")
		case <-time.After(10 * time.Millisecond):
			if s.IsRunning() {
				return
			}
		}
	}
}

func freePort(t *testing.T) uint32 {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return uint32(ln.Addr().(*net.TCPAddr).Port)
}

// setupPlatform starts a dev server and returns a validated client config
// pointing at it.
func setupPlatform(t *testing.T) (*devserver.Server, *config.Config) {
	conf, err := config.NewConfig("", true, nil, nil)
	require.NoError(t, err)
	conf.DevServer.Port = freePort(t)
	conf.DevServer.Keys = map[string]string{testApiKey: testApiSecret}

	server, err := devserver.NewServer(conf)
	require.NoError(t, err)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()
	waitForServerToStart(server)
	t.Cleanup(func() {
		server.Stop()
		require.NoError(t, <-errChan)
	})

	// clients are usually handed the websocket form of the URL
	conf.URL = "ws://" + net.JoinHostPort(conf.DevServer.BindAddress, strconv.Itoa(int(conf.DevServer.Port)))
	conf.APIKey = testApiKey
	conf.APISecret = testApiSecret
	require.NoError(t, conf.Validate())
	return server, conf
}

// minimal WHIP offer with one sendonly video section
const whipOffer = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=sendonly\r\n" +
	"a=rtpmap:96 H264/90000\r\n"
