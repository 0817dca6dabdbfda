package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLogger(zap.New(core), map[string]string{"rpc": "warn"})

	t.Run("error is attached under its own key", func(t *testing.T) {
		l.Errorw("call failed", errors.New("boom"), "procedure", "RoomService/ListRooms")
		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		require.Equal(t, "boom", fields["error"])
		require.Equal(t, "RoomService/ListRooms", fields["procedure"])
	})

	t.Run("component levels filter named loggers", func(t *testing.T) {
		rpcLogger := l.WithName("rpc").WithName("transport")
		rpcLogger.Debugw("suppressed")
		rpcLogger.Infow("suppressed")
		rpcLogger.Warnw("kept", nil)
		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		require.Equal(t, "rpc.transport", entries[0].LoggerName)
	})

	t.Run("values carry over", func(t *testing.T) {
		l.WithValues("ingressID", "IN_1").Infow("created")
		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		require.Equal(t, "IN_1", entries[0].ContextMap()["ingressID"])
	})
}
