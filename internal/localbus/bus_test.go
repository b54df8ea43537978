package localbus

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/marco-svitol/dunebugger-remote/internal/domain"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestParseSubject(t *testing.T) {
	root, recipient, leaf, err := ParseSubject("dunebugger.scheduler.heartbeat")
	require.NoError(t, err)
	require.Equal(t, "dunebugger", root)
	require.Equal(t, domain.ComponentScheduler, recipient)
	require.Equal(t, "heartbeat", leaf)
}

func TestParseSubjectRejectsMalformed(t *testing.T) {
	_, _, _, err := ParseSubject("too.many.dots.here")
	require.Error(t, err)
}

func TestSendAndHandleRoundTrip(t *testing.T) {
	addr := filepath.Join(t.TempDir(), "bus.sock")
	bus := New("dunebugger", "remote", testLogger())

	var gotSource domain.ComponentType
	bus.Handle("get_version", func(ctx context.Context, env domain.Envelope) (map[string]any, error) {
		gotSource = env.Source
		return map[string]any{"version": "1.2.3"}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go bus.Listen(ctx, addr)
	require.Eventually(t, func() bool {
		_, err := bus.Send(ctx, addr, domain.ComponentUpdater, "get_version", nil)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	reply, err := bus.Send(ctx, addr, domain.ComponentUpdater, "get_version", nil)
	require.NoError(t, err)
	require.Equal(t, "1.2.3", reply["version"])
	// The handler must see who actually sent the message, not the subject's
	// recipient, so callers like handleLocalHeartbeat can key off the real
	// sender.
	require.Equal(t, domain.ComponentType("remote"), gotSource)
}
