package routing

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/marco-svitol/dunebugger-remote/internal/config"
	"github.com/marco-svitol/dunebugger-remote/internal/domain"
	"github.com/marco-svitol/dunebugger-remote/internal/sysinfo"
	"github.com/marco-svitol/dunebugger-remote/internal/updater"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSplitRecipient(t *testing.T) {
	recipient, leaf, ok := splitRecipient("core.heartbeat")
	require.True(t, ok)
	require.Equal(t, domain.ComponentCore, recipient)
	require.Equal(t, "heartbeat", leaf)

	_, leaf, ok = splitRecipient("heartbeat")
	require.False(t, ok)
	require.Equal(t, "heartbeat", leaf)
}

type fakeSender struct {
	mu  sync.Mutex
	got []domain.Envelope
}

func (f *fakeSender) Send(env domain.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, env)
}

type fakeLocalSender struct{}

func (fakeLocalSender) Send(ctx context.Context, addr string, recipient domain.ComponentType, leaf string, body map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}

func TestHandleCloudMessageHeartbeat(t *testing.T) {
	cloud := &fakeSender{}
	model := sysinfo.New("dev-01", "bench")
	r := New(cloud, fakeLocalSender{}, nil, model, nil, nil, testLogger(), time.Millisecond, time.Minute)

	r.HandleCloudMessage(context.Background(), domain.Envelope{Leaf: "controller.heartbeat"})

	cloud.mu.Lock()
	defer cloud.mu.Unlock()
	require.Len(t, cloud.got, 1)
	require.Equal(t, "heartbeat", cloud.got[0].Leaf)
}

func TestHeartbeatLoopResendsWhileCountdownRuns(t *testing.T) {
	cloud := &fakeSender{}
	model := sysinfo.New("dev-01", "bench")
	r := New(cloud, fakeLocalSender{}, nil, model, nil, nil, testLogger(), 20*time.Millisecond, 500*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go r.RunHeartbeatLoop(ctx)

	r.handleHeartbeat()
	time.Sleep(400 * time.Millisecond)
	cancel()

	cloud.mu.Lock()
	defer cloud.mu.Unlock()
	require.Greater(t, len(cloud.got), 1, "heartbeat should have been resent more than once")
}

type recordingLocalSender struct {
	mu    sync.Mutex
	addrs map[domain.ComponentType]string
}

func (r *recordingLocalSender) Send(ctx context.Context, addr string, recipient domain.ComponentType, leaf string, body map[string]any) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.addrs == nil {
		r.addrs = make(map[domain.ComponentType]string)
	}
	r.addrs[recipient] = addr
	return map[string]any{}, nil
}

func TestHandleCloudMessageRoutesToPerComponentAddress(t *testing.T) {
	cloud := &fakeSender{}
	model := sysinfo.New("dev-01", "bench")
	local := &recordingLocalSender{}
	addrs := map[domain.ComponentType]string{
		domain.ComponentCore:      "/tmp/core-bus.sock",
		domain.ComponentScheduler: "/tmp/scheduler-bus.sock",
	}
	r := New(cloud, local, addrs, model, nil, nil, testLogger(), time.Millisecond, time.Minute)

	r.HandleCloudMessage(context.Background(), domain.Envelope{Leaf: "core.get_version"})
	r.HandleCloudMessage(context.Background(), domain.Envelope{Leaf: "scheduler.get_version"})

	local.mu.Lock()
	defer local.mu.Unlock()
	require.Equal(t, "/tmp/core-bus.sock", local.addrs[domain.ComponentCore])
	require.Equal(t, "/tmp/scheduler-bus.sock", local.addrs[domain.ComponentScheduler])
	require.NotEqual(t, local.addrs[domain.ComponentCore], local.addrs[domain.ComponentScheduler],
		"core and scheduler must be dialed at distinct addresses, not a shared self-dial address")
}

func TestHandleCloudMessageCheckUpdatesTracksOnlyVersionedComponents(t *testing.T) {
	cloud := &fakeSender{}
	model := sysinfo.New("dev-01", "bench")
	upd := updater.New(config.UpdaterConfig{RequestDir: t.TempDir()}, testLogger(), nil)
	r := New(cloud, fakeLocalSender{}, nil, model, upd, nil, testLogger(), time.Millisecond, time.Minute)

	// An already-cancelled context makes the orchestrator's GitHub rate
	// limiter fail fast in checkOne, so this never makes a real network
	// call; CheckAll's per-component errors are independent of what
	// handleCheckUpdates reports below.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r.HandleCloudMessage(ctx, domain.Envelope{Leaf: "check_updates"})

	cloud.mu.Lock()
	defer cloud.mu.Unlock()
	require.Len(t, cloud.got, 1)
	require.Equal(t, "update_check_result", cloud.got[0].Leaf)

	components, ok := cloud.got[0].Payload["components"].(map[string]any)
	require.True(t, ok)
	require.Len(t, components, 3)
	require.Contains(t, components, "core")
	require.Contains(t, components, "scheduler")
	require.Contains(t, components, "remote")
	require.NotContains(t, components, "controller")
	require.NotContains(t, components, "updater")
}
