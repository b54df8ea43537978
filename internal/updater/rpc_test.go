package updater

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marco-svitol/dunebugger-remote/internal/domain"
)

func TestHostRPCRequestWaitsForStatus(t *testing.T) {
	base := t.TempDir()
	requestDir := filepath.Join(base, "requests")
	r := newHostRPC(requestDir)
	r.pollEvery = 20 * time.Millisecond

	go func() {
		// give Request time to write the request file first
		time.Sleep(30 * time.Millisecond)

		entries, err := os.ReadDir(requestDir)
		require.NoError(t, err)
		require.Len(t, entries, 1)

		var req domain.UpdateRequest
		data, err := os.ReadFile(filepath.Join(requestDir, entries[0].Name()))
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &req))

		require.NoError(t, os.MkdirAll(r.statusDir, 0o755))
		status := domain.UpdateStatus{ID: req.ID, Done: true, Success: true, Message: "updated"}
		payload, err := json.Marshal(status)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(r.statusDir, req.ID+".json"), payload, 0o644))
	}()

	status, err := r.Request(t.Context(), domain.ComponentCore, "1.2.3", time.Second)
	require.NoError(t, err)
	assert.True(t, status.Success)
	assert.Equal(t, "updated", status.Message)
}

func TestHostRPCRequestTimesOut(t *testing.T) {
	base := t.TempDir()
	r := newHostRPC(filepath.Join(base, "requests"))
	r.pollEvery = 10 * time.Millisecond

	_, err := r.Request(t.Context(), domain.ComponentCore, "1.2.3", 50*time.Millisecond)
	assert.Error(t, err)
}

func TestReadStatusMissingFile(t *testing.T) {
	_, ok, err := readStatus(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.False(t, ok)
}
