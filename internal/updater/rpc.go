package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/marco-svitol/dunebugger-remote/internal/domain"
)

// hostRPC writes update requests to a shared-volume drop directory and
// polls a matching status file, the mechanism the host coordinator outside
// the container uses to perform the privileged parts of an update.
type hostRPC struct {
	requestDir string
	statusDir  string
	pollEvery  time.Duration
}

func newHostRPC(requestDir string) *hostRPC {
	return &hostRPC{
		requestDir: requestDir,
		statusDir:  filepath.Join(filepath.Dir(requestDir), "status"),
		pollEvery:  time.Second,
	}
}

// Request writes an UpdateRequest to the drop directory and polls for the
// matching UpdateStatus until it appears, ctx is cancelled, or timeout
// elapses.
func (r *hostRPC) Request(ctx context.Context, component domain.ComponentType, targetVersion string, timeout time.Duration) (domain.UpdateStatus, error) {
	req := domain.UpdateRequest{
		ID:        uuid.NewString(),
		Component: component,
		Target:    targetVersion,
		Requested: time.Now(),
	}

	if err := os.MkdirAll(r.requestDir, 0o755); err != nil {
		return domain.UpdateStatus{}, fmt.Errorf("updater: creating request dir: %w", err)
	}

	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return domain.UpdateStatus{}, fmt.Errorf("updater: encoding update request: %w", err)
	}

	requestFile := filepath.Join(r.requestDir, req.ID+".json")
	if err := os.WriteFile(requestFile, payload, 0o644); err != nil {
		return domain.UpdateStatus{}, fmt.Errorf("updater: writing update request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	statusFile := filepath.Join(r.statusDir, req.ID+".json")
	ticker := time.NewTicker(r.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return domain.UpdateStatus{}, fmt.Errorf("updater: timed out waiting for status of request %s", req.ID)
		case <-ticker.C:
			status, ok, err := readStatus(statusFile)
			if err != nil {
				return domain.UpdateStatus{}, err
			}
			if ok {
				return status, nil
			}
		}
	}
}

func readStatus(path string) (domain.UpdateStatus, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return domain.UpdateStatus{}, false, nil
	}
	if err != nil {
		return domain.UpdateStatus{}, false, fmt.Errorf("updater: reading status file: %w", err)
	}

	var status domain.UpdateStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return domain.UpdateStatus{}, false, fmt.Errorf("updater: decoding status file: %w", err)
	}
	return status, status.Done, nil
}
