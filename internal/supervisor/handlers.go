package supervisor

import (
	"context"

	"github.com/marco-svitol/dunebugger-remote/internal/domain"
	"github.com/marco-svitol/dunebugger-remote/internal/version"
)

// handleLocalHeartbeat answers heartbeat replies from core/scheduler
// arriving over the local bus, keyed off the envelope's source component.
func (s *Supervisor) handleLocalHeartbeat(ctx context.Context, env domain.Envelope) (map[string]any, error) {
	reportedVersion, _ := env.Payload["full_version"].(string)
	s.Router.HandleLocalHeartbeat(env.Source, reportedVersion)
	return map[string]any{"ok": true}, nil
}

// handleLocalGetVersion answers get_version requests from any sibling
// with this binary's own build version.
func (s *Supervisor) handleLocalGetVersion(ctx context.Context, env domain.Envelope) (map[string]any, error) {
	info := version.Get()
	return map[string]any{
		"version":      info.Version,
		"full_version": info.FullVersion,
	}, nil
}

// handleLocalGetNTPStatus answers get_ntp_status requests from the
// scheduler with the NTP monitor's current observation.
func (s *Supervisor) handleLocalGetNTPStatus(ctx context.Context, env domain.Envelope) (map[string]any, error) {
	return map[string]any{
		"ntp_available": s.SysInfo.NTPAvailable() == domain.NTPStateSynced,
	}, nil
}
