// Package sysinfo tracks the liveness of sibling components via their
// heartbeat messages and assembles the system info payload reported to
// the cloud channel.
package sysinfo

import (
	"sync"
	"time"

	"github.com/marco-svitol/dunebugger-remote/internal/domain"
	"github.com/marco-svitol/dunebugger-remote/internal/version"
)

// heartbeatTTL is how long a heartbeat keeps a component marked alive in
// the absence of a further heartbeat.
const heartbeatTTL = 45 * time.Second

// Model holds the supervisor's view of device and sibling-component state,
// updated by the routing layer and read when assembling outbound reports.
type Model struct {
	deviceID    string
	location    string

	mu       sync.RWMutex
	health   map[domain.ComponentType]domain.ComponentHealth
	versions map[domain.ComponentType]string
	ntp      domain.NTPState
}

// New builds a Model for the given device identity.
func New(deviceID, location string) *Model {
	return &Model{
		deviceID: deviceID,
		location: location,
		health:   make(map[domain.ComponentType]domain.ComponentHealth),
		versions: make(map[domain.ComponentType]string),
		ntp:      domain.NTPStateUnknown,
	}
}

// RecordHeartbeat marks component alive as of now and records the version
// string it reported, mirroring the original TTL-gated heartbeat flags.
func (m *Model) RecordHeartbeat(component domain.ComponentType, reportedVersion string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health[component] = domain.ComponentHealth{Component: component, Alive: true, LastSeen: time.Now()}
	m.versions[component] = reportedVersion
}

// IsAlive reports whether component has heartbeated within the TTL window.
func (m *Model) IsAlive(component domain.ComponentType) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.health[component]
	if !ok {
		return false
	}
	return !h.IsStale(heartbeatTTL)
}

// SetNTPAvailable records the latest NTP monitor observation.
func (m *Model) SetNTPAvailable(state domain.NTPState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ntp = state
}

// NTPAvailable returns the latest NTP monitor observation.
func (m *Model) NTPAvailable() domain.NTPState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ntp
}

// ComponentReport is one entry of the component list reported alongside
// system info.
type ComponentReport struct {
	Name    string `json:"name"`
	State   string `json:"state"`
	Version string `json:"version"`
}

// Snapshot assembles the system info payload from the model's in-memory
// state: device id, location, NTP availability, and one report each for
// core, scheduler and remote.
func (m *Model) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	components := []ComponentReport{
		m.componentReportLocked(domain.ComponentCore),
		m.componentReportLocked(domain.ComponentScheduler),
		{Name: "remote", State: "running", Version: version.Get().FullVersion},
	}

	return map[string]any{
		"system_info": map[string]any{
			"device_id":           m.deviceID,
			"timestamp":           time.Now().UTC().Format(time.RFC3339),
			"ntp_available":       m.ntp == domain.NTPStateSynced,
			"dunebugger_components": components,
			"location": map[string]any{
				"description": m.location,
			},
		},
	}
}

func (m *Model) componentReportLocked(component domain.ComponentType) ComponentReport {
	state := "not_responding"
	if h, ok := m.health[component]; ok && !h.IsStale(heartbeatTTL) {
		state = "running"
	}
	return ComponentReport{Name: string(component), State: state, Version: m.versions[component]}
}
