// Package domain holds the shared types that flow between the supervisor's
// components: component identity and health, semantic versions, connection
// and session state machines, and the envelope used for both the local bus
// and the cloud channel.
package domain

import (
	"time"

	"github.com/marco-svitol/dunebugger-remote/internal/semver"
)

// ComponentType identifies a component the supervisor deals with on the
// device: the sibling processes it coordinates (core, scheduler), the
// routing roles the cloud addresses (controller, updater), and the
// supervisor itself (remote).
type ComponentType string

const (
	ComponentCore      ComponentType = "core"
	ComponentScheduler ComponentType = "scheduler"
	ComponentController ComponentType = "controller"
	ComponentUpdater   ComponentType = "updater"

	// ComponentRemote identifies the supervisor itself in version-tracking
	// and update-order contexts. Controller and updater are routing roles
	// the cloud addresses messages to, not independently-versioned sibling
	// processes, so they never appear in AllComponents.
	ComponentRemote ComponentType = "remote"
)

// AllComponents lists every version-tracked component the update
// orchestrator follows, in a fixed order used when iterating for
// check_updates reporting.
var AllComponents = []ComponentType{ComponentCore, ComponentScheduler, ComponentRemote}

// RepoName returns "dunebugger-<component>", or "dunebugger-remote" for the
// empty component. The updater uses it for the remote component's
// repository; core and scheduler repository names come from the updater's
// own table, where core's repository is "dunebugger".
func (c ComponentType) RepoName() string {
	if c == "" {
		return "dunebugger-remote"
	}
	return "dunebugger-" + string(c)
}

// ComponentVersion is the version currently observed to be running for a
// component, together with where that observation came from.
type ComponentVersion struct {
	Component ComponentType
	Version   semver.Version
	Source    VersionSource
	CheckedAt time.Time
}

// VersionSource records how a ComponentVersion was determined.
type VersionSource string

const (
	VersionSourceFile      VersionSource = "file"
	VersionSourceContainer VersionSource = "container"
	VersionSourceUnknown   VersionSource = "unknown"
)

// ComponentHealth is the last-known liveness state of a sibling component,
// updated whenever a heartbeat message for it arrives over the local bus.
type ComponentHealth struct {
	Component   ComponentType
	Alive       bool
	LastSeen    time.Time
	LastMessage string
}

// IsStale reports whether the component has not reported in longer than the
// supplied staleness window, meaning it should be considered down even
// though no explicit failure was observed.
func (h ComponentHealth) IsStale(window time.Duration) bool {
	if h.LastSeen.IsZero() {
		return true
	}
	return time.Since(h.LastSeen) > window
}

// ConnectivityState describes the state of the device's own internet
// reachability, independent of whether the cloud channel is joined.
type ConnectivityState string

const (
	ConnectivityUnknown    ConnectivityState = "unknown"
	ConnectivityUp         ConnectivityState = "up"
	ConnectivityDown       ConnectivityState = "down"
	ConnectivityDegraded   ConnectivityState = "degraded"
)

// NTPState describes the last result of the NTP reachability probe.
type NTPState string

const (
	NTPStateUnknown  NTPState = "unknown"
	NTPStateSynced   NTPState = "synced"
	NTPStateUnreachable NTPState = "unreachable"
)

// CloudSessionPhase enumerates the states of the cloud channel's connection
// state machine. Transitions are driven exclusively by the cloud channel
// component; every other component only ever observes the current phase.
type CloudSessionPhase string

const (
	PhaseIdle          CloudSessionPhase = "idle"
	PhaseAuthenticating CloudSessionPhase = "authenticating"
	PhaseConnecting    CloudSessionPhase = "connecting"
	PhaseJoined        CloudSessionPhase = "joined"
	PhaseDisconnected  CloudSessionPhase = "disconnected"
)

// Envelope is the normalized message shape used by both the local bus and
// the cloud channel. Subject follows the "<root>.<recipient>.<leaf>" grammar:
// root identifies the bus namespace, recipient is a ComponentType (or the
// literal "remote" for messages addressed to the supervisor itself), and
// leaf names the operation.
type Envelope struct {
	Subject   string
	Payload   map[string]any
	Recipient ComponentType
	// Source identifies the component that sent this envelope. Populated
	// by the local bus from the wire "source" field on inbound messages;
	// empty for envelopes arriving over the cloud channel.
	Source    ComponentType
	Leaf      string
	ID        string
	Timestamp time.Time
}

// UpdateRequest is written by the updater component to the filesystem RPC
// drop directory to ask the host coordinator to perform an update.
type UpdateRequest struct {
	ID        string        `json:"id"`
	Component ComponentType `json:"component"`
	Target    string        `json:"target_version"`
	Requested time.Time     `json:"requested_at"`
}

// UpdateStatus is the host coordinator's answer to an UpdateRequest, polled
// from the filesystem RPC status file.
type UpdateStatus struct {
	ID        string    `json:"id"`
	Done      bool      `json:"done"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}
