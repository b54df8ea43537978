// Package routing dispatches inbound cloud-channel messages to either the
// local bus (when addressed to a sibling component) or the supervisor's
// own handlers (heartbeat, system info, update requests), and drives the
// alive/countdown heartbeat loop and the fixed 30s component heartbeat.
package routing

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/marco-svitol/dunebugger-remote/internal/domain"
	"github.com/marco-svitol/dunebugger-remote/internal/localbus"
	"github.com/marco-svitol/dunebugger-remote/internal/metrics"
	"github.com/marco-svitol/dunebugger-remote/internal/sysinfo"
	"github.com/marco-svitol/dunebugger-remote/internal/updater"
)

// componentHeartbeatInterval is the fixed cadence at which the supervisor
// pings core and scheduler over the local bus to confirm they're alive.
const componentHeartbeatInterval = 30 * time.Second

// aliveMessage is re-sent on the heartbeat loop once a peer has confirmed
// the supervisor is alive, until the countdown expires without a further
// confirmation.
var aliveMessage = map[string]any{"body": "I am alive"}

// Sender abstracts the one thing the router needs from the cloud channel:
// the ability to push an outbound envelope when joined.
type Sender interface {
	Send(env domain.Envelope)
}

// LocalSender abstracts sending a message to a sibling component over the
// local bus.
type LocalSender interface {
	Send(ctx context.Context, addr string, recipient domain.ComponentType, leaf string, body map[string]any) (map[string]any, error)
}

// Router dispatches inbound cloud messages and drives the two heartbeat
// loops (cloud-facing alive/countdown, and the fixed local component
// heartbeat).
type Router struct {
	cloud   Sender
	local   LocalSender
	// localAddrs maps each sibling component to the local bus address the
	// supervisor dials to reach it, so core and scheduler each get routed
	// to their own endpoint instead of the supervisor dialing its own
	// listen address.
	localAddrs map[domain.ComponentType]string
	sysinfo *sysinfo.Model
	updater *updater.Orchestrator
	metrics *metrics.LocalBusMetrics
	logger  *slog.Logger

	heartbeatEvery time.Duration
	loopDuration   time.Duration

	mu            sync.Mutex
	heartbeatOn   bool
	countdownLeft time.Duration
	wake          chan struct{}
}

// New builds a Router.
func New(cloud Sender, local LocalSender, localAddrs map[domain.ComponentType]string, model *sysinfo.Model, upd *updater.Orchestrator, m *metrics.LocalBusMetrics, logger *slog.Logger, heartbeatEvery, loopDuration time.Duration) *Router {
	return &Router{
		cloud:          cloud,
		local:          local,
		localAddrs:     localAddrs,
		sysinfo:        model,
		updater:        upd,
		metrics:        m,
		logger:         logger,
		heartbeatEvery: heartbeatEvery,
		loopDuration:   loopDuration,
		wake:           make(chan struct{}, 1),
	}
}

// SetCloudSender wires the cloud channel in after construction, breaking
// the cyclic dependency between the router (which needs to send replies)
// and the channel (which needs the router's HandleCloudMessage callback).
func (r *Router) SetCloudSender(cloud Sender) {
	r.cloud = cloud
}

// HandleCloudMessage is the cloud channel's MessageHandler. original
// envelope.Leaf may carry a "<recipient>.<leaf>" prefix, in which case the
// message is routed to that sibling over the local bus instead of being
// handled here.
func (r *Router) HandleCloudMessage(ctx context.Context, env domain.Envelope) {
	recipient, leaf, routed := splitRecipient(env.Leaf)

	switch {
	case routed && (recipient == domain.ComponentCore || recipient == domain.ComponentScheduler):
		env.Leaf = leaf
		addr, ok := r.localAddrs[recipient]
		if !ok {
			r.logger.Warn("routing: no local bus address configured for recipient", "recipient", recipient)
			return
		}
		if _, err := r.local.Send(ctx, addr, recipient, leaf, env.Payload); err != nil {
			r.logger.Error("routing: forward to local bus failed", "recipient", recipient, "leaf", leaf, "error", err)
		}
		return
	case routed && recipient != "controller" && recipient != "updater":
		r.logger.Debug("routing: unrecognized recipient, ignoring", "recipient", recipient)
		return
	}

	switch leaf {
	case "heartbeat":
		r.cloud.Send(domain.Envelope{Leaf: "heartbeat", Payload: aliveMessage})
		r.handleHeartbeat()
	case "system_info":
		r.cloud.Send(domain.Envelope{Leaf: "system_info", Payload: r.sysinfo.Snapshot()})
	case "ntp_status":
		r.cloud.Send(domain.Envelope{Leaf: "ntp_status", Payload: map[string]any{
			"ntp_available": r.sysinfo.NTPAvailable() == domain.NTPStateSynced,
		}})
	case "check_updates":
		r.handleCheckUpdates(ctx)
	case "update":
		r.handleUpdate(ctx, env)
	default:
		r.logger.Debug("routing: unknown subject for controller recipient", "leaf", leaf)
	}
}

// splitRecipient splits a "<recipient>.<leaf>" subject suffix into its two
// parts, matching the original single-dot split semantics.
func splitRecipient(subject string) (domain.ComponentType, string, bool) {
	recipient, leaf, found := strings.Cut(subject, ".")
	if !found {
		return "", subject, false
	}
	return domain.ComponentType(recipient), leaf, true
}

func (r *Router) handleCheckUpdates(ctx context.Context) {
	r.updater.CheckAll(ctx)

	components := map[string]any{}
	for _, c := range domain.AllComponents {
		v := r.updater.Status(c)
		components[string(c)] = map[string]any{
			"latest":      v.Version.Raw,
			"checked_at":  v.CheckedAt,
		}
	}
	r.cloud.Send(domain.Envelope{Leaf: "update_check_result", Payload: map[string]any{"components": components}})
}

func (r *Router) handleUpdate(ctx context.Context, env domain.Envelope) {
	component, _ := env.Payload["body"].(string)
	component = strings.TrimPrefix(component, "dunebugger-")

	if component == "" {
		r.cloud.Send(domain.Envelope{Leaf: "log", Payload: map[string]any{
			"message": "no component specified for update", "success": false, "level": "error",
		}})
		return
	}

	status, err := r.updater.Update(ctx, domain.ComponentType(component))
	if err != nil {
		r.cloud.Send(domain.Envelope{Leaf: "log", Payload: map[string]any{
			"message": "error while updating component " + component + ": " + err.Error(),
			"success": false, "level": "error",
		}})
		return
	}

	r.cloud.Send(domain.Envelope{Leaf: "log", Payload: map[string]any{
		"message": status.Message, "success": status.Success, "level": "info",
	}})
}

// HandleLocalHeartbeat records a heartbeat received from a sibling
// component over the local bus.
func (r *Router) HandleLocalHeartbeat(component domain.ComponentType, reportedVersion string) {
	r.sysinfo.RecordHeartbeat(component, reportedVersion)
	if r.metrics != nil {
		r.metrics.HeartbeatsTotal.WithLabelValues(string(component)).Inc()
	}
}

// handleHeartbeat restarts the countdown: the heartbeat loop keeps
// re-sending the alive message every heartbeatEvery until loopDuration
// elapses without a further confirming heartbeat, then both loops stop
// until the next confirmation arrives.
func (r *Router) handleHeartbeat() {
	r.mu.Lock()
	r.countdownLeft = r.loopDuration
	wasOn := r.heartbeatOn
	r.heartbeatOn = true
	r.mu.Unlock()

	if !wasOn {
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
}

// countdownTick is the granularity of the countdown loop's decrement; it
// only needs to be fine enough not to overshoot loopDuration noticeably.
const countdownTick = 100 * time.Millisecond

// RunHeartbeatLoop drives the alive-message resend loop and the countdown
// that eventually stops it, until ctx is cancelled.
func (r *Router) RunHeartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(countdownTick)
	defer ticker.Stop()

	lastSend := time.Time{}

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		case <-ticker.C:
		}

		r.mu.Lock()
		on := r.heartbeatOn
		if on {
			r.countdownLeft -= countdownTick
			if r.countdownLeft <= 0 {
				r.heartbeatOn = false
				on = false
			}
		}
		r.mu.Unlock()

		if !on {
			continue
		}

		if time.Since(lastSend) >= r.heartbeatEvery {
			r.cloud.Send(domain.Envelope{Leaf: "heartbeat", Payload: aliveMessage})
			lastSend = time.Now()
		}
	}
}

// RunComponentHeartbeat pings core and scheduler over the local bus every
// 30 seconds, the fixed cadence the sibling components expect.
func (r *Router) RunComponentHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(componentHeartbeatInterval)
	defer ticker.Stop()

	body := map[string]any{"body": "are you there?"}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range []domain.ComponentType{domain.ComponentCore, domain.ComponentScheduler} {
				addr, ok := r.localAddrs[c]
				if !ok {
					r.logger.Debug("routing: no local bus address configured for recipient", "component", c)
					continue
				}
				if _, err := r.local.Send(ctx, addr, c, "heartbeat", body); err != nil {
					r.logger.Debug("routing: component heartbeat failed", "component", c, "error", err)
					continue
				}
				r.logger.Debug("routing: component heartbeat sent", "component", c)
			}
		}
	}
}
