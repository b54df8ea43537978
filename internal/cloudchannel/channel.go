// Package cloudchannel drives the supervisor's single outbound connection
// to the cloud: authenticate, connect, join, and auto-rejoin on drop, while
// a circuit breaker limits retries to one attempt per cooldown window once
// joins keep failing.
package cloudchannel

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marco-svitol/dunebugger-remote/internal/auth"
	"github.com/marco-svitol/dunebugger-remote/internal/config"
	"github.com/marco-svitol/dunebugger-remote/internal/domain"
	"github.com/marco-svitol/dunebugger-remote/internal/metrics"
)

const (
	pingInterval = 54 * time.Second
	pongWait     = 60 * time.Second
)

// MessageHandler is invoked for every inbound envelope, on a single
// goroutine so handlers never race with each other.
type MessageHandler func(ctx context.Context, env domain.Envelope)

// ConnectivityGate abstracts the one thing the cloud channel needs from the
// connectivity monitor: its last-observed internet reachability. Satisfied
// by *connectivity.Monitor.
type ConnectivityGate interface {
	State() domain.ConnectivityState
}

// Channel owns the single websocket connection to the cloud and the
// session phase state machine layered on top of it.
type Channel struct {
	cfg          config.WebsocketConfig
	authCli      *auth.Client
	connectivity ConnectivityGate
	logger       *slog.Logger
	metrics      *metrics.CloudChannelMetrics
	handler      MessageHandler

	breaker *circuitBreaker

	// wake is pinged by NotifyConnectivity when connectivity comes back
	// up, so Run resumes joining immediately instead of waiting out its
	// poll tick while idle.
	wake chan struct{}

	mu               sync.RWMutex
	phase            domain.CloudSessionPhase
	conn             *websocket.Conn
	broadcastEnabled bool

	// writeMu serializes writes onto the single connection; concurrent
	// goroutines must not call conn.WriteJSON directly.
	writeMu sync.Mutex
}

// New builds a Channel. handler is called for each inbound message once
// the channel reaches PhaseJoined. conn may be nil (e.g. in tests), in
// which case the channel never gates on connectivity and behaves as
// though always up.
func New(cfg config.WebsocketConfig, authCli *auth.Client, conn ConnectivityGate, m *metrics.CloudChannelMetrics, logger *slog.Logger, handler MessageHandler) *Channel {
	return &Channel{
		cfg:              cfg,
		authCli:          authCli,
		connectivity:     conn,
		logger:           logger,
		metrics:          m,
		handler:          handler,
		breaker:          newCircuitBreaker(3, 30*time.Second),
		phase:            domain.PhaseIdle,
		broadcastEnabled: cfg.BroadcastInitialState,
		wake:             make(chan struct{}, 1),
	}
}

// NotifyConnectivity is registered with the connectivity monitor's callback
// list so a transition to up wakes a channel that's idling on a down
// connection, instead of it waiting for the next poll tick.
func (c *Channel) NotifyConnectivity(state domain.ConnectivityState) {
	if state != domain.ConnectivityUp {
		return
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Phase returns the current session phase.
func (c *Channel) Phase() domain.CloudSessionPhase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

func (c *Channel) setPhase(phase domain.CloudSessionPhase) {
	c.mu.Lock()
	old := c.phase
	c.phase = phase
	c.mu.Unlock()
	if old != phase {
		c.logger.Info("cloud channel phase changed", "from", old, "to", phase)
		if c.metrics != nil {
			c.metrics.SessionPhase.WithLabelValues(string(old)).Set(0)
			c.metrics.SessionPhase.WithLabelValues(string(phase)).Set(1)
		}
	}
}

// Run drives the connect/join/auto-rejoin loop until ctx is cancelled. The
// channel never attempts to open while connectivity is down: it parks in
// PhaseIdle and waits for NotifyConnectivity (or its own poll) to report the
// device is back online before resuming. Once connectivity is up, join
// attempts are gated by the circuit breaker: after three consecutive
// failures it opens, and from then on one attempt is let through per 30s
// cooldown window until a join succeeds.
func (c *Channel) Run(ctx context.Context) {
	if !c.cfg.Enabled {
		c.logger.Info("cloud channel disabled by configuration")
		return
	}

	for {
		select {
		case <-ctx.Done():
			c.disconnect()
			return
		default:
		}

		if c.connectivity != nil && c.connectivity.State() != domain.ConnectivityUp {
			c.setPhase(domain.PhaseIdle)
			if !c.waitForConnectivity(ctx) {
				c.disconnect()
				return
			}
		}

		if !c.breaker.Allow() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
				continue
			}
		}

		if err := c.joinOnce(ctx); err != nil {
			c.logger.Error("cloud channel join failed", "error", err)
			tripped := c.breaker.RecordFailure()
			if c.metrics != nil {
				c.metrics.JoinFailuresTotal.Inc()
				if tripped {
					c.metrics.CircuitBreakerOpenTotal.Inc()
				}
			}
			c.setPhase(domain.PhaseDisconnected)

			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.ConnectionIntervalOrDefault()):
				continue
			}
		}

		c.breaker.RecordSuccess()
		// joinOnce only returns (without error) once the connection has
		// dropped, so loop straight back into reconnecting.
		c.setPhase(domain.PhaseDisconnected)
	}
}

// waitForConnectivity blocks until connectivity is reported up, ctx is
// cancelled (returning false), or a poll finds it up already. It wakes
// promptly off NotifyConnectivity rather than waiting for the 1s poll.
func (c *Channel) waitForConnectivity(ctx context.Context) bool {
	if c.connectivity.State() == domain.ConnectivityUp {
		return true
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-c.wake:
		case <-ticker.C:
		}
		if c.connectivity.State() == domain.ConnectivityUp {
			return true
		}
	}
}

// joinOnce authenticates, connects, joins, and then pumps inbound messages
// until the connection drops or ctx is cancelled, returning nil in both
// cases (the caller treats a clean drop the same as most other
// disconnects: reconnect from the top).
func (c *Channel) joinOnce(ctx context.Context) error {
	c.setPhase(domain.PhaseAuthenticating)

	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectionTimeoutOrDefault())
	defer cancel()

	userInfo, err := c.authCli.Authenticate(connectCtx)
	if err != nil {
		return err
	}

	c.setPhase(domain.PhaseConnecting)
	if c.metrics != nil {
		c.metrics.JoinAttemptsTotal.Inc()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(connectCtx, userInfo.WSSURL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.setPhase(domain.PhaseJoined)
	c.logger.Info("joined cloud channel group", "group", c.cfg.GroupName)

	if c.broadcastEnabled {
		c.sendEnvelope(domain.Envelope{Leaf: "heartbeat", Payload: map[string]any{"body": "Is anyone there?"}})
	}

	c.pump(ctx, conn)
	return nil
}

// pump reads inbound frames and dispatches them to the handler, and keeps
// the connection alive with periodic pings, until the connection closes or
// ctx is cancelled.
func (c *Channel) pump(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})

	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.logger.Debug("cloud channel connection closed", "error", err)
				return
			}

			var env domain.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.logger.Warn("cloud channel dropped malformed message", "error", err)
				continue
			}
			if c.metrics != nil {
				c.metrics.MessagesReceivedTotal.WithLabelValues(env.Leaf).Inc()
			}
			c.handler(ctx, env)
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.disconnect()
			return
		case <-done:
			c.disconnect()
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				c.disconnect()
				return
			}
		}
	}
}

func (c *Channel) disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// EnableBroadcast turns on initial-state broadcasting on (re)join.
func (c *Channel) EnableBroadcast() { c.mu.Lock(); c.broadcastEnabled = true; c.mu.Unlock() }

// DisableBroadcast turns off initial-state broadcasting on (re)join.
func (c *Channel) DisableBroadcast() { c.mu.Lock(); c.broadcastEnabled = false; c.mu.Unlock() }

// Send delivers an envelope to the group if the channel is currently
// joined, silently dropping it otherwise (mirroring the original
// best-effort send-when-connected behavior).
func (c *Channel) Send(env domain.Envelope) {
	if c.Phase() != domain.PhaseJoined {
		c.logger.Debug("cloud channel send dropped: not joined", "leaf", env.Leaf)
		return
	}
	c.sendEnvelope(env)
}

func (c *Channel) sendEnvelope(env domain.Envelope) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}

	c.writeMu.Lock()
	err := conn.WriteJSON(env)
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Error("cloud channel send failed", "leaf", env.Leaf, "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.MessagesSentTotal.WithLabelValues(env.Leaf).Inc()
	}
}
