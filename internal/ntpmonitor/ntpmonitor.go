// Package ntpmonitor probes configured NTP servers over UDP and reports the
// initial availability and every later change to its Notifier. The
// supervisor's Notifier records the state in the system-info model and the
// NTP metric; it does not publish the change to the scheduler or the cloud
// channel, which see the state only when they ask for it.
package ntpmonitor

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/marco-svitol/dunebugger-remote/internal/domain"
)

// ntpRequestPacket is the minimal client request packet: LI=0, VN=3
// (NTPv3), Mode=3 (client), followed by 47 zero bytes.
var ntpRequestPacket = append([]byte{0x1b}, make([]byte, 47)...)

// Notifier is called whenever the observed NTP state changes.
type Notifier func(state domain.NTPState)

// Monitor periodically probes a list of NTP servers and reports whether at
// least one responded.
type Monitor struct {
	servers  []string
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	notify Notifier
}

// minCheckInterval is the floor applied to a configured check interval:
// time.NewTicker panics on a zero or negative duration, and a misconfigured
// 0s interval shouldn't take the monitor down with it.
const minCheckInterval = time.Second

// New builds a Monitor over servers, checking every interval (clamped to at
// least minCheckInterval) with a per-server probe timeout.
func New(servers []string, interval, timeout time.Duration, logger *slog.Logger, notify Notifier) *Monitor {
	if interval < minCheckInterval {
		interval = minCheckInterval
	}
	return &Monitor{servers: servers, interval: interval, timeout: timeout, logger: logger, notify: notify}
}

// Run blocks, probing immediately and then once per interval, until ctx is
// cancelled. State changes are pushed to notify.
func (m *Monitor) Run(ctx context.Context) {
	previous := domain.NTPStateUnknown
	current := m.probeAll(ctx)
	m.notify(current)
	previous = current

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("ntp monitor stopped")
			return
		case <-ticker.C:
			current = m.probeAll(ctx)
			if current != previous {
				m.logger.Warn("ntp availability changed", "from", previous, "to", current)
				m.notify(current)
			}
			previous = current
		}
	}
}

// probeAll returns NTPStateSynced if at least one configured server
// answered the probe within timeout, NTPStateUnreachable otherwise.
func (m *Monitor) probeAll(ctx context.Context) domain.NTPState {
	if len(m.servers) == 0 {
		m.logger.Warn("no ntp servers configured")
		return domain.NTPStateUnreachable
	}

	for _, server := range m.servers {
		if m.probeOne(ctx, net.JoinHostPort(server, "123")) {
			return domain.NTPStateSynced
		}
	}
	m.logger.Warn("no ntp servers reachable")
	return domain.NTPStateUnreachable
}

// probeOne sends the NTP client packet to addr (host:port) and reports
// whether a response arrived before the probe timeout.
func (m *Monitor) probeOne(ctx context.Context, addr string) bool {
	d := net.Dialer{Timeout: m.timeout}
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		m.logger.Debug("ntp server unreachable", "server", addr, "error", err)
		return false
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(m.timeout)); err != nil {
		return false
	}

	if _, err := conn.Write(ntpRequestPacket); err != nil {
		m.logger.Debug("ntp probe write failed", "server", addr, "error", err)
		return false
	}

	buf := make([]byte, 48)
	n, err := conn.Read(buf)
	if err != nil {
		m.logger.Debug("ntp probe timeout", "server", addr, "error", err)
		return false
	}

	m.logger.Debug("ntp server reachable", "server", addr)
	return n > 0
}
