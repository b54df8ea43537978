// Package connectivity supervises the device's own internet reachability
// using DNS resolution plus an HTTPS request against a configured test
// domain, and fans state changes out to registered callbacks.
package connectivity

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marco-svitol/dunebugger-remote/internal/domain"
)

// Callback is notified on every connectivity transition.
type Callback func(state domain.ConnectivityState)

// Monitor runs the periodic connectivity check loop and reports
// domain.ConnectivityUp / domain.ConnectivityDown transitions to its
// registered callbacks.
type Monitor struct {
	testDomain string
	interval   time.Duration
	timeout    time.Duration
	logger     *slog.Logger

	httpClient *http.Client

	mu        sync.RWMutex
	state     domain.ConnectivityState
	callbacks []Callback
}

// New builds a Monitor for testDomain, checking every interval with the
// given per-check timeout.
func New(testDomain string, interval, timeout time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		testDomain: testDomain,
		interval:   interval,
		timeout:    timeout,
		logger:     logger,
		state:      domain.ConnectivityUnknown,
		httpClient: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
	}
}

// AddCallback registers a callback invoked (synchronously, one at a time)
// on every state transition.
func (m *Monitor) AddCallback(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// State returns the last observed connectivity state.
func (m *Monitor) State() domain.ConnectivityState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Run blocks, performing an initial check and then one check per interval,
// until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.ForceCheck(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("connectivity monitor stopped")
			return
		case <-ticker.C:
			m.ForceCheck(ctx)
		}
	}
}

// ForceCheck runs the DNS-then-HTTPS probe immediately, updates state, and
// notifies callbacks if it changed. It returns the newly observed state.
func (m *Monitor) ForceCheck(ctx context.Context) domain.ConnectivityState {
	newState := domain.ConnectivityDown
	if m.checkDNS(ctx) && m.checkHTTPS(ctx) {
		newState = domain.ConnectivityUp
	}

	m.mu.Lock()
	oldState := m.state
	m.state = newState
	callbacks := append([]Callback(nil), m.callbacks...)
	m.mu.Unlock()

	if newState != oldState {
		m.logger.Info("connectivity state changed", "from", oldState, "to", newState)
		for _, cb := range callbacks {
			cb(newState)
		}
	}
	return newState
}

func (m *Monitor) checkDNS(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	resolver := net.Resolver{}
	_, err := resolver.LookupHost(ctx, m.testDomain)
	return err == nil
}

func (m *Monitor) checkHTTPS(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+m.testDomain, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", "dunebugger-remote/1.0")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// WaitForConnection blocks until the connectivity state is up, ctx is
// cancelled, or timeout elapses (a zero timeout means no deadline).
func (m *Monitor) WaitForConnection(ctx context.Context, timeout time.Duration) bool {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if m.State() == domain.ConnectivityUp {
		return true
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if m.State() == domain.ConnectivityUp {
				return true
			}
		}
	}
}
