// Package localbus implements the supervisor's side of the on-device
// request/reply bus shared with its sibling components (core, scheduler).
// Subjects follow the "<root>.<recipient>.<leaf>" grammar; handlers are
// chosen by the leaf alone.
package localbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/marco-svitol/dunebugger-remote/internal/domain"
)

// Handler processes one inbound envelope and returns the reply payload to
// write back to the caller.
type Handler func(ctx context.Context, env domain.Envelope) (map[string]any, error)

// Bus listens on a local request/reply endpoint, dispatching each inbound
// message to the Handler registered for its subject leaf.
type Bus struct {
	subjectRoot string
	clientID    string
	logger      *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// New builds a Bus that expects subjects rooted at subjectRoot and stamps
// outgoing envelopes with clientID as the source.
func New(subjectRoot, clientID string, logger *slog.Logger) *Bus {
	return &Bus{
		subjectRoot: subjectRoot,
		clientID:    clientID,
		logger:      logger,
		handlers:    make(map[string]Handler),
	}
}

// Handle registers the handler invoked for messages whose subject leaf
// (the third dot-separated segment) equals leaf.
func (b *Bus) Handle(leaf string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[leaf] = h
}

// ParseSubject splits "<root>.<recipient>.<leaf>" into its components. It
// returns an error if subject doesn't have exactly three segments.
func ParseSubject(subject string) (root string, recipient domain.ComponentType, leaf string, err error) {
	parts := strings.Split(subject, ".")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("localbus: malformed subject %q", subject)
	}
	return parts[0], domain.ComponentType(parts[1]), parts[2], nil
}

// Listen accepts connections on a Unix domain socket at addr and serves
// each with a JSON request/reply protocol (one JSON value each way, no
// length prefix) until ctx is
// cancelled. One request is handled per connection, matching the REQ/REP
// semantics siblings already expect from the bus.
func (b *Bus) Listen(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "unix", addr)
	if err != nil {
		return fmt.Errorf("localbus: listen on %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	b.logger.Info("local bus listening", "addr", addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Error("local bus accept failed", "error", err)
			continue
		}
		go b.serveConn(ctx, conn)
	}
}

func (b *Bus) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	var wire struct {
		Subject string         `json:"subject"`
		Body    map[string]any `json:"body"`
		Source  string         `json:"source"`
	}
	if err := json.NewDecoder(conn).Decode(&wire); err != nil {
		b.logger.Error("local bus decode failed", "error", err)
		return
	}

	_, recipient, leaf, err := ParseSubject(wire.Subject)
	if err != nil {
		b.logger.Warn("local bus malformed subject", "subject", wire.Subject, "error", err)
		return
	}

	b.mu.RLock()
	handler, ok := b.handlers[leaf]
	b.mu.RUnlock()
	if !ok {
		b.logger.Warn("local bus unknown subject", "leaf", leaf)
		return
	}

	env := domain.Envelope{
		Subject:   wire.Subject,
		Payload:   wire.Body,
		Recipient: recipient,
		Source:    domain.ComponentType(wire.Source),
		Leaf:      leaf,
		Timestamp: time.Now(),
	}

	reply, err := handler(ctx, env)
	if err != nil {
		b.logger.Error("local bus handler failed", "leaf", leaf, "error", err)
		reply = map[string]any{"error": err.Error()}
	}

	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		b.logger.Error("local bus encode reply failed", "error", err)
	}
}

// Send dials addr and delivers a message addressed to
// "<subjectRoot>.<recipient>.<leaf>", returning the decoded reply body.
func (b *Bus) Send(ctx context.Context, addr string, recipient domain.ComponentType, leaf string, body map[string]any) (map[string]any, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", addr)
	if err != nil {
		return nil, fmt.Errorf("localbus: dial %s: %w", addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	wire := struct {
		Subject string         `json:"subject"`
		Body    map[string]any `json:"body"`
		Source  string         `json:"source"`
	}{
		Subject: fmt.Sprintf("%s.%s.%s", b.subjectRoot, recipient, leaf),
		Body:    body,
		Source:  b.clientID,
	}
	if err := json.NewEncoder(conn).Encode(wire); err != nil {
		return nil, fmt.Errorf("localbus: encode request: %w", err)
	}

	var reply map[string]any
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return nil, fmt.Errorf("localbus: decode reply: %w", err)
	}
	return reply, nil
}
