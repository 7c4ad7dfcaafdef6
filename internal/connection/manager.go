package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jstrand/alpaca-stream/internal/auth"
	"github.com/jstrand/alpaca-stream/internal/metrics"
)

// Dispatcher is the sink for routed inbound messages.
type Dispatcher interface {
	Dispatch(channel string, payload map[string]any) error
}

// AuthorizedChannel is the pseudo-channel dispatched after a successful
// authentication handshake.
const AuthorizedChannel = "authorized"

// Manager owns one socket connection for its class: lazy connect, the
// authentication handshake, and the background read loop.
type Manager struct {
	name     string // connection class, "events" or "data"
	endpoint string
	creds    *auth.Credentials
	dispatch Dispatcher
	logger   *slog.Logger

	mu     sync.Mutex
	state  State
	client Client
}

// NewManager creates a Manager for one connection class.
func NewManager(name, endpoint string, creds *auth.Credentials, d Dispatcher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		name:     name,
		endpoint: endpoint,
		creds:    creds,
		dispatch: d,
		logger:   logger.With("class", name),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EnsureConnected brings the connection up if it is not already Open.
// Idempotent: an Open connection returns immediately with no network
// activity. The lock is held across dial and handshake so concurrent
// callers never race to create duplicate connections, but is released
// before the authorized dispatch: the connection is Open by then, so
// handlers may call back into Listen or EnsureConnected.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	m.mu.Lock()

	if m.state == StateOpen {
		m.mu.Unlock()
		return nil
	}

	connID := uuid.NewString()
	logger := m.logger.With("conn_id", connID)

	m.state = StateAuthenticating
	client := NewClient(ClientConfig{URL: m.endpoint}, logger)
	if err := client.Connect(ctx); err != nil {
		m.state = StateUnconnected
		m.mu.Unlock()
		metrics.Connects.WithLabelValues(m.name, "error").Inc()
		return fmt.Errorf("connect %s: %w", m.endpoint, err)
	}

	authData, err := m.authenticate(ctx, client)
	if err != nil {
		client.Close()
		m.state = StateUnconnected
		m.mu.Unlock()
		metrics.AuthFailures.WithLabelValues(m.name).Inc()
		return err
	}

	m.client = client
	m.state = StateOpen
	m.mu.Unlock()

	metrics.Connects.WithLabelValues(m.name, "ok").Inc()
	logger.Info("connection authorized", "endpoint", m.endpoint)

	// Handlers registered on the "authorized" pseudo-channel fire now,
	// outside the lock.
	if err := m.dispatch.Dispatch(AuthorizedChannel, authData); err != nil {
		logger.Warn("authorized handler error", "error", err)
	}

	go m.readLoop(client, logger)

	return nil
}

// authenticate performs the credential handshake: one request out, one
// response in. Blocks until the server answers or ctx is cancelled;
// there is deliberately no timeout here.
func (m *Manager) authenticate(ctx context.Context, client Client) (map[string]any, error) {
	req, err := json.Marshal(Request{
		Action: "authenticate",
		Data: AuthData{
			KeyID:     m.creds.KeyID,
			SecretKey: m.creds.SecretKey,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal authenticate request: %w", err)
	}
	if err := client.Send(req); err != nil {
		return nil, fmt.Errorf("send authenticate request: %w", err)
	}

	select {
	case raw, ok := <-client.Messages():
		if !ok {
			return nil, fmt.Errorf("authenticate: %w", ErrNotConnected)
		}
		var resp authResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, &AuthError{Raw: raw}
		}
		if status, _ := resp.Data["status"].(string); status != "authorized" {
			return nil, &AuthError{Raw: raw}
		}
		return resp.Data, nil
	case err := <-client.Errors():
		return nil, fmt.Errorf("authenticate: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Listen sends a listen request for the given streams. The connection
// must be Open.
func (m *Manager) Listen(streams []string) error {
	m.mu.Lock()
	client, state := m.client, m.state
	m.mu.Unlock()

	if state != StateOpen || client == nil {
		return ErrNotConnected
	}

	req, err := json.Marshal(Request{
		Action: "listen",
		Data:   ListenData{Streams: streams},
	})
	if err != nil {
		return fmt.Errorf("marshal listen request: %w", err)
	}
	if err := client.Send(req); err != nil {
		return fmt.Errorf("send listen request: %w", err)
	}

	m.logger.Debug("listen request sent", "streams", streams)
	return nil
}

// readLoop consumes inbound messages until the connection terminates,
// then closes it and clears the manager's slot so the next
// EnsureConnected dials fresh.
func (m *Manager) readLoop(client Client, logger *slog.Logger) {
	defer m.clear(client)

	for {
		select {
		case raw, ok := <-client.Messages():
			if !ok {
				return
			}
			metrics.MessagesReceived.WithLabelValues(m.name).Inc()

			var msg streamMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				// Malformed payload is fatal to this connection.
				logger.Error("closing connection", "error", &DecodeError{Raw: raw, Err: err})
				return
			}
			if msg.Stream == "" {
				metrics.MessagesDropped.WithLabelValues(m.name, "no_stream").Inc()
				continue
			}
			if err := m.dispatch.Dispatch(msg.Stream, msg.Data); err != nil {
				logger.Warn("handler error", "stream", msg.Stream, "error", err)
			}

		case err, ok := <-client.Errors():
			if ok {
				logger.Warn("connection lost", "error", err)
			}
			return
		}
	}
}

// clear closes the client and resets the slot, but only if the slot
// still references this client. Each manager owns exactly one typed
// slot, so a loop can never clear another loop's connection.
func (m *Manager) clear(client Client) {
	client.Close()

	m.mu.Lock()
	if m.client == client {
		m.client = nil
		if m.state == StateOpen {
			m.state = StateUnconnected
		}
	}
	m.mu.Unlock()
}

// Close closes the underlying connection if Open. Idempotent no-op
// otherwise.
func (m *Manager) Close() error {
	m.mu.Lock()
	client := m.client
	m.client = nil
	if client != nil {
		m.state = StateClosed
	}
	m.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}
