package connection

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jstrand/alpaca-stream/internal/auth"
)

type dispatchCall struct {
	channel string
	payload map[string]any
}

// recordingDispatcher captures dispatched messages for assertions.
type recordingDispatcher struct {
	calls chan dispatchCall
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{calls: make(chan dispatchCall, 16)}
}

func (d *recordingDispatcher) Dispatch(channel string, payload map[string]any) error {
	d.calls <- dispatchCall{channel: channel, payload: payload}
	return nil
}

func (d *recordingDispatcher) next(t *testing.T) dispatchCall {
	t.Helper()
	select {
	case call := <-d.calls:
		return call
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for dispatch")
		return dispatchCall{}
	}
}

var testCreds = &auth.Credentials{KeyID: "PKTEST", SecretKey: "topsecret"}

// authHandler performs the server side of the handshake, then hands the
// connection to after.
func authHandler(t *testing.T, status string, after func(*websocket.Conn)) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req struct {
			Action string   `json:"action"`
			Data   AuthData `json:"data"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			t.Errorf("malformed authenticate request: %v", err)
			return
		}
		if req.Action != "authenticate" {
			t.Errorf("first request action = %q, want authenticate", req.Action)
		}
		if req.Data.KeyID != testCreds.KeyID || req.Data.SecretKey != testCreds.SecretKey {
			t.Errorf("credentials = (%q, %q), want (%q, %q)",
				req.Data.KeyID, req.Data.SecretKey, testCreds.KeyID, testCreds.SecretKey)
		}

		resp := `{"data":{"status":"` + status + `"}}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(resp)); err != nil {
			return
		}
		if after != nil {
			after(conn)
		}
	}
}

func TestManager_EnsureConnectedIdempotent(t *testing.T) {
	var dials atomic.Int32

	server := mockWSServer(t, func(conn *websocket.Conn) {
		dials.Add(1)
		authHandler(t, "authorized", func(conn *websocket.Conn) {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		})(conn)
	})
	defer server.Close()

	d := newRecordingDispatcher()
	m := NewManager("events", wsURL(server), testCreds, d, nil)
	defer m.Close()

	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected failed: %v", err)
	}
	if m.State() != StateOpen {
		t.Errorf("State() = %v, want open", m.State())
	}

	// Second call must not dial again.
	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("second EnsureConnected failed: %v", err)
	}
	if n := dials.Load(); n != 1 {
		t.Errorf("server saw %d dials, want 1", n)
	}

	// Exactly one synthetic authorized event.
	call := d.next(t)
	if call.channel != AuthorizedChannel {
		t.Errorf("dispatched channel = %q, want %q", call.channel, AuthorizedChannel)
	}
	if status, _ := call.payload["status"].(string); status != "authorized" {
		t.Errorf("payload status = %q, want authorized", status)
	}
	select {
	case extra := <-d.calls:
		t.Errorf("unexpected extra dispatch: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_AuthFailure(t *testing.T) {
	server := mockWSServer(t, authHandler(t, "unauthorized", nil))
	defer server.Close()

	d := newRecordingDispatcher()
	m := NewManager("events", wsURL(server), testCreds, d, nil)

	err := m.EnsureConnected(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("EnsureConnected = %v, want *AuthError", err)
	}
	if len(authErr.Raw) == 0 {
		t.Error("AuthError.Raw is empty, want raw server response")
	}
	if m.State() == StateOpen {
		t.Error("state is open after failed authentication")
	}

	select {
	case call := <-d.calls:
		t.Errorf("unexpected dispatch after auth failure: %+v", call)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_AuthMalformedResponse(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"unexpected":true}`))
	})
	defer server.Close()

	m := NewManager("events", wsURL(server), testCreds, newRecordingDispatcher(), nil)

	err := m.EnsureConnected(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("EnsureConnected = %v, want *AuthError for response without data", err)
	}
}

func TestManager_ListenBeforeConnect(t *testing.T) {
	m := NewManager("events", "ws://localhost:12345", testCreds, newRecordingDispatcher(), nil)

	if err := m.Listen([]string{"trade_updates"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Listen before connect = %v, want ErrNotConnected", err)
	}
}

func TestManager_ListenSendsRequest(t *testing.T) {
	listens := make(chan []string, 1)

	server := mockWSServer(t, authHandler(t, "authorized", func(conn *websocket.Conn) {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req struct {
			Action string     `json:"action"`
			Data   ListenData `json:"data"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			t.Errorf("malformed listen request: %v", err)
			return
		}
		if req.Action != "listen" {
			t.Errorf("action = %q, want listen", req.Action)
		}
		listens <- req.Data.Streams
	}))
	defer server.Close()

	m := NewManager("events", wsURL(server), testCreds, newRecordingDispatcher(), nil)
	defer m.Close()

	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected failed: %v", err)
	}
	if err := m.Listen([]string{"trade_updates", "account_updates"}); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	select {
	case streams := <-listens:
		if len(streams) != 2 || streams[0] != "trade_updates" || streams[1] != "account_updates" {
			t.Errorf("listen streams = %v, want [trade_updates account_updates]", streams)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for listen request")
	}
}

// callbackDispatcher routes every dispatched message through fn.
type callbackDispatcher struct {
	fn func(channel string, payload map[string]any) error
}

func (d *callbackDispatcher) Dispatch(channel string, payload map[string]any) error {
	return d.fn(channel, payload)
}

func TestManager_AuthorizedHandlerMayListen(t *testing.T) {
	listens := make(chan []string, 1)

	server := mockWSServer(t, authHandler(t, "authorized", func(conn *websocket.Conn) {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req struct {
			Action string     `json:"action"`
			Data   ListenData `json:"data"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			t.Errorf("malformed listen request: %v", err)
			return
		}
		listens <- req.Data.Streams
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	// An authorized handler that subscribes immediately, the way a caller
	// reacts to the pseudo-channel. The connection is Open by the time
	// the handler fires, so the re-entrant Listen must succeed.
	var m *Manager
	listenErr := make(chan error, 1)
	d := &callbackDispatcher{fn: func(channel string, _ map[string]any) error {
		if channel == AuthorizedChannel {
			listenErr <- m.Listen([]string{"trade_updates"})
		}
		return nil
	}}
	m = NewManager("events", wsURL(server), testCreds, d, nil)
	defer m.Close()

	done := make(chan error, 1)
	go func() { done <- m.EnsureConnected(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("EnsureConnected failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("EnsureConnected did not return while the authorized handler subscribed")
	}

	select {
	case err := <-listenErr:
		if err != nil {
			t.Fatalf("Listen from authorized handler failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("authorized handler never ran")
	}

	select {
	case streams := <-listens:
		if len(streams) != 1 || streams[0] != "trade_updates" {
			t.Errorf("listen streams = %v, want [trade_updates]", streams)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for listen request")
	}
}

func TestManager_ReadLoopDispatch(t *testing.T) {
	server := mockWSServer(t, authHandler(t, "authorized", func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"stream":"account_updates","data":{"status":"ACTIVE"}}`))
		// Messages without a stream field are dropped, not dispatched.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"data":{"noise":true}}`))
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"stream":"trade_updates","data":{"event":"fill"}}`))
		time.Sleep(time.Second)
	}))
	defer server.Close()

	d := newRecordingDispatcher()
	m := NewManager("events", wsURL(server), testCreds, d, nil)
	defer m.Close()

	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected failed: %v", err)
	}

	if call := d.next(t); call.channel != AuthorizedChannel {
		t.Errorf("first dispatch = %q, want %q", call.channel, AuthorizedChannel)
	}
	call := d.next(t)
	if call.channel != "account_updates" {
		t.Errorf("second dispatch = %q, want account_updates", call.channel)
	}
	if status, _ := call.payload["status"].(string); status != "ACTIVE" {
		t.Errorf("payload status = %q, want ACTIVE", status)
	}
	if call := d.next(t); call.channel != "trade_updates" {
		t.Errorf("third dispatch = %q, want trade_updates", call.channel)
	}
}

func TestManager_MalformedFrameClosesConnection(t *testing.T) {
	var dials atomic.Int32

	server := mockWSServer(t, func(conn *websocket.Conn) {
		n := dials.Add(1)
		authHandler(t, "authorized", func(conn *websocket.Conn) {
			if n == 1 {
				conn.WriteMessage(websocket.TextMessage, []byte(`not-json`))
			}
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		})(conn)
	})
	defer server.Close()

	d := newRecordingDispatcher()
	m := NewManager("events", wsURL(server), testCreds, d, nil)
	defer m.Close()

	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected failed: %v", err)
	}
	if call := d.next(t); call.channel != AuthorizedChannel {
		t.Errorf("first dispatch = %q, want %q", call.channel, AuthorizedChannel)
	}

	// The undecodable frame is fatal: the loop closes the connection and
	// clears the slot instead of dispatching anything.
	deadline := time.Now().Add(time.Second)
	for m.State() == StateOpen {
		if time.Now().After(deadline) {
			t.Fatal("slot not cleared after malformed frame")
		}
		time.Sleep(10 * time.Millisecond)
	}
	select {
	case call := <-d.calls:
		t.Errorf("unexpected dispatch for malformed frame: %+v", call)
	case <-time.After(50 * time.Millisecond):
	}

	// The next EnsureConnected dials fresh.
	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected after malformed frame failed: %v", err)
	}
	if m.State() != StateOpen {
		t.Errorf("State() = %v, want open", m.State())
	}
	if n := dials.Load(); n != 2 {
		t.Errorf("server saw %d dials, want 2", n)
	}
}

func TestManager_ReconnectAfterConnectionLoss(t *testing.T) {
	var dials atomic.Int32

	server := mockWSServer(t, func(conn *websocket.Conn) {
		n := dials.Add(1)
		authHandler(t, "authorized", func(conn *websocket.Conn) {
			if n == 1 {
				return // drop the first connection right after auth
			}
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		})(conn)
	})
	defer server.Close()

	m := NewManager("events", wsURL(server), testCreds, newRecordingDispatcher(), nil)
	defer m.Close()

	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected failed: %v", err)
	}

	// The read loop must observe the dropped connection and clear the slot.
	deadline := time.Now().Add(time.Second)
	for m.State() == StateOpen {
		if time.Now().After(deadline) {
			t.Fatal("slot not cleared after connection loss")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Caller-driven reconnect: the next EnsureConnected dials fresh.
	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected after loss failed: %v", err)
	}
	if m.State() != StateOpen {
		t.Errorf("State() = %v, want open", m.State())
	}
	if n := dials.Load(); n != 2 {
		t.Errorf("server saw %d dials, want 2", n)
	}
}

func TestManager_CloseIdempotent(t *testing.T) {
	server := mockWSServer(t, authHandler(t, "authorized", func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	m := NewManager("events", wsURL(server), testCreds, newRecordingDispatcher(), nil)
	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected failed: %v", err)
	}

	if err := m.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	// Close before connect is also a no-op.
	fresh := NewManager("data", "ws://localhost:12345", testCreds, newRecordingDispatcher(), nil)
	if err := fresh.Close(); err != nil {
		t.Errorf("Close on unconnected manager failed: %v", err)
	}
}
