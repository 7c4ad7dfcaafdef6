// Package connection implements the socket Connection Managers.
//
// A Manager owns exactly one WebSocket connection for its class (trading
// events or market data), its authentication handshake, and its read
// loop. Connections are created lazily on the first EnsureConnected call
// and torn down on Close or when the read loop observes a receive
// failure. There is no automatic reconnect: a failed connection clears
// the manager's slot and the next EnsureConnected dials from scratch.
package connection
