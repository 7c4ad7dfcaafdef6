// Package feed implements the low-latency market-data feed client.
//
// The feed is a NATS pub/sub transport, separate from the two socket
// streams. There is no authentication handshake: the feed key rides on
// the connection itself. Inbound messages are decoded as JSON and
// fanned out to handlers registered by subject pattern.
package feed
