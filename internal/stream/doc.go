// Package stream implements the top-level connection router.
//
// The Router multiplexes three real-time channels behind one
// subscription interface: the trading-events socket, the market-data
// socket, and the low-latency pub/sub feed. Requested channel names are
// partitioned by prefix, the matching connection is brought up lazily,
// and inbound messages fan out to pattern-matched handlers.
package stream
