package stream

import "strings"

// Class identifies which connection serves a channel.
type Class int

const (
	ClassEvents Class = iota // trading-events socket
	ClassData                // market-data socket
	ClassFeed                // low-latency pub/sub feed
)

// String returns the class name for logs.
func (c Class) String() string {
	switch c {
	case ClassEvents:
		return "events"
	case ClassData:
		return "data"
	case ClassFeed:
		return "feed"
	}
	return "unknown"
}

// Prefix routing table. Feed prefixes are checked first; anything
// unmatched defaults to the events socket. All checks anchor at the
// start of the channel name.
var (
	feedPrefixes = []string{"Q.", "T.", "A.", "AM."}
	dataPrefixes = []string{"bars/", "iex/", "sip/"}
)

// Classify assigns a channel name to its connection class.
func Classify(channel string) Class {
	for _, p := range feedPrefixes {
		if strings.HasPrefix(channel, p) {
			return ClassFeed
		}
	}
	for _, p := range dataPrefixes {
		if strings.HasPrefix(channel, p) {
			return ClassData
		}
	}
	return ClassEvents
}

// Partition splits a batch of channel names by class, preserving the
// requested order within each partition.
func Partition(channels []string) (events, data, feed []string) {
	for _, ch := range channels {
		switch Classify(ch) {
		case ClassFeed:
			feed = append(feed, ch)
		case ClassData:
			data = append(data, ch)
		default:
			events = append(events, ch)
		}
	}
	return events, data, feed
}
