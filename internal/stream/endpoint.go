package stream

import "strings"

// StreamEndpoint derives the websocket stream endpoint from an API base
// URL: the http(s) scheme becomes ws(s) and the stream path is
// appended. Derivation happens once at router construction.
func StreamEndpoint(baseURL string) string {
	base := strings.TrimSuffix(baseURL, "/")
	if strings.HasPrefix(base, "http") {
		base = "ws" + strings.TrimPrefix(base, "http")
	}
	return base + "/stream"
}
