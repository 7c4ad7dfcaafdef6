package feed

import (
	"encoding/json"
	"fmt"
)

// decodePayload parses a feed message body into a generic object. Feed
// payloads are JSON objects; anything else is malformed.
func decodePayload(data []byte) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode feed payload: %w", err)
	}
	return payload, nil
}
