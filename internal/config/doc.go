// Package config loads and validates connector configuration.
//
// Configuration is YAML with ${VAR} environment expansion. Endpoint
// fields fall back to the standard APCA_API_BASE_URL / APCA_API_DATA_URL
// environment variables before the built-in defaults apply.
package config
