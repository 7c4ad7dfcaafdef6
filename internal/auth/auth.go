// Package auth resolves Alpaca API credentials.
package auth

import (
	"errors"
	"os"
	"strings"
)

// Environment variables consulted when explicit credentials are absent.
const (
	EnvKeyID     = "APCA_API_KEY_ID"
	EnvSecretKey = "APCA_API_SECRET_KEY"
)

// ErrMissingCredentials indicates neither explicit values nor environment
// variables supplied a complete key pair.
var ErrMissingCredentials = errors.New("missing API credentials: set " + EnvKeyID + " and " + EnvSecretKey)

// Credentials holds the API key pair used for every authentication
// handshake. The pair is resolved once and reused.
type Credentials struct {
	KeyID     string
	SecretKey string
}

// Resolve returns credentials from the given values, falling back to the
// environment for any empty field.
func Resolve(keyID, secretKey string) (*Credentials, error) {
	if keyID == "" {
		keyID = os.Getenv(EnvKeyID)
	}
	if secretKey == "" {
		secretKey = os.Getenv(EnvSecretKey)
	}
	if keyID == "" || secretKey == "" {
		return nil, ErrMissingCredentials
	}
	return &Credentials{KeyID: keyID, SecretKey: secretKey}, nil
}

// FeedKeyID returns the key used for the low-latency feed. Staging
// environments select the staging key variant.
func (c *Credentials) FeedKeyID(baseURL string) string {
	if strings.Contains(baseURL, "staging") {
		return c.KeyID + "-staging"
	}
	return c.KeyID
}
