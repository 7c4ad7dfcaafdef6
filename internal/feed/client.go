package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/jstrand/alpaca-stream/internal/metrics"
)

// Errors
var (
	ErrInvalidHandler = errors.New("handler must not be nil")
	ErrNotConnected   = errors.New("feed not connected")
)

// Handler consumes one feed message.
type Handler func(subject string, payload map[string]any) error

// entry pairs a compiled subject pattern with its handler, keyed by
// pattern text like the dispatch registry.
type entry struct {
	pattern *regexp.Regexp
	handler Handler
}

// Client is the feed connection. It owns the NATS connection, the
// registered pattern handlers, and the per-subject subscriptions.
type Client struct {
	servers string
	keyID   string
	logger  *slog.Logger

	mu       sync.Mutex
	nc       *nats.Conn
	patterns []entry
	subjects map[string]*nats.Subscription
}

// NewClient creates a feed client for the given server list and feed key.
func NewClient(servers, keyID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		servers:  servers,
		keyID:    keyID,
		logger:   logger.With("class", "feed"),
		subjects: make(map[string]*nats.Subscription),
	}
}

// Connect establishes the feed connection. Idempotent: an open
// connection returns immediately. Reconnection is caller-driven, so the
// underlying client's retry machinery is disabled.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc != nil && c.nc.IsConnected() {
		return nil
	}

	nc, err := nats.Connect(c.servers,
		nats.Token(c.keyID),
		nats.NoReconnect(),
	)
	if err != nil {
		metrics.Connects.WithLabelValues("feed", "error").Inc()
		return fmt.Errorf("connect feed: %w", err)
	}

	c.nc = nc
	metrics.Connects.WithLabelValues("feed", "ok").Inc()
	c.logger.Info("feed connected", "servers", c.servers)
	return nil
}

// RegisterPattern stores a handler for subjects matching pattern.
// Registering identical pattern text replaces the prior handler.
func (c *Client) RegisterPattern(pattern string, h Handler) error {
	if h == nil {
		return ErrInvalidHandler
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile pattern %q: %w", pattern, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.patterns {
		if c.patterns[i].pattern.String() == re.String() {
			c.patterns[i] = entry{pattern: re, handler: h}
			return nil
		}
	}
	c.patterns = append(c.patterns, entry{pattern: re, handler: h})
	return nil
}

// Subscribe opens one subscription per subject. Already-subscribed
// subjects are skipped.
func (c *Client) Subscribe(subjects []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc == nil || !c.nc.IsConnected() {
		return ErrNotConnected
	}

	for _, subject := range subjects {
		if _, ok := c.subjects[subject]; ok {
			continue
		}
		sub, err := c.nc.Subscribe(subject, c.onMessage)
		if err != nil {
			return fmt.Errorf("subscribe %q: %w", subject, err)
		}
		c.subjects[subject] = sub
	}

	c.logger.Debug("feed subscriptions updated", "subjects", subjects)
	return nil
}

// Close shuts down the feed connection. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc == nil {
		return nil
	}
	c.nc.Close()
	c.nc = nil
	c.subjects = make(map[string]*nats.Subscription)
	return nil
}

// onMessage decodes one inbound feed message and fans it out.
func (c *Client) onMessage(msg *nats.Msg) {
	c.dispatchRaw(msg.Subject, msg.Data)
}

func (c *Client) dispatchRaw(subject string, data []byte) {
	metrics.MessagesReceived.WithLabelValues("feed").Inc()

	payload, err := decodePayload(data)
	if err != nil {
		metrics.MessagesDropped.WithLabelValues("feed", "decode").Inc()
		c.logger.Warn("dropping malformed feed message", "subject", subject, "error", err)
		return
	}

	c.mu.Lock()
	matched := make([]Handler, 0, len(c.patterns))
	for _, e := range c.patterns {
		if e.pattern.MatchString(subject) {
			matched = append(matched, e.handler)
		}
	}
	c.mu.Unlock()

	for _, h := range matched {
		if err := h(subject, payload); err != nil {
			c.logger.Warn("feed handler error", "subject", subject, "error", err)
		}
	}
}
