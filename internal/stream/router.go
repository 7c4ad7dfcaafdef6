package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jstrand/alpaca-stream/internal/auth"
	"github.com/jstrand/alpaca-stream/internal/connection"
	"github.com/jstrand/alpaca-stream/internal/dispatch"
	"github.com/jstrand/alpaca-stream/internal/feed"
)

// FeedClient is the transport for feed-class channels.
type FeedClient interface {
	Connect(ctx context.Context) error
	RegisterPattern(pattern string, h feed.Handler) error
	Subscribe(subjects []string) error
	Close() error
}

// Endpoints holds the resolved endpoints for the three connection
// classes. BaseURL and DataURL are API base URLs; the websocket stream
// endpoints are derived at construction.
type Endpoints struct {
	BaseURL     string
	DataURL     string
	FeedServers string
}

// Router multiplexes the three connections behind one subscription and
// dispatch interface.
type Router struct {
	registry *dispatch.Registry
	events   *connection.Manager
	data     *connection.Manager
	feed     FeedClient
	logger   *slog.Logger

	// The catch-all feed pattern is registered once, before the first
	// feed subscription.
	feedInit sync.Once
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithFeedClient replaces the default feed transport.
func WithFeedClient(fc FeedClient) Option {
	return func(r *Router) {
		r.feed = fc
	}
}

// New creates a Router over the given endpoints and credentials.
func New(eps Endpoints, creds *auth.Credentials, opts ...Option) *Router {
	r := &Router{
		registry: dispatch.NewRegistry(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.events = connection.NewManager(
		ClassEvents.String(), StreamEndpoint(eps.BaseURL), creds, r.registry, r.logger)
	r.data = connection.NewManager(
		ClassData.String(), StreamEndpoint(eps.DataURL), creds, r.registry, r.logger)
	if r.feed == nil {
		r.feed = feed.NewClient(eps.FeedServers, creds.FeedKeyID(eps.BaseURL), r.logger)
	}

	return r
}

// Register adds a handler for channels matching pattern.
func (r *Router) Register(pattern string, h dispatch.Handler) error {
	return r.registry.Register(pattern, h)
}

// Deregister removes the handler registered under pattern.
func (r *Router) Deregister(pattern string) error {
	return r.registry.Deregister(pattern)
}

// On registers a handler and returns it, for call-site chaining.
func (r *Router) On(pattern string, h dispatch.Handler) (dispatch.Handler, error) {
	if err := r.registry.Register(pattern, h); err != nil {
		return nil, err
	}
	return h, nil
}

// Subscribe classifies the requested channels and, for each non-empty
// partition, lazily brings the matching connection up and sends one
// listen request. Partitions are independent: a failure in one never
// prevents attempting the others. All partitions run to completion and
// the first failure observed is returned.
func (r *Router) Subscribe(ctx context.Context, channels []string) error {
	eventsCh, dataCh, feedCh := Partition(channels)

	// Plain Group, no shared cancellation: every partition runs to
	// completion regardless of sibling failures.
	var g errgroup.Group
	if len(eventsCh) > 0 {
		g.Go(func() error {
			return r.subscribeSocket(ctx, r.events, eventsCh)
		})
	}
	if len(dataCh) > 0 {
		g.Go(func() error {
			return r.subscribeSocket(ctx, r.data, dataCh)
		})
	}
	if len(feedCh) > 0 {
		g.Go(func() error {
			return r.subscribeFeed(ctx, feedCh)
		})
	}
	return g.Wait()
}

func (r *Router) subscribeSocket(ctx context.Context, m *connection.Manager, streams []string) error {
	if err := m.EnsureConnected(ctx); err != nil {
		return err
	}
	return m.Listen(streams)
}

func (r *Router) subscribeFeed(ctx context.Context, subjects []string) error {
	var initErr error
	r.feedInit.Do(func() {
		// One catch-all handler: every feed subject routes through the
		// shared registry.
		initErr = r.feed.RegisterPattern(".*", func(subject string, payload map[string]any) error {
			return r.registry.DispatchSubject(subject, payload)
		})
	})
	if initErr != nil {
		return initErr
	}

	if err := r.feed.Connect(ctx); err != nil {
		return err
	}
	return r.feed.Subscribe(subjects)
}

// Run subscribes to the initial channels and blocks until ctx is
// cancelled, serving the background read loops. All connections are
// closed on the way out.
func (r *Router) Run(ctx context.Context, initialChannels []string) error {
	defer r.Close()

	if err := r.Subscribe(ctx, initialChannels); err != nil {
		return err
	}

	r.logger.Info("router running", "channels", initialChannels)
	<-ctx.Done()
	r.logger.Info("router stopping")
	return nil
}

// Close closes every open connection. Idempotent; already-closed
// connections are a no-op.
func (r *Router) Close() error {
	return errors.Join(
		r.events.Close(),
		r.data.Close(),
		r.feed.Close(),
	)
}
