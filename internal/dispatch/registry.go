package dispatch

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/jstrand/alpaca-stream/internal/entity"
	"github.com/jstrand/alpaca-stream/internal/metrics"
)

// Errors
var (
	ErrInvalidHandler = errors.New("handler must not be nil")
	ErrNotRegistered  = errors.New("pattern not registered")
)

// Handler consumes one routed message. A non-nil return does not stop the
// fan-out for that message; Dispatch collects handler errors and returns
// them joined.
type Handler func(channel string, ent entity.Entity) error

// entry pairs a compiled pattern with its handler. Entries are keyed by
// pattern text, so registering the same text twice replaces the handler
// in place.
type entry struct {
	pattern *regexp.Regexp
	handler Handler
}

// Registry is the handler table. The zero value is not usable; construct
// with NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register compiles pattern and stores the handler under its text.
// Re-registering identical pattern text replaces the prior handler and
// keeps its position in the fan-out order.
func (r *Registry) Register(pattern string, h Handler) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return r.RegisterRegexp(re, h)
}

// RegisterRegexp stores the handler under the pattern's text. Two
// separately compiled patterns with equal text share one table slot.
func (r *Registry) RegisterRegexp(re *regexp.Regexp, h Handler) error {
	if h == nil {
		return ErrInvalidHandler
	}
	if re == nil {
		return fmt.Errorf("%w: nil pattern", ErrInvalidHandler)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].pattern.String() == re.String() {
			r.entries[i] = entry{pattern: re, handler: h}
			return nil
		}
	}
	r.entries = append(r.entries, entry{pattern: re, handler: h})
	return nil
}

// Deregister removes the entry whose pattern text matches exactly.
// Returns ErrNotRegistered when no such entry exists.
func (r *Registry) Deregister(pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].pattern.String() == pattern {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrNotRegistered, pattern)
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Dispatch invokes every handler whose pattern matches channel, in
// registration order, with the cast entity. Handler invocations are
// isolated: a failing handler does not prevent later matches from
// running. The joined handler errors are returned.
func (r *Registry) Dispatch(channel string, payload map[string]any) error {
	return r.fanOut(channel, func() entity.Entity {
		return entity.Cast(channel, payload)
	})
}

// DispatchSubject routes a low-latency feed message by subject. Feed
// payloads never cast to an Account; the entity is always generic.
func (r *Registry) DispatchSubject(subject string, payload map[string]any) error {
	return r.fanOut(subject, func() entity.Entity {
		return entity.NewGeneric(payload)
	})
}

func (r *Registry) fanOut(key string, cast func() entity.Entity) error {
	r.mu.RLock()
	matched := make([]Handler, 0, len(r.entries))
	for _, e := range r.entries {
		if e.pattern.MatchString(key) {
			matched = append(matched, e.handler)
		}
	}
	r.mu.RUnlock()

	if len(matched) == 0 {
		return nil
	}

	ent := cast()
	var errs []error
	for _, h := range matched {
		metrics.HandlersInvoked.Inc()
		if err := h(key, ent); err != nil {
			metrics.HandlerErrors.Inc()
			errs = append(errs, fmt.Errorf("handler for %q: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
