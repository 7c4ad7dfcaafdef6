package metrics

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "alpaca_stream"

var (
	// Connects counts connection attempts per connection class.
	Connects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connects_total",
		Help:      "Connection attempts by class and outcome.",
	}, []string{"class", "outcome"})

	// AuthFailures counts rejected authentication handshakes.
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_failures_total",
		Help:      "Authentication handshakes rejected by the server.",
	}, []string{"class"})

	// MessagesReceived counts inbound messages per connection class.
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_received_total",
		Help:      "Inbound messages by connection class.",
	}, []string{"class"})

	// MessagesDropped counts inbound messages without a routing key.
	MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_dropped_total",
		Help:      "Inbound messages discarded before dispatch.",
	}, []string{"class", "reason"})

	// HandlersInvoked counts handler invocations across all dispatches.
	HandlersInvoked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handlers_invoked_total",
		Help:      "Handler invocations.",
	})

	// HandlerErrors counts handler invocations that returned an error.
	HandlerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handler_errors_total",
		Help:      "Handler invocations that returned an error.",
	})
)

// Serve starts an HTTP server exposing the metrics endpoint and a basic
// health check. The server runs in its own goroutine; callers shut it
// down via the returned *http.Server.
func Serve(port int, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", srv.Addr, "error", err)
		}
	}()

	return srv
}
