// Package metrics exposes Prometheus counters for btchat sessions.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// MessagesTotal counts messages transmitted or received, by direction.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btchat_messages_total",
			Help: "Total messages written to or read from the stream",
		},
		[]string{"direction"}, // "Sent" or "Received"
	)

	// FrameBytesTotal counts payload bytes on the wire, by direction.
	FrameBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btchat_frame_bytes_total",
			Help: "Total payload bytes framed on the stream",
		},
		[]string{"direction"},
	)

	// MessagesDiscarded counts outbound input dropped before transmission.
	MessagesDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btchat_messages_discarded_total",
			Help: "Total outbound messages discarded without transmission",
		},
		[]string{"reason"}, // "empty" or "too_large"
	)

	// StoreFailures counts appends that did not persist.
	StoreFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btchat_store_failures_total",
			Help: "Total failed message log appends",
		},
		[]string{"direction"},
	)

	// SessionsTotal counts finished sessions by role and outcome.
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btchat_sessions_total",
			Help: "Total sessions by role and result",
		},
		[]string{"role", "result"}, // result: "ok", "connection_error", "stream_error", "store_error"
	)
)

// Server serves /metrics until its context is cancelled.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr and returns a Server ready to Serve.
func Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln: ln,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve blocks until ctx is cancelled, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"function": "metrics.Serve",
		"addr":     s.ln.Addr().String(),
	}).Info("Serving metrics")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(s.ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
