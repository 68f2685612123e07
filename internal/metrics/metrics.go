// Package metrics exports the probe's counters in Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gologme/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "simpleperf"

// Metrics owns its registry, so several instances (one per test, say) never
// collide on the default one. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	sessions      prometheus.Counter
	active        prometheus.Gauge
	sessionErrors prometheus.Counter
	received      prometheus.Counter

	streams     *prometheus.CounterVec
	streamError prometheus.Counter
	sent        prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "server", Name: "sessions_total",
			Help: "Accepted connections.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "server", Name: "active_sessions",
			Help: "Connections currently being measured.",
		}),
		sessionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "server", Name: "session_errors_total",
			Help: "Sessions that ended on an I/O error instead of the termination marker.",
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "server", Name: "received_bytes_total",
			Help: "Payload bytes received.",
		}),
		streams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "client", Name: "phases_total",
			Help: "Completed transfer phases by mode.",
		}, []string{"mode"}),
		streamError: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "client", Name: "phase_errors_total",
			Help: "Transfer phases that ended on an error.",
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "client", Name: "sent_bytes_total",
			Help: "Payload bytes sent.",
		}),
	}
	m.registry.MustRegister(m.sessions, m.active, m.sessionErrors, m.received, m.streams, m.streamError, m.sent)
	return m
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessions.Inc()
	m.active.Inc()
}

func (m *Metrics) SessionFinished(received int64, failed bool) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.received.Add(float64(received))
	if failed {
		m.sessionErrors.Inc()
	}
}

func (m *Metrics) PhaseFinished(mode string, sent int64, failed bool) {
	if m == nil {
		return
	}
	m.streams.WithLabelValues(mode).Inc()
	m.sent.Add(float64(sent))
	if failed {
		m.streamError.Inc()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("Serving metrics on http://%s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "metrics server")
	}
	return nil
}
