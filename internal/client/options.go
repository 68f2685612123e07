package client

import (
	"context"
	"io"
	"net"

	"github.com/gologme/log"

	"github.com/Arun445/simpleperf/internal/metrics"
	"github.com/Arun445/simpleperf/internal/stats"
)

// Dialer opens the transport connection for one phase. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Option func(*Engine)

func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithReporter(reporter *stats.Reporter) Option {
	return func(e *Engine) {
		e.reporter = reporter
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithDialer(dialer Dialer) Option {
	return func(e *Engine) {
		e.dialer = dialer
	}
}

// WithProgress draws a progress bar on w during byte-count phases.
func WithProgress(w io.Writer) Option {
	return func(e *Engine) {
		e.progress = w
	}
}

func withStream(id int) Option {
	return func(e *Engine) {
		e.stream = id
	}
}
