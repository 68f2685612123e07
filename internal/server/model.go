package server

import (
	"net"
	"sync"

	"github.com/gologme/log"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"github.com/Arun445/simpleperf/internal/config"
	"github.com/Arun445/simpleperf/internal/metrics"
	"github.com/Arun445/simpleperf/internal/session"
	"github.com/Arun445/simpleperf/internal/stats"
)

// Server is the listening side of the probe. Every accepted connection gets
// its own handler goroutine; the registry of live sessions is owned by the
// Open loop and only changes through events.
type Server struct {
	config   *config.ServerConfig
	unit     config.Unit
	logger   *log.Logger
	reporter *stats.Reporter
	metrics  *metrics.Metrics

	listener net.Listener
	slots    *semaphore.Weighted

	events   chan Event
	sessions map[string]*session.Session
	quit     chan struct{}
	closed   chan struct{}
	handlers sync.WaitGroup

	active atomic.Int64
	total  atomic.Int64
}
