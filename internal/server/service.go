package server

import (
	"context"
	"net"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gologme/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/Arun445/simpleperf/internal/config"
	"github.com/Arun445/simpleperf/internal/metrics"
	"github.com/Arun445/simpleperf/internal/session"
	"github.com/Arun445/simpleperf/internal/stats"
)

const acceptBackoff = 10 * time.Millisecond

// New validates cfg; an invalid display unit is a setup error and nothing is bound.
func New(cfg *config.ServerConfig, logger *log.Logger, reporter *stats.Reporter, m *metrics.Metrics) (*Server, error) {
	unit, err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	server := &Server{
		config:   cfg,
		unit:     unit,
		logger:   logger,
		reporter: reporter,
		metrics:  m,
		events:   make(chan Event),
		sessions: make(map[string]*session.Session),
		quit:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
	if cfg.MaxSessions > 0 {
		server.slots = semaphore.NewWeighted(int64(cfg.MaxSessions))
	}
	return server, nil
}

// Listen binds the configured address. A bind failure is returned as is and
// never retried.
func (server *Server) Listen(ctx context.Context) error {
	if server.listener != nil {
		return errors.Errorf("already listening on %s", server.listener.Addr())
	}

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", server.config.Address())
	if err != nil {
		return errors.Wrapf(err, "bind failed on %s", server.config.Address())
	}
	server.listener = listener

	port := server.config.Port
	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	server.reporter.Printf("A simpleperf server is listening on port %d", port)
	server.logger.Infof("Listening on %s (format %s, max sessions %d)", listener.Addr(), server.unit, server.config.MaxSessions)
	return nil
}

func (server *Server) Addr() net.Addr {
	if server.listener == nil {
		return nil
	}
	return server.listener.Addr()
}

// Serve accepts connections until ctx is done, then waits for every running
// session to finish before returning.
func (server *Server) Serve(ctx context.Context) error {
	if server.listener == nil {
		return errors.New("server is not listening")
	}

	go server.Open()
	stop := context.AfterFunc(ctx, func() {
		_ = server.listener.Close()
	})
	defer stop()

	var err error
	for {
		conn, acceptErr := server.listener.Accept()
		if acceptErr != nil {
			if errors.Is(acceptErr, net.ErrClosed) {
				break
			}
			server.logger.Warnf("Accept error: %v", acceptErr)
			time.Sleep(acceptBackoff)
			continue
		}

		if server.slots != nil {
			if acquireErr := server.slots.Acquire(ctx, 1); acquireErr != nil {
				_ = conn.Close()
				break
			}
		}

		server.handlers.Add(1)
		go func() {
			defer server.handlers.Done()
			if server.slots != nil {
				defer server.slots.Release(1)
			}
			server.NewSession(ctx, conn)
		}()
	}

	if ctx.Err() == nil {
		err = errors.New("listener closed")
	}
	_ = server.listener.Close()
	server.handlers.Wait()
	close(server.quit)
	<-server.closed
	server.logger.Infof("Server stopped after %d sessions", server.total.Load())
	return err
}

// NewSession runs one connection from first byte to acknowledgment. Failures
// stay inside this session: they are logged and the partial statistics are
// still reported.
func (server *Server) NewSession(ctx context.Context, conn net.Conn) {
	session := session.New(conn, server.unit)
	server.reporter.Printf("A simpleperf client with %s is connected with %s", session.Peer, conn.LocalAddr())

	server.events <- Event{Session: session, Type: Register}
	server.metrics.SessionStarted()

	err := session.HandleRead(ctx, server.config.IOTimeout)
	if err != nil {
		server.logger.Warnf("Exception while handling client connection %s: %v", session.Peer, err)
	}

	report := session.Report()
	server.reporter.Session(report)
	server.logger.Debugf("Session %s received %s in %s", session.ID, humanize.Bytes(uint64(report.Bytes)), report.Duration)

	if ackErr := session.Acknowledge(server.config.IOTimeout); ackErr != nil {
		server.logger.Warnf("Could not acknowledge %s: %v", session.Peer, ackErr)
	}
	server.metrics.SessionFinished(report.Bytes, err != nil)

	server.events <- Event{Session: session, Type: Unregister}
}

// Open runs the session registry until Serve has drained every handler.
func (server *Server) Open() {
	defer close(server.closed)

	for {
		select {
		case event := <-server.events:
			if event.Type == Register {
				server.sessions[event.Session.ID] = event.Session
				server.active.Inc()
				server.total.Inc()
				server.logger.Infof("Session registered: %s (%s)", event.Session.ID, event.Session.Peer)
			}
			if event.Type == Unregister {
				if _, ok := server.sessions[event.Session.ID]; ok {
					delete(server.sessions, event.Session.ID)
					server.active.Dec()
					server.logger.Infof("Session unregistered: %s", event.Session.ID)
				}
			}

		case <-server.quit:
			return
		}
	}
}

// Active is the number of sessions currently registered.
func (server *Server) Active() int64 {
	return server.active.Load()
}

// Total is the number of sessions registered since the server started.
func (server *Server) Total() int64 {
	return server.total.Load()
}
