package client

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/Arun445/simpleperf/internal/protocol"
)

// stream is one phase connection. Every read and write gets its own deadline,
// and a cancelled context interrupts whatever call is blocked.
type stream struct {
	net.Conn
	timeout time.Duration
	stop    func() bool
}

func (e *Engine) connect(ctx context.Context) (*stream, error) {
	conn, err := e.dialer.DialContext(ctx, "tcp", e.config.Address())
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", e.config.Address())
	}
	e.reporter.Printf("Client connected with %s port %d", e.config.Host, e.config.Port)
	e.logger.Debugf("Stream %d: %s -> %s", e.stream, conn.LocalAddr(), conn.RemoteAddr())

	s := &stream{Conn: conn, timeout: e.config.IOTimeout}
	s.stop = context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	return s, nil
}

func (s *stream) send(p []byte) (int, error) {
	if s.timeout > 0 {
		_ = s.SetWriteDeadline(time.Now().Add(s.timeout))
	}
	n, err := s.Write(p)
	if err != nil {
		return n, errors.Wrap(err, "send")
	}
	return n, nil
}

// finish sends the termination marker, waits for the acknowledgment and
// closes the connection.
func (s *stream) finish() error {
	defer s.Close()

	if _, err := s.send(protocol.Bye); err != nil {
		return err
	}
	if s.timeout > 0 {
		_ = s.SetReadDeadline(time.Now().Add(s.timeout))
	}
	buffer := make([]byte, protocol.ChunkSize)
	n, err := s.Read(buffer)
	if err != nil {
		return errors.Wrap(err, "await acknowledgment")
	}
	if string(buffer[:n]) != string(protocol.Ack) {
		return errors.Errorf("unexpected acknowledgment %q", buffer[:n])
	}
	return nil
}

// end finishes the exchange after a clean phase and just drops the
// connection after a failed one.
func (s *stream) end(err error) error {
	if err != nil {
		_ = s.Close()
		return err
	}
	return s.finish()
}

func (s *stream) Close() error {
	s.stop()
	return s.Conn.Close()
}

// pump writes filler chunks until the deadline passes. A cancelled ctx ends
// the loop with its error.
func pump(ctx context.Context, s *stream, until time.Time) (int64, error) {
	payload := protocol.Payload()
	var sent int64
	for time.Now().Before(until) {
		if err := ctx.Err(); err != nil {
			return sent, interrupted(ctx, err)
		}
		n, err := s.send(payload)
		sent += int64(n)
		if err != nil {
			return sent, interrupted(ctx, err)
		}
	}
	return sent, nil
}

// interrupted reports the cancellation instead of the deadline error it
// caused on a blocked call.
func interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), "transfer interrupted")
	}
	return err
}
