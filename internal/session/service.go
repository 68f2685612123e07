package session

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Arun445/simpleperf/internal/config"
	"github.com/Arun445/simpleperf/internal/protocol"
	"github.com/Arun445/simpleperf/internal/stats"
)

// ErrNoMarker means the peer closed its side before sending the termination marker.
var ErrNoMarker = errors.New("connection closed before termination marker")

func New(conn net.Conn, unit config.Unit) *Session {
	return &Session{
		ID:    uuid.New().String(),
		Peer:  conn.RemoteAddr().String(),
		Conn:  conn,
		Unit:  unit,
		Start: time.Now(),
	}
}

// HandleRead receives chunks until the termination marker shows up, the peer
// goes away, a read fails or ctx is done. Whatever was counted up to that
// point stays in ReceivedBytes. A nil error means the marker was seen.
func (session *Session) HandleRead(ctx context.Context, timeout time.Duration) error {
	buffer := make([]byte, protocol.ChunkSize)

	stop := context.AfterFunc(ctx, func() {
		_ = session.Conn.SetReadDeadline(time.Now())
	})
	defer stop()
	defer func() { session.End = time.Now() }()

	for {
		if timeout > 0 {
			_ = session.Conn.SetReadDeadline(time.Now().Add(timeout))
		}
		if err := ctx.Err(); err != nil {
			session.detector.Close()
			session.ReceivedBytes = session.detector.Payload()
			return errors.Wrapf(err, "session %s", session.ID)
		}

		bytesRead, err := session.Conn.Read(buffer)
		if bytesRead > 0 {
			found := session.detector.Feed(buffer[:bytesRead])
			session.ReceivedBytes = session.detector.Payload()
			if found {
				return nil
			}
		}
		if err != nil {
			session.detector.Close()
			session.ReceivedBytes = session.detector.Payload()
			if errors.Is(err, io.EOF) {
				return errors.Wrapf(ErrNoMarker, "session %s", session.ID)
			}
			if ctx.Err() != nil {
				return errors.Wrapf(ctx.Err(), "session %s", session.ID)
			}
			return errors.Wrapf(err, "session %s read", session.ID)
		}
	}
}

// Report computes the session statistics from what HandleRead accumulated.
func (session *Session) Report() stats.SessionReport {
	end := session.End
	if end.IsZero() {
		end = time.Now()
	}
	return stats.SessionReport{
		Peer:     session.Peer,
		Duration: end.Sub(session.Start),
		Bytes:    session.ReceivedBytes,
		Unit:     session.Unit,
	}
}

// Acknowledge sends the acknowledgment and closes the connection. The
// connection is closed even when the write fails.
func (session *Session) Acknowledge(timeout time.Duration) error {
	defer session.Conn.Close()

	if timeout > 0 {
		_ = session.Conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	if _, err := session.Conn.Write(protocol.Ack); err != nil {
		return errors.Wrapf(err, "session %s ack", session.ID)
	}
	return nil
}
