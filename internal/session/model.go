package session

import (
	"net"
	"time"

	"github.com/Arun445/simpleperf/internal/config"
	"github.com/Arun445/simpleperf/internal/protocol"
)

// Session is the server-side state of one accepted connection. Only the
// handler goroutine that owns it reads or writes its fields.
type Session struct {
	ID            string
	Peer          string
	Conn          net.Conn
	Unit          config.Unit
	Start         time.Time
	End           time.Time
	ReceivedBytes int64

	detector protocol.Detector
}
