package server

import "github.com/Arun445/simpleperf/internal/session"

type SessionEventType int

const (
	Register SessionEventType = iota
	Unregister
)

type Event struct {
	Session *session.Session
	Type    SessionEventType
}
