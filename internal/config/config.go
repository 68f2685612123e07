package config

import (
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultBind      = "127.0.0.1"
	defaultPort      = 8088
	defaultFormat    = "MB"
	defaultTime      = 10 * time.Second
	defaultIOTimeout = 30 * time.Second
)

var (
	ErrInvalidStreams  = errors.New("parallel stream count must be at least 1")
	ErrInvalidDuration = errors.New("duration and interval must not be negative")
	ErrInvalidPort     = errors.New("port must be between 1 and 65535")
)

type ServerConfig struct {
	Bind        string        `yaml:"bind"`
	Port        int           `yaml:"port"`
	Format      string        `yaml:"format"`
	IOTimeout   time.Duration `yaml:"io_timeout"`
	MaxSessions int           `yaml:"max_sessions"`
	MetricsAddr string        `yaml:"metrics_addr"`
}

type ClientConfig struct {
	ServerIP    string        `yaml:"server_ip"`
	Port        int           `yaml:"port"`
	Time        time.Duration `yaml:"time"`
	Interval    time.Duration `yaml:"interval"`
	Format      string        `yaml:"format"`
	Num         string        `yaml:"num"`
	Parallel    int           `yaml:"parallel"`
	IOTimeout   time.Duration `yaml:"io_timeout"`
	ChainPhases bool          `yaml:"chain_phases"`
	Progress    bool          `yaml:"progress"`
	MetricsAddr string        `yaml:"metrics_addr"`
}

// TransferConfig is what a single client stream runs with. It is built once by
// ClientConfig.Transfer and shared read-only between parallel streams.
type TransferConfig struct {
	Host        string
	Port        int
	Duration    time.Duration
	Interval    time.Duration
	Unit        Unit
	Num         string
	IOTimeout   time.Duration
	ChainPhases bool
}

func Server() *ServerConfig {
	return &ServerConfig{
		Bind:        envString("SIMPLEPERF_BIND", defaultBind),
		Port:        envInt("SIMPLEPERF_PORT", defaultPort),
		Format:      envString("SIMPLEPERF_FORMAT", defaultFormat),
		IOTimeout:   envDuration("SIMPLEPERF_IO_TIMEOUT", defaultIOTimeout),
		MaxSessions: envInt("SIMPLEPERF_MAX_SESSIONS", 0),
	}
}

func Client() *ClientConfig {
	return &ClientConfig{
		ServerIP:  envString("SIMPLEPERF_SERVER_IP", defaultBind),
		Port:      envInt("SIMPLEPERF_PORT", defaultPort),
		Time:      defaultTime,
		Format:    envString("SIMPLEPERF_FORMAT", defaultFormat),
		Parallel:  1,
		IOTimeout: envDuration("SIMPLEPERF_IO_TIMEOUT", defaultIOTimeout),
	}
}

func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// Validate checks the listener parameters and returns the display unit sessions
// report in. Port 0 is allowed and lets the kernel pick one.
func (c *ServerConfig) Validate() (Unit, error) {
	if c.Port < 0 || c.Port > 65535 {
		return Unit{}, ErrInvalidPort
	}
	if c.MaxSessions < 0 {
		return Unit{}, errors.New("max sessions must not be negative")
	}
	return ParseUnit(c.Format)
}

// Transfer validates the client parameters and freezes them into a TransferConfig.
// The byte-count argument is kept raw; it is parsed when its phase starts.
func (c *ClientConfig) Transfer() (*TransferConfig, error) {
	unit, err := ParseUnit(c.Format)
	if err != nil {
		return nil, err
	}
	if c.Port < 1 || c.Port > 65535 {
		return nil, ErrInvalidPort
	}
	if c.Time < 0 || c.Interval < 0 {
		return nil, ErrInvalidDuration
	}
	if c.Parallel < 1 {
		return nil, ErrInvalidStreams
	}
	return &TransferConfig{
		Host:        c.ServerIP,
		Port:        c.Port,
		Duration:    c.Time,
		Interval:    c.Interval,
		Unit:        unit,
		Num:         c.Num,
		IOTimeout:   c.IOTimeout,
		ChainPhases: c.ChainPhases,
	}, nil
}

func (t *TransferConfig) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// ByteTarget reports whether an absolute byte-count target was requested.
func (t *TransferConfig) ByteTarget() bool {
	return t.Num != ""
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
