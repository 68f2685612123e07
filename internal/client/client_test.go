package client

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gologme/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/Arun445/simpleperf/internal/config"
	"github.com/Arun445/simpleperf/internal/metrics"
	"github.com/Arun445/simpleperf/internal/protocol"
	"github.com/Arun445/simpleperf/internal/stats"
)

// sink is a minimal receiver: it counts payload bytes per connection and
// acknowledges the termination marker.
type sink struct {
	listener net.Listener
	mu       sync.Mutex
	received []int64
	wg       sync.WaitGroup
}

func startSink(t *testing.T) *sink {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &sink{listener: listener}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(func() {
		listener.Close()
		s.wg.Wait()
	})
	return s
}

func (s *sink) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *sink) handle(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	var detector protocol.Detector
	buffer := make([]byte, protocol.ChunkSize)
	found := false
	for !found {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		n, err := conn.Read(buffer)
		if n > 0 {
			found = detector.Feed(buffer[:n])
		}
		if err != nil {
			detector.Close()
			break
		}
	}

	s.mu.Lock()
	s.received = append(s.received, detector.Payload())
	s.mu.Unlock()

	if found {
		conn.Write(protocol.Ack)
	}
}

func (s *sink) connections() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.received...)
}

func (s *sink) transfer(mutate func(cfg *config.TransferConfig)) *config.TransferConfig {
	cfg := &config.TransferConfig{
		Host:      "127.0.0.1",
		Port:      s.listener.Addr().(*net.TCPAddr).Port,
		Duration:  100 * time.Millisecond,
		Unit:      config.MB,
		IOTimeout: 2 * time.Second,
	}
	if mutate != nil {
		mutate(cfg)
	}
	return cfg
}

func newEngine(cfg *config.TransferConfig, out io.Writer, opts ...Option) *Engine {
	base := []Option{
		WithLogger(log.New(io.Discard, "", 0)),
		WithReporter(stats.NewReporter(out)),
	}
	return NewEngine(cfg, append(base, opts...)...)
}

func TestEngine_Phases(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		num      string
		chain    bool
		want     []Mode
	}{
		{"duration", 0, "", false, []Mode{ModeDuration}},
		{"interval", time.Second, "", false, []Mode{ModeInterval}},
		{"bytes replaces timed phase", time.Second, "10MB", false, []Mode{ModeBytes}},
		{"chained duration then bytes", 0, "10MB", true, []Mode{ModeDuration, ModeBytes}},
		{"chained interval then bytes", time.Second, "10MB", true, []Mode{ModeInterval, ModeBytes}},
		{"chain without target", 0, "", true, []Mode{ModeDuration}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.TransferConfig{Interval: tt.interval, Num: tt.num, ChainPhases: tt.chain}
			assert.Equal(t, tt.want, NewEngine(cfg).Phases())
		})
	}
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "interval", ModeInterval.String())
	assert.Equal(t, "duration", ModeDuration.String())
	assert.Equal(t, "bytes", ModeBytes.String())
	assert.Equal(t, "unknown", Mode(42).String())
}

func TestEngine_DurationMode(t *testing.T) {
	s := startSink(t)
	cfg := s.transfer(func(cfg *config.TransferConfig) { cfg.Duration = 200 * time.Millisecond })
	out := &bytes.Buffer{}

	results, err := newEngine(cfg, out).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	summary := results[0].Summary
	assert.Equal(t, ModeDuration, results[0].Mode)
	assert.Equal(t, cfg.Address(), summary.ID)
	assert.True(t, summary.Duration >= 200*time.Millisecond, "duration %s", summary.Duration)
	assert.True(t, summary.Bytes > 0)
	assert.Equal(t, []int64{summary.Bytes}, s.connections())

	assert.Contains(t, out.String(), "Client connected with 127.0.0.1 port")
	assert.Contains(t, out.String(), "Bandwidth")
	assert.Contains(t, out.String(), "MB")
}

func TestEngine_IntervalMode(t *testing.T) {
	s := startSink(t)
	cfg := s.transfer(func(cfg *config.TransferConfig) {
		cfg.Duration = 250 * time.Millisecond
		cfg.Interval = 100 * time.Millisecond
	})
	out := &bytes.Buffer{}

	results, err := newEngine(cfg, out).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ModeInterval, results[0].Mode)

	records := results[0].Intervals
	require.Len(t, records, 3)

	var total int64
	var previous time.Duration
	for _, record := range records {
		assert.Equal(t, previous, record.Start)
		assert.True(t, record.End-record.Start >= cfg.Interval, "slice %s", record.End-record.Start)
		assert.True(t, record.Rate >= 0)
		total += record.Bytes
		previous = record.End
	}

	summary := results[0].Summary
	assert.Equal(t, total, summary.Bytes)
	assert.Equal(t, previous, summary.End)
	assert.Equal(t, []int64{total}, s.connections())

	assert.Contains(t, out.String(), "Total Interval:")
	assert.Contains(t, out.String(), "Total Transfer:")
	assert.Contains(t, out.String(), "Total Rate:")
}

func TestEngine_ByteMode(t *testing.T) {
	s := startSink(t)
	cfg := s.transfer(func(cfg *config.TransferConfig) {
		cfg.Num = "25KB"
		cfg.Unit = config.KB
	})
	out := &bytes.Buffer{}

	results, err := newEngine(cfg, out).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ModeBytes, results[0].Mode)
	assert.Equal(t, int64(25000), results[0].Summary.Bytes)
	assert.Equal(t, []int64{25000}, s.connections())
	assert.Contains(t, out.String(), "25.00 KB")
}

func TestEngine_ByteMode_PartialChunk(t *testing.T) {
	s := startSink(t)
	cfg := s.transfer(func(cfg *config.TransferConfig) { cfg.Num = "1500b" })

	results, err := newEngine(cfg, io.Discard).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1500), results[0].Summary.Bytes)
	assert.Equal(t, []int64{1500}, s.connections())
}

func TestEngine_ByteMode_Progress(t *testing.T) {
	s := startSink(t)
	cfg := s.transfer(func(cfg *config.TransferConfig) { cfg.Num = "10KB" })
	bar := &bytes.Buffer{}

	_, err := newEngine(cfg, io.Discard, WithProgress(bar)).Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, bar.String())
}

func TestEngine_ChainPhases(t *testing.T) {
	s := startSink(t)
	cfg := s.transfer(func(cfg *config.TransferConfig) {
		cfg.Num = "5KB"
		cfg.ChainPhases = true
	})
	m := metrics.New()

	results, err := newEngine(cfg, io.Discard, WithMetrics(m)).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ModeDuration, results[0].Mode)
	assert.Equal(t, ModeBytes, results[1].Mode)

	conns := s.connections()
	require.Len(t, conns, 2)
	assert.Equal(t, results[0].Summary.Bytes, conns[0])
	assert.Equal(t, int64(5000), conns[1])
}

func TestEngine_InvalidNum(t *testing.T) {
	s := startSink(t)
	cfg := s.transfer(func(cfg *config.TransferConfig) { cfg.Num = "ten" })
	out := &bytes.Buffer{}

	results, err := newEngine(cfg, out).Run(context.Background())
	assert.True(t, errors.Is(err, config.ErrInvalidByteCount), "got %v", err)
	assert.Empty(t, results)
	assert.Empty(t, s.connections())
	assert.Contains(t, out.String(), "Invalid num argument. Usage: --num <number><unit>")
}

func TestEngine_InvalidNum_AfterTimedPhase(t *testing.T) {
	s := startSink(t)
	cfg := s.transfer(func(cfg *config.TransferConfig) {
		cfg.Num = "12XB"
		cfg.ChainPhases = true
	})

	results, err := newEngine(cfg, io.Discard).Run(context.Background())
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ModeDuration, results[0].Mode)
	assert.Len(t, s.connections(), 1)
}

func TestEngine_ConnectFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	cfg := &config.TransferConfig{Host: "127.0.0.1", Port: port, Duration: time.Second, Unit: config.MB}
	results, err := newEngine(cfg, io.Discard).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to")
	assert.Empty(t, results)
}

func TestEngine_Cancelled(t *testing.T) {
	s := startSink(t)
	cfg := s.transfer(func(cfg *config.TransferConfig) { cfg.Duration = 10 * time.Second })

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	done := make(chan struct{})
	var (
		results []Result
		err     error
	)
	go func() {
		defer close(done)
		results, err = newEngine(cfg, io.Discard).Run(ctx)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Summary.Duration < 10*time.Second)
}

type flakyDialer struct {
	calls atomic.Int32
	fail  int32
	net.Dialer
}

func (d *flakyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if d.calls.Inc() == d.fail {
		return nil, errors.New("dial refused")
	}
	return d.Dialer.DialContext(ctx, network, address)
}

func TestRunStreams(t *testing.T) {
	s := startSink(t)
	cfg := s.transfer(nil)
	out := &bytes.Buffer{}

	results, err := RunStreams(context.Background(), cfg, 4,
		WithLogger(log.New(io.Discard, "", 0)),
		WithReporter(stats.NewReporter(out)),
	)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, res := range results {
		require.Len(t, res, 1)
		assert.True(t, res[0].Summary.Bytes > 0)
	}
	assert.Len(t, s.connections(), 4)
	assert.Equal(t, 4, strings.Count(out.String(), "Client connected with"))
}

func TestRunStreams_OneStreamFails(t *testing.T) {
	s := startSink(t)
	cfg := s.transfer(nil)
	dialer := &flakyDialer{fail: 2}

	results, err := RunStreams(context.Background(), cfg, 3, WithDialer(dialer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial refused")
	assert.Contains(t, err.Error(), "stream")

	succeeded := 0
	for _, res := range results {
		succeeded += len(res)
	}
	assert.Equal(t, 2, succeeded)
	assert.Len(t, s.connections(), 2)
}

func TestRunStreams_InvalidCount(t *testing.T) {
	_, err := RunStreams(context.Background(), &config.TransferConfig{}, 0)
	assert.Equal(t, config.ErrInvalidStreams, err)
}
