package client

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/gologme/log"
	"github.com/pkg/errors"

	"github.com/Arun445/simpleperf/internal/config"
	"github.com/Arun445/simpleperf/internal/metrics"
	"github.com/Arun445/simpleperf/internal/protocol"
	"github.com/Arun445/simpleperf/internal/stats"
)

type Mode int

const (
	ModeInterval Mode = iota
	ModeDuration
	ModeBytes
)

func (m Mode) String() string {
	switch m {
	case ModeInterval:
		return "interval"
	case ModeDuration:
		return "duration"
	case ModeBytes:
		return "bytes"
	}
	return "unknown"
}

// Result is what one phase measured. Intervals is only set in interval mode.
type Result struct {
	Mode      Mode
	Intervals []stats.IntervalRecord
	Summary   stats.Summary
}

// Engine runs the phases of one client stream, each on a fresh connection.
type Engine struct {
	config   *config.TransferConfig
	stream   int
	dialer   Dialer
	logger   *log.Logger
	reporter *stats.Reporter
	metrics  *metrics.Metrics
	progress io.Writer
}

func NewEngine(cfg *config.TransferConfig, opts ...Option) *Engine {
	e := &Engine{
		config:   cfg,
		dialer:   &net.Dialer{},
		logger:   log.New(io.Discard, "", 0),
		reporter: stats.NewReporter(io.Discard),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Phases lists the modes Run goes through, in order. A byte-count target
// replaces the timed phase unless ChainPhases asks for both.
func (e *Engine) Phases() []Mode {
	timed := ModeDuration
	if e.config.Interval > 0 {
		timed = ModeInterval
	}
	switch {
	case !e.config.ByteTarget():
		return []Mode{timed}
	case e.config.ChainPhases:
		return []Mode{timed, ModeBytes}
	default:
		return []Mode{ModeBytes}
	}
}

// Run executes every phase sequentially. The first failing phase ends the
// run; results of the phases that ran are returned along with the error.
func (e *Engine) Run(ctx context.Context) ([]Result, error) {
	var results []Result
	for _, mode := range e.Phases() {
		if err := ctx.Err(); err != nil {
			return results, errors.Wrap(err, "run interrupted")
		}

		var (
			result Result
			ran    bool
			err    error
		)
		switch mode {
		case ModeInterval:
			result, ran, err = e.runInterval(ctx)
		case ModeDuration:
			result, ran, err = e.runDuration(ctx)
		case ModeBytes:
			result, ran, err = e.runBytes(ctx)
		}

		if ran {
			results = append(results, result)
			e.metrics.PhaseFinished(mode.String(), result.Summary.Bytes, err != nil)
			e.logger.Infof("Stream %d: %s phase sent %s in %s", e.stream, mode, humanize.Bytes(uint64(result.Summary.Bytes)), result.Summary.Duration)
		}
		if err != nil {
			e.logger.Errorf("Stream %d: %s phase failed: %v", e.stream, mode, err)
			return results, err
		}
	}
	return results, nil
}

func (e *Engine) id() string {
	return e.config.Address()
}

func (e *Engine) runDuration(ctx context.Context) (Result, bool, error) {
	s, err := e.connect(ctx)
	if err != nil {
		return Result{}, false, err
	}

	start := time.Now()
	sent, err := pump(ctx, s, start.Add(e.config.Duration))
	err = s.end(err)
	elapsed := time.Since(start)

	summary := stats.Summary{
		ID:       e.id(),
		End:      elapsed,
		Duration: elapsed,
		Bytes:    sent,
		Unit:     e.config.Unit,
	}
	e.reporter.Summary(summary)
	return Result{Mode: ModeDuration, Summary: summary}, true, err
}

// runInterval sends for floor(Duration/Interval)+1 slices and reports each
// one as soon as it closes, then prints the run totals.
func (e *Engine) runInterval(ctx context.Context) (Result, bool, error) {
	s, err := e.connect(ctx)
	if err != nil {
		return Result{}, false, err
	}

	count := int(e.config.Duration/e.config.Interval) + 1
	records := make([]stats.IntervalRecord, 0, count)
	start := time.Now()
	var (
		total int64
		last  time.Duration
	)
	for i := 0; i < count && err == nil; i++ {
		from := time.Now()
		var sent int64
		sent, err = pump(ctx, s, from.Add(e.config.Interval))
		to := time.Now()

		record := stats.IntervalRecord{
			Start: last,
			End:   to.Sub(start),
			Bytes: sent,
			Rate:  stats.Mbps(sent, to.Sub(from)),
		}
		e.reporter.Interval(e.id(), record, e.config.Unit)
		records = append(records, record)
		total += sent
		last = record.End
	}
	err = s.end(err)

	summary := stats.Summary{
		ID:       e.id(),
		End:      last,
		Duration: last,
		Bytes:    total,
		Unit:     e.config.Unit,
	}
	e.reporter.Totals(summary)
	return Result{Mode: ModeInterval, Intervals: records, Summary: summary}, true, err
}

// runBytes sends exactly the requested number of bytes; the last chunk is cut
// short when the target is not a multiple of the chunk size.
func (e *Engine) runBytes(ctx context.Context) (Result, bool, error) {
	target, err := config.ParseByteCount(e.config.Num)
	if err != nil {
		e.reporter.Printf("Invalid num argument. Usage: --num <number><unit>")
		return Result{}, false, err
	}

	s, err := e.connect(ctx)
	if err != nil {
		return Result{}, false, err
	}

	bar := e.newBar(target)
	payload := protocol.Payload()
	start := time.Now()
	var sent int64
	for sent < target {
		if ctx.Err() != nil {
			err = interrupted(ctx, nil)
			break
		}
		chunk := payload
		if rest := target - sent; rest < int64(len(chunk)) {
			chunk = chunk[:rest]
		}
		var n int
		n, err = s.send(chunk)
		sent += int64(n)
		if bar != nil {
			bar.Add(n)
		}
		if err != nil {
			err = interrupted(ctx, err)
			break
		}
	}
	if bar != nil {
		bar.Finish()
	}
	err = s.end(err)
	elapsed := time.Since(start)

	summary := stats.Summary{
		ID:       e.id(),
		End:      elapsed,
		Duration: elapsed,
		Bytes:    sent,
		Unit:     e.config.Unit,
	}
	e.reporter.Summary(summary)
	return Result{Mode: ModeBytes, Summary: summary}, true, err
}

func (e *Engine) newBar(total int64) *pb.ProgressBar {
	if e.progress == nil {
		return nil
	}
	bar := pb.New64(total)
	bar.Set(pb.Bytes, true)
	bar.SetWriter(e.progress)
	return bar.Start()
}
