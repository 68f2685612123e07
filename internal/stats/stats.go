package stats

import (
	"time"

	"github.com/Arun445/simpleperf/internal/config"
)

const bitsPerMegabit = 1000 * 1000

// Mbps is bytes*8 / seconds / 1e6. A non-positive duration yields 0.
func Mbps(bytes int64, d time.Duration) float64 {
	secs := d.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(bytes) * 8 / secs / bitsPerMegabit
}

// SessionReport is what the server prints for one finished connection.
type SessionReport struct {
	Peer     string
	Duration time.Duration
	Bytes    int64
	Unit     config.Unit
}

func (r SessionReport) Rate() float64 {
	return Mbps(r.Bytes, r.Duration)
}

// IntervalRecord covers one reporting slice of an interval-mode run. Offsets
// are relative to the start of the run.
type IntervalRecord struct {
	Start time.Duration
	End   time.Duration
	Bytes int64
	Rate  float64
}

// Summary is the closing report of one client phase.
type Summary struct {
	ID       string
	Start    time.Duration
	End      time.Duration
	Duration time.Duration
	Bytes    int64
	Unit     config.Unit
}

func (s Summary) Rate() float64 {
	return Mbps(s.Bytes, s.Duration)
}
