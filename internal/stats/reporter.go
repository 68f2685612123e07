package stats

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/Arun445/simpleperf/internal/config"
)

const rule = 80

// Reporter is the output channel for statistics. Each report is rendered in
// full before it is written, so concurrent sessions and streams never
// interleave their lines.
type Reporter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// Printf writes a plain status line.
func (r *Reporter) Printf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	r.write([]byte(line))
}

// Session prints the server-side statistics of one connection.
func (r *Reporter) Session(rep SessionReport) {
	var buf bytes.Buffer
	table := newTable(&buf)
	table.SetHeader([]string{"ID", "Interval", "Received", "Rate"})
	table.Append([]string{
		rep.Peer,
		span(0, rep.Duration),
		size(rep.Bytes, rep.Unit),
		rate(rep.Rate()),
	})
	table.Render()
	r.write(buf.Bytes())
}

// Interval prints one completed reporting slice of an interval-mode run.
func (r *Reporter) Interval(id string, rec IntervalRecord, unit config.Unit) {
	var buf bytes.Buffer
	table := newTable(&buf)
	table.SetHeader([]string{"ID", "Interval", "Transfer", "Rate"})
	table.Append([]string{id, span(rec.Start, rec.End), size(rec.Bytes, unit), rate(rec.Rate)})
	table.Render()
	r.write(buf.Bytes())
}

// Summary prints the closing report of a duration or byte-count phase.
func (r *Reporter) Summary(s Summary) {
	var buf bytes.Buffer
	buf.WriteString(strings.Repeat("-", rule) + "\n")
	table := newTable(&buf)
	table.SetHeader([]string{"ID", "Interval", "Transfer", "Bandwidth"})
	table.Append([]string{s.ID, span(s.Start, s.End), size(s.Bytes, s.Unit), rate(s.Rate())})
	table.Render()
	buf.WriteString(strings.Repeat("-", rule) + "\n")
	r.write(buf.Bytes())
}

// Totals prints the aggregate block that closes an interval-mode run.
func (r *Reporter) Totals(s Summary) {
	var buf bytes.Buffer
	buf.WriteString(strings.Repeat("-", 10) + "\n")
	table := newTable(&buf)
	table.Append([]string{"Total Interval:", span(s.Start, s.End)})
	table.Append([]string{"Total Transfer:", size(s.Bytes, s.Unit)})
	table.Append([]string{"Total Rate:", rate(s.Rate())})
	table.Render()
	r.write(buf.Bytes())
}

func (r *Reporter) write(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = r.w.Write(p)
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.SetAutoWrapText(false)
	return table
}

func span(from, to time.Duration) string {
	return fmt.Sprintf("%.1f - %.1f", from.Seconds(), to.Seconds())
}

func size(bytes int64, unit config.Unit) string {
	return fmt.Sprintf("%.2f %s", unit.Scale(bytes), unit.Name)
}

func rate(mbps float64) string {
	return fmt.Sprintf("%.2f Mbps", mbps)
}
