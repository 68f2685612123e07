// Package protocol holds the wire format shared by the probe's two ends: the
// sender streams fixed-size filler chunks, then the termination marker, and
// waits for the receiver's acknowledgment before closing.
package protocol

import "bytes"

// ChunkSize is both the sender's write size and the receiver's read size.
const ChunkSize = 1000

var (
	Bye = []byte("BYE")
	Ack = []byte("ACK")
)

// payload is all zero bytes so it can never contain the marker.
var payload = make([]byte, ChunkSize)

// Payload returns the shared filler chunk. Callers must not modify it.
func Payload() []byte {
	return payload
}

// Detector finds the termination marker in a byte stream delivered in
// arbitrary pieces, including a marker split across two reads.
type Detector struct {
	seen   int64
	tail   []byte
	found  bool
	closed bool
	end    int64
}

// Feed scans the next piece of the stream and reports whether the marker has
// been seen, in this piece or an earlier one.
func (d *Detector) Feed(chunk []byte) bool {
	if d.found || d.closed {
		return d.found
	}
	if n := len(d.tail); n > 0 && len(chunk) > 0 {
		edge := make([]byte, 0, n+len(Bye))
		edge = append(edge, d.tail...)
		edge = append(edge, chunk[:min(len(chunk), len(Bye)-1)]...)
		if i := bytes.Index(edge, Bye); i >= 0 {
			return d.mark(int64(i - n))
		}
	}
	if i := bytes.Index(chunk, Bye); i >= 0 {
		return d.mark(int64(i))
	}
	d.remember(chunk)
	d.seen += int64(len(chunk))
	return false
}

// Close marks the stream as ended without a marker, e.g. on EOF.
func (d *Detector) Close() {
	if !d.found && !d.closed {
		d.closed = true
		d.end = d.seen
	}
}

// Found reports whether the marker was seen.
func (d *Detector) Found() bool {
	return d.found
}

// Payload is the number of stream bytes known to precede the marker. While the
// marker has not been found the trailing bytes that could still start one are
// held back, so the value never decreases.
func (d *Detector) Payload() int64 {
	if d.found || d.closed {
		return d.end
	}
	return d.seen - int64(len(d.tail))
}

func (d *Detector) mark(offset int64) bool {
	d.found = true
	d.end = d.seen + offset
	return true
}

func (d *Detector) remember(chunk []byte) {
	keep := len(Bye) - 1
	if len(chunk) >= keep {
		d.tail = append(d.tail[:0], chunk[len(chunk)-keep:]...)
		return
	}
	d.tail = append(d.tail, chunk...)
	if extra := len(d.tail) - keep; extra > 0 {
		d.tail = append(d.tail[:0], d.tail[extra:]...)
	}
}
