package config

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrInvalidUnit      = errors.New("invalid format argument, allowed formats: B, KB, MB")
	ErrInvalidByteCount = errors.New("invalid num argument, usage: --num <number><unit>")
)

// Unit is a display unit. Its multiplier only scales the transfer size column;
// rates are always decimal megabits.
type Unit struct {
	Name       string
	Multiplier int64
}

var (
	B  = Unit{Name: "B", Multiplier: 1}
	KB = Unit{Name: "KB", Multiplier: 1000}
	MB = Unit{Name: "MB", Multiplier: 1000 * 1000}

	units = []Unit{B, KB, MB}

	byteCountRe = regexp.MustCompile(`^([0-9]+)([a-zA-Z]+)$`)
)

func ParseUnit(name string) (Unit, error) {
	for _, u := range units {
		if u.Name == name {
			return u, nil
		}
	}
	return Unit{}, errors.Wrapf(ErrInvalidUnit, "%q", name)
}

// Scale converts a byte count to the unit.
func (u Unit) Scale(bytes int64) float64 {
	if u.Multiplier == 0 {
		return float64(bytes)
	}
	return float64(bytes) / float64(u.Multiplier)
}

func (u Unit) String() string {
	return u.Name
}

// ParseByteCount turns "<integer><unit>" (unit B, KB or MB, any case) into a byte count.
func ParseByteCount(s string) (int64, error) {
	m := byteCountRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, errors.Wrapf(ErrInvalidByteCount, "%q", s)
	}
	unit, err := ParseUnit(strings.ToUpper(m[2]))
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidByteCount, "%q: unknown unit %s", s, m[2])
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidByteCount, "%q: %v", s, err)
	}
	if n > math.MaxInt64/unit.Multiplier {
		return 0, errors.Wrapf(ErrInvalidByteCount, "%q: too large", s)
	}
	return n * unit.Multiplier, nil
}
