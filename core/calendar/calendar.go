// Package calendar holds the two time representations a deck can be written
// in and the conversions between literal dates, instants and period labels.
//
// Fixed mode mirrors a signed 64-bit nanosecond instant and is only valid for
// years MinFixedYear through MaxFixedYear. Extended mode is a proleptic
// Gregorian calendar with second resolution and no practical year limit. The
// mode is always an explicit value; callers obtain it from Detect and pass it
// on rather than storing it.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	coreerrors "github.com/davidahmann/gwdeck/core/errors"
)

type Mode int

const (
	Fixed Mode = iota
	Extended
)

const (
	MinFixedYear = 1678
	MaxFixedYear = 2261

	// Layout is the YYYYMMDDHHMMSS form used in file names and period labels.
	Layout     = "20060102150405"
	DateLayout = "20060102"

	secondsPerDay = 86400
)

var ErrUnparseableTime = errors.New("unparseable time literal")

func (m Mode) String() string {
	switch m {
	case Fixed:
		return "fixed"
	case Extended:
		return "extended"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// InFixedRange reports whether t can be held by the fixed representation.
func InFixedRange(t time.Time) bool {
	year := t.UTC().Year()
	return year >= MinFixedYear && year <= MaxFixedYear
}

// Detect returns Extended as soon as one instant falls outside the fixed
// range, and Fixed otherwise. The whole sequence always shares one mode.
func Detect(times []time.Time) Mode {
	for _, t := range times {
		if !InFixedRange(t) {
			return Extended
		}
	}
	return Fixed
}

// Normalize converts t to its representation under mode: UTC with nanosecond
// resolution for Fixed, UTC truncated to whole seconds for Extended.
func Normalize(mode Mode, t time.Time) time.Time {
	t = t.UTC().Round(0)
	if mode == Extended {
		return t.Truncate(time.Second)
	}
	return t
}

// Format renders t as YYYYMMDDHHMMSS under mode.
func Format(mode Mode, t time.Time) string {
	return Normalize(mode, t).Format(Layout)
}

// Days returns end minus start as whole days plus the remaining whole
// seconds divided by 86400. Sub-second remainders are dropped, matching how
// stress-period lengths are written to the run file.
func Days(start, end time.Time) float64 {
	seconds := end.Unix() - start.Unix()
	days := seconds / secondsPerDay
	remainder := seconds % secondsPerDay
	if remainder < 0 {
		days--
		remainder += secondsPerDay
	}
	return float64(days) + float64(remainder)/secondsPerDay
}

var literalLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	Layout,
	DateLayout,
}

// Parse accepts ISO dates and datetimes as well as the compact file-name forms.
// Literals without a zone are taken as UTC.
func Parse(literal string) (time.Time, error) {
	trimmed := strings.TrimSpace(literal)
	for _, layout := range literalLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, coreerrors.Invalid(
		fmt.Errorf("%w: %q", ErrUnparseableTime, literal),
		"unparseable_time",
		"use YYYY-MM-DD, YYYY-MM-DDTHH:MM:SS or YYYYMMDDHHMMSS",
	)
}

// ParseCompact parses a file-name time token, trying YYYYMMDDHHMMSS before
// YYYYMMDD.
func ParseCompact(token string) (time.Time, bool) {
	for _, layout := range []string{Layout, DateLayout} {
		if len(token) != len(layout) {
			continue
		}
		if parsed, err := time.Parse(layout, token); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
