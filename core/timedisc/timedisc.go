// Package timedisc turns the global time set into stress periods and maps
// sparse package times onto them.
package timedisc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/davidahmann/gwdeck/core/calendar"
	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/davidahmann/gwdeck/internal/ctxlog"
)

var ErrNoPriorValue = errors.New("no value at or before requested time")

// Axis is the global time axis in a single calendar mode.
type Axis struct {
	Times []time.Time
	Mode  calendar.Mode
}

// Period is one stress period. Duration is in days.
type Period struct {
	Label    string
	Start    time.Time
	Duration float64
}

// NewAxis detects the calendar mode for times and normalizes them into it.
func NewAxis(ctx context.Context, times []time.Time) Axis {
	mode := calendar.Detect(times)
	if mode == calendar.Extended {
		ctxlog.FromContext(ctx).Warn(
			"dates fall outside the fixed calendar range, switching to the extended calendar",
			"min_year", calendar.MinFixedYear,
			"max_year", calendar.MaxFixedYear,
		)
	}
	normalized := make([]time.Time, len(times))
	for i, t := range times {
		normalized[i] = calendar.Normalize(mode, t)
	}
	return Axis{Times: normalized, Mode: mode}
}

// Starts returns the first instant of every stress period.
func (a Axis) Starts() []time.Time {
	if len(a.Times) < 2 {
		return nil
	}
	return a.Times[:len(a.Times)-1]
}

// Discretize yields one period per consecutive pair of axis times.
func Discretize(axis Axis) []Period {
	if len(axis.Times) < 2 {
		return nil
	}
	periods := make([]Period, 0, len(axis.Times)-1)
	for i := 0; i+1 < len(axis.Times); i++ {
		start, end := axis.Times[i], axis.Times[i+1]
		periods = append(periods, Period{
			Label:    calendar.Format(axis.Mode, start),
			Start:    start,
			Duration: calendar.Days(start, end),
		})
	}
	return periods
}

// ForwardFill returns, for every query instant, the index of the latest
// package time at or before it. packageTimes must be sorted.
func ForwardFill(packageTimes, query []time.Time) ([]int, error) {
	out := make([]int, len(query))
	for i, q := range query {
		// first package time strictly after q
		after := sort.Search(len(packageTimes), func(j int) bool {
			return packageTimes[j].After(q)
		})
		if after == 0 {
			return nil, coreerrors.Invalid(
				fmt.Errorf("%w: %s", ErrNoPriorValue, q.UTC().Format(time.RFC3339)),
				"no_prior_value",
				"supply a value at or before the first stress period",
			)
		}
		out[i] = after - 1
	}
	return out, nil
}

// ForcingSpans labels the stress periods each package time is in force for,
// as 1-based "start:end" or "start" when it spans a single period.
func ForcingSpans(packageTimes, periodStarts []time.Time) []string {
	starts := make([]int, len(packageTimes))
	for i, t := range packageTimes {
		starts[i] = sort.Search(len(periodStarts), func(j int) bool {
			return !periodStarts[j].Before(t)
		}) + 1
	}
	spans := make([]string, len(packageTimes))
	for i, start := range starts {
		end := len(periodStarts)
		if i+1 < len(starts) {
			end = starts[i+1] - 1
		}
		if end > start {
			spans[i] = strconv.Itoa(start) + ":" + strconv.Itoa(end)
		} else {
			spans[i] = strconv.Itoa(start)
		}
	}
	return spans
}
