// Package pipeline sequences the daily sales load: resolve the target
// date, guard against reloads, extract, load, notify. Each stage is a
// function from an explicit input to an explicit outcome value; stages
// share nothing else.
package pipeline

import (
	"fmt"
	"time"

	"github.com/fashionstore/salepipe/internal/errors"
)

const compactDateFormat = "20060102"

// LoadDate is the canonical target date, carried explicitly through every
// stage so no stage re-derives "today" on its own.
type LoadDate struct {
	t time.Time
}

// Compact returns the YYYYMMDD form used in invocation parameters and
// staging file names.
func (d LoadDate) Compact() string {
	return d.t.Format(compactDateFormat)
}

// ISO returns the YYYY-MM-DD form used in the feed and the warehouse.
func (d LoadDate) ISO() string {
	return d.t.Format("2006-01-02")
}

func (d LoadDate) String() string {
	return d.ISO()
}

// ResolveDate picks the target date from an ordered list of candidate
// sources: the explicit parameter first, then the execution-context date.
// The first well-formed candidate wins; empty candidates are skipped.
// Fails with a VALIDATION error when no candidate parses as a calendar
// date in YYYYMMDD form.
func ResolveDate(explicit, contextDate string) (LoadDate, error) {
	for _, candidate := range []string{explicit, contextDate} {
		if candidate == "" {
			continue
		}
		if t, ok := parseCompactDate(candidate); ok {
			return LoadDate{t: t}, nil
		}
	}
	return LoadDate{}, errors.NewValidationError(
		fmt.Sprintf("no valid date in candidates [%q, %q], expected YYYYMMDD", explicit, contextDate))
}

// parseCompactDate validates the YYYYMMDD format: exactly eight digits
// forming a real calendar date.
func parseCompactDate(s string) (time.Time, bool) {
	if len(s) != 8 {
		return time.Time{}, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return time.Time{}, false
		}
	}
	t, err := time.Parse(compactDateFormat, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
