// Package cron evaluates 5-field cron expressions against instants.
//
// The evaluator is deliberately fail-closed: a malformed expression never
// produces an error, it simply never matches. Rules carrying a broken
// schedule are inert, not crash-inducing. Matching is always against the
// instant's UTC calendar components; timezone-aware evaluation is out of
// scope.
package cron

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// fieldCount is the fixed number of whitespace-separated fields:
// minute, hour, day-of-month, month, day-of-week.
const fieldCount = 5

// fieldCharset rejects any field containing characters outside the cron
// grammar before parsing begins.
var fieldCharset = regexp.MustCompile(`^[0-9*/,-]+$`)

// domain bounds per field position.
var fieldDomains = [fieldCount]struct{ min, max int }{
	{0, 59}, // minute
	{0, 23}, // hour
	{1, 31}, // day of month
	{1, 12}, // month
	{0, 6},  // day of week, 7 normalized to 0
}

// Matches reports whether expr matches the UTC calendar components of t.
// All five fields must match independently (conjunction across fields);
// commas create disjunction only within a single field. Any malformed
// input yields false.
func Matches(expr string, t time.Time) bool {
	fields := strings.Fields(expr)
	if len(fields) != fieldCount {
		return false
	}

	utc := t.UTC()
	values := [fieldCount]int{
		utc.Minute(),
		utc.Hour(),
		utc.Day(),
		int(utc.Month()),
		int(utc.Weekday()),
	}

	for i, field := range fields {
		ok, valid := fieldMatches(field, values[i], fieldDomains[i].min, fieldDomains[i].max, i == 4)
		if !valid || !ok {
			return false
		}
	}
	return true
}

// Valid reports whether expr parses as a well-formed 5-field expression.
// Stores use this to reject broken schedules at rule construction time;
// the evaluation path never relies on it.
func Valid(expr string) bool {
	fields := strings.Fields(expr)
	if len(fields) != fieldCount {
		return false
	}
	for i, field := range fields {
		if _, valid := fieldMatches(field, fieldDomains[i].min, fieldDomains[i].min, fieldDomains[i].max, i == 4); !valid {
			return false
		}
	}
	return true
}

// fieldMatches evaluates one field against value. The second return is
// false when the field is malformed; the whole expression then fails.
func fieldMatches(field string, value, min, max int, isWeekday bool) (matched, valid bool) {
	if field == "" || !fieldCharset.MatchString(field) {
		return false, false
	}

	// Commas are disjunction within the field.
	for _, part := range strings.Split(field, ",") {
		ok, partValid := partMatches(part, value, min, max, isWeekday)
		if !partValid {
			return false, false
		}
		matched = matched || ok
	}
	return matched, true
}

// partMatches evaluates a single list element: `*`, an integer, `a-b`,
// `*/n`, or `a-b/n`.
func partMatches(part string, value, min, max int, isWeekday bool) (bool, bool) {
	if part == "" {
		return false, false
	}

	rangeExpr := part
	step := 1
	hasStep := false
	if base, stepStr, found := strings.Cut(part, "/"); found {
		n, err := strconv.Atoi(stepStr)
		if err != nil || n <= 0 {
			return false, false
		}
		rangeExpr = base
		step = n
		hasStep = true
	}

	lo, hi := min, max
	anchor := 0
	switch {
	case rangeExpr == "*":
		// `*/n` means the value is divisible by n, so the step counts
		// from zero even in the 1-based day and month fields.
	case strings.Contains(rangeExpr, "-"):
		a, b, found := strings.Cut(rangeExpr, "-")
		if !found {
			return false, false
		}
		var err error
		if lo, err = parseBound(a, min, max, isWeekday); err != nil {
			return false, false
		}
		if hi, err = parseBound(b, min, max, isWeekday); err != nil {
			return false, false
		}
		if lo > hi {
			return false, false
		}
		anchor = lo
	default:
		// Steps attach to `*` or a range, never to a bare integer.
		if hasStep {
			return false, false
		}
		n, err := parseBound(rangeExpr, min, max, isWeekday)
		if err != nil {
			return false, false
		}
		lo, hi = n, n
		anchor = n
	}

	if value < lo || value > hi {
		return false, true
	}
	return (value-anchor)%step == 0, true
}

func parseBound(s string, min, max int, isWeekday bool) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	// Both 0 and 7 denote Sunday in the weekday field.
	if isWeekday && n == 7 {
		n = 0
	}
	if n < min || n > max {
		return 0, strconv.ErrRange
	}
	return n, nil
}
