package janitor

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// fieldBounds holds the valid value range for each of the five cron fields:
// minute, hour, day-of-month, month, day-of-week.
var fieldBounds = [5][2]int{
	{0, 59},
	{0, 23},
	{1, 31},
	{1, 12},
	{0, 6},
}

// schedule is a parsed 5-field cron expression. Each field is a set of
// admitted values; a nil set means "*".
type schedule [5]map[int]bool

func (s schedule) matches(t time.Time) bool {
	vals := [5]int{t.Minute(), t.Hour(), t.Day(), int(t.Month()), int(t.Weekday())}
	for i, set := range s {
		if set != nil && !set[vals[i]] {
			return false
		}
	}
	return true
}

// parseCron parses a standard 5-field cron expression. Fields accept single
// values, comma lists, ranges ("1-5"), and steps ("*/15").
func parseCron(expr string) (schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return schedule{}, fmt.Errorf("cron expression needs 5 fields, got %d", len(fields))
	}

	var s schedule
	for i, field := range fields {
		set, err := parseField(field, fieldBounds[i][0], fieldBounds[i][1])
		if err != nil {
			return schedule{}, fmt.Errorf("cron field %d %q: %w", i+1, field, err)
		}
		s[i] = set
	}
	return s, nil
}

// parseField expands one cron field into its admitted value set. A plain "*"
// yields nil, meaning every value matches.
func parseField(field string, lo, hi int) (map[int]bool, error) {
	if field == "*" {
		return nil, nil
	}

	set := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)

		base, stepStr, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("bad step %q", stepStr)
			}
			step = n
		}

		from, to := lo, hi
		switch {
		case base == "*":
			// full range
		case strings.Contains(base, "-"):
			loStr, hiStr, _ := strings.Cut(base, "-")
			var err1, err2 error
			from, err1 = strconv.Atoi(loStr)
			to, err2 = strconv.Atoi(hiStr)
			if err1 != nil || err2 != nil || from > to {
				return nil, fmt.Errorf("bad range %q", base)
			}
		default:
			n, err := strconv.Atoi(base)
			if err != nil {
				return nil, fmt.Errorf("bad value %q", base)
			}
			from, to = n, n
		}

		if from < lo || to > hi {
			return nil, fmt.Errorf("value out of range %d-%d", lo, hi)
		}
		for v := from; v <= to; v += step {
			set[v] = true
		}
	}
	return set, nil
}

// nextCronTime returns the first minute after 'after' that matches the
// expression, scanning minute-by-minute with a one-year horizon.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	s, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.AddDate(1, 0, 1)
	for candidate.Before(limit) {
		if s.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching time within a year for %q", cronExpr)
}
