package retention

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// field matches one cron column. A nil set matches every value.
type field struct {
	set map[int]bool
}

func (f field) matches(v int) bool {
	return f.set == nil || f.set[v]
}

// parseField accepts "*", "*/step", "n", "a-b", "a-b/step" and comma lists
// of those, bounded by [lo, hi].
func parseField(expr string, lo, hi int) (field, error) {
	if expr == "*" {
		return field{}, nil
	}
	set := make(map[int]bool)
	for _, part := range strings.Split(expr, ",") {
		rng, stepStr, hasStep := strings.Cut(strings.TrimSpace(part), "/")
		step := 1
		if hasStep {
			s, err := strconv.Atoi(stepStr)
			if err != nil || s <= 0 {
				return field{}, fmt.Errorf("invalid step %q", part)
			}
			step = s
		}

		from, to := lo, hi
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var err error
			if from, err = strconv.Atoi(a); err != nil {
				return field{}, fmt.Errorf("invalid range %q", part)
			}
			if to, err = strconv.Atoi(b); err != nil {
				return field{}, fmt.Errorf("invalid range %q", part)
			}
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return field{}, fmt.Errorf("invalid value %q", part)
			}
			from, to = v, v
			if hasStep {
				to = hi
			}
		}
		if from < lo || to > hi || from > to {
			return field{}, fmt.Errorf("value %q out of range [%d,%d]", part, lo, hi)
		}
		for v := from; v <= to; v += step {
			set[v] = true
		}
	}
	return field{set: set}, nil
}

// Schedule is a parsed 5-field cron expression evaluated in UTC.
type Schedule struct {
	minute, hour, dom, month, dow field
}

// ParseSchedule parses "minute hour day-of-month month day-of-week".
func ParseSchedule(expr string) (Schedule, error) {
	cols := strings.Fields(expr)
	if len(cols) != 5 {
		return Schedule{}, fmt.Errorf("retention: cron expression must have 5 fields, got %d", len(cols))
	}
	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	names := [5]string{"minute", "hour", "day-of-month", "month", "day-of-week"}
	var fields [5]field
	for i, c := range cols {
		f, err := parseField(c, bounds[i][0], bounds[i][1])
		if err != nil {
			return Schedule{}, fmt.Errorf("retention: parsing %s field: %w", names[i], err)
		}
		fields[i] = f
	}
	return Schedule{minute: fields[0], hour: fields[1], dom: fields[2], month: fields[3], dow: fields[4]}, nil
}

func (s Schedule) matches(t time.Time) bool {
	return s.minute.matches(t.Minute()) &&
		s.hour.matches(t.Hour()) &&
		s.dom.matches(t.Day()) &&
		s.month.matches(int(t.Month())) &&
		s.dow.matches(int(t.Weekday()))
}

// Next returns the first minute strictly after 'after' that matches, searching
// up to one year ahead.
func (s Schedule) Next(after time.Time) (time.Time, error) {
	after = after.UTC()
	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if s.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("retention: no matching cron time within one year")
}
