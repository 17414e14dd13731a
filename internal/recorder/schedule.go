package recorder

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// HourSet is the set of local hours-of-day during which recording runs.
type HourSet map[int]struct{}

// ParseSchedule parses a comma-separated list of hours and inclusive hour
// ranges, e.g. "8-17,22-6". A range with start > end wraps midnight, so
// "22-6" covers 22,23,0..6. The empty string means every hour.
func ParseSchedule(s string) (HourSet, error) {
	hours := make(HourSet)
	if strings.TrimSpace(s) == "" {
		s = "0-23"
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if a, b, ok := strings.Cut(part, "-"); ok {
			lo, err := parseHour(a)
			if err != nil {
				return nil, fmt.Errorf("recorder: schedule range %q: %w", part, err)
			}
			hi, err := parseHour(b)
			if err != nil {
				return nil, fmt.Errorf("recorder: schedule range %q: %w", part, err)
			}
			if lo <= hi {
				for h := lo; h <= hi; h++ {
					hours[h] = struct{}{}
				}
			} else {
				for h := lo; h <= 23; h++ {
					hours[h] = struct{}{}
				}
				for h := 0; h <= hi; h++ {
					hours[h] = struct{}{}
				}
			}
			continue
		}
		h, err := parseHour(part)
		if err != nil {
			return nil, fmt.Errorf("recorder: schedule entry %q: %w", part, err)
		}
		hours[h] = struct{}{}
	}
	return hours, nil
}

func parseHour(s string) (int, error) {
	h, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if h < 0 || h > 23 {
		return 0, fmt.Errorf("hour %d out of range", h)
	}
	return h, nil
}

// Contains reports whether hour is in the set.
func (h HourSet) Contains(hour int) bool {
	_, ok := h[hour]
	return ok
}

// Hours returns the set in ascending order, for status reporting.
func (h HourSet) Hours() []int {
	out := make([]int, 0, len(h))
	for hour := range h {
		out = append(out, hour)
	}
	sort.Ints(out)
	return out
}
