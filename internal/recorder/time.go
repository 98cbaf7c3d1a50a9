package recorder

import (
	"strconv"
	"strings"
	"time"
)

// GetStartedAt parses the `at` play option (spec.md §4.9): "now-<seconds>",
// an ISO-8601 compact timestamp ("20060102T150405"), or an extended one
// ("2006-01-02T15:04:05"), each optionally carrying a timezone designator
// (Z, ±hh:mm, or ±hhmm). A missing designator is interpreted in the host's
// local zone. Grounded on original_source/src/looprec.cpp's GetStartedAt.
func GetStartedAt(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if rest, ok := strings.CutPrefix(s, "now-"); ok {
		secs, err := strconv.ParseFloat(rest, 64)
		if err != nil || secs < 0 {
			return time.Time{}, false
		}
		return now.Add(-time.Duration(secs * float64(time.Second))), true
	}

	body, hasTZ, loc, tzErr := splitTimezone(s)
	if tzErr {
		return time.Time{}, false
	}

	layouts := []string{
		"20060102T150405.000000",
		"20060102T150405",
		"2006-01-02T15:04:05.000000",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if hasTZ {
			if t, err := time.ParseInLocation(layout, body, loc); err == nil {
				return t, true
			}
		} else if t, err := time.ParseInLocation(layout, body, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// splitTimezone strips a trailing Z/±hh:mm/±hhmm designator from s, if
// present, and resolves the corresponding *time.Location.
func splitTimezone(s string) (body string, hasTZ bool, loc *time.Location, err bool) {
	if strings.HasSuffix(s, "Z") {
		return strings.TrimSuffix(s, "Z"), true, time.UTC, false
	}
	for _, sep := range []byte{'+', '-'} {
		if idx := strings.LastIndexByte(s, sep); idx > 0 {
			tail := s[idx:]
			if off, ok := parseOffset(tail); ok {
				return s[:idx], true, time.FixedZone("", off), false
			}
		}
	}
	return s, false, nil, false
}

// parseOffset parses "+hh:mm", "-hh:mm", "+hhmm", or "-hhmm" into seconds
// east of UTC.
func parseOffset(s string) (int, bool) {
	if len(s) < 3 {
		return 0, false
	}
	sign := 1
	if s[0] == '-' {
		sign = -1
	} else if s[0] != '+' {
		return 0, false
	}
	rest := strings.ReplaceAll(s[1:], ":", "")
	if len(rest) != 4 {
		return 0, false
	}
	hh, err1 := strconv.Atoi(rest[:2])
	mm, err2 := strconv.Atoi(rest[2:])
	if err1 != nil || err2 != nil {
		return 0, false
	}
	return sign * (hh*3600 + mm*60), true
}
