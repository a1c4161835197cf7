package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MaxReminderDuration is the longest delay a reminder may be set for.
const MaxReminderDuration = 30 * 24 * time.Hour

var durationToken = regexp.MustCompile(`^(\d+)([mhdMHD])$`)

var unitDurations = map[string]time.Duration{
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// ParseDuration parses tokens like "30m", "2h" or "1d" (unit letter is
// case-insensitive). Durations above MaxReminderDuration are rejected with
// ErrDurationTooLong; exactly 30 days is accepted.
func ParseDuration(token string) (time.Duration, error) {
	m := durationToken.FindStringSubmatch(token)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, token)
	}
	unit := unitDurations[strings.ToLower(m[2])]

	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		// Only overflow is possible here; the grammar already matched.
		return 0, fmt.Errorf("%w: %q", ErrDurationTooLong, token)
	}
	if n > uint64(MaxReminderDuration/unit) {
		return 0, fmt.Errorf("%w: %q", ErrDurationTooLong, token)
	}
	return time.Duration(n) * unit, nil
}

// DueAt returns base + the parsed token. Arithmetic is on absolute time, so the
// location of base does not matter.
func DueAt(token string, base time.Time) (time.Time, error) {
	d, err := ParseDuration(token)
	if err != nil {
		return time.Time{}, err
	}
	return base.Add(d), nil
}
