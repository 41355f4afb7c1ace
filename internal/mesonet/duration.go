package mesonet

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// durationPattern accepts day/hour/minute/second components in that order.
// The ISO-8601 designators P and T are stripped before matching.
var durationPattern = regexp.MustCompile(`^(?:(\d+)d)?(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

// ParseDuration parses "30m", "3d6h30m10s", "PT30M" or "P1DT6H".
func ParseDuration(s string) (time.Duration, error) {
	x := strings.ToLower(strings.TrimSpace(s))
	x = strings.NewReplacer("p", "", "t", "").Replace(x)

	m := durationPattern.FindStringSubmatch(x)
	if m == nil || x == "" {
		return 0, fmt.Errorf("unrecognized duration %q", s)
	}

	units := [4]time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("duration %q: %w", s, err)
		}
		d += time.Duration(n) * unit
	}
	return d, nil
}

// DurationToMinutes parses a duration string and returns whole minutes.
func DurationToMinutes(s string) (int64, error) {
	d, err := ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return minutes(d), nil
}

func minutes(d time.Duration) int64 {
	return int64(d / time.Minute)
}
