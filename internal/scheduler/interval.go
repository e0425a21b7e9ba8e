// Package scheduler holds interval arithmetic shared by the market-data
// gateway and config validation.
package scheduler

import (
	"strconv"
	"strings"
	"time"
)

// intervalUnits maps the suffix of a venue kline interval to its base
// duration. Sub-minute intervals are not accepted.
var intervalUnits = map[byte]time.Duration{
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// ParseIntervalDuration converts an interval such as "15m", "4h" or "1d"
// into its duration. ok is false for anything a venue would reject.
func ParseIntervalDuration(interval string) (time.Duration, bool) {
	s := strings.ToLower(strings.TrimSpace(interval))
	if len(s) < 2 {
		return 0, false
	}
	unit, ok := intervalUnits[s[len(s)-1]]
	if !ok {
		return 0, false
	}
	count, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || count <= 0 {
		return 0, false
	}
	return time.Duration(count) * unit, true
}
