// Package duration converts between compact moderation durations ("1d2h",
// "30m") and time.Duration.
//
// Parse is total: unrecognised text yields zero, which callers treat as
// "permanent" or "no duration", and oversized values saturate at Max.
// Format renders the two largest units.
package duration

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	Second = time.Second
	Minute = time.Minute
	Hour   = time.Hour
	Day    = 24 * time.Hour
	Week   = 7 * Day
)

var tokenPattern = regexp.MustCompile(`(\d+)([wdhms])`)

var units = map[string]time.Duration{
	"w": Week,
	"d": Day,
	"h": Hour,
	"m": Minute,
	"s": Second,
}

// Max is the longest duration Parse returns. Larger inputs saturate here.
const Max = time.Duration(math.MaxInt64)

// Parse sums every <number><unit> token in text. Units are w, d, h, m and s,
// case-insensitive. Text without any token parses to zero.
func Parse(text string) time.Duration {
	var total time.Duration
	for _, m := range tokenPattern.FindAllStringSubmatch(strings.ToLower(text), -1) {
		unit := units[m[2]]
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || n > int64(Max/unit) {
			return Max
		}
		part := time.Duration(n) * unit
		if total > Max-part {
			return Max
		}
		total += part
	}
	return total
}

// LooksLikeDuration reports whether a command token should be read as a
// duration rather than the start of a reason.
func LooksLikeDuration(token string) bool {
	return token != "" && token[0] >= '0' && token[0] <= '9'
}

// Format renders d as "Xd Yh", "Xh Ym", "Xm Ys" or "Xs". Negative values
// render as "0s".
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int64(d / Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours%24)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds%60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
