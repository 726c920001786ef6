package cycle

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/doeshing/autopilot/internal/domain"
)

// maxRetryHint caps a backend supplied retry delay.
const maxRetryHint = time.Hour

const hintUnit = `(?:milliseconds?|ms|minutes?|mins?|m|hours?|hrs?|h|seconds?|secs?|s)`

var (
	retryHint = regexp.MustCompile(`(?i)(?:try again|retry)\s+(?:in|after)\s+((?:[0-9]+(?:\.[0-9]+)?\s*` + hintUnit + `\s*)+)`)
	hintPart  = regexp.MustCompile(`(?i)([0-9]+(?:\.[0-9]+)?)\s*(` + hintUnit + `)`)
)

// RetryAfter extracts a retry delay from a rate limit error, either typed or
// embedded in the message: "try again in 2.50s", "retry in 1m30s",
// "retry after 20 seconds".
func RetryAfter(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var rateLimited *domain.RateLimitError
	if errors.As(err, &rateLimited) && rateLimited.RetryAfter > 0 {
		return capHint(rateLimited.RetryAfter), true
	}
	match := retryHint.FindStringSubmatch(err.Error())
	if match == nil {
		return 0, false
	}
	d := parseHint(match[1])
	if d <= 0 {
		return 0, false
	}
	return capHint(d), true
}

func parseHint(text string) time.Duration {
	var total time.Duration
	for _, part := range hintPart.FindAllStringSubmatch(text, -1) {
		value, err := strconv.ParseFloat(part[1], 64)
		if err != nil {
			return 0
		}
		total += time.Duration(value * float64(hintUnitSize(part[2])))
	}
	return total
}

func hintUnitSize(unit string) time.Duration {
	unit = strings.ToLower(unit)
	switch {
	case unit == "ms" || strings.HasPrefix(unit, "milli"):
		return time.Millisecond
	case strings.HasPrefix(unit, "h"):
		return time.Hour
	case strings.HasPrefix(unit, "m"):
		return time.Minute
	default:
		return time.Second
	}
}

func capHint(d time.Duration) time.Duration {
	if d > maxRetryHint {
		return maxRetryHint
	}
	return d
}
