// Package reminder implements reminder scheduling and webhook
// delivery. The Scheduler creates pending reminder records and
// registers one-shot trigger jobs at task-creation time; the
// Dispatcher runs when a job fires and performs delivery with bounded
// retry.
package reminder

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidOffset is returned when an offset expression cannot be
// parsed.
var ErrInvalidOffset = errors.New("invalid reminder offset")

// Accepted form: "<N> <unit> before", unit minute/hour/day with
// optional plural. "after" is not a supported direction.
var offsetPattern = regexp.MustCompile(`(?i)^\s*(\d+)\s*(minute|hour|day)s?\s+before\s*$`)

// ParseOffset converts an offset expression like "2 days before" into
// the duration to subtract from the due date. Anything outside the
// accepted form fails with ErrInvalidOffset naming the input.
func ParseOffset(expr string) (time.Duration, error) {
	match := offsetPattern.FindStringSubmatch(expr)
	if match == nil {
		return 0, fmt.Errorf("%w: %q (expected \"<N> <minute|hour|day>(s) before\")",
			ErrInvalidOffset, expr)
	}

	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidOffset, expr, err)
	}

	var unit time.Duration
	switch strings.ToLower(match[2]) {
	case "minute":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	}

	return time.Duration(n) * unit, nil
}
