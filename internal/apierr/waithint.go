package apierr

import (
	"strconv"
	"strings"
)

// DefaultWaitSeconds is returned by WaitTime when no usable time hint can be
// located in the message.
const DefaultWaitSeconds = 60

// waitUnits are checked in this fixed priority order: minute, then second,
// then hour. This mirrors the upstream message-scanning behavior even when a
// lower-priority unit appears earlier in the text. Downstream consumers may
// depend on it, so it is preserved rather than changed to first-occurrence
// order. See DESIGN.md "Open questions" before touching this.
var waitUnits = []struct {
	token      string
	multiplier int
}{
	{"minute", 60},
	{"second", 1},
	{"hour", 3600},
}

// WaitTime extracts a wait duration in seconds from a free-text upstream
// message of the form "... try again in <number> <unit> ...".
//
// The function is pure and total: it never panics and always returns a
// non-negative integer, falling back to DefaultWaitSeconds when the message
// carries no recognized unit or the number cannot be parsed.
func WaitTime(message string) int {
	lower := strings.ToLower(message)

	for _, unit := range waitUnits {
		idx := strings.Index(lower, unit.token)
		if idx < 0 {
			continue
		}

		// The number lives in the word token immediately before the unit.
		n, ok := trailingNumber(lower[:idx])
		if !ok {
			return DefaultWaitSeconds
		}
		return n * unit.multiplier
	}

	return DefaultWaitSeconds
}

// trailingNumber extracts the run of digit characters from the last
// whitespace-separated token of s.
func trailingNumber(s string) (int, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}

	var digits strings.Builder
	for _, r := range fields[len(fields)-1] {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}

	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0, false
	}
	return n, true
}
