package storage

import (
	"strconv"
	"strings"
)

// CompareSequenceIDs orders decimal sequence identifiers numerically.
// Identifiers that do not parse fall back to string comparison after
// every numeric one.
func CompareSequenceIDs(a, b string) int {
	an, aerr := strconv.ParseUint(a, 10, 64)
	bn, berr := strconv.ParseUint(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// ParseSequenceID parses a decimal sequence identifier.
func ParseSequenceID(id string) (uint64, bool) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// FormatSequenceID renders a sequence identifier.
func FormatSequenceID(n uint64) string {
	return strconv.FormatUint(n, 10)
}
