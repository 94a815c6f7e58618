// Package usage reads the destination service's aggregate storage usage. The
// destination exposes no transfer API, so growth in its photos bucket is the
// only progress signal available; this package turns the human-readable
// storage summary page into normalized numbers.
package usage

import (
	"strconv"
	"strings"
)

// Multipliers to binary gigabytes.
const (
	kbPerGB = 1.0 / (1024.0 * 1024.0)
	mbPerGB = 1.0 / 1024.0
	tbPerGB = 1024.0
)

// NormalizeToGB converts a value with a display unit to binary gigabytes.
// Unknown units pass the value through unchanged; a surprising unit should
// produce a wrong-but-visible number, not a silent zero.
func NormalizeToGB(value float64, unit string) float64 {
	switch strings.ToUpper(strings.TrimSpace(unit)) {
	case "KB":
		return value * kbPerGB
	case "MB":
		return value * mbPerGB
	case "GB":
		return value
	case "TB":
		return value * tbPerGB
	default:
		return value
	}
}

// parseNumber parses a display number that may carry thousands separators.
func parseNumber(s string) (float64, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
