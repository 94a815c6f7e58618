package transfer

import (
	"regexp"
	"strconv"
	"strings"

	"mediaferry/internal/progress"
	"mediaferry/internal/usage"
)

// Source summary patterns, e.g. "12,053 photos", "418 videos", "383 GB".
// Counts are embedded in prose on the account data page, so matching is
// pattern-based rather than selector-based.
var (
	photoCountPattern  = regexp.MustCompile(`(?i)([\d][\d,]*)\s+photos`)
	videoCountPattern  = regexp.MustCompile(`(?i)([\d][\d,]*)\s+videos`)
	librarySizePattern = regexp.MustCompile(`(?i)([\d][\d,]*\.?\d*)\s*(KB|MB|GB|TB)`)
)

// ParseSourceCounts extracts the library summary from visible page text.
// Like storage parsing, this degrades: a missing field yields zero, never an
// error, so a reworded page still produces a usable (if partial) answer.
func ParseSourceCounts(text string) progress.SourceCounts {
	var counts progress.SourceCounts

	if m := photoCountPattern.FindStringSubmatch(text); m != nil {
		counts.Photos = parseCount(m[1])
	}
	if m := videoCountPattern.FindStringSubmatch(text); m != nil {
		counts.Videos = parseCount(m[1])
	}
	if m := librarySizePattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
			counts.TotalSizeGB = usage.NormalizeToGB(v, m[2])
		}
	}
	return counts
}

func parseCount(s string) int {
	n, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return 0
	}
	return n
}
