package usage

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Summary is a parsed storage-usage page, everything in binary gigabytes.
type Summary struct {
	TotalUsedGB      float64
	TotalAvailableGB float64
	PhotosGB         float64
	DriveGB          float64
	MailGB           float64
}

// aggregatePattern matches the page's headline, e.g. "13.88 GB of 2 TB used".
var aggregatePattern = regexp.MustCompile(`(?i)([\d][\d,]*\.?\d*)\s*(KB|MB|GB|TB)\s+of\s+([\d][\d,]*\.?\d*)\s*(KB|MB|GB|TB)\s+used`)

// bucketPatterns match the per-sub-service rows, e.g. "Google Photos 120.88 GB".
// Each row is independently optional: the page drops rows for unused services.
var bucketPatterns = map[string]*regexp.Regexp{
	"photos": regexp.MustCompile(`(?i)photos\D*?([\d][\d,]*\.?\d*)\s*(KB|MB|GB|TB)`),
	"drive":  regexp.MustCompile(`(?i)drive\D*?([\d][\d,]*\.?\d*)\s*(KB|MB|GB|TB)`),
	"mail":   regexp.MustCompile(`(?i)mail\D*?([\d][\d,]*\.?\d*)\s*(KB|MB|GB|TB)`),
}

// ParseSummary extracts usage numbers from the visible text of the storage
// page. Parsing degrades instead of failing: any line that does not match
// yields zero for its field so one malformed row never blocks a snapshot.
func ParseSummary(text string) Summary {
	var s Summary

	if m := aggregatePattern.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			s.TotalUsedGB = NormalizeToGB(v, m[2])
		}
		if v, ok := parseNumber(m[3]); ok {
			s.TotalAvailableGB = NormalizeToGB(v, m[4])
		}
	}

	for name, pattern := range bucketPatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, ok := parseNumber(m[1])
		if !ok {
			continue
		}
		gb := NormalizeToGB(v, m[2])
		switch name {
		case "photos":
			s.PhotosGB = gb
		case "drive":
			s.DriveGB = gb
		case "mail":
			s.MailGB = gb
		}
	}

	return s
}

// VisibleText flattens page markup into the text a user would see, one node
// per line. Script and style bodies are skipped.
func VisibleText(markup string) string {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		// Treat unparseable markup like any other parse failure: work with
		// whatever raw text is there.
		return markup
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String()
}
