package document

import (
	"mvdan.cc/xurls/v2"
)

var urlRe = xurls.Strict()

// Match is a URL found in a buffer.
type Match struct {
	URL    string
	Start  int
	End    int
	Anchor *Anchor // immediately after the URL
}

// ScanURLs finds URLs fully inside text[start:end] and captures an anchor
// after each one. Every occurrence is returned, duplicates included.
func (b *Buffer) ScanURLs(start, end int) []Match {
	b.mu.Lock()
	defer b.mu.Unlock()

	start, end = b.clamp(start), b.clamp(end)
	if start >= end {
		return nil
	}

	region := string(b.text[start:end])
	var matches []Match
	for _, loc := range urlRe.FindAllStringIndex(region, -1) {
		s, e := start+loc[0], start+loc[1]
		matches = append(matches, Match{
			URL:    region[loc[0]:loc[1]],
			Start:  s,
			End:    e,
			Anchor: b.newAnchorLocked(e),
		})
	}
	return matches
}

// ScanAll scans the whole buffer.
func (b *Buffer) ScanAll() []Match {
	return b.ScanURLs(0, b.Len())
}
