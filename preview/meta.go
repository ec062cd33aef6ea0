package preview

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Meta contains metadata about a page for preview display
type Meta struct {
	Title       string
	Description string
	SiteName    string
	ContentType string // Article, Discussion, Repository, Video, etc.
	ReadingTime string // "5 min read", "< 1 min read"
	Extra       string // Site-specific extra info (stars, points, etc.)
}

// maxDescription is the longest description shown before truncation.
const maxDescription = 200

// ExtractMetaTags parses HTML bytes to extract OG and meta tags
func ExtractMetaTags(body []byte) *Meta {
	meta := &Meta{}
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return meta
	}
	doc := goquery.NewDocumentFromNode(root)

	meta.Title = firstNonEmpty(
		metaContent(doc, `meta[property="og:title"]`),
		metaContent(doc, `meta[name="twitter:title"]`),
		strings.TrimSpace(doc.Find("title").First().Text()),
	)
	meta.Description = truncate(firstNonEmpty(
		metaContent(doc, `meta[property="og:description"]`),
		metaContent(doc, `meta[name="twitter:description"]`),
		metaContent(doc, `meta[name="description"]`),
	), maxDescription)
	meta.SiteName = metaContent(doc, `meta[property="og:site_name"]`)
	meta.ContentType = capitalizeContentType(metaContent(doc, `meta[property="og:type"]`))

	doc.Find("script, style, noscript").Remove()
	if words := len(strings.Fields(doc.Find("body").Text())); words > 0 {
		meta.ReadingTime = EstimateReadingTime(words)
	}
	return meta
}

// String renders the meta as one line: "title - description (site · type · time)".
func (m *Meta) String() string {
	var b strings.Builder
	b.WriteString(m.Title)
	if m.Description != "" {
		if b.Len() > 0 {
			b.WriteString(" - ")
		}
		b.WriteString(m.Description)
	}

	var details []string
	for _, s := range []string{m.SiteName, m.ContentType, m.Extra, m.ReadingTime} {
		if s != "" {
			details = append(details, s)
		}
	}
	if len(details) > 0 {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "(%s)", strings.Join(details, " · "))
	}
	return b.String()
}

func metaContent(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().AttrOr("content", ""))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// truncate cuts s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// capitalizeContentType converts og:type values to display strings
func capitalizeContentType(t string) string {
	switch strings.ToLower(t) {
	case "article":
		return "Article"
	case "website":
		return "Website"
	case "video", "video.other":
		return "Video"
	case "music.song", "music.album":
		return "Music"
	case "profile":
		return "Profile"
	case "book":
		return "Book"
	case "":
		return ""
	default:
		words := strings.Fields(strings.ReplaceAll(t, ".", " "))
		for i, w := range words {
			r := []rune(w)
			r[0] = unicode.ToUpper(r[0])
			words[i] = string(r)
		}
		return strings.Join(words, " ")
	}
}

// guessContentType attempts to guess content type from URL
func guessContentType(u *url.URL) string {
	path := strings.ToLower(u.Path)

	switch {
	case strings.Contains(path, "/article") || strings.Contains(path, "/post") || strings.Contains(path, "/blog"):
		return "Article"
	case strings.Contains(path, "/video") || strings.Contains(path, "/watch"):
		return "Video"
	case strings.Contains(path, "/doc") || strings.Contains(path, "/documentation"):
		return "Documentation"
	case strings.HasSuffix(path, ".pdf"):
		return "PDF"
	case strings.HasSuffix(path, ".png") || strings.HasSuffix(path, ".jpg") || strings.HasSuffix(path, ".gif"):
		return "Image"
	default:
		return ""
	}
}

// formatCount formats large numbers with K/M suffixes
func formatCount(n int) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	if n >= 1000 {
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}

// EstimateReadingTime estimates reading time from word count
func EstimateReadingTime(wordCount int) string {
	minutes := wordCount / 200 // ~200 WPM average
	if minutes < 1 {
		return "< 1 min read"
	}
	if minutes == 1 {
		return "1 min read"
	}
	return fmt.Sprintf("%d min read", minutes)
}
