// Package feed parses RSS 2.0, RSS 1.0 (RDF) and Atom documents into a
// single shape for previewing.
package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"html"
	"slices"
	"strings"
	"time"
)

// ErrNotFeed is returned for documents that are not a recognised feed.
var ErrNotFeed = errors.New("not an RSS or Atom feed")

// Format names the syntax a feed was written in.
type Format string

const (
	FormatRSS  Format = "RSS"
	FormatRDF  Format = "RDF"
	FormatAtom Format = "Atom"
)

// Feed is a parsed feed.
type Feed struct {
	Format      Format
	Title       string
	Description string
	Link        string // site URL
	Items       []Item
}

// Item is one feed entry.
type Item struct {
	Title     string
	Link      string
	Author    string
	Published time.Time
}

// Latest returns the most recently published item, or the first item when
// none carries a date.
func (f *Feed) Latest() (Item, bool) {
	if len(f.Items) == 0 {
		return Item{}, false
	}
	latest := f.Items[0]
	for _, it := range f.Items[1:] {
		if it.Published.After(latest.Published) {
			latest = it
		}
	}
	return latest, true
}

// Parse detects the feed syntax and parses data.
func Parse(data []byte) (*Feed, error) {
	data = bytes.TrimPrefix(data, []byte{0xef, 0xbb, 0xbf})

	for _, parse := range []func([]byte) (*Feed, error){parseRSS, parseAtom, parseRDF} {
		if f, err := parse(data); err == nil {
			return f, nil
		}
	}
	return nil, ErrNotFeed
}

type rssDoc struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title       string    `xml:"title"`
		Link        string    `xml:"link"`
		Description string    `xml:"description"`
		Items       []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
	Author  string `xml:"author"`
	Creator string `xml:"http://purl.org/dc/elements/1.1/ creator"`
}

func parseRSS(data []byte) (*Feed, error) {
	var doc rssDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	ch := doc.Channel
	if ch.Title == "" && len(ch.Items) == 0 {
		return nil, ErrNotFeed
	}

	f := &Feed{
		Format:      FormatRSS,
		Title:       cleanText(ch.Title),
		Description: cleanText(ch.Description),
		Link:        strings.TrimSpace(ch.Link),
	}
	for _, it := range ch.Items {
		f.Items = append(f.Items, Item{
			Title:     cleanText(it.Title),
			Link:      strings.TrimSpace(it.Link),
			Author:    firstNonEmpty(it.Author, it.Creator),
			Published: parseDate(it.PubDate),
		})
	}
	return f, nil
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

type atomDoc struct {
	XMLName  xml.Name   `xml:"http://www.w3.org/2005/Atom feed"`
	Title    string     `xml:"title"`
	Subtitle string     `xml:"subtitle"`
	Links    []atomLink `xml:"link"`
	Entries  []struct {
		Title     string     `xml:"title"`
		Links     []atomLink `xml:"link"`
		Published string     `xml:"published"`
		Updated   string     `xml:"updated"`
		Author    struct {
			Name string `xml:"name"`
		} `xml:"author"`
	} `xml:"entry"`
}

// alternate picks the rel="alternate" link, which may be implied.
func alternate(links []atomLink) string {
	i := slices.IndexFunc(links, func(l atomLink) bool {
		return l.Rel == "alternate" || l.Rel == ""
	})
	if i < 0 {
		return ""
	}
	return links[i].Href
}

func parseAtom(data []byte) (*Feed, error) {
	var doc atomDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Title == "" && len(doc.Entries) == 0 {
		return nil, ErrNotFeed
	}

	f := &Feed{
		Format:      FormatAtom,
		Title:       cleanText(doc.Title),
		Description: cleanText(doc.Subtitle),
		Link:        alternate(doc.Links),
	}
	for _, e := range doc.Entries {
		f.Items = append(f.Items, Item{
			Title:     cleanText(e.Title),
			Link:      alternate(e.Links),
			Author:    e.Author.Name,
			Published: parseDate(firstNonEmpty(e.Published, e.Updated)),
		})
	}
	return f, nil
}

type rdfDoc struct {
	XMLName xml.Name `xml:"http://www.w3.org/1999/02/22-rdf-syntax-ns# RDF"`
	Channel struct {
		Title       string `xml:"title"`
		Link        string `xml:"link"`
		Description string `xml:"description"`
	} `xml:"http://purl.org/rss/1.0/ channel"`
	Items []struct {
		Title   string `xml:"title"`
		Link    string `xml:"link"`
		Date    string `xml:"http://purl.org/dc/elements/1.1/ date"`
		Creator string `xml:"http://purl.org/dc/elements/1.1/ creator"`
	} `xml:"http://purl.org/rss/1.0/ item"`
}

func parseRDF(data []byte) (*Feed, error) {
	var doc rdfDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Channel.Title == "" && len(doc.Items) == 0 {
		return nil, ErrNotFeed
	}

	f := &Feed{
		Format:      FormatRDF,
		Title:       cleanText(doc.Channel.Title),
		Description: cleanText(doc.Channel.Description),
		Link:        strings.TrimSpace(doc.Channel.Link),
	}
	for _, it := range doc.Items {
		f.Items = append(f.Items, Item{
			Title:     cleanText(it.Title),
			Link:      strings.TrimSpace(it.Link),
			Author:    it.Creator,
			Published: parseDate(it.Date),
		})
	}
	return f, nil
}

// dateFormats are the layouts seen in the wild, most common first.
var dateFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"02 Jan 2006 15:04:05 -0700",
	"02 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"January 2, 2006",
	"Jan 2, 2006",
}

// parseDate returns the zero time for empty or unrecognised dates.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// cleanText unescapes entities and collapses whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

func firstNonEmpty(strs ...string) string {
	for _, s := range strs {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
