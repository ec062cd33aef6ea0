package feed

import (
	"errors"
	"testing"
	"time"
)

const rss2 = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel>
    <title>Example   News</title>
    <link>https://example.com</link>
    <description>Latest news &amp; views</description>
    <item>
      <title>Another Story</title>
      <link>https://example.com/article/2</link>
      <pubDate>Sun, 09 Dec 2025 10:00:00 +0000</pubDate>
      <dc:creator>Sam</dc:creator>
    </item>
    <item>
      <title>Breaking: Something Happened</title>
      <link>https://example.com/article/1</link>
      <pubDate>Wed, 10 Dec 2025 15:04:05 +0000</pubDate>
      <author>john@example.com</author>
    </item>
  </channel>
</rss>`

const atom = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Example Blog</title>
  <subtitle>Thoughts and musings</subtitle>
  <link href="https://blog.example.com/feed.xml" rel="self"/>
  <link href="https://blog.example.com" rel="alternate"/>
  <entry>
    <title>My First Post</title>
    <link href="https://blog.example.com/posts/first"/>
    <published>2025-12-10T12:00:00Z</published>
    <author><name>Jane Doe</name></author>
  </entry>
  <entry>
    <title>Second Post</title>
    <link href="https://blog.example.com/posts/second" rel="alternate"/>
    <updated>2025-12-09T08:30:00Z</updated>
  </entry>
</feed>`

const rdf = `<?xml version="1.0"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
         xmlns="http://purl.org/rss/1.0/"
         xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel>
    <title>Old School</title>
    <link>https://old.example.com</link>
  </channel>
  <item>
    <title>Entry</title>
    <link>https://old.example.com/1</link>
    <dc:date>2025-12-01</dc:date>
  </item>
</rdf:RDF>`

func TestParseRSS2(t *testing.T) {
	f, err := Parse([]byte(rss2))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.Format != FormatRSS {
		t.Errorf("Format = %q, want %q", f.Format, FormatRSS)
	}
	if f.Title != "Example News" {
		t.Errorf("Title = %q", f.Title)
	}
	if f.Description != "Latest news & views" {
		t.Errorf("Description = %q", f.Description)
	}
	if len(f.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(f.Items))
	}
	if f.Items[0].Author != "Sam" {
		t.Errorf("dc:creator author = %q", f.Items[0].Author)
	}

	latest, ok := f.Latest()
	if !ok || latest.Title != "Breaking: Something Happened" {
		t.Errorf("Latest = %+v, %v", latest, ok)
	}
}

func TestParseAtom(t *testing.T) {
	f, err := Parse([]byte(atom))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.Format != FormatAtom {
		t.Errorf("Format = %q, want %q", f.Format, FormatAtom)
	}
	if f.Link != "https://blog.example.com" {
		t.Errorf("Link = %q", f.Link)
	}
	if len(f.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(f.Items))
	}
	first := f.Items[0]
	if first.Link != "https://blog.example.com/posts/first" || first.Author != "Jane Doe" {
		t.Errorf("first item = %+v", first)
	}
	if want := time.Date(2025, 12, 9, 8, 30, 0, 0, time.UTC); !f.Items[1].Published.Equal(want) {
		t.Errorf("updated fallback = %v, want %v", f.Items[1].Published, want)
	}
}

func TestParseRDF(t *testing.T) {
	f, err := Parse([]byte(rdf))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.Format != FormatRDF || f.Title != "Old School" || len(f.Items) != 1 {
		t.Errorf("feed = %+v", f)
	}
}

func TestParseInvalid(t *testing.T) {
	for _, data := range []string{"", "<html><body>hi</body></html>", "{}", "<rss><channel></channel></rss>"} {
		if _, err := Parse([]byte(data)); !errors.Is(err, ErrNotFeed) {
			t.Errorf("Parse(%q) error = %v, want ErrNotFeed", data, err)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"Mon, 02 Jan 2006 15:04:05 -0700", time.Date(2006, 1, 2, 22, 4, 5, 0, time.UTC)},
		{"2006-01-02T15:04:05Z", time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)},
		{"2006-01-02", time.Date(2006, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"Jan 2, 2006", time.Date(2006, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"", time.Time{}},
		{"yesterday", time.Time{}},
	}
	for _, tt := range tests {
		if got := parseDate(tt.in); !got.Equal(tt.want) {
			t.Errorf("parseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLatestEmpty(t *testing.T) {
	if _, ok := (&Feed{}).Latest(); ok {
		t.Error("Latest on empty feed reported an item")
	}
}
