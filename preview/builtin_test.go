package preview

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urlpreview/document"
	"urlpreview/fetcher"
)

func builtin(t *testing.T, name string) *Module {
	t.Helper()
	for _, m := range Builtins() {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("no builtin module %q", name)
	return nil
}

func TestBuiltinsEnabled(t *testing.T) {
	r := NewRegistry()
	DefineBuiltins(r)
	assert.Equal(t, []string{"image", "github", "hackernews", "reddit", "youtube", "wikipedia", "feed"}, names(r.EnabledList()))
	assert.Len(t, r.List(), 9)
}

func TestBuiltinRetrieveURL(t *testing.T) {
	tests := []struct {
		module string
		url    string
		match  bool
		want   string
	}{
		{"github", "https://github.com/golang/go", true, "https://api.github.com/repos/golang/go"},
		{"github", "https://github.com/golang/go.git", true, "https://api.github.com/repos/golang/go"},
		{"github", "https://github.com/golang", false, ""},
		{"hackernews", "https://news.ycombinator.com/item?id=42", true, "https://hacker-news.firebaseio.com/v0/item/42.json"},
		{"reddit", "https://old.reddit.com/r/golang/comments/abc/title/?utm=x", true, "https://old.reddit.com/r/golang/comments/abc/title.json"},
		{"youtube", "https://youtu.be/xyz", true, "https://www.youtube.com/oembed?format=json&url=https%3A%2F%2Fyoutu.be%2Fxyz"},
		{"wikipedia", "https://en.wikipedia.org/wiki/Go_(programming_language)", true, "https://en.wikipedia.org/api/rest_v1/page/summary/Go_(programming_language)"},
		{"feed", "https://blog.example.com/feed/", true, ""},
		{"feed", "https://example.com/index.xml", true, ""},
		{"feed", "https://example.com/feedback", false, ""},
		{"image", "http://example.com/a.PNG", true, ""},
		{"image", "http://example.com/a.png.html", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.module+" "+tt.url, func(t *testing.T) {
			m := builtin(t, tt.module)
			require.Equal(t, tt.match, m.Matches(tt.url))
			if tt.match && m.RetrieveURL != nil {
				assert.Equal(t, tt.want, m.RetrieveURL(tt.url))
			}
		})
	}
}

func TestBuiltinSummaries(t *testing.T) {
	tests := []struct {
		name string
		fn   Callback
		body string
		want any
	}{
		{
			"github", githubSummary,
			`{"full_name":"golang/go","description":"The Go language","stargazers_count":125000,"language":"Go"}`,
			"golang/go - The Go language (Repository · ⭐ 125.0k · Go)",
		},
		{
			"hackernews", hackerNewsSummary,
			`{"title":"Show HN: x","score":120,"descendants":45,"type":"story","url":"https://x.dev"}`,
			"Show HN: x - https://x.dev (Discussion · 120 points · 45 comments)",
		},
		{
			"reddit", redditSummary,
			`[{"data":{"children":[{"data":{"title":"Generics","subreddit":"golang","score":1500,"num_comments":80}}]}}]`,
			"Generics (Discussion · r/golang · ▲ 1.5k · 80 comments)",
		},
		{
			"youtube", youtubeSummary,
			`{"title":"GopherCon","author_name":"Gopher Academy"}`,
			"GopherCon (Video · Gopher Academy)",
		},
		{
			"wikipedia", wikipediaSummary,
			`{"title":"Go","extract":"Go is a language.","description":"programming language"}`,
			"Go - Go is a language. (programming language)",
		},
		{
			"feed", feedSummary,
			`<rss><channel><title>News</title><item><title>One</title><pubDate>2025-12-01</pubDate></item><item><title>Two</title></item></channel></rss>`,
			"News (RSS · 2 items · latest: One (2025-12-01))",
		},
		{"not a feed", feedSummary, `<html></html>`, nil},
		{"empty json", githubSummary, `{}`, nil},
		{"not json", wikipediaSummary, `<html>`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MustModule(tt.name, ".")
			m.Response = &fetcher.Response{Body: []byte(tt.body)}
			assert.Equal(t, tt.want, tt.fn(m, nil))
		})
	}
}

func TestPageSummary(t *testing.T) {
	m := builtin(t, "page")
	m.URL = "https://example.com/blog/post"
	m.Response = &fetcher.Response{Body: []byte(`<html><head>
<meta property="og:title" content="Hello">
<meta name="description" content="A post">
</head><body><p>short</p></body></html>`)}

	assert.Equal(t, "Hello - A post (Article · < 1 min read)", pageSummary(m, nil))

	m.Response = &fetcher.Response{Body: []byte(`<html><body></body></html>`)}
	assert.Nil(t, pageSummary(m, nil))
}

func TestMarkdownSummary(t *testing.T) {
	m := builtin(t, "summary")
	m.Response = &fetcher.Response{Body: []byte(`<html><body>
<nav><a href="/">Home</a></nav>
<h1>Title</h1>
<p>The <strong>first</strong> paragraph
spans lines.</p>
<p>Second.</p>
</body></html>`)}

	assert.Equal(t, "The **first** paragraph spans lines.", markdownSummary(m, nil))

	m.Response = &fetcher.Response{Body: []byte(`<p>` + strings.Repeat("a", 400) + `</p>`)}
	got, ok := markdownSummary(m, nil).(string)
	require.True(t, ok)
	assert.Equal(t, maxSummary+len("..."), len(got))
}

func TestImageModule(t *testing.T) {
	var png8x4 bytes.Buffer
	require.NoError(t, png.Encode(&png8x4, image.NewRGBA(image.Rect(0, 0, 8, 4))))

	h := newHarness(t, ok(png8x4.String()))
	h.registry.Define(builtin(t, "image"))

	const url = "http://example.com/pic.png"
	buf := document.New("notes", "look: "+url+"\n")
	h.d.Preview(context.Background(), buf, 0, buf.Len())
	h.d.Wait()

	require.True(t, h.cache.Exists(url))
	assert.Equal(t, "look: "+url+"\n[url-preview] image: "+h.cache.Path(url)+" 8x4 png\n", buf.String())
}

func TestGithubModuleEndToEnd(t *testing.T) {
	h := newHarness(t, func(req fetcher.Request) (*fetcher.Response, error) {
		assert.Equal(t, "application/vnd.github.v3+json", req.Headers.Get("Accept"))
		return &fetcher.Response{URL: req.URL, StatusCode: 200, Body: []byte(`{"full_name":"golang/go","stargazers_count":12}`)}, nil
	})
	h.registry.Define(builtin(t, "github"))

	buf := document.New("notes", "https://github.com/golang/go\n")
	h.d.Preview(context.Background(), buf, 0, buf.Len())
	h.d.Wait()

	assert.Equal(t, []string{"https://api.github.com/repos/golang/go"}, h.retriever.requested())
	assert.Equal(t, "https://github.com/golang/go\n[url-preview] github - golang/go (Repository · ⭐ 12)\n", buf.String())
	assert.True(t, h.cache.Exists("https://api.github.com/repos/golang/go"))
}
