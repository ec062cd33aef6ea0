package preview

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/tidwall/gjson"
	_ "golang.org/x/image/webp"

	"urlpreview/document"
	"urlpreview/feed"
)

// Builtins returns fresh copies of the bundled modules. page and summary
// match every web URL and start disabled.
func Builtins() []*Module {
	return []*Module{
		imageModule(),
		githubModule(),
		hackerNewsModule(),
		redditModule(),
		youtubeModule(),
		wikipediaModule(),
		feedModule(),
		pageModule(),
		summaryModule(),
	}
}

// DefineBuiltins registers the bundled modules in r.
func DefineBuiltins(r *Registry) {
	for _, m := range Builtins() {
		r.Define(m)
	}
}

func imageModule() *Module {
	m := MustModule("image", `(?i)^https?://\S+\.(png|jpe?g|gif|webp)$`)
	m.OnSuccess = Callbacks(SaveCacheBinary, renderImage)
	return m
}

// renderImage inserts a reference to the cached image with its size when
// the format is decodable.
func renderImage(m *Module, _ any) any {
	path := m.CachePath()
	if path == "" {
		return nil
	}
	label := path
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(m.Body())); err == nil {
		label = fmt.Sprintf("%s %dx%d %s", path, cfg.Width, cfg.Height, format)
	}
	return Renderer(func(ins document.Inserter) error {
		ins.Insert(fmt.Sprintf("[%s] image: %s\n", m.Prefix(), label))
		return nil
	})
}

func githubModule() *Module {
	m := MustModule("github", `^https?://(www\.)?github\.com/[^/\s]+/[^/\s]+`)
	m.RetrieveURL = func(raw string) string {
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) < 2 {
			return ""
		}
		owner, repo := parts[0], strings.TrimSuffix(parts[1], ".git")
		return fmt.Sprintf("https://api.github.com/repos/%s/%s", owner, repo)
	}
	m.RetrieveArgs = func(m *Module) {
		m.SetHeader("Accept", "application/vnd.github.v3+json")
	}
	m.OnSuccess = Callbacks(SaveCache, githubSummary, FormatMessage)
	return m
}

func githubSummary(m *Module, _ any) any {
	data := gjson.ParseBytes(m.Body())
	name := data.Get("full_name").String()
	if name == "" {
		return nil
	}

	extra := "⭐ " + formatCount(int(data.Get("stargazers_count").Int()))
	if lang := data.Get("language").String(); lang != "" {
		extra += " · " + lang
	}
	meta := Meta{
		Title:       name,
		Description: truncate(data.Get("description").String(), maxDescription),
		ContentType: "Repository",
		Extra:       extra,
	}
	return meta.String()
}

var hnItemRe = regexp.MustCompile(`[?&]id=(\d+)`)

func hackerNewsModule() *Module {
	m := MustModule("hackernews", `^https?://news\.ycombinator\.com/item\?id=\d+`)
	m.RetrieveURL = func(raw string) string {
		match := hnItemRe.FindStringSubmatch(raw)
		if match == nil {
			return ""
		}
		return fmt.Sprintf("https://hacker-news.firebaseio.com/v0/item/%s.json", match[1])
	}
	m.OnSuccess = Callbacks(SaveCache, hackerNewsSummary, FormatMessage)
	return m
}

func hackerNewsSummary(m *Module, _ any) any {
	data := gjson.ParseBytes(m.Body())
	title := data.Get("title").String()
	if title == "" {
		return nil
	}

	contentType := "Discussion"
	switch data.Get("type").String() {
	case "job":
		contentType = "Job Posting"
	case "poll":
		contentType = "Poll"
	}
	meta := Meta{
		Title:       title,
		Description: data.Get("url").String(),
		ContentType: contentType,
		Extra:       fmt.Sprintf("%d points · %d comments", data.Get("score").Int(), data.Get("descendants").Int()),
	}
	return meta.String()
}

var redditPostRe = regexp.MustCompile(`/r/[^/]+/comments/[^/]+`)

func redditModule() *Module {
	m := MustModule("reddit", `^https?://(www\.|old\.)?reddit\.com/r/[^/\s]+/comments/`)
	m.RetrieveURL = func(raw string) string {
		u, err := url.Parse(raw)
		if err != nil || !redditPostRe.MatchString(u.Path) {
			return ""
		}
		u.RawQuery = ""
		u.Fragment = ""
		return strings.TrimSuffix(u.String(), "/") + ".json"
	}
	m.OnSuccess = Callbacks(SaveCache, redditSummary, FormatMessage)
	return m
}

func redditSummary(m *Module, _ any) any {
	post := gjson.GetBytes(m.Body(), "0.data.children.0.data")
	title := post.Get("title").String()
	if title == "" {
		return nil
	}
	meta := Meta{
		Title:       title,
		Description: truncate(post.Get("selftext").String(), maxDescription),
		ContentType: "Discussion",
		Extra: fmt.Sprintf("r/%s · ▲ %s · %d comments", post.Get("subreddit").String(),
			formatCount(int(post.Get("score").Int())), post.Get("num_comments").Int()),
	}
	return meta.String()
}

func youtubeModule() *Module {
	m := MustModule("youtube", `^https?://((www\.|m\.)?youtube\.com/watch\?|youtu\.be/)`)
	m.RetrieveURL = func(raw string) string {
		return "https://www.youtube.com/oembed?format=json&url=" + url.QueryEscape(raw)
	}
	m.OnSuccess = Callbacks(SaveCache, youtubeSummary, FormatMessage)
	return m
}

func youtubeSummary(m *Module, _ any) any {
	data := gjson.ParseBytes(m.Body())
	title := data.Get("title").String()
	if title == "" {
		return nil
	}
	meta := Meta{Title: title, ContentType: "Video", Extra: data.Get("author_name").String()}
	return meta.String()
}

var wikiRe = regexp.MustCompile(`^https?://([a-z\-]+)\.(?:m\.)?wikipedia\.org/wiki/([^?#\s]+)`)

func wikipediaModule() *Module {
	m := MustModule("wikipedia", wikiRe.String())
	m.RetrieveURL = func(raw string) string {
		match := wikiRe.FindStringSubmatch(raw)
		if match == nil {
			return ""
		}
		return fmt.Sprintf("https://%s.wikipedia.org/api/rest_v1/page/summary/%s", match[1], match[2])
	}
	m.OnSuccess = Callbacks(SaveCache, wikipediaSummary, FormatMessage)
	return m
}

func wikipediaSummary(m *Module, _ any) any {
	data := gjson.ParseBytes(m.Body())
	title := data.Get("title").String()
	if title == "" {
		return nil
	}
	meta := Meta{
		Title:       title,
		Description: truncate(data.Get("extract").String(), maxDescription),
		Extra:       data.Get("description").String(),
	}
	return meta.String()
}

func feedModule() *Module {
	m := MustModule("feed", `(?i)^https?://\S+(\.(rss|atom)|/feed/?|/rss/?|/atom\.xml|/feed\.xml|/index\.xml)$`)
	m.OnSuccess = Callbacks(SaveCache, feedSummary, FormatMessage)
	return m
}

func feedSummary(m *Module, _ any) any {
	f, err := feed.Parse(m.Body())
	if err != nil {
		m.Logger().Debug("not a feed", "url", m.URL, "error", err)
		return nil
	}

	extra := fmt.Sprintf("%d items", len(f.Items))
	if latest, ok := f.Latest(); ok && latest.Title != "" {
		extra += fmt.Sprintf(" · latest: %s", latest.Title)
		if !latest.Published.IsZero() {
			extra += latest.Published.Format(" (2006-01-02)")
		}
	}
	meta := Meta{
		Title:       f.Title,
		Description: truncate(f.Description, maxDescription),
		ContentType: string(f.Format),
		Extra:       extra,
	}
	return meta.String()
}

func pageModule() *Module {
	m := MustModule("page", `^https?://`)
	m.Enabled = false
	m.OnSuccess = Callbacks(SaveCache, pageSummary, FormatMessage)
	return m
}

func pageSummary(m *Module, _ any) any {
	meta := ExtractMetaTags(m.Body())
	if meta.ContentType == "" {
		if u, err := url.Parse(m.URL); err == nil {
			meta.ContentType = guessContentType(u)
		}
	}
	if meta.Title == "" && meta.Description == "" {
		return nil
	}
	return meta.String()
}

func summaryModule() *Module {
	m := MustModule("summary", `^https?://`)
	m.Enabled = false
	m.OnSuccess = Callbacks(SaveCache, markdownSummary, FormatMessage)
	return m
}

var (
	noiseRe     = regexp.MustCompile(`(?is)<(script|style|nav|header|footer|aside)[^>]*>.*?</(script|style|nav|header|footer|aside)>`)
	mdHeadingRe = regexp.MustCompile(`^#+\s`)
)

// maxSummary bounds the markdown excerpt of the summary module.
const maxSummary = 300

// markdownSummary converts the page to markdown and keeps the first prose
// paragraph.
func markdownSummary(m *Module, _ any) any {
	body := m.Body()
	if len(body) == 0 {
		return nil
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(noiseRe.ReplaceAllString(string(body), ""))
	if err != nil {
		m.Logger().Debug("markdown conversion failed", "url", m.URL, "error", err)
		return nil
	}

	for _, para := range strings.Split(markdown, "\n\n") {
		para = strings.Join(strings.Fields(para), " ")
		if para == "" || mdHeadingRe.MatchString(para) || strings.HasPrefix(para, "![") {
			continue
		}
		return truncate(para, maxSummary)
	}
	return nil
}
