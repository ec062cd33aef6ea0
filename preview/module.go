package preview

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"regexp"
	"slices"

	"github.com/charmbracelet/log"

	"urlpreview/cache"
	"urlpreview/document"
	"urlpreview/fetcher"
)

// DefaultPrefix tags every message rendered by the default formatters.
const DefaultPrefix = "url-preview"

// Callback is one step of a chain. It receives the module and the previous
// step's result (nil for "none") and returns its own result.
type Callback func(m *Module, in any) any

// Chain is an ordered list of callbacks threading a single result.
type Chain []Callback

// Callbacks builds a chain from one or more callbacks.
func Callbacks(fns ...Callback) Chain {
	return Chain(fns)
}

// Renderer performs custom insertion at the render position. A chain may
// return one instead of a string.
type Renderer func(ins document.Inserter) error

// Module decides, by pattern, whether it applies to a URL and knows how to
// fetch, transform and render that URL's content.
//
// Every func field is optional; a nil field falls back to the Dispatcher's
// default behaviour.
type Module struct {
	Name    string
	Pattern *regexp.Regexp
	Enabled bool

	// Retrieve replaces the whole retrieval pipeline.
	Retrieve func(ctx context.Context, d *Dispatcher, m *Module, url string, at *document.Anchor)
	// RetrieveURL rewrites the URL before fetching; "" declines the URL.
	RetrieveURL func(url string) string
	// RetrieveArgs adjusts the module copy (headers, props) before fetching.
	RetrieveArgs func(m *Module)
	// RetrieveError replaces the error dispatch (OnError chain + display).
	// It runs under the dispatcher's completion lock, like RetrieveSuccess,
	// the chains and Display: dispatching from there must not reach a cached
	// URL on the same goroutine, since its completion would wait on the lock.
	RetrieveError func(d *Dispatcher, ferr *fetcher.FetchError, m *Module, at *document.Anchor)
	// RetrieveSuccess replaces the success dispatch (OnSuccess chain + display).
	RetrieveSuccess func(d *Dispatcher, m *Module, at *document.Anchor)

	OnSuccess Chain
	OnError   Chain // nil = Callbacks(FormatError)

	// Buffer, when set, receives rendered output at its end instead of the
	// buffer the URL was found in.
	Buffer *document.Buffer
	// DisplayAt picks the render position from the URL's anchor and must
	// return a fresh anchor. nil = document.LineAfter.
	DisplayAt func(at *document.Anchor) *document.Anchor
	// Display renders a chain result. nil = Dispatcher.Display.
	Display func(d *Dispatcher, m *Module, out any, at *document.Anchor)

	// Per-dispatch state. Only ever set on the copy a dispatch works on.
	Source   string // URL as found in the text
	URL      string // URL fetched, after RetrieveURL and RetrieveArgs
	Headers  http.Header
	Props    map[string]any
	Response *fetcher.Response
	ID       string

	prefix string
	cache  *cache.Cache
	logger *log.Logger
}

// NewModule creates an enabled module matching pattern.
func NewModule(name, pattern string) (*Module, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("module %s: invalid pattern: %w", name, err)
	}
	return &Module{Name: name, Pattern: re, Enabled: true}, nil
}

// MustModule is like NewModule but panics on a bad pattern.
func MustModule(name, pattern string) *Module {
	m, err := NewModule(name, pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// Matches reports whether the module applies to url (regexp search).
func (m *Module) Matches(url string) bool {
	return m.Pattern != nil && m.Pattern.MatchString(url)
}

// Clone returns a deep copy. Headers, Props and chains are copied so that
// mutating the clone never affects m. Props values themselves are shared.
func (m *Module) Clone() *Module {
	cp := *m
	cp.Headers = m.Headers.Clone()
	cp.Props = maps.Clone(m.Props)
	cp.OnSuccess = slices.Clone(m.OnSuccess)
	cp.OnError = slices.Clone(m.OnError)
	return &cp
}

// Prefix returns the message prefix for this dispatch.
func (m *Module) Prefix() string {
	if m.prefix == "" {
		return DefaultPrefix
	}
	return m.prefix
}

// CachePath returns where m.URL is (or would be) cached, or "" without a cache.
func (m *Module) CachePath() string {
	if m.cache == nil || m.URL == "" {
		return ""
	}
	return m.cache.Path(m.URL)
}

// Logger returns the dispatch logger, tagged with the module and dispatch id.
func (m *Module) Logger() *log.Logger {
	if m.logger == nil {
		return discard
	}
	return m.logger
}

// SetHeader sets an extra request header on this dispatch.
func (m *Module) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = http.Header{}
	}
	m.Headers.Set(key, value)
}

// SetProp stores a free-form per-dispatch value.
func (m *Module) SetProp(key string, value any) {
	if m.Props == nil {
		m.Props = make(map[string]any)
	}
	m.Props[key] = value
}

// Body returns the fetched content, or nil before a successful fetch.
func (m *Module) Body() []byte {
	if m.Response == nil {
		return nil
	}
	return m.Response.Body
}
