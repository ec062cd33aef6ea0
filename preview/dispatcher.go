package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"urlpreview/cache"
	"urlpreview/document"
	"urlpreview/fetcher"
)

// DefaultPostRenderHook is run on the target buffer after each render.
const DefaultPostRenderHook = "url-preview-after-render"

// ErrDeclined marks a URL a module's RetrieveURL turned down.
var ErrDeclined = errors.New("module declined url")

var discard = log.New(io.Discard)

// Options configures a Dispatcher.
type Options struct {
	Prefix         string // message prefix; default DefaultPrefix
	// PostRenderHook names the hook run after rendering; default
	// DefaultPostRenderHook. Hooks run under the completion lock: a hook may
	// dispatch, but a cached URL must be dispatched from another goroutine.
	PostRenderHook string
	Logger         *log.Logger
}

// Dispatcher matches URLs against registered modules and runs each matching
// module's retrieve, transform and display pipeline.
type Dispatcher struct {
	registry *Registry
	fetcher  *fetcher.Fetcher
	cache    *cache.Cache
	prefix   string
	hook     string
	logger   *log.Logger

	// Completions run one at a time so every chain and its render are atomic.
	mu sync.Mutex
}

// NewDispatcher wires a registry to a fetcher and the cache the default
// save callbacks write to.
func NewDispatcher(registry *Registry, f *fetcher.Fetcher, c *cache.Cache, o Options) *Dispatcher {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.PostRenderHook == "" {
		o.PostRenderHook = DefaultPostRenderHook
	}
	if o.Logger == nil {
		o.Logger = discard
	}
	return &Dispatcher{
		registry: registry,
		fetcher:  f,
		cache:    c,
		prefix:   o.Prefix,
		hook:     o.PostRenderHook,
		logger:   o.Logger,
	}
}

// Registry returns the dispatcher's module registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Prefix returns the message prefix.
func (d *Dispatcher) Prefix() string {
	return d.prefix
}

// Wait blocks until every in-flight fetch has completed and rendered.
func (d *Dispatcher) Wait() {
	d.fetcher.Wait()
}

// Preview scans text[start:end] of buf and dispatches every URL found to
// every enabled module. The same URL rendering at the same spot for the same
// module is dispatched once. Returns the number of dispatches started.
func (d *Dispatcher) Preview(ctx context.Context, buf *document.Buffer, start, end int) int {
	matches := buf.ScanURLs(start, end)
	plan := d.plan(matches, d.registry.EnabledList())
	// Modules took their own anchors; the scan anchors are done.
	for _, match := range matches {
		release(match.Anchor)
	}

	started := 0
	for _, p := range plan {
		if d.start(ctx, p) {
			started++
		}
	}
	d.logger.Debug("preview scan", "buffer", buf.Name(), "urls", len(matches), "dispatches", started)
	return started
}

// plan prepares a dispatch for every matching (url, module) pair, then
// drops duplicates. All display anchors exist before their offsets are read
// in one snapshot, so a render landing mid-scan shifts them together.
func (d *Dispatcher) plan(matches []document.Match, modules []*Module) []*dispatch {
	var all []*dispatch
	for _, match := range matches {
		for _, m := range modules {
			if p := d.prepare(m, match.URL, match.Anchor); p != nil {
				all = append(all, p)
			}
		}
	}

	targets := make([]*document.Anchor, len(all))
	for i, p := range all {
		targets[i] = p.target
	}
	offsets := document.Offsets(targets)

	seen := make(map[string]bool)
	plan := all[:0]
	for i, p := range all {
		key := fmt.Sprintf("%s\x00%s\x00%p\x00%d", p.m.Name, p.url, p.target.Buffer(), offsets[i])
		if seen[key] {
			release(p.target)
			continue
		}
		seen[key] = true
		plan = append(plan, p)
	}
	return plan
}

// DispatchAll runs every enabled module against url.
func (d *Dispatcher) DispatchAll(ctx context.Context, url string, at *document.Anchor) int {
	started := 0
	for _, m := range d.registry.EnabledList() {
		if d.Dispatch(ctx, m, url, at) {
			started++
		}
	}
	return started
}

// Dispatch runs m against url if its pattern matches, rendering near at.
// m itself is never modified: the pipeline works on a private copy.
// at is left untouched; the module renders at the anchor DisplayAt derives.
func (d *Dispatcher) Dispatch(ctx context.Context, m *Module, url string, at *document.Anchor) bool {
	p := d.prepare(m, url, at)
	if p == nil {
		return false
	}
	return d.start(ctx, p)
}

// dispatch is one module copy bound to one URL and its render anchor.
type dispatch struct {
	m      *Module
	url    string
	target *document.Anchor
}

// prepare copies m for url and resolves its display anchor. Returns nil if
// m does not match or DisplayAt panics or returns nil.
func (d *Dispatcher) prepare(m *Module, url string, at *document.Anchor) (p *dispatch) {
	if !m.Matches(url) {
		return nil
	}

	cp := m.Clone()
	cp.ID = uuid.NewString()
	cp.Source = url
	cp.prefix = d.prefix
	cp.cache = d.cache
	cp.logger = d.logger.With("module", cp.Name, "dispatch", cp.ID[:8])

	defer func() {
		if r := recover(); r != nil {
			cp.Logger().Error("dispatch failed", "url", url, "panic", r)
			p = nil
		}
	}()

	displayAt := cp.DisplayAt
	if displayAt == nil {
		displayAt = document.LineAfter
	}
	target := displayAt(at)
	if target == nil {
		cp.Logger().Debug("no display position", "url", url)
		return nil
	}
	return &dispatch{m: cp, url: url, target: target}
}

func (d *Dispatcher) start(ctx context.Context, p *dispatch) (started bool) {
	defer func() {
		if r := recover(); r != nil {
			p.m.Logger().Error("dispatch failed", "url", p.url, "panic", r)
			release(p.target)
			started = false
		}
	}()

	p.m.Logger().Debug("matched", "url", p.url)
	if p.m.Retrieve != nil {
		p.m.Retrieve(ctx, d, p.m, p.url, p.target)
	} else {
		d.Retrieve(ctx, p.m, p.url, p.target)
	}
	return true
}

// Retrieve is the default retrieval pipeline: rewrite the URL, let the
// module add request arguments, then fetch cache-first and hand the result
// to the success or error path.
func (d *Dispatcher) Retrieve(ctx context.Context, m *Module, url string, at *document.Anchor) {
	rewritten := url
	if m.RetrieveURL != nil {
		rewritten = m.RetrieveURL(url)
	}
	if rewritten == "" {
		m.Logger().Debug("skipped", "url", url, "reason", ErrDeclined)
		release(at)
		return
	}
	m.URL = rewritten

	if m.RetrieveArgs != nil {
		m.RetrieveArgs(m)
	}

	// m.URL is read after RetrieveArgs so the cache key and the fetched URL
	// are always the same string.
	req := fetcher.Request{URL: m.URL, Headers: m.Headers, Silent: true}
	d.fetcher.Resolve(ctx, req, func(resp *fetcher.Response, ferr *fetcher.FetchError) {
		d.complete(m, at, resp, ferr)
	})
}

func (d *Dispatcher) complete(m *Module, at *document.Anchor, resp *fetcher.Response, ferr *fetcher.FetchError) {
	d.mu.Lock()
	defer d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			m.Logger().Error("callback failed", "url", m.URL, "panic", r)
			release(at)
		}
	}()

	if ferr != nil {
		m.Logger().Debug("fetch failed", "url", m.URL, "kind", ferr.Kind, "message", ferr.Message)
		if m.RetrieveError != nil {
			m.RetrieveError(d, ferr, m, at)
			return
		}
		d.RetrieveError(ferr, m, at)
		return
	}

	m.Response = resp
	if m.RetrieveSuccess != nil {
		m.RetrieveSuccess(d, m, at)
		return
	}
	d.RetrieveSuccess(m, at)
}

// RetrieveError is the default error path: run OnError seeded with the
// error, then display the result.
func (d *Dispatcher) RetrieveError(ferr *fetcher.FetchError, m *Module, at *document.Anchor) {
	chain := m.OnError
	if chain == nil {
		chain = Callbacks(FormatError)
	}
	d.display(m, RunChain(chain, m, ferr), at)
}

// RetrieveSuccess is the default success path: run OnSuccess, then display
// the result.
func (d *Dispatcher) RetrieveSuccess(m *Module, at *document.Anchor) {
	d.display(m, RunChain(m.OnSuccess, m), at)
}

func (d *Dispatcher) display(m *Module, out any, at *document.Anchor) {
	if m.Display != nil {
		m.Display(d, m, out, at)
		return
	}
	d.Display(m, out, at)
}

// Display renders out, a string or a Renderer, at the anchor, or at the end
// of m.Buffer when the module has its own target. A nil result renders
// nothing. The rendered text is read-only and the post-render hook runs on
// the target buffer afterwards. The anchor is consumed either way.
func (d *Dispatcher) Display(m *Module, out any, at *document.Anchor) {
	target := at.Buffer()
	pos := at
	if m.Buffer != nil {
		target = m.Buffer
		pos = nil
		release(at)
	}

	var err error
	switch v := out.(type) {
	case nil:
		release(at)
		return
	case string:
		if v == "" {
			release(at)
			return
		}
		err = target.InsertReadOnly(pos, v)
	case []byte:
		err = target.InsertReadOnly(pos, string(v))
	case Renderer:
		err = target.Render(pos, v)
	case func(ins document.Inserter) error:
		err = target.Render(pos, v)
	default:
		release(at)
		m.Logger().Warn("unsupported chain result", "url", m.URL, "type", fmt.Sprintf("%T", out))
		return
	}
	if err != nil {
		m.Logger().Warn("render failed", "url", m.URL, "buffer", target.Name(), "error", err)
		return
	}

	m.Logger().Debug("rendered", "url", m.URL, "buffer", target.Name())
	target.RunHook(d.hook)
}

// release consumes an anchor that will not be rendered at.
func release(at *document.Anchor) {
	if at == nil {
		return
	}
	_, _ = at.Buffer().Consume(at)
}
