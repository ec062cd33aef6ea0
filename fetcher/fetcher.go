// Package fetcher resolves URL content, from the on-disk cache when possible
// and otherwise from the network, delivering the result to a callback.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Options configures the network retrievers.
type Options struct {
	UserAgent      string
	TimeoutSeconds int
	ChromePath     string // Path to Chrome binary (empty = auto-detect)
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		UserAgent:      "url-preview/1.0",
		TimeoutSeconds: 30,
		ChromePath:     "",
	}
}

// Package-level options (set via Configure)
var opts = DefaultOptions()

// Configure sets the package-level options.
func Configure(o Options) {
	if o.UserAgent != "" {
		opts.UserAgent = o.UserAgent
	}
	if o.TimeoutSeconds > 0 {
		opts.TimeoutSeconds = o.TimeoutSeconds
	}
	opts.ChromePath = o.ChromePath // Can be empty
}

// UserAgent returns the currently configured user agent string.
func UserAgent() string {
	return opts.UserAgent
}

// Timeout returns the currently configured timeout duration.
func Timeout() time.Duration {
	return time.Duration(opts.TimeoutSeconds) * time.Second
}

// Request describes one content fetch.
type Request struct {
	URL     string
	Headers http.Header // extra request headers
	Silent  bool        // keep progress and failures out of the user-facing log
}

// Response is fetched content, handed to callbacks explicitly.
type Response struct {
	URL         string // requested URL, also the cache key
	FinalURL    string // URL after following redirects
	StatusCode  int
	ContentType string
	Header      http.Header
	Body        []byte
	FromCache   bool
	FetchTime   time.Duration
}

// Error kinds reported in FetchError.Kind.
const (
	KindHTTP       = "http"
	KindTimeout    = "timeout"
	KindDNS        = "dns"
	KindConnection = "connection"
	KindURL        = "url"
	KindBrowser    = "browser"
	KindBlocked    = "blocked"
	KindIO         = "io"
)

// FetchError is a failed retrieval: a kind and a human readable message.
type FetchError struct {
	Kind    string
	Message string
	Status  int // response status for KindHTTP
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds a FetchError.
func NewError(kind, format string, args ...any) *FetchError {
	return &FetchError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsFetchError classifies err. A *FetchError anywhere in the chain is
// returned as is.
func AsFetchError(err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	var dnsErr *net.DNSError
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded):
		return &FetchError{Kind: KindTimeout, Message: err.Error()}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &FetchError{Kind: KindTimeout, Message: err.Error()}
	case errors.As(err, &dnsErr):
		return &FetchError{Kind: KindDNS, Message: dnsErr.Error()}
	case errors.As(err, &urlErr) && urlErr.Op == "parse":
		return &FetchError{Kind: KindURL, Message: urlErr.Err.Error()}
	default:
		return &FetchError{Kind: KindConnection, Message: err.Error()}
	}
}

// Retriever is the network primitive: a blocking fetch of one URL.
// Failures are reported as errors; AsFetchError classifies them.
type Retriever interface {
	Retrieve(ctx context.Context, req Request) (*Response, error)
}

// Store is the read side of the content cache.
type Store interface {
	Exists(url string) bool
	Read(url string) ([]byte, error)
}

// DoneFunc receives either a response or a fetch error, never both.
type DoneFunc func(resp *Response, ferr *FetchError)

// Fetcher resolves URLs cache-first. It never writes to the cache.
type Fetcher struct {
	store     Store
	retriever Retriever
	logger    *log.Logger

	wg sync.WaitGroup
}

// New creates a fetcher reading from store and falling back to retriever.
// A nil logger discards log output.
func New(store Store, retriever Retriever, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Fetcher{
		store:     store,
		retriever: retriever,
		logger:    logger,
	}
}

// Resolve delivers the content of req.URL to done.
//
// A cached URL is read and done is called before Resolve returns, without
// touching the network. Otherwise the retrieval runs in its own goroutine
// and done is called from it once the retrieval completes.
func (f *Fetcher) Resolve(ctx context.Context, req Request, done DoneFunc) {
	if f.store != nil && f.store.Exists(req.URL) {
		body, err := f.store.Read(req.URL)
		if err == nil {
			f.logger.Debug("cache hit", "url", req.URL, "bytes", len(body))
			done(&Response{
				URL:        req.URL,
				FinalURL:   req.URL,
				StatusCode: http.StatusOK,
				Body:       body,
				FromCache:  true,
			}, nil)
			return
		}
		f.logger.Warn("unreadable cache entry, refetching", "url", req.URL, "error", err)
	}

	if f.retriever == nil {
		done(nil, NewError(KindConnection, "no retriever configured"))
		return
	}

	f.progress(req, "fetching", "url", req.URL)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()

		start := time.Now()
		resp, err := f.retriever.Retrieve(ctx, req)
		if err != nil {
			ferr := AsFetchError(err)
			f.failure(req, ferr)
			done(nil, ferr)
			return
		}
		if resp.URL == "" {
			resp.URL = req.URL
		}
		if resp.FetchTime == 0 {
			resp.FetchTime = time.Since(start)
		}
		f.progress(req, "fetched", "url", req.URL, "status", resp.StatusCode,
			"bytes", len(resp.Body), "elapsed", resp.FetchTime)
		done(resp, nil)
	}()
}

// Wait blocks until every network retrieval started by Resolve has
// completed and its callback returned.
func (f *Fetcher) Wait() {
	f.wg.Wait()
}

func (f *Fetcher) progress(req Request, msg string, keyvals ...any) {
	if req.Silent {
		f.logger.Debug(msg, keyvals...)
		return
	}
	f.logger.Info(msg, keyvals...)
}

func (f *Fetcher) failure(req Request, ferr *FetchError) {
	if req.Silent {
		f.logger.Debug("fetch failed", "url", req.URL, "kind", ferr.Kind, "message", ferr.Message)
		return
	}
	f.logger.Warn("fetch failed", "url", req.URL, "kind", ferr.Kind, "message", ferr.Message)
}
