package fetcher

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// stealthScript masks the most common automation checks.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
window.chrome = { runtime: {} };
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
`

// userDataDir returns a persistent directory for Chrome user data.
// This allows cookies and other session data to persist between fetches.
func userDataDir() string {
	dir, _ := os.UserCacheDir()
	return filepath.Join(dir, "url-preview-chrome-profile")
}

// Browser retrieves URLs with headless Chrome so JavaScript-rendered pages
// produce their final HTML. The body is the serialized DOM.
type Browser struct {
	Headless bool
}

// Retrieve implements Retriever.
func (b *Browser) Retrieve(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(opts.UserAgent),
		chromedp.WindowSize(1280, 800),
		chromedp.UserDataDir(userDataDir()),
	}
	if b.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	}
	if opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer allocCancel()

	// Browser fetches get extra time
	timeout := time.Duration(opts.TimeoutSeconds) * time.Second
	if timeout < 30*time.Second {
		timeout = 45 * time.Second
	} else {
		timeout = timeout + 15*time.Second
	}
	runCtx, cancel := context.WithTimeout(allocCtx, timeout)
	defer cancel()

	runCtx, cancel = chromedp.NewContext(runCtx)
	defer cancel()

	headers := network.Headers{
		"Accept-Language": "en-US,en;q=0.9",
	}
	for key, values := range req.Headers {
		headers[key] = strings.Join(values, ", ")
	}

	// The first document response is the page itself; frames load later.
	var (
		mu          sync.Mutex
		status      int
		contentType string
	)
	chromedp.ListenTarget(runCtx, func(ev any) {
		e, ok := ev.(*network.EventResponseReceived)
		if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if status == 0 {
			status = int(e.Response.Status)
			contentType = e.Response.MimeType
		}
	})

	var html, finalURL string
	err := chromedp.Run(runCtx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		network.SetExtraHTTPHeaders(headers),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var title string
			if err := chromedp.Title(&title).Do(ctx); err != nil {
				return nil
			}
			// Cloudflare challenge: give it a moment to clear
			if title == "Just a moment..." {
				return chromedp.Sleep(5 * time.Second).Do(ctx)
			}
			return nil
		}),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		if ctx.Err() != nil || runCtx.Err() == context.DeadlineExceeded {
			return nil, NewError(KindTimeout, "browser fetch: %v", err)
		}
		return nil, NewError(KindBrowser, "%v", err)
	}

	mu.Lock()
	code, mime := status, contentType
	mu.Unlock()
	if code == 0 {
		code = http.StatusOK
	}
	if code < 200 || code > 299 {
		return nil, StatusError(code, "")
	}
	if mime == "" {
		mime = "text/html; charset=utf-8"
	}

	return &Response{
		URL:         req.URL,
		FinalURL:    finalURL,
		StatusCode:  code,
		ContentType: mime,
		Body:        []byte(html),
		FetchTime:   time.Since(start),
	}, nil
}

// Smart tries a plain GET first and falls back to the browser when the
// request fails in transit or the response looks like a bot challenge or a
// JavaScript shell. An HTTP error status is final unless it is one bot
// protection answers with.
type Smart struct {
	HTTP    Retriever
	Browser Retriever
}

// challengeStatus lists the statuses bot protection answers with.
var challengeStatus = []int{http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable}

// Retrieve implements Retriever.
func (s *Smart) Retrieve(ctx context.Context, req Request) (*Response, error) {
	resp, err := s.HTTP.Retrieve(ctx, req)
	var ferr *FetchError
	if errors.As(err, &ferr) && ferr.Kind == KindHTTP && !slices.Contains(challengeStatus, ferr.Status) {
		return nil, err
	}
	if err == nil && !isHTML(resp.ContentType) {
		return resp, nil
	}
	if err == nil {
		if blocked, _ := IsBlockedResponse(string(resp.Body)); !blocked && len(resp.Body) > 5000 {
			return resp, nil
		}
	}
	if s.Browser == nil {
		return resp, err
	}

	bresp, berr := s.Browser.Retrieve(ctx, req)
	if berr != nil {
		if err == nil {
			return resp, nil // the plain response beats nothing
		}
		return nil, berr
	}
	if blocked, reason := IsBlockedResponse(string(bresp.Body)); blocked {
		return nil, NewError(KindBlocked, "%s", reason)
	}
	return bresp, nil
}

func isHTML(contentType string) bool {
	return contentType == "" || strings.Contains(contentType, "html")
}

// IsBlockedResponse checks if the HTML indicates a blocked/challenged page.
func IsBlockedResponse(html string) (bool, string) {
	switch {
	case strings.Contains(html, "unusual traffic from your computer"):
		return true, "Google CAPTCHA"
	case strings.Contains(html, "recaptcha") && len(html) < 10000:
		return true, "reCAPTCHA challenge"
	case strings.Contains(html, "Just a moment..."),
		strings.Contains(html, "Checking your browser"),
		strings.Contains(html, "cf-browser-verification"):
		return true, "Cloudflare challenge"
	case strings.Contains(html, "captcha-delivery.com"), strings.Contains(html, "DataDome"):
		return true, "DataDome bot protection"
	case strings.Contains(html, "perimeterx"), strings.Contains(html, "px-captcha"):
		return true, "PerimeterX bot protection"
	}
	return false, ""
}
