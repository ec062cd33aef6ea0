package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodySize caps how much of a response is read.
const maxBodySize = 20 * 1024 * 1024

// StatusError reports a non-2xx response. An empty status is derived from
// the code.
func StatusError(code int, status string) *FetchError {
	if status == "" {
		status = fmt.Sprintf("%d %s", code, http.StatusText(code))
	}
	return &FetchError{Kind: KindHTTP, Message: status, Status: code}
}

// HTTP retrieves URLs with a plain GET (fast, low bandwidth).
type HTTP struct {
	Client *http.Client // nil = client with the configured timeout
}

// Retrieve implements Retriever.
func (h *HTTP) Retrieve(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, NewError(KindURL, "%v", err)
	}
	httpReq.Header.Set("User-Agent", opts.UserAgent)
	for key, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	client := h.Client
	if client == nil {
		client = &http.Client{
			Timeout: time.Duration(opts.TimeoutSeconds) * time.Second,
		}
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, StatusError(resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &Response{
		URL:         req.URL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
		Body:        body,
		FetchTime:   time.Since(start),
	}, nil
}
