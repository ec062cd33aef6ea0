package preview

import (
	"errors"
	"fmt"

	"urlpreview/cache"
	"urlpreview/fetcher"
)

// FormatMessage renders msg as "[<prefix>] <module> - <msg>\n".
// A nil or empty msg yields nil so nothing is displayed.
func FormatMessage(m *Module, in any) any {
	if in == nil {
		return nil
	}
	msg := fmt.Sprint(in)
	if msg == "" {
		return nil
	}
	return fmt.Sprintf("[%s] %s - %s\n", m.Prefix(), m.Name, msg)
}

// FormatError renders a fetch error as "[<prefix>] <module> (<kind>): <message>\n".
func FormatError(m *Module, in any) any {
	var ferr *fetcher.FetchError
	switch v := in.(type) {
	case *fetcher.FetchError:
		ferr = v
	case error:
		ferr = fetcher.AsFetchError(v)
	case nil:
		return nil
	default:
		ferr = &fetcher.FetchError{Kind: "error", Message: fmt.Sprint(v)}
	}
	return fmt.Sprintf("[%s] %s (%s): %s\n", m.Prefix(), m.Name, ferr.Kind, ferr.Message)
}

// SaveCache writes the fetched body to the cache as text. It does nothing
// if the entry exists or the content came from the cache, and always
// returns nil.
func SaveCache(m *Module, in any) any {
	saveCache(m, false)
	return nil
}

// SaveCacheBinary is SaveCache with a byte-exact write.
func SaveCacheBinary(m *Module, in any) any {
	saveCache(m, true)
	return nil
}

func saveCache(m *Module, binary bool) {
	if m.cache == nil || m.Response == nil || m.Response.FromCache || m.URL == "" {
		return
	}

	var err error
	if binary {
		err = m.cache.Write(m.URL, m.Response.Body)
	} else {
		err = m.cache.WriteText(m.URL, m.Response.Body)
	}
	switch {
	case errors.Is(err, cache.ErrExists):
		m.Logger().Debug("cache write skipped", "url", m.URL)
	case err != nil:
		m.Logger().Warn("cache write failed", "url", m.URL, "error", err)
	default:
		m.Logger().Debug("cached", "url", m.URL, "path", m.CachePath(), "bytes", len(m.Response.Body))
	}
}

// Passthrough returns the fetched body as a string, for chains that format
// raw content.
func Passthrough(m *Module, in any) any {
	if in != nil {
		return in
	}
	if body := m.Body(); body != nil {
		return string(body)
	}
	return nil
}
